package provider

import (
	"context"

	"github.com/wearcoach/wearcoach/internal/worker"
)

// PooledProvider routes every completion and embedding call through a
// bounded worker pool so outbound collaborator concurrency shares one limit.
// Submissions beyond the pool's capacity queue with backpressure.
type PooledProvider struct {
	inner Provider
	pool  *worker.Pool
}

// NewPooledProvider wraps inner so all of its calls run on the pool.
func NewPooledProvider(inner Provider, pool *worker.Pool) *PooledProvider {
	return &PooledProvider{inner: inner, pool: pool}
}

// Complete runs the completion on the pool and returns its result.
func (p *PooledProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	var out string
	err := p.pool.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = p.inner.Complete(ctx, req)
		return err
	})
	return out, err
}

// Embed runs the embedding call on the pool, order-preserving.
func (p *PooledProvider) Embed(ctx context.Context, input []string) ([][]float32, error) {
	var out [][]float32
	err := p.pool.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = p.inner.Embed(ctx, input)
		return err
	})
	return out, err
}
