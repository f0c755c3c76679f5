// Package worker provides the bounded pool that offloads blocking
// collaborator calls (LLM, embeddings) away from request handling.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrPoolClosed is returned when submitting to a shut-down pool.
var ErrPoolClosed = errors.New("worker pool closed")

type task struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

// Pool runs submitted functions on a fixed set of workers with a bounded
// queue. Submissions beyond queue capacity block the caller (backpressure)
// until a slot frees or the caller's context is cancelled. Each task runs
// under the caller's context bounded by the per-task timeout.
type Pool struct {
	tasks   chan task
	timeout time.Duration
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPool starts size workers with the given queue capacity and per-task
// timeout. Zero values fall back to 4 workers, a queue of 64 and 45s.
func NewPool(size, queue int, timeout time.Duration) *Pool {
	if size <= 0 {
		size = 4
	}
	if queue <= 0 {
		queue = 64
	}
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	p := &Pool{
		tasks:   make(chan task, queue),
		timeout: timeout,
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for t := range p.tasks {
		// The submitter may have given up while the task was queued.
		if err := t.ctx.Err(); err != nil {
			t.done <- err
			continue
		}
		ctx, cancel := context.WithTimeout(t.ctx, p.timeout)
		t.done <- t.fn(ctx)
		cancel()
	}
}

// Do submits fn and waits for its result. It returns the caller context's
// error if cancelled while queued or waiting. The read lock spans the send
// so Shutdown cannot close the channel between the closed check and the
// enqueue.
func (p *Pool) Do(ctx context.Context, fn func(context.Context) error) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPoolClosed
	}

	t := task{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case p.tasks <- t:
		p.mu.RUnlock()
	case <-ctx.Done():
		p.mu.RUnlock()
		return ctx.Err()
	}
	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting work and waits for in-flight tasks to finish.
// The write lock excludes every in-flight submission, so no sender can be
// between its closed check and its send when the channel closes.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}
