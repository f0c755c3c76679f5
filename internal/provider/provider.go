package provider

import (
	"context"
	"fmt"

	"github.com/wearcoach/wearcoach/config"
)

// CompletionRequest describes a single chat-completion call.
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
	MaxTokens    int
}

// Provider is the contract for the LLM completion and embedding collaborators.
type Provider interface {
	// Complete runs one chat completion and returns the raw text.
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// Embed generates vector embeddings for the inputs, order-preserving.
	Embed(ctx context.Context, input []string) ([][]float32, error)
}

// NewProvider creates an LLM provider based on configuration.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Type {
	case "", "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("llm.api_key not configured")
		}
		return NewOpenAIProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider type: %s", cfg.Type)
	}
}
