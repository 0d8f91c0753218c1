package llm

import "context"

type CompleteOptions struct {
	MaxTokens   int32
	Temperature float32
}

type Provider interface {
	// Complete returns the model's full text response for prompt.
	Complete(ctx context.Context, prompt string, opts CompleteOptions) (string, error)
	// Embed returns an embedding vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)
	Close() error
}
