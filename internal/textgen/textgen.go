package textgen

import (
	"context"
)

// Request describes one completion call.
type Request struct {
	// System steers tone and length.
	System string
	// Prompt carries the content-specific instructions.
	Prompt string
	// MaxTokens bounds the completion size.
	MaxTokens int
	// Temperature is passed through to the model.
	Temperature float64
}

// Provider turns prompts into text. Empty output is reported as an error.
type Provider interface {
	Generate(ctx context.Context, req Request) (string, error)
}
