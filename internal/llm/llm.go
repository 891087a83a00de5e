// Package llm wraps the hosted generative-model APIs behind a small interface.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrMissingAPIKey is returned when a client is built or used without a secret.
var ErrMissingAPIKey = errors.New("llm: api key missing")

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("llm: empty response")

// Model generates text for a single prompt.
type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)
	// Stream emits reply fragments as they arrive. Both channels are closed when
	// generation ends; at most one error is sent.
	Stream(ctx context.Context, prompt string) (<-chan string, <-chan error)
}

// Options selects and configures a Model.
type Options struct {
	Provider string // "gemini" or "openai"
	APIKey   string
	Model    string
	BaseURL  string
}

// New builds the Model for the configured provider.
func New(ctx context.Context, opts Options) (Model, error) {
	if opts.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	switch strings.ToLower(opts.Provider) {
	case "", "gemini":
		c, err := NewGeminiClient(ctx, opts.APIKey, opts.Model)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "openai":
		return NewOpenAIClient(opts.APIKey, opts.BaseURL, opts.Model), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", opts.Provider)
	}
}
