// Package llm abstracts text-generation backends behind a single-method
// interface so retry state machines are provider-agnostic. Provider
// selection happens in cmd via an opaque configuration value.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
)

// TextGenerator is the one call every backend must support.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string, temperature float64, maxTokens int64) (string, error)
}

// Provider names accepted by New.
const (
	ProviderAnthropic = "anthropic"
	ProviderChat      = "chat"
)

type Options struct {
	Logger   *slog.Logger
	Provider string
	Model    string

	// BaseURL and APIKey apply to the chat provider only; the anthropic
	// provider reads its key from the environment via the SDK.
	BaseURL string
	APIKey  string
}

// New builds a generator for the named provider.
func New(opts Options) (TextGenerator, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Model == "" {
		return nil, errors.New("model is required")
	}
	switch opts.Provider {
	case ProviderAnthropic, "":
		return NewAnthropicGenerator(opts.Logger, anthropic.Model(opts.Model)), nil
	case ProviderChat:
		if opts.BaseURL == "" {
			return nil, errors.New("base URL is required for the chat provider")
		}
		return NewChatGenerator(opts.Logger, opts.BaseURL, opts.Model, opts.APIKey), nil
	}
	return nil, fmt.Errorf("unknown provider %q", opts.Provider)
}
