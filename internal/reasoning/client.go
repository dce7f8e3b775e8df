// Package reasoning wraps the external language-model capability behind a
// narrow completion interface. Everything above this package is
// provider-agnostic; swapping Gemini for OpenAI is a config change.
package reasoning

import (
	"context"
	"fmt"

	"gridsense/internal/config"
)

// Client is the reasoning capability consumed by classification and
// procedure synthesis.
type Client interface {
	// Complete sends a prompt and returns the raw completion text.
	Complete(ctx context.Context, prompt string) (string, error)

	// CompleteWithSystem sends a prompt with a system message.
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// New builds the configured provider's client.
func New(cfg config.ProviderConfig) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("reasoning API key not configured")
	}

	switch cfg.Provider {
	case config.ProviderGemini, "":
		return NewGeminiClient(cfg)
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg), nil
	default:
		return nil, fmt.Errorf("unknown reasoning provider: %s", cfg.Provider)
	}
}
