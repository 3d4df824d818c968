package llm

import (
	"context"
	"errors"
)

// Provider completes a single-turn prompt.
type Provider interface {
	Name() string
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// ErrEmptyResponse is returned when a model answers without text.
var ErrEmptyResponse = errors.New("empty completion")

// Default models per provider.
const (
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultXAIModel       = "grok-3-mini"
	DefaultAnthropicModel = "claude-3-5-haiku-latest"

	// XAIBaseURL is the OpenAI-compatible endpoint of xAI.
	XAIBaseURL = "https://api.x.ai/v1"

	defaultMaxTokens = 4096
)

// modelOf returns the model of p when it exposes one.
func modelOf(p Provider) string {
	if m, ok := p.(interface{ Model() string }); ok {
		return m.Model()
	}
	return ""
}
