package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIConfig configures an OpenAI-compatible provider.
type OpenAIConfig struct {
	// Name labels the provider in logs and metrics. Defaults to "openai".
	Name    string
	APIKey  string
	Model   string
	BaseURL string
}

// OpenAIProvider completes prompts with the chat completions API.
type OpenAIProvider struct {
	name   string
	model  string
	client openai.Client
}

// NewOpenAIProvider creates an OpenAI-compatible provider.
func NewOpenAIProvider(cfg OpenAIConfig, opts ...option.RequestOption) *OpenAIProvider {
	name := cfg.Name
	if name == "" {
		name = "openai"
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.BaseURL))
	}
	clientOpts = append(clientOpts, opts...)

	return &OpenAIProvider{
		name:   name,
		model:  model,
		client: openai.NewClient(clientOpts...),
	}
}

// NewXAIProvider creates a provider for xAI models.
func NewXAIProvider(apiKey, model string, opts ...option.RequestOption) *OpenAIProvider {
	if model == "" {
		model = DefaultXAIModel
	}
	return NewOpenAIProvider(OpenAIConfig{
		Name:    "xai",
		APIKey:  apiKey,
		Model:   model,
		BaseURL: XAIBaseURL,
	}, opts...)
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return p.name }

// Model returns the configured model.
func (p *OpenAIProvider) Model() string { return p.model }

// Complete implements Provider.
func (p *OpenAIProvider) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return "", fmt.Errorf("%s chat completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
