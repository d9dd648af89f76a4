package provider

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"

	"github.com/54b3r/studyrag-go/internal/config"
	"github.com/54b3r/studyrag-go/internal/rag"
)

// FromConfig maps the resolved model settings onto a provider Config.
func FromConfig(m config.ModelConfig) *Config {
	return &Config{
		Backend: Backend(m.Provider),
		Ollama: ProviderOllama{
			Host:  m.OllamaHost,
			Model: m.OllamaModel,
		},
		OpenAI: ProviderOpenAI{
			APIKey:  m.OpenAIAPIKey,
			Model:   m.OpenAIModel,
			BaseURL: m.OpenAIBaseURL,
		},
		AzureOpenAI: ProviderAzureOpenAI{
			APIKey:     m.AzureAPIKey,
			Endpoint:   m.AzureEndpoint,
			Deployment: m.AzureDeployment,
			APIVersion: m.AzureAPIVersion,
		},
		Gemini: ProviderGemini{
			APIKey: m.GeminiAPIKey,
			Model:  m.GeminiModel,
		},
		Ark: ProviderArk{
			APIKey:  m.ArkAPIKey,
			Model:   m.ArkModel,
			BaseURL: m.ArkBaseURL,
		},
		Tuning: SharedTuning{
			MaxTokens:   m.MaxTokens,
			Temperature: m.Temperature,
			Timeout:     m.Timeout,
		},
	}
}

// New constructs a chat model from an explicit Config, delegating to the
// appropriate backend factory function. It validates the config first so
// callers get a clear error at startup rather than on the first request.
func New(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", rag.ErrConfiguration, err)
	}
	switch cfg.Backend {
	case BackendOllama:
		return newOllama(ctx, cfg)
	case BackendOpenAI:
		return newOpenAI(ctx, cfg)
	case BackendAzure:
		return newAzure(ctx, cfg)
	case BackendGemini:
		return newGemini(ctx, cfg)
	case BackendArk:
		return newArk(ctx, cfg)
	default:
		return nil, fmt.Errorf("provider: unknown backend %q: %w", cfg.Backend, rag.ErrConfiguration)
	}
}

// NewCompleter builds the chat model for m and wraps it in a ChatCompleter.
func NewCompleter(ctx context.Context, m config.ModelConfig) (*ChatCompleter, error) {
	cfg := FromConfig(m)
	cm, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewChatCompleter(cm, cfg.Tuning.Timeout), nil
}
