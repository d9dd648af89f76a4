package embedder

import (
	"fmt"

	"github.com/54b3r/studyrag-go/internal/config"
	"github.com/54b3r/studyrag-go/internal/rag"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"

	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	// Other Ollama models may differ: override with EMBEDDING_DIMENSIONS.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536
	// defaultServiceDimensions matches the all-MiniLM-L6-v2 sentence
	// transformer the standalone embedding service is usually run with.
	defaultServiceDimensions = 384
)

// DefaultDimensions returns the embedding vector size for cfg. An explicit
// cfg.Dimensions always wins; otherwise the backend's default model size is
// used. Callers that must pre-size a vector store (e.g. Qdrant collection
// creation) should use this rather than hardcoding a value.
func DefaultDimensions(cfg *config.EmbeddingConfig) int {
	if cfg.Dimensions > 0 {
		return cfg.Dimensions
	}
	switch cfg.Provider {
	case "ollama":
		return defaultOllamaDimensions
	case "service":
		return defaultServiceDimensions
	default:
		return defaultOpenAIDimensions
	}
}

// New constructs the batch backend selected by cfg.Provider. Credentials and
// endpoints are expected to be resolved already (see config.FromEnv).
func New(cfg *config.EmbeddingConfig) (rag.Embedder, error) {
	switch cfg.Provider {
	case "ollama":
		host := cfg.Endpoint
		if host == "" {
			host = config.DefaultOllamaHost
		}
		return NewOllamaEmbedder(&OllamaConfig{
			Host:  host,
			Model: orDefault(cfg.Model, defaultOllamaModel),
		}), nil

	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY: %w", rag.ErrConfiguration)
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    orDefault(cfg.Endpoint, "https://api.openai.com/v1"),
			APIKey:     cfg.APIKey,
			Model:      orDefault(cfg.Model, defaultOpenAIModel),
			Dimensions: cfg.Dimensions,
		}), nil

	case "azure":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY: %w", rag.ErrConfiguration)
		}
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT: %w", rag.ErrConfiguration)
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    cfg.Endpoint + "/openai",
			APIKey:     cfg.APIKey,
			Model:      orDefault(cfg.Model, defaultOpenAIModel),
			Dimensions: cfg.Dimensions,
			Azure:      true,
			APIVersion: orDefault(cfg.APIVersion, "2024-02-01"),
		}), nil

	case "service":
		return NewServiceEmbedder(orDefault(cfg.Endpoint, config.DefaultServiceEndpoint)), nil

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q (valid: ollama, openai, azure, service): %w", cfg.Provider, rag.ErrConfiguration)
	}
}

// NewGatewayFromConfig builds the backend for cfg and wraps it in a Gateway
// enforcing cfg.Dimensions and cfg.Timeout.
func NewGatewayFromConfig(cfg *config.EmbeddingConfig) (*Gateway, error) {
	backend, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return NewGateway(backend, cfg.Dimensions, cfg.Timeout), nil
}

// orDefault returns v, or fallback if v is empty.
func orDefault(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
