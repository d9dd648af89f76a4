package embedder

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/54b3r/studyrag-go/internal/config"
	"github.com/54b3r/studyrag-go/internal/rag"
)

// knownChatModelPrefixes contains name fragments that identify chat/completion
// models which are NOT suitable for embedding. If EMBEDDING_MODEL matches any
// of these, a warning is emitted so the operator knows they may have
// misconfigured the pipeline.
var knownChatModelPrefixes = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"llama3",
	"llama2",
	"llama-3",
	"llama-2",
	"mistral",
	"mixtral",
	"gemma",
	"phi-",
	"phi3",
	"claude",
	"command-r",
	"deepseek",
	"qwen",
	"solar",
	"vicuna",
	"falcon",
	"yi-",
}

// looksLikeChatModel returns true when the model name resembles a known
// chat/completion model rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// ValidateForRAG checks that the embedding configuration is usable before
// any store or server is built. It returns an error if the configuration is
// clearly broken (e.g. azure embedder with no API key), and logs a warning if
// the model name looks like a chat model rather than an embedding model.
//
// This is a pre-flight check so operators get a clear error at startup
// rather than a cryptic failure during the first embed call.
func ValidateForRAG(cfg *config.EmbeddingConfig, log *slog.Logger) error {
	switch cfg.Provider {
	case "ollama", "service":
		// Local backends need no credentials.
	case "openai":
		if cfg.APIKey == "" {
			return fmt.Errorf("embedder: no OpenAI API key found, set OPENAI_API_KEY or EMBEDDING_API_KEY: %w", rag.ErrConfiguration)
		}
	case "azure":
		if cfg.APIKey == "" {
			return fmt.Errorf("embedder: no Azure API key found, set AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY: %w", rag.ErrConfiguration)
		}
		if cfg.Endpoint == "" {
			return fmt.Errorf("embedder: no Azure endpoint found, set AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT: %w", rag.ErrConfiguration)
		}
	default:
		return fmt.Errorf("embedder: unknown backend %q, set EMBEDDING_PROVIDER to ollama, openai, azure or service: %w", cfg.Provider, rag.ErrConfiguration)
	}

	if cfg.Dimensions < 0 {
		return fmt.Errorf("embedder: EMBEDDING_DIMENSIONS must not be negative, got %d: %w", cfg.Dimensions, rag.ErrConfiguration)
	}

	if cfg.Model != "" && looksLikeChatModel(cfg.Model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, not an embedding model: "+
			"this will likely produce poor or broken embeddings",
			slog.String("model", cfg.Model),
			slog.String("hint", "use a dedicated embedding model e.g. nomic-embed-text, text-embedding-3-small"),
		)
	}

	return nil
}
