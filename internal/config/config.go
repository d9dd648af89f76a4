// Package config provides layered configuration for studyrag.
// Configuration is loaded with a layered precedence: defaults → .env file →
// YAML file → env vars. Environment variables always win, so existing
// workflows are unaffected.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. STUDYRAG_CONFIG environment variable
//  3. ~/.studyrag/config.yaml
//  4. ./studyrag.yaml
//
// If no file is found the system runs entirely from env vars. Once the
// environment is populated, [FromEnv] resolves the typed [Settings] that every
// component is built from.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// File is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type File struct {
	// Model configures the LLM chat model provider.
	Model ModelFile `yaml:"model"`

	// Embedding configures the embedding provider.
	Embedding EmbeddingFile `yaml:"embedding"`

	// VectorStore configures where chunk embeddings are persisted.
	VectorStore VectorStoreFile `yaml:"vector_store"`

	// Conversation configures where chat transcripts are persisted.
	Conversation ConversationFile `yaml:"conversation"`

	// Retrieval tunes ranking and prompt assembly.
	Retrieval RetrievalFile `yaml:"retrieval"`

	// Ingestion tunes chunking and embedding fan-out.
	Ingestion IngestionFile `yaml:"ingestion"`

	// Server configures the HTTP server.
	Server ServerFile `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingFile `yaml:"logging"`

	// Tracing configures Langfuse and OpenTelemetry.
	Tracing TracingFile `yaml:"tracing"`
}

// ModelFile holds LLM chat model settings.
type ModelFile struct {
	// Provider selects the backend: ollama, openai, azure, gemini, ark.
	Provider string `yaml:"provider"`
	// MaxTokens is the maximum number of tokens in the response.
	MaxTokens int `yaml:"max_tokens"`
	// Temperature controls response randomness (0.0–1.0).
	Temperature float32 `yaml:"temperature"`
	// Timeout bounds a single completion call (Go duration, e.g. "60s").
	Timeout string `yaml:"timeout"`

	Ollama struct {
		Host  string `yaml:"host"`
		Model string `yaml:"model"`
	} `yaml:"ollama"`

	OpenAI struct {
		APIKey  string `yaml:"api_key"`
		Model   string `yaml:"model"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"openai"`

	Azure struct {
		APIKey     string `yaml:"api_key"`
		Endpoint   string `yaml:"endpoint"`
		Deployment string `yaml:"deployment"`
		APIVersion string `yaml:"api_version"`
	} `yaml:"azure"`

	Gemini struct {
		APIKey string `yaml:"api_key"`
		Model  string `yaml:"model"`
	} `yaml:"gemini"`

	Ark struct {
		APIKey  string `yaml:"api_key"`
		Model   string `yaml:"model"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"ark"`
}

// EmbeddingFile holds embedding provider settings.
type EmbeddingFile struct {
	// Provider selects the embedding backend (ollama, openai, azure, service).
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
	// Timeout bounds a single embedding call.
	Timeout string `yaml:"timeout"`
}

// VectorStoreFile holds vector store settings.
type VectorStoreFile struct {
	// Backend is sqlite, memory or qdrant.
	Backend string `yaml:"backend"`
	// DBPath is the SQLite database path.
	DBPath string `yaml:"db_path"`

	Qdrant struct {
		Host       string `yaml:"host"`
		Port       int    `yaml:"port"`
		Collection string `yaml:"collection"`
		APIKey     string `yaml:"api_key"`
		TLS        bool   `yaml:"tls"`
	} `yaml:"qdrant"`
}

// ConversationFile holds conversation store settings.
type ConversationFile struct {
	// Backend is sqlite, memory or redis.
	Backend string `yaml:"backend"`
	// DBPath is the SQLite database path.
	DBPath string `yaml:"db_path"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
}

// RetrievalFile holds ranking and prompt assembly settings.
type RetrievalFile struct {
	TopK             int `yaml:"top_k"`
	MaxContextChars  int `yaml:"max_context_chars"`
	MaxHistoryTokens int `yaml:"max_history_tokens"`
	RetryAttempts    int `yaml:"retry_attempts"`
}

// IngestionFile holds chunking and ingestion settings.
type IngestionFile struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	MinTextChars int `yaml:"min_text_chars"`
	Concurrency  int `yaml:"concurrency"`
}

// ServerFile holds HTTP server settings.
type ServerFile struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var STUDYRAG_API_KEY.
	APIKey string `yaml:"api_key"`
	// RateLimit is the sustained requests per second allowed per client IP.
	RateLimit float64 `yaml:"rate_limit"`
}

// LoggingFile holds structured logging settings.
type LoggingFile struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// TracingFile holds Langfuse and OpenTelemetry settings.
type TracingFile struct {
	PublicKey    string `yaml:"public_key"`
	SecretKey    string `yaml:"secret_key"`
	Host         string `yaml:"host"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Environment  string `yaml:"environment"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*File) string
}{
	{"MODEL_PROVIDER", func(c *File) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *File) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *File) string { return float32Str(c.Model.Temperature) }},
	{"MODEL_TIMEOUT", func(c *File) string { return c.Model.Timeout }},
	{"OLLAMA_HOST", func(c *File) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *File) string { return c.Model.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *File) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *File) string { return c.Model.OpenAI.Model }},
	{"OPENAI_BASE_URL", func(c *File) string { return c.Model.OpenAI.BaseURL }},
	{"AZURE_OPENAI_API_KEY", func(c *File) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *File) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *File) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *File) string { return c.Model.Azure.APIVersion }},
	{"GOOGLE_API_KEY", func(c *File) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *File) string { return c.Model.Gemini.Model }},
	{"ARK_API_KEY", func(c *File) string { return c.Model.Ark.APIKey }},
	{"ARK_MODEL", func(c *File) string { return c.Model.Ark.Model }},
	{"ARK_BASE_URL", func(c *File) string { return c.Model.Ark.BaseURL }},
	{"EMBEDDING_PROVIDER", func(c *File) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *File) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *File) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *File) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *File) string { return c.Embedding.Endpoint }},
	{"EMBEDDING_TIMEOUT", func(c *File) string { return c.Embedding.Timeout }},
	{"VECTOR_STORE", func(c *File) string { return c.VectorStore.Backend }},
	{"STUDYRAG_VECTOR_DB", func(c *File) string { return c.VectorStore.DBPath }},
	{"QDRANT_HOST", func(c *File) string { return c.VectorStore.Qdrant.Host }},
	{"QDRANT_PORT", func(c *File) string { return intStr(c.VectorStore.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *File) string { return c.VectorStore.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *File) string { return c.VectorStore.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *File) string { return boolStr(c.VectorStore.Qdrant.TLS) }},
	{"CONVERSATION_STORE", func(c *File) string { return c.Conversation.Backend }},
	{"STUDYRAG_HISTORY_DB", func(c *File) string { return c.Conversation.DBPath }},
	{"REDIS_ADDR", func(c *File) string { return c.Conversation.Redis.Addr }},
	{"REDIS_PASSWORD", func(c *File) string { return c.Conversation.Redis.Password }},
	{"REDIS_DB", func(c *File) string { return intStr(c.Conversation.Redis.DB) }},
	{"REDIS_PREFIX", func(c *File) string { return c.Conversation.Redis.Prefix }},
	{"RAG_TOP_K", func(c *File) string { return intStr(c.Retrieval.TopK) }},
	{"RAG_MAX_CONTEXT_CHARS", func(c *File) string { return intStr(c.Retrieval.MaxContextChars) }},
	{"RAG_MAX_HISTORY_TOKENS", func(c *File) string { return intStr(c.Retrieval.MaxHistoryTokens) }},
	{"RAG_RETRY_ATTEMPTS", func(c *File) string { return intStr(c.Retrieval.RetryAttempts) }},
	{"CHUNK_SIZE", func(c *File) string { return intStr(c.Ingestion.ChunkSize) }},
	{"CHUNK_OVERLAP", func(c *File) string { return intStr(c.Ingestion.ChunkOverlap) }},
	{"INGEST_MIN_TEXT_CHARS", func(c *File) string { return intStr(c.Ingestion.MinTextChars) }},
	{"INGEST_CONCURRENCY", func(c *File) string { return intStr(c.Ingestion.Concurrency) }},
	{"STUDYRAG_HOST", func(c *File) string { return c.Server.Host }},
	{"STUDYRAG_PORT", func(c *File) string { return intStr(c.Server.Port) }},
	{"STUDYRAG_API_KEY", func(c *File) string { return c.Server.APIKey }},
	{"STUDYRAG_RATE_LIMIT", func(c *File) string { return float64Str(c.Server.RateLimit) }},
	{"LOG_LEVEL", func(c *File) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *File) string { return c.Logging.Format }},
	{"LANGFUSE_PUBLIC_KEY", func(c *File) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *File) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *File) string { return c.Tracing.Host }},
	{"OTEL_EXPORTER_OTLP_ENDPOINT", func(c *File) string { return c.Tracing.OTLPEndpoint }},
	{"STUDYRAG_ENV", func(c *File) string { return c.Tracing.Environment }},
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables that are already set are left untouched. A missing file is not
// an error.
func LoadDotEnv(path string, log *slog.Logger) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	log.Debug("config: loaded dotenv file", slog.String("path", path))
	return nil
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg File
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" || yamlVal == "0" || yamlVal == "false" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set: do not override
		}
		if err := os.Setenv(m.envKey, yamlVal); err != nil {
			return "", fmt.Errorf("config: failed to set %s: %w", m.envKey, err)
		}
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("STUDYRAG_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".studyrag", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("studyrag.yaml"); err == nil {
		return "studyrag.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	return float64Str(float64(v))
}

// float64Str converts a float64 to string, returning "" for zero values.
func float64Str(v float64) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
