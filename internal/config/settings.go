package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Settings is the fully resolved runtime configuration. It is built once by
// FromEnv at the edge of the program and each component receives only its
// own section.
type Settings struct {
	Model        ModelConfig
	Embedding    EmbeddingConfig
	VectorStore  VectorStoreConfig
	Conversation ConversationConfig
	Retrieval    RetrievalConfig
	Ingestion    IngestionConfig
	Server       ServerConfig
	Logging      LoggingConfig
	Tracing      TracingConfig
}

// ModelConfig holds the resolved chat model settings.
type ModelConfig struct {
	// Provider is one of ollama, openai, azure, gemini, ark.
	Provider    string
	MaxTokens   int
	Temperature float32
	// Timeout bounds one completion call. Zero means only the caller's deadline applies.
	Timeout time.Duration

	OllamaHost  string
	OllamaModel string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	AzureAPIKey     string
	AzureEndpoint   string
	AzureDeployment string
	AzureAPIVersion string

	GeminiAPIKey string
	GeminiModel  string

	ArkAPIKey  string
	ArkModel   string
	ArkBaseURL string
}

// EmbeddingConfig holds the resolved embedding backend settings. Credentials
// and endpoints inherited from the chat provider are already filled in.
type EmbeddingConfig struct {
	// Provider is one of ollama, openai, azure, service.
	Provider   string
	Model      string
	Dimensions int
	APIKey     string
	Endpoint   string
	// APIVersion is used by the azure backend only.
	APIVersion string
	Timeout    time.Duration
}

// VectorStoreConfig selects and configures the chunk store.
type VectorStoreConfig struct {
	// Backend is one of sqlite, memory, qdrant.
	Backend string
	DBPath  string

	QdrantHost       string
	QdrantPort       int
	QdrantCollection string
	QdrantAPIKey     string
	QdrantTLS        bool
}

// ConversationConfig selects and configures the conversation log store.
type ConversationConfig struct {
	// Backend is one of sqlite, memory, redis.
	Backend string
	DBPath  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// RetrievalConfig tunes the answer path.
type RetrievalConfig struct {
	TopK             int
	MaxContextChars  int
	MaxHistoryTokens int
	// RetryAttempts is the number of extra attempts for embedding and
	// completion calls. Zero disables retries.
	RetryAttempts int
}

// IngestionConfig tunes the ingestion path.
type IngestionConfig struct {
	ChunkSize    int
	ChunkOverlap int
	MinTextChars int
	Concurrency  int
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host   string
	Port   int
	APIKey string
	// RateLimit is requests per second per client IP. Negative disables limiting.
	RateLimit float64
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string
	Format string
}

// TracingConfig holds Langfuse and OpenTelemetry settings.
type TracingConfig struct {
	LangfuseHost      string
	LangfusePublicKey string
	LangfuseSecretKey string

	OTLPEndpoint string
	ServiceName  string
	Environment  string
}

// Defaults applied when neither YAML nor env provides a value.
const (
	DefaultModelProvider    = "ollama"
	DefaultMaxTokens        = 500
	DefaultTemperature      = 0.3
	DefaultOllamaHost       = "http://localhost:11434"
	DefaultServiceEndpoint  = "http://localhost:5001"
	DefaultQdrantCollection = "studyrag-chunks"
)

// FromEnv resolves Settings from the current process environment. Call it
// after LoadDotEnv and Load so the lower-precedence layers are visible.
func FromEnv() (*Settings, error) {
	var p parser

	s := &Settings{
		Model: ModelConfig{
			Provider:    strings.ToLower(getEnvOrDefault("MODEL_PROVIDER", DefaultModelProvider)),
			MaxTokens:   p.intVal("MODEL_MAX_TOKENS", DefaultMaxTokens),
			Temperature: p.float32Val("MODEL_TEMPERATURE", DefaultTemperature),
			Timeout:     p.durationVal("MODEL_TIMEOUT", 60*time.Second),

			OllamaHost:  getEnvOrDefault("OLLAMA_HOST", DefaultOllamaHost),
			OllamaModel: getEnvOrDefault("OLLAMA_MODEL", "llama3"),

			OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
			OpenAIModel:   getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
			OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),

			AzureAPIKey:     os.Getenv("AZURE_OPENAI_API_KEY"),
			AzureEndpoint:   os.Getenv("AZURE_OPENAI_ENDPOINT"),
			AzureDeployment: os.Getenv("AZURE_OPENAI_DEPLOYMENT"),
			AzureAPIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2024-02-01"),

			GeminiAPIKey: os.Getenv("GOOGLE_API_KEY"),
			GeminiModel:  getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),

			ArkAPIKey:  os.Getenv("ARK_API_KEY"),
			ArkModel:   os.Getenv("ARK_MODEL"),
			ArkBaseURL: os.Getenv("ARK_BASE_URL"),
		},
		VectorStore: VectorStoreConfig{
			Backend:          strings.ToLower(getEnvOrDefault("VECTOR_STORE", "sqlite")),
			DBPath:           os.Getenv("STUDYRAG_VECTOR_DB"),
			QdrantHost:       getEnvOrDefault("QDRANT_HOST", "localhost"),
			QdrantPort:       p.intVal("QDRANT_PORT", 6334),
			QdrantCollection: getEnvOrDefault("QDRANT_COLLECTION", DefaultQdrantCollection),
			QdrantAPIKey:     os.Getenv("QDRANT_API_KEY"),
			QdrantTLS:        p.boolVal("QDRANT_TLS"),
		},
		Conversation: ConversationConfig{
			Backend:       strings.ToLower(getEnvOrDefault("CONVERSATION_STORE", "sqlite")),
			DBPath:        os.Getenv("STUDYRAG_HISTORY_DB"),
			RedisAddr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			RedisPassword: os.Getenv("REDIS_PASSWORD"),
			RedisDB:       p.intVal("REDIS_DB", 0),
			RedisPrefix:   getEnvOrDefault("REDIS_PREFIX", "studyrag"),
		},
		Retrieval: RetrievalConfig{
			TopK:             p.intVal("RAG_TOP_K", 5),
			MaxContextChars:  p.intVal("RAG_MAX_CONTEXT_CHARS", 6000),
			MaxHistoryTokens: p.intVal("RAG_MAX_HISTORY_TOKENS", 0),
			RetryAttempts:    p.intVal("RAG_RETRY_ATTEMPTS", 0),
		},
		Ingestion: IngestionConfig{
			ChunkSize:    p.intVal("CHUNK_SIZE", 1000),
			ChunkOverlap: p.intVal("CHUNK_OVERLAP", 200),
			MinTextChars: p.intVal("INGEST_MIN_TEXT_CHARS", 100),
			Concurrency:  p.intVal("INGEST_CONCURRENCY", 4),
		},
		Server: ServerConfig{
			Host:      getEnvOrDefault("STUDYRAG_HOST", "127.0.0.1"),
			Port:      p.intVal("STUDYRAG_PORT", 3001),
			APIKey:    os.Getenv("STUDYRAG_API_KEY"),
			RateLimit: p.float64Val("STUDYRAG_RATE_LIMIT", 10),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
		Tracing: TracingConfig{
			LangfuseHost:      getEnvOrDefault("LANGFUSE_HOST", "http://localhost:3000"),
			LangfusePublicKey: os.Getenv("LANGFUSE_PUBLIC_KEY"),
			LangfuseSecretKey: os.Getenv("LANGFUSE_SECRET_KEY"),
			OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			ServiceName:       getEnvOrDefault("OTEL_SERVICE_NAME", "studyrag"),
			Environment:       getEnvOrDefault("STUDYRAG_ENV", "development"),
		},
	}

	s.Embedding = resolveEmbedding(s.Model, &p)

	if p.err != nil {
		return nil, p.err
	}
	return s, nil
}

// resolveEmbedding applies the embedding cascade:
//
//  1. EMBEDDING_PROVIDER: if unset, inherits MODEL_PROVIDER when that backend
//     can embed, otherwise falls back to ollama
//  2. per-backend credentials and endpoints are inherited from the chat provider
//  3. EMBEDDING_MODEL, EMBEDDING_API_KEY, EMBEDDING_ENDPOINT override them
func resolveEmbedding(m ModelConfig, p *parser) EmbeddingConfig {
	backend := strings.ToLower(os.Getenv("EMBEDDING_PROVIDER"))
	if backend == "" {
		switch m.Provider {
		case "ollama", "openai", "azure":
			backend = m.Provider
		default:
			backend = "ollama"
		}
	}

	e := EmbeddingConfig{
		Provider:   backend,
		Model:      os.Getenv("EMBEDDING_MODEL"),
		Dimensions: p.intVal("EMBEDDING_DIMENSIONS", 0),
		APIKey:     os.Getenv("EMBEDDING_API_KEY"),
		Endpoint:   os.Getenv("EMBEDDING_ENDPOINT"),
		Timeout:    p.durationVal("EMBEDDING_TIMEOUT", 30*time.Second),
	}

	switch backend {
	case "ollama":
		if e.Endpoint == "" {
			e.Endpoint = m.OllamaHost
		}
	case "openai":
		if e.APIKey == "" {
			e.APIKey = m.OpenAIAPIKey
		}
		if e.Endpoint == "" {
			e.Endpoint = m.OpenAIBaseURL
		}
	case "azure":
		if e.APIKey == "" {
			e.APIKey = m.AzureAPIKey
		}
		if e.Endpoint == "" {
			e.Endpoint = m.AzureEndpoint
		}
		e.APIVersion = m.AzureAPIVersion
	case "service":
		if e.Endpoint == "" {
			e.Endpoint = DefaultServiceEndpoint
		}
	}

	return e
}

// DefaultDataPath returns ~/.studyrag/<name>, creating the directory if needed.
func DefaultDataPath(name string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home dir: %w", err)
	}
	dir := filepath.Join(home, ".studyrag")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("config: create data dir %s: %w", dir, err)
	}
	return filepath.Join(dir, name), nil
}

// parser reads typed env values and remembers the first malformed one.
type parser struct {
	err error
}

func (p *parser) fail(key, val string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("config: invalid %s=%q: %w", key, val, err)
	}
}

func (p *parser) intVal(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return i
}

func (p *parser) float32Val(key string, fallback float32) float32 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 32)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return float32(f)
}

func (p *parser) float64Val(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return f
}

func (p *parser) boolVal(key string) bool {
	v := os.Getenv(key)
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return false
	}
	return b
}

func (p *parser) durationVal(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return d
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
