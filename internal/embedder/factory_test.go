package embedder

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/54b3r/studyrag-go/internal/config"
	"github.com/54b3r/studyrag-go/internal/rag"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cfg      config.EmbeddingConfig
		wantType string
		wantErr  bool
	}{
		{name: "ollama", cfg: config.EmbeddingConfig{Provider: "ollama"}, wantType: "*embedder.OllamaEmbedder"},
		{name: "service", cfg: config.EmbeddingConfig{Provider: "service"}, wantType: "*embedder.ServiceEmbedder"},
		{name: "openai", cfg: config.EmbeddingConfig{Provider: "openai", APIKey: "sk"}, wantType: "*embedder.OpenAIEmbedder"},
		{name: "openai without key", cfg: config.EmbeddingConfig{Provider: "openai"}, wantErr: true},
		{name: "azure", cfg: config.EmbeddingConfig{Provider: "azure", APIKey: "k", Endpoint: "https://x"}, wantType: "*embedder.OpenAIEmbedder"},
		{name: "azure without endpoint", cfg: config.EmbeddingConfig{Provider: "azure", APIKey: "k"}, wantErr: true},
		{name: "unknown", cfg: config.EmbeddingConfig{Provider: "bedrock"}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			e, err := New(&tc.cfg)
			if tc.wantErr {
				if !errors.Is(err, rag.ErrConfiguration) {
					t.Fatalf("New() error = %v, want ErrConfiguration", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() unexpected error: %v", err)
			}
			if got := typeName(e); got != tc.wantType {
				t.Errorf("New() type = %s, want %s", got, tc.wantType)
			}
		})
	}
}

func typeName(e rag.Embedder) string {
	switch e.(type) {
	case *OllamaEmbedder:
		return "*embedder.OllamaEmbedder"
	case *OpenAIEmbedder:
		return "*embedder.OpenAIEmbedder"
	case *ServiceEmbedder:
		return "*embedder.ServiceEmbedder"
	default:
		return "unknown"
	}
}

func TestDefaultDimensions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		cfg  config.EmbeddingConfig
		want int
	}{
		{config.EmbeddingConfig{Provider: "ollama"}, 768},
		{config.EmbeddingConfig{Provider: "openai"}, 1536},
		{config.EmbeddingConfig{Provider: "azure"}, 1536},
		{config.EmbeddingConfig{Provider: "service"}, 384},
		{config.EmbeddingConfig{Provider: "ollama", Dimensions: 1024}, 1024},
	}
	for _, tt := range tests {
		if got := DefaultDimensions(&tt.cfg); got != tt.want {
			t.Errorf("DefaultDimensions(%+v) = %d, want %d", tt.cfg, got, tt.want)
		}
	}
}

func TestValidateForRAG(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cfg      config.EmbeddingConfig
		wantErr  bool
		wantWarn bool
	}{
		{name: "ollama ok", cfg: config.EmbeddingConfig{Provider: "ollama", Model: "nomic-embed-text"}},
		{name: "service ok", cfg: config.EmbeddingConfig{Provider: "service"}},
		{name: "openai missing key", cfg: config.EmbeddingConfig{Provider: "openai"}, wantErr: true},
		{name: "azure missing endpoint", cfg: config.EmbeddingConfig{Provider: "azure", APIKey: "k"}, wantErr: true},
		{name: "unknown backend", cfg: config.EmbeddingConfig{Provider: "gemini"}, wantErr: true},
		{name: "negative dimensions", cfg: config.EmbeddingConfig{Provider: "ollama", Dimensions: -1}, wantErr: true},
		{name: "chat model warns", cfg: config.EmbeddingConfig{Provider: "ollama", Model: "llama3:8b"}, wantWarn: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			log := slog.New(slog.NewTextHandler(&buf, nil))

			err := ValidateForRAG(&tc.cfg, log)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ValidateForRAG() error = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil && !errors.Is(err, rag.ErrConfiguration) {
				t.Errorf("error %v does not wrap ErrConfiguration", err)
			}
			warned := strings.Contains(buf.String(), "level=WARN")
			if warned != tc.wantWarn {
				t.Errorf("warned = %v, want %v (log: %s)", warned, tc.wantWarn, buf.String())
			}
		})
	}
}

func TestLooksLikeChatModel(t *testing.T) {
	t.Parallel()

	for _, m := range []string{"gpt-4o-mini", "Llama3", "mistral:7b", "qwen2"} {
		if !looksLikeChatModel(m) {
			t.Errorf("looksLikeChatModel(%q) = false, want true", m)
		}
	}
	for _, m := range []string{"nomic-embed-text", "text-embedding-3-small", "all-minilm", "mxbai-embed-large"} {
		if looksLikeChatModel(m) {
			t.Errorf("looksLikeChatModel(%q) = true, want false", m)
		}
	}
}
