package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HealthCheckConfig probes a backend without spending tokens.
type HealthCheckConfig interface {
	HealthCheck(ctx context.Context) error
}

// httpHealthCheck issues a GET against a cheap listing endpoint.
type httpHealthCheck struct {
	client *http.Client
	url    string
	header http.Header
}

func (h *httpHealthCheck) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return fmt.Errorf("provider: health request: %w", err)
	}
	for k, v := range h.header {
		req.Header[k] = v
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("provider: health check: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("provider: health check: %s returned HTTP %d", h.url, resp.StatusCode)
	}
	return nil
}

// NewHealthCheck returns a token-free probe for backends that expose a model
// listing endpoint, or nil when the backend has none (gemini, ark).
func NewHealthCheck(cfg *Config) HealthCheckConfig {
	client := &http.Client{Timeout: 10 * time.Second}
	switch cfg.Backend {
	case BackendOllama:
		return &httpHealthCheck{
			client: client,
			url:    strings.TrimRight(cfg.Ollama.Host, "/") + "/api/tags",
		}
	case BackendOpenAI:
		base := cfg.OpenAI.BaseURL
		if base == "" {
			base = "https://api.openai.com/v1"
		}
		return &httpHealthCheck{
			client: client,
			url:    strings.TrimRight(base, "/") + "/models",
			header: http.Header{"Authorization": {"Bearer " + cfg.OpenAI.APIKey}},
		}
	case BackendAzure:
		return &httpHealthCheck{
			client: client,
			url: strings.TrimRight(cfg.AzureOpenAI.Endpoint, "/") +
				"/openai/models?api-version=" + cfg.AzureOpenAI.APIVersion,
			header: http.Header{"Api-Key": {cfg.AzureOpenAI.APIKey}},
		}
	default:
		return nil
	}
}
