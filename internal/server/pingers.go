package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/54b3r/studyrag-go/internal/logging"
	"github.com/54b3r/studyrag-go/internal/provider"
)

// pingable is implemented by every storage backend and by
// *provider.ChatCompleter.
type pingable interface {
	Ping(ctx context.Context) error
}

// LLMPinger probes the completion backend. It satisfies the Pinger interface
// and is used by GET /api/ready.
type LLMPinger struct {
	// fallback sends a one-word completion when no health check exists.
	fallback pingable
	// healthCheck is the token-free probe, nil for backends without one.
	healthCheck provider.HealthCheckConfig
	// name identifies the backend in readiness responses (e.g. "ollama").
	name string
}

// NewLLMPinger constructs an LLMPinger for the given backend. hc may be nil.
func NewLLMPinger(fallback pingable, hc provider.HealthCheckConfig, name string) *LLMPinger {
	return &LLMPinger{fallback: fallback, healthCheck: hc, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return p.name }

// Ping probes the LLM backend for readiness. When a zero-cost HealthCheckConfig
// is available it is used exclusively; otherwise it falls back to a tiny
// completion, which consumes tokens.
func (p *LLMPinger) Ping(ctx context.Context) error {
	if p.healthCheck != nil {
		if err := p.healthCheck.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s health check failed: %w", p.name, err)
		}
		return nil
	}
	if p.fallback == nil {
		return fmt.Errorf("%s: no health check available", p.name)
	}

	logging.FromContext(ctx).Warn("pinger: falling back to completion-based health check, tokens will be consumed",
		slog.String("backend", p.name),
	)
	if err := p.fallback.Ping(ctx); err != nil {
		return fmt.Errorf("completion probe failed: %w", err)
	}
	return nil
}

// StorePinger probes a storage backend (sqlite, qdrant, redis) through its
// own Ping method.
type StorePinger struct {
	// store is the backend to probe.
	store pingable
	// name is the dependency label used in readiness responses.
	name string
}

// NewStorePinger returns a Pinger for store, or nil when store cannot be
// probed (the in-memory backends).
func NewStorePinger(name string, store any) Pinger {
	p, ok := store.(pingable)
	if !ok {
		return nil
	}
	return &StorePinger{store: p, name: name}
}

// Name returns the dependency label used in readiness responses.
func (p *StorePinger) Name() string { return p.name }

// Ping calls the backend's Ping.
func (p *StorePinger) Ping(ctx context.Context) error {
	if err := p.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}
