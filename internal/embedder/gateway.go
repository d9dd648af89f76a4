package embedder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/54b3r/studyrag-go/internal/rag"
)

// Gateway embeds one text at a time through a batch backend and enforces
// the contract the rest of the pipeline relies on: exactly one non-empty
// vector of the configured dimensionality, or a typed error. It never
// substitutes a zero vector and never retries.
type Gateway struct {
	backend    rag.Embedder
	dimensions int
	timeout    time.Duration
}

// NewGateway wraps backend. dimensions is the expected vector length (0
// accepts any length). timeout bounds each call on top of the caller's
// deadline (0 disables it).
func NewGateway(backend rag.Embedder, dimensions int, timeout time.Duration) *Gateway {
	return &Gateway{backend: backend, dimensions: dimensions, timeout: timeout}
}

// Dimensions returns the expected vector length, or 0 if unconstrained.
func (g *Gateway) Dimensions() int {
	return g.dimensions
}

// Embed returns the embedding of text.
//
// Failures map to rag.ErrTimeout when the caller's deadline or the gateway
// timeout expired, and to rag.ErrEmbeddingUnavailable for everything else:
// transport errors, non-2xx responses, malformed payloads, empty vectors and
// vectors of the wrong dimensionality.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("embedder: embed: empty text: %w", rag.ErrMissingInput)
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	vecs, err := g.backend.Embed(ctx, []string{text})
	if err != nil {
		return nil, rag.Classify("embedder: embed", rag.ErrEmbeddingUnavailable, err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder: embed: expected 1 vector, got %d: %w", len(vecs), rag.ErrEmbeddingUnavailable)
	}

	vec := vecs[0]
	if len(vec) == 0 {
		return nil, fmt.Errorf("embedder: embed: empty vector: %w", rag.ErrEmbeddingUnavailable)
	}
	if g.dimensions > 0 && len(vec) != g.dimensions {
		return nil, fmt.Errorf("embedder: embed: expected %d dimensions, got %d: %w",
			g.dimensions, len(vec), rag.ErrEmbeddingUnavailable)
	}

	return vec, nil
}
