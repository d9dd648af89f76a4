package embedder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ServiceEmbedder implements rag.Embedder against a standalone embedding
// service that accepts one text per request:
//
//	POST {endpoint}/embed  {"text": "..."}  →  {"embedding": [...]}
//
// Batches are sent as sequential requests. It is safe for concurrent use.
type ServiceEmbedder struct {
	endpoint string
	client   *http.Client
}

// NewServiceEmbedder constructs a ServiceEmbedder for the given base URL
// (e.g. "http://localhost:5001").
func NewServiceEmbedder(endpoint string) *ServiceEmbedder {
	return &ServiceEmbedder{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

type serviceEmbedRequest struct {
	Text string `json:"text"`
}

type serviceEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
	Error     string    `json:"error,omitempty"`
}

// Embed converts a batch of texts into their corresponding embeddings.
// The returned slice is parallel to the input slice.
func (e *ServiceEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i, text := range texts {
		var result serviceEmbedResponse
		err := postJSON(ctx, e.client, e.endpoint+"/embed", nil,
			serviceEmbedRequest{Text: text},
			&result,
			func(b []byte) string {
				var r serviceEmbedResponse
				if json.Unmarshal(b, &r) == nil {
					return r.Error
				}
				return ""
			},
		)
		if err != nil {
			return nil, fmt.Errorf("service embedder: text %d: %w", i, err)
		}
		out = append(out, result.Embedding)
	}
	return out, nil
}
