package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/54b3r/studyrag-go/internal/rag"
)

// fakeBackend is a hand-written rag.Embedder for gateway tests.
type fakeBackend struct {
	vecs [][]float32
	err  error
}

func (f *fakeBackend) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vecs, nil
}

func TestGateway_Embed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		backend *fakeBackend
		dims    int
		text    string
		wantErr error
	}{
		{
			name:    "ok",
			backend: &fakeBackend{vecs: [][]float32{{0.1, 0.2, 0.3}}},
			dims:    3,
			text:    "what is osmosis?",
		},
		{
			name:    "any dimension when unconstrained",
			backend: &fakeBackend{vecs: [][]float32{{0.1, 0.2}}},
			text:    "q",
		},
		{
			name:    "blank text",
			backend: &fakeBackend{vecs: [][]float32{{1}}},
			text:    "  \n",
			wantErr: rag.ErrMissingInput,
		},
		{
			name:    "backend failure",
			backend: &fakeBackend{err: errors.New("connection refused")},
			text:    "q",
			wantErr: rag.ErrEmbeddingUnavailable,
		},
		{
			name:    "backend deadline",
			backend: &fakeBackend{err: context.DeadlineExceeded},
			text:    "q",
			wantErr: rag.ErrTimeout,
		},
		{
			name:    "no vectors",
			backend: &fakeBackend{vecs: nil},
			text:    "q",
			wantErr: rag.ErrEmbeddingUnavailable,
		},
		{
			name:    "empty vector",
			backend: &fakeBackend{vecs: [][]float32{{}}},
			text:    "q",
			wantErr: rag.ErrEmbeddingUnavailable,
		},
		{
			name:    "wrong dimensionality",
			backend: &fakeBackend{vecs: [][]float32{{1, 2}}},
			dims:    3,
			text:    "q",
			wantErr: rag.ErrEmbeddingUnavailable,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			g := NewGateway(tc.backend, tc.dims, 0)
			vec, err := g.Embed(context.Background(), tc.text)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("Embed() error = %v, want %v", err, tc.wantErr)
				}
				if vec != nil {
					t.Errorf("Embed() returned a vector alongside an error: %v", vec)
				}
				return
			}
			if err != nil {
				t.Fatalf("Embed() unexpected error: %v", err)
			}
			if len(vec) == 0 {
				t.Error("Embed() returned an empty vector")
			}
		})
	}
}

func TestGateway_TimeoutIsDistinct(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	g := NewGateway(NewServiceEmbedder(srv.URL), 0, 50*time.Millisecond)
	_, err := g.Embed(context.Background(), "slow question")
	if !errors.Is(err, rag.ErrTimeout) {
		t.Fatalf("Embed() error = %v, want ErrTimeout", err)
	}
	if errors.Is(err, rag.ErrEmbeddingUnavailable) {
		t.Errorf("timeout must not also be ErrEmbeddingUnavailable: %v", err)
	}
}

func TestGateway_CallerDeadline(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	g := NewGateway(NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "m"}), 0, 0)
	if _, err := g.Embed(ctx, "q"); !errors.Is(err, rag.ErrTimeout) {
		t.Fatalf("Embed() error = %v, want ErrTimeout", err)
	}
}

func TestServiceEmbedder(t *testing.T) {
	t.Parallel()

	var gotText []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req serviceEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotText = append(gotText, req.Text)
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{float32(len(req.Text)), 1}})
	}))
	defer srv.Close()

	e := NewServiceEmbedder(srv.URL + "/")
	vecs, err := e.Embed(context.Background(), []string{"ab", "abcd"})
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}
	if len(vecs) != 2 || vecs[0][0] != 2 || vecs[1][0] != 4 {
		t.Errorf("Embed() = %v", vecs)
	}
	if strings.Join(gotText, ",") != "ab,abcd" {
		t.Errorf("server saw %v", gotText)
	}
}

func TestBackends_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "non-2xx with provider message",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"model not loaded"}`))
			},
		},
		{
			name: "non-2xx with html body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				_, _ = w.Write([]byte(`<html>bad gateway</html>`))
			},
		},
		{
			name: "malformed payload",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"embedding": "not-a-vector"`))
			},
		},
		{
			name: "missing vector",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{}`))
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			backends := map[string]rag.Embedder{
				"service": NewServiceEmbedder(srv.URL),
				"ollama":  NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "m"}),
				"openai":  NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL, APIKey: "k", Model: "m"}),
			}
			for name, b := range backends {
				_, err := NewGateway(b, 0, time.Second).Embed(context.Background(), "q")
				if !errors.Is(err, rag.ErrEmbeddingUnavailable) {
					t.Errorf("%s: error = %v, want ErrEmbeddingUnavailable", name, err)
				}
			}
		})
	}
}

func TestOpenAIEmbedder_AzureAndOrdering(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("api-key") != "az-key" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
			return
		}
		if !strings.HasSuffix(r.URL.Path, "/deployments/embed-dep/embeddings") || r.URL.Query().Get("api-version") != "2024-02-01" {
			http.NotFound(w, r)
			return
		}
		// Out of order on purpose.
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[2]},{"index":0,"embedding":[1]}]}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(&OpenAIConfig{
		BaseURL:    srv.URL + "/openai",
		APIKey:     "az-key",
		Model:      "embed-dep",
		Azure:      true,
		APIVersion: "2024-02-01",
	})
	vecs, err := e.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}
	if vecs[0][0] != 1 || vecs[1][0] != 2 {
		t.Errorf("Embed() did not reorder by index: %v", vecs)
	}
}
