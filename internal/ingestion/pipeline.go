// Package ingestion implements the document ingestion pipeline. It checks
// that a document carries enough text, chunks it, embeds every chunk with
// bounded concurrency, and stores the batch for its owner in one call.
// Text extraction (PDF and the like) happens upstream; the pipeline only
// ever sees plain text.
package ingestion

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/54b3r/studyrag-go/internal/chunker"
	"github.com/54b3r/studyrag-go/internal/logging"
	"github.com/54b3r/studyrag-go/internal/rag"
	"github.com/54b3r/studyrag-go/internal/tracing"
	"github.com/54b3r/studyrag-go/internal/version"
)

const (
	// DefaultMinTextChars is the shortest document (in characters) worth ingesting.
	DefaultMinTextChars = 100
	// DefaultConcurrency is the number of chunks embedded in parallel.
	DefaultConcurrency = 4
	// maxFetchBytes caps a fetched document body.
	maxFetchBytes = 50 << 20
)

// ChunkEmbedder embeds one chunk of text. *embedder.Gateway satisfies it.
type ChunkEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Document is one piece of plain text to ingest for an owner.
type Document struct {
	// OwnerID is the tenant the chunks will belong to.
	OwnerID string
	// SourceLabel names the document in answers (e.g. "lecture-3.pdf").
	SourceLabel string
	// Text is the extracted plain text.
	Text string
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// Chunking sets the window size and overlap. Zero value uses the chunker defaults.
	Chunking chunker.Config

	// MinTextChars rejects documents shorter than this many characters.
	// Defaults to DefaultMinTextChars if zero.
	MinTextChars int

	// Concurrency bounds parallel embedding calls. Defaults to DefaultConcurrency if zero.
	Concurrency int

	// HTTPTimeout is the timeout for each IngestURL fetch. Defaults to 30s if zero.
	HTTPTimeout time.Duration

	// Progress, when set, receives human-readable progress lines.
	Progress func(msg string)
}

// Pipeline orchestrates the check → chunk → embed → store flow.
type Pipeline struct {
	// embedder converts text chunks into dense vector embeddings.
	embedder ChunkEmbedder

	// store persists the embedded chunks.
	store rag.VectorStore

	// cfg holds the resolved pipeline configuration.
	cfg Config

	// httpClient is the HTTP client used by IngestURL.
	httpClient *http.Client
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder ChunkEmbedder, store rag.VectorStore, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil: %w", rag.ErrConfiguration)
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil: %w", rag.ErrConfiguration)
	}

	var c Config
	if cfg != nil {
		c = *cfg
	}
	if c.Chunking == (chunker.Config{}) {
		c.Chunking = chunker.DefaultConfig()
	}
	if err := c.Chunking.Validate(); err != nil {
		return nil, fmt.Errorf("ingestion: %w", err)
	}
	if c.MinTextChars <= 0 {
		c.MinTextChars = DefaultMinTextChars
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 30 * time.Second
	}
	if c.Progress == nil {
		c.Progress = func(string) {}
	}

	return &Pipeline{
		embedder:   embedder,
		store:      store,
		cfg:        c,
		httpClient: &http.Client{Timeout: c.HTTPTimeout},
	}, nil
}

// Ingest chunks, embeds and stores doc, returning the number of chunks
// stored. If any chunk fails to embed nothing is stored.
func (p *Pipeline) Ingest(ctx context.Context, doc Document) (_ int, err error) {
	ownerID := strings.TrimSpace(doc.OwnerID)
	text := strings.TrimSpace(doc.Text)

	ctx, span := tracing.StartSpan(ctx, "ingestion.ingest",
		attribute.String("studyrag.owner_id", ownerID),
		attribute.String("studyrag.source", doc.SourceLabel),
	)
	defer func() { tracing.End(span, err) }()

	if ownerID == "" {
		return 0, fmt.Errorf("ingestion: owner id is required: %w", rag.ErrMissingInput)
	}
	if n := utf8.RuneCountInString(text); n < p.cfg.MinTextChars {
		return 0, fmt.Errorf("ingestion: %d characters, need at least %d: %w", n, p.cfg.MinTextChars, rag.ErrTextTooShort)
	}

	label := strings.TrimSpace(doc.SourceLabel)
	if label == "" {
		label = SourceLabelFor("")
	}

	chunks, err := p.cfg.Chunking.Split(text)
	if err != nil {
		return 0, fmt.Errorf("ingestion: chunk: %w", err)
	}
	p.cfg.Progress(fmt.Sprintf("chunked %s into %d chunks", label, len(chunks)))

	inputs, err := p.embedAll(ctx, chunks)
	if err != nil {
		return 0, err
	}

	n, err := p.store.Put(ctx, ownerID, label, inputs)
	if err != nil {
		return 0, fmt.Errorf("ingestion: store %s: %w", label, err)
	}

	span.SetAttributes(attribute.Int("studyrag.chunks", n))
	logging.FromContext(ctx).Info("ingestion: stored document",
		"owner_id", ownerID,
		"source", label,
		"chunks", n,
	)
	p.cfg.Progress(fmt.Sprintf("ingested %d chunks from %s", n, label))
	return n, nil
}

// embedAll embeds chunks with at most cfg.Concurrency calls in flight. The
// first failure cancels the rest.
func (p *Pipeline) embedAll(ctx context.Context, chunks []string) ([]rag.ChunkInput, error) {
	inputs := make([]rag.ChunkInput, len(chunks))
	var done atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			vec, err := p.embedder.Embed(gctx, chunk)
			if err != nil {
				return fmt.Errorf("ingestion: embed chunk %d: %w", i, err)
			}
			inputs[i] = rag.ChunkInput{Text: chunk, Vector: vec}
			if n := done.Add(1); n%10 == 0 || int(n) == len(chunks) {
				p.cfg.Progress(fmt.Sprintf("embedded %d/%d chunks", n, len(chunks)))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return inputs, nil
}

// IngestURL fetches a plain-text document over HTTP and ingests it. An empty
// sourceLabel is inferred from the URL.
func (p *Pipeline) IngestURL(ctx context.Context, ownerID, rawURL, sourceLabel string) (int, error) {
	p.cfg.Progress(fmt.Sprintf("fetching %s", rawURL))
	text, err := p.fetch(ctx, rawURL)
	if err != nil {
		return 0, fmt.Errorf("ingestion: fetch failed for %s: %w", rawURL, err)
	}
	if sourceLabel == "" {
		sourceLabel = SourceLabelFor(rawURL)
	}
	return p.Ingest(ctx, Document{OwnerID: ownerID, SourceLabel: sourceLabel, Text: text})
}

// fetch retrieves the raw text content of a URL.
func (p *Pipeline) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w: %w", rag.ErrMissingInput, err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Accept", "text/plain, text/markdown, text/html")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "text/") {
		return "", fmt.Errorf("content type %q is not plain text; extract text before ingesting: %w", ct, rag.ErrMissingInput)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}
	return string(body), nil
}
