// Package vectorstore provides rag.VectorStore backends: SQLite (the
// default, single file on disk), in-memory, and Qdrant. Every backend scopes
// reads by owner inside the query itself, keeps insertion order, enforces a
// single embedding dimensionality, and returns dense vectors regardless of
// how they were stored.
package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/54b3r/studyrag-go/internal/config"
	"github.com/54b3r/studyrag-go/internal/rag"
)

// New opens the backend selected by cfg.Backend. dim is the expected vector
// length; the SQLite and memory backends accept 0 and learn it from the
// first insert, while Qdrant needs it to size a new collection.
func New(ctx context.Context, cfg config.VectorStoreConfig, dim int) (rag.VectorStore, error) {
	switch cfg.Backend {
	case "", "sqlite":
		path := cfg.DBPath
		if path == "" {
			p, err := config.DefaultDataPath("vectors.db")
			if err != nil {
				return nil, fmt.Errorf("vectorstore: %w", err)
			}
			path = p
		}
		return OpenSQLite(ctx, path)

	case "memory":
		return NewMemoryStore(dim), nil

	case "qdrant":
		if dim <= 0 {
			return nil, fmt.Errorf("vectorstore: qdrant needs a positive vector size, got %d: %w", dim, rag.ErrConfiguration)
		}
		return NewQdrantStore(ctx, &QdrantConfig{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			Collection: cfg.QdrantCollection,
			VectorSize: uint64(dim),
			APIKey:     cfg.QdrantAPIKey,
			UseTLS:     cfg.QdrantTLS,
		})

	default:
		return nil, fmt.Errorf("vectorstore: unknown backend %q (valid: sqlite, memory, qdrant): %w", cfg.Backend, rag.ErrConfiguration)
	}
}

// requireOwner rejects blank owner ids.
func requireOwner(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return fmt.Errorf("vectorstore: owner id is required: %w", rag.ErrMissingInput)
	}
	return nil
}

// validateBatch checks the owner and that every vector in chunks is non-empty
// and of the same length. It returns that length (0 for an empty batch).
func validateBatch(ownerID string, chunks []rag.ChunkInput) (int, error) {
	if err := requireOwner(ownerID); err != nil {
		return 0, err
	}
	dim := 0
	for i, c := range chunks {
		if len(c.Vector) == 0 {
			return 0, fmt.Errorf("vectorstore: chunk %d has an empty vector: %w", i, rag.ErrDimensionMismatch)
		}
		if dim == 0 {
			dim = len(c.Vector)
			continue
		}
		if len(c.Vector) != dim {
			return 0, fmt.Errorf("vectorstore: chunk %d has %d dimensions, batch has %d: %w",
				i, len(c.Vector), dim, rag.ErrDimensionMismatch)
		}
	}
	return dim, nil
}

func dimensionError(want, got int) error {
	return fmt.Errorf("vectorstore: store holds %d-dimensional vectors, got %d: %w", want, got, rag.ErrDimensionMismatch)
}
