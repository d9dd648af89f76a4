package vectorstore

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/54b3r/studyrag-go/internal/rag"
)

// MemoryStore is an in-process rag.VectorStore. Chunks are kept per owner in
// insertion order and lost on exit. It is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	dim     int
	byOwner map[string][]rag.Chunk
}

// NewMemoryStore returns an empty MemoryStore. dim fixes the vector length
// up front; 0 lets the first Put decide it.
func NewMemoryStore(dim int) *MemoryStore {
	return &MemoryStore{dim: dim, byOwner: make(map[string][]rag.Chunk)}
}

// Put appends chunks for ownerID under sourceLabel.
func (s *MemoryStore) Put(ctx context.Context, ownerID, sourceLabel string, chunks []rag.ChunkInput) (int, error) {
	dim, err := validateBatch(ownerID, chunks)
	if err != nil || len(chunks) == 0 {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dim == 0 {
		s.dim = dim
	} else if s.dim != dim {
		return 0, dimensionError(s.dim, dim)
	}

	for _, c := range chunks {
		s.byOwner[ownerID] = append(s.byOwner[ownerID], rag.Chunk{
			ID:          uuid.NewString(),
			SourceLabel: sourceLabel,
			OwnerID:     ownerID,
			Text:        c.Text,
			Vector:      slices.Clone(c.Vector),
		})
	}
	return len(chunks), nil
}

// GetByOwner returns a copy of ownerID's chunks in insertion order.
func (s *MemoryStore) GetByOwner(ctx context.Context, ownerID string) ([]rag.Chunk, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.byOwner[ownerID]
	out := make([]rag.Chunk, len(stored))
	for i, c := range stored {
		c.Vector = slices.Clone(c.Vector)
		out[i] = c
	}
	return out, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
