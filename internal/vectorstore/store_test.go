package vectorstore

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/studyrag-go/internal/config"
	"github.com/54b3r/studyrag-go/internal/rag"
)

type storeFactory func(t *testing.T) rag.VectorStore

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) rag.VectorStore {
			return NewMemoryStore(0)
		},
		"sqlite": func(t *testing.T) rag.VectorStore {
			s, err := OpenSQLite(context.Background(), ":memory:")
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func inputs(texts ...string) []rag.ChunkInput {
	out := make([]rag.ChunkInput, len(texts))
	for i, text := range texts {
		out[i] = rag.ChunkInput{Text: text, Vector: []float32{float32(i), 1, 0.5}}
	}
	return out
}

func TestVectorStore_Conformance(t *testing.T) {
	t.Parallel()

	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			t.Run("round trip preserves order and fields", func(t *testing.T) {
				s := open(t)
				ctx := context.Background()

				n, err := s.Put(ctx, "alice", "notes.pdf", inputs("one", "two", "three"))
				require.NoError(t, err)
				assert.Equal(t, 3, n)

				got, err := s.GetByOwner(ctx, "alice")
				require.NoError(t, err)
				require.Len(t, got, 3)
				for i, c := range got {
					assert.Equal(t, []string{"one", "two", "three"}[i], c.Text)
					assert.Equal(t, "notes.pdf", c.SourceLabel)
					assert.Equal(t, "alice", c.OwnerID)
					assert.Equal(t, []float32{float32(i), 1, 0.5}, c.Vector)
					assert.NotEmpty(t, c.ID)
				}
			})

			t.Run("appends across calls", func(t *testing.T) {
				s := open(t)
				ctx := context.Background()

				_, err := s.Put(ctx, "alice", "a.pdf", inputs("a1", "a2"))
				require.NoError(t, err)
				_, err = s.Put(ctx, "alice", "b.pdf", inputs("b1"))
				require.NoError(t, err)

				got, err := s.GetByOwner(ctx, "alice")
				require.NoError(t, err)
				require.Len(t, got, 3)
				assert.Equal(t, "a1", got[0].Text)
				assert.Equal(t, "a2", got[1].Text)
				assert.Equal(t, "b1", got[2].Text)
				assert.Equal(t, "b.pdf", got[2].SourceLabel)
			})

			t.Run("owners are isolated", func(t *testing.T) {
				s := open(t)
				ctx := context.Background()

				_, err := s.Put(ctx, "alice", "a.pdf", inputs("secret"))
				require.NoError(t, err)
				_, err = s.Put(ctx, "bob", "b.pdf", inputs("public"))
				require.NoError(t, err)

				got, err := s.GetByOwner(ctx, "bob")
				require.NoError(t, err)
				require.Len(t, got, 1)
				assert.Equal(t, "public", got[0].Text)

				none, err := s.GetByOwner(ctx, "carol")
				require.NoError(t, err)
				assert.NotNil(t, none)
				assert.Empty(t, none)
			})

			t.Run("empty batch is a no-op", func(t *testing.T) {
				s := open(t)
				n, err := s.Put(context.Background(), "alice", "a.pdf", nil)
				require.NoError(t, err)
				assert.Zero(t, n)
			})

			t.Run("blank owner is rejected", func(t *testing.T) {
				s := open(t)
				_, err := s.Put(context.Background(), " ", "a.pdf", inputs("x"))
				assert.ErrorIs(t, err, rag.ErrMissingInput)
				_, err = s.GetByOwner(context.Background(), "")
				assert.ErrorIs(t, err, rag.ErrMissingInput)
			})

			t.Run("dimension is fixed by the first insert", func(t *testing.T) {
				s := open(t)
				ctx := context.Background()

				_, err := s.Put(ctx, "alice", "a.pdf", inputs("x"))
				require.NoError(t, err)

				_, err = s.Put(ctx, "bob", "b.pdf", []rag.ChunkInput{{Text: "y", Vector: []float32{1, 2}}})
				assert.ErrorIs(t, err, rag.ErrDimensionMismatch)
				assert.ErrorIs(t, err, rag.ErrConfiguration)

				got, err := s.GetByOwner(ctx, "bob")
				require.NoError(t, err)
				assert.Empty(t, got)
			})

			t.Run("mixed batch stores nothing", func(t *testing.T) {
				s := open(t)
				ctx := context.Background()

				batch := []rag.ChunkInput{
					{Text: "ok", Vector: []float32{1, 2, 3}},
					{Text: "short", Vector: []float32{1, 2}},
				}
				_, err := s.Put(ctx, "alice", "a.pdf", batch)
				assert.ErrorIs(t, err, rag.ErrDimensionMismatch)

				_, err = s.Put(ctx, "alice", "a.pdf", []rag.ChunkInput{{Text: "empty"}})
				assert.ErrorIs(t, err, rag.ErrDimensionMismatch)

				got, err := s.GetByOwner(ctx, "alice")
				require.NoError(t, err)
				assert.Empty(t, got)
			})

			t.Run("returned vectors are copies", func(t *testing.T) {
				s := open(t)
				ctx := context.Background()

				in := inputs("x")
				_, err := s.Put(ctx, "alice", "a.pdf", in)
				require.NoError(t, err)
				in[0].Vector[0] = 99

				got, err := s.GetByOwner(ctx, "alice")
				require.NoError(t, err)
				got[0].Vector[1] = 42

				again, err := s.GetByOwner(ctx, "alice")
				require.NoError(t, err)
				assert.Equal(t, []float32{0, 1, 0.5}, again[0].Vector)
			})

			t.Run("concurrent puts from many owners", func(t *testing.T) {
				s := open(t)
				ctx := context.Background()

				var wg sync.WaitGroup
				for i := 0; i < 8; i++ {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						_, err := s.Put(ctx, fmt.Sprintf("owner-%d", i), "a.pdf", inputs("p", "q"))
						assert.NoError(t, err)
					}(i)
				}
				wg.Wait()

				for i := 0; i < 8; i++ {
					got, err := s.GetByOwner(ctx, fmt.Sprintf("owner-%d", i))
					require.NoError(t, err)
					require.Len(t, got, 2)
					assert.Equal(t, "p", got[0].Text)
					assert.Equal(t, "q", got[1].Text)
				}
			})
		})
	}
}

func TestSQLiteStore_ReadsLegacyObjectVectors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chunks (id, owner_id, source, content, embedding, created_at) VALUES
		 ('legacy-1', 'alice', 'old.pdf', 'keyed', '{"1": 0.5, "0": 0.25, "2": 1}', 1),
		 ('legacy-2', 'alice', 'old.pdf', 'sparse', '{"indices": [2], "values": [4], "dim": 3}', 2)`)
	require.NoError(t, err)

	got, err := s.GetByOwner(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []float32{0.25, 0.5, 1}, got[0].Vector)
	assert.Equal(t, []float32{0, 0, 4}, got[1].Vector)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vectors.db")

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	_, err = s.Put(ctx, "alice", "a.pdf", inputs("kept"))
	require.NoError(t, err)
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetByOwner(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "kept", got[0].Text)

	_, err = s.Put(ctx, "alice", "a.pdf", []rag.ChunkInput{{Text: "x", Vector: []float32{1}}})
	assert.ErrorIs(t, err, rag.ErrDimensionMismatch)
}

func TestNew(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, err := New(ctx, config.VectorStoreConfig{Backend: "memory"}, 3)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = New(ctx, config.VectorStoreConfig{Backend: "sqlite", DBPath: filepath.Join(t.TempDir(), "v.db")}, 0)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = New(ctx, config.VectorStoreConfig{Backend: "qdrant"}, 0)
	assert.ErrorIs(t, err, rag.ErrConfiguration)

	_, err = New(ctx, config.VectorStoreConfig{Backend: "pinecone"}, 3)
	assert.ErrorIs(t, err, rag.ErrConfiguration)
}

func TestMemoryStore_FixedDimension(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(2)
	_, err := s.Put(context.Background(), "alice", "a.pdf", inputs("x"))
	assert.ErrorIs(t, err, rag.ErrDimensionMismatch)
}
