package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/studyrag-go/internal/rag"
)

// Payload keys written on every point.
const (
	payloadOwner   = "owner_id"
	payloadSource  = "source"
	payloadContent = "content"
	payloadCreated = "created_at"
	payloadPos     = "position"
)

// scrollPage is the number of points fetched per Scroll call.
const scrollPage = 256

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements rag.VectorStore on a single Qdrant collection.
// Owners share the collection; every read filters on the owner_id payload.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig

	mu       sync.Mutex
	lastTime int64
}

// NewQdrantStore connects to Qdrant and makes sure the collection exists with
// the configured vector size and an owner_id keyword index.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "studyrag-chunks"
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	store := &QdrantStore{client: client, cfg: cfg}
	if err := store.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return store, nil
}

// ensureCollection creates the collection and owner index if missing, or
// verifies the vector size of an existing collection.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}

	if exists {
		info, err := s.client.GetCollectionInfo(ctx, s.cfg.Collection)
		if err != nil {
			return fmt.Errorf("qdrant: failed to read collection %q: %w", s.cfg.Collection, err)
		}
		size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
		if size != 0 && size != s.cfg.VectorSize {
			return fmt.Errorf("qdrant: collection %q: %w", s.cfg.Collection, dimensionError(int(size), int(s.cfg.VectorSize)))
		}
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}

	_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: s.cfg.Collection,
		FieldName:      payloadOwner,
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to index %s: %w", payloadOwner, err)
	}
	return nil
}

// batchTime returns a Unix-nanosecond timestamp strictly greater than any
// previously returned by this store, so concurrent batches never tie.
func (s *QdrantStore) batchTime() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UnixNano()
	if now <= s.lastTime {
		now = s.lastTime + 1
	}
	s.lastTime = now
	return now
}

// Put upserts chunks for ownerID in one request and waits for it to apply.
func (s *QdrantStore) Put(ctx context.Context, ownerID, sourceLabel string, chunks []rag.ChunkInput) (int, error) {
	dim, err := validateBatch(ownerID, chunks)
	if err != nil || len(chunks) == 0 {
		return 0, err
	}
	if uint64(dim) != s.cfg.VectorSize {
		return 0, dimensionError(int(s.cfg.VectorSize), dim)
	}

	created := s.batchTime()
	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for i, c := range chunks {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(uuid.NewString()),
			Vectors: qdrant.NewVectors(c.Vector...),
			Payload: map[string]*qdrant.Value{
				payloadOwner:   qdrant.NewValueString(ownerID),
				payloadSource:  qdrant.NewValueString(sourceLabel),
				payloadContent: qdrant.NewValueString(c.Text),
				payloadCreated: qdrant.NewValueInt(created),
				payloadPos:     qdrant.NewValueInt(int64(i)),
			},
		})
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: upsert failed: %w", err)
	}
	return len(chunks), nil
}

// GetByOwner scrolls every point whose owner_id matches and returns them in
// insertion order.
func (s *QdrantStore) GetByOwner(ctx context.Context, ownerID string) ([]rag.Chunk, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}

	type ordered struct {
		created, pos int64
		chunk        rag.Chunk
	}
	var all []ordered

	limit := uint32(scrollPage)
	var offset *qdrant.PointId
	for {
		page, next, err := s.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
			CollectionName: s.cfg.Collection,
			Filter: &qdrant.Filter{
				Must: []*qdrant.Condition{qdrant.NewMatch(payloadOwner, ownerID)},
			},
			Offset:      offset,
			Limit:       &limit,
			WithPayload: qdrant.NewWithPayload(true),
			WithVectors: qdrant.NewWithVectors(true),
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant: scroll failed: %w", err)
		}

		for _, p := range page {
			vec, err := pointVector(p)
			if err != nil {
				return nil, fmt.Errorf("qdrant: point %s: %w", p.GetId().GetUuid(), err)
			}
			payload := p.GetPayload()
			all = append(all, ordered{
				created: payload[payloadCreated].GetIntegerValue(),
				pos:     payload[payloadPos].GetIntegerValue(),
				chunk: rag.Chunk{
					ID:          p.GetId().GetUuid(),
					SourceLabel: payload[payloadSource].GetStringValue(),
					OwnerID:     ownerID,
					Text:        payload[payloadContent].GetStringValue(),
					Vector:      vec,
				},
			})
		}

		if next == nil {
			break
		}
		offset = next
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].created != all[j].created {
			return all[i].created < all[j].created
		}
		return all[i].pos < all[j].pos
	})
	out := make([]rag.Chunk, len(all))
	for i, o := range all {
		out[i] = o.chunk
	}
	return out, nil
}

// pointVector returns the dense vector of a retrieved point, expanding a
// sparse vector if that is what the collection holds.
func pointVector(p *qdrant.RetrievedPoint) ([]float32, error) {
	v := p.GetVectors().GetVector()
	if v == nil {
		return nil, fmt.Errorf("no vector returned")
	}
	if dense := v.GetDense().GetData(); len(dense) > 0 {
		return dense, nil
	}
	if sparse := v.GetSparse(); sparse != nil && len(sparse.GetIndices()) > 0 {
		return Densify(sparse.GetIndices(), sparse.GetValues(), 0)
	}
	if idx := v.GetIndices().GetData(); len(idx) > 0 {
		return Densify(idx, v.GetData(), 0)
	}
	return v.GetData(), nil
}

// Ping reports whether the Qdrant server answers a health check.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}
