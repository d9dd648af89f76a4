package conversation

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/54b3r/studyrag-go/internal/rag"
)

type memConversation struct {
	meta rag.Conversation
	log  []rag.Message
}

// MemoryStore is an in-process Store. Everything is lost on exit.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*memConversation
	byOwner map[string][]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*memConversation),
		byOwner: make(map[string][]string),
	}
}

// Create stores a new conversation with an empty message log.
func (s *MemoryStore) Create(_ context.Context, c rag.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[c.ID] = &memConversation{meta: c}
	s.byOwner[c.OwnerID] = append(s.byOwner[c.OwnerID], c.ID)
	return nil
}

// Get returns a copy of the conversation's metadata, or
// rag.ErrConversationNotFound.
func (s *MemoryStore) Get(_ context.Context, id string) (*rag.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return nil, notFound(id)
	}
	meta := c.meta
	return &meta, nil
}

// List returns ownerID's conversations, newest first. Conversations created
// at the same instant are ordered by most recent insertion.
func (s *MemoryStore) List(_ context.Context, ownerID string) ([]rag.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byOwner[ownerID]
	out := make([]rag.Conversation, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		out = append(out, s.byID[ids[i]].meta)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Append adds msgs to the end of the log in one step, so no other append
// can land between them.
func (s *MemoryStore) Append(_ context.Context, id string, msgs []rag.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return notFound(id)
	}
	c.log = append(c.log, msgs...)
	return nil
}

// Messages returns a copy of the log in append order, never nil.
func (s *MemoryStore) Messages(_ context.Context, id string) ([]rag.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return nil, notFound(id)
	}
	out := slices.Clone(c.log)
	if out == nil {
		out = []rag.Message{}
	}
	return out, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
