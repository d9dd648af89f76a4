package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/54b3r/studyrag-go/internal/rag"
)

// Manager is the entry point for conversation state. Appends to the same
// conversation are serialized; different conversations never contend.
type Manager struct {
	store Store
	locks *keyedMutex
	now   func() time.Time
}

// NewManager returns a Manager over store.
func NewManager(store Store) *Manager {
	return &Manager{store: store, locks: newKeyedMutex(), now: time.Now}
}

// Store returns the underlying store.
func (m *Manager) Store() Store { return m.store }

// Create starts an empty conversation for ownerID. An empty title becomes
// rag.DefaultConversationTitle.
func (m *Manager) Create(ctx context.Context, ownerID, title string) (*rag.Conversation, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, fmt.Errorf("conversation: owner id is required: %w", rag.ErrMissingInput)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = rag.DefaultConversationTitle
	}

	c := rag.Conversation{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Title:     title,
		CreatedAt: m.now(),
	}
	if err := m.store.Create(ctx, c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Get returns the metadata of conversation id.
func (m *Manager) Get(ctx context.Context, id string) (*rag.Conversation, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("conversation: id is required: %w", rag.ErrMissingInput)
	}
	return m.store.Get(ctx, id)
}

// List returns ownerID's conversations newest first.
func (m *Manager) List(ctx context.Context, ownerID string) ([]rag.Conversation, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("conversation: owner id is required: %w", rag.ErrMissingInput)
	}
	return m.store.List(ctx, ownerID)
}

// History returns a copy of the message log of conversation id.
func (m *Manager) History(ctx context.Context, id string) ([]rag.Message, error) {
	if _, err := m.Get(ctx, id); err != nil {
		return nil, err
	}
	return m.store.Messages(ctx, id)
}

// Append adds msgs to conversation id as one atomic unit and returns the
// updated log. Messages with a zero CreatedAt are stamped with the current time.
func (m *Manager) Append(ctx context.Context, id string, msgs ...rag.Message) ([]rag.Message, error) {
	for i, msg := range msgs {
		if !msg.Role.Valid() {
			return nil, fmt.Errorf("conversation: message %d has unknown role %q: %w", i, msg.Role, rag.ErrMissingInput)
		}
	}

	unlock := m.locks.Lock(id)
	defer unlock()

	if _, err := m.Get(ctx, id); err != nil {
		return nil, err
	}
	if len(msgs) > 0 {
		stamped := make([]rag.Message, len(msgs))
		now := m.now()
		for i, msg := range msgs {
			if msg.CreatedAt.IsZero() {
				msg.CreatedAt = now
			}
			stamped[i] = msg
		}
		if err := m.store.Append(ctx, id, stamped); err != nil {
			return nil, err
		}
	}
	return m.store.Messages(ctx, id)
}

// Close closes the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}

// keyedMutex hands out one mutex per key and frees it when the last holder
// or waiter releases it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock blocks until key is held and returns the matching unlock func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refMutex{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// size reports how many keys currently have a live mutex.
func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
