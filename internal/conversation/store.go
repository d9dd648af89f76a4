// Package conversation manages append-only chat transcripts. A Manager
// serializes appends per conversation id over a pluggable Store (SQLite,
// in-memory, or Redis) so that a question and its answer always land as an
// adjacent pair, even under concurrent requests.
package conversation

import (
	"context"
	"fmt"

	"github.com/54b3r/studyrag-go/internal/config"
	"github.com/54b3r/studyrag-go/internal/rag"
)

// Store persists conversation metadata and message logs. Implementations
// must be safe for concurrent use; the Manager provides per-conversation
// ordering on top.
type Store interface {
	// Create persists a new conversation with an empty log.
	Create(ctx context.Context, c rag.Conversation) error

	// Get returns conversation metadata, or rag.ErrConversationNotFound.
	Get(ctx context.Context, id string) (*rag.Conversation, error)

	// List returns ownerID's conversations newest first.
	List(ctx context.Context, ownerID string) ([]rag.Conversation, error)

	// Append adds msgs to the end of the log in one atomic write.
	Append(ctx context.Context, id string, msgs []rag.Message) error

	// Messages returns the full log in append order.
	Messages(ctx context.Context, id string) ([]rag.Message, error)

	// Close releases any resources held by the store.
	Close() error
}

// NewStore opens the backend selected by cfg.Backend.
func NewStore(ctx context.Context, cfg config.ConversationConfig) (Store, error) {
	switch cfg.Backend {
	case "", "sqlite":
		path := cfg.DBPath
		if path == "" {
			p, err := config.DefaultDataPath("history.db")
			if err != nil {
				return nil, fmt.Errorf("conversation: %w", err)
			}
			path = p
		}
		return OpenSQLite(ctx, path)
	case "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(ctx, RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
	default:
		return nil, fmt.Errorf("conversation: unknown backend %q (valid: sqlite, memory, redis): %w", cfg.Backend, rag.ErrConfiguration)
	}
}

func notFound(id string) error {
	return fmt.Errorf("conversation: %q: %w", id, rag.ErrConversationNotFound)
}
