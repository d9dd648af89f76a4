package conversation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/studyrag-go/internal/rag"
)

// SQLiteStore is a Store backed by a local SQLite database. Message order is
// the autoincrement sequence, not the timestamp.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// OpenSQLite opens (or creates) a SQLiteStore at the given path and runs the
// schema migration. Use ":memory:" for an in-memory database in tests.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("conversation: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS conversations (
    seq          INTEGER PRIMARY KEY AUTOINCREMENT,
    id           TEXT    NOT NULL UNIQUE,
    owner_id     TEXT    NOT NULL,
    title        TEXT    NOT NULL,
    created_at   INTEGER NOT NULL  -- Unix timestamp (nanoseconds)
);
CREATE INDEX IF NOT EXISTS idx_conversations_owner_created
    ON conversations (owner_id, created_at);
CREATE TABLE IF NOT EXISTS messages (
    seq             INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id TEXT    NOT NULL,
    role            TEXT    NOT NULL CHECK(role IN ('user','assistant')),
    content         TEXT    NOT NULL,
    created_at      INTEGER NOT NULL  -- Unix timestamp (nanoseconds)
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation_seq
    ON messages (conversation_id, seq);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("conversation: migrate: %w", err)
	}
	return nil
}

// Create persists a new conversation.
func (s *SQLiteStore) Create(ctx context.Context, c rag.Conversation) error {
	const q = `INSERT INTO conversations (id, owner_id, title, created_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, c.ID, c.OwnerID, c.Title, c.CreatedAt.UnixNano()); err != nil {
		return fmt.Errorf("conversation: create: %w", err)
	}
	return nil
}

// Get returns the metadata of conversation id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*rag.Conversation, error) {
	const q = `SELECT id, owner_id, title, created_at FROM conversations WHERE id = ?`
	var c rag.Conversation
	var ts int64
	err := s.db.QueryRowContext(ctx, q, id).Scan(&c.ID, &c.OwnerID, &c.Title, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: get: %w", err)
	}
	c.CreatedAt = time.Unix(0, ts)
	return &c, nil
}

// List returns ownerID's conversations newest first.
func (s *SQLiteStore) List(ctx context.Context, ownerID string) ([]rag.Conversation, error) {
	const q = `
SELECT id, owner_id, title, created_at
FROM   conversations
WHERE  owner_id = ?
ORDER  BY created_at DESC, seq DESC`

	rows, err := s.db.QueryContext(ctx, q, ownerID)
	if err != nil {
		return nil, fmt.Errorf("conversation: list: %w", err)
	}
	defer rows.Close()

	out := []rag.Conversation{}
	for rows.Next() {
		var c rag.Conversation
		var ts int64
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Title, &ts); err != nil {
			return nil, fmt.Errorf("conversation: list scan: %w", err)
		}
		c.CreatedAt = time.Unix(0, ts)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: list rows: %w", err)
	}
	return out, nil
}

// Append inserts msgs in a single transaction.
func (s *SQLiteStore) Append(ctx context.Context, id string, msgs []rag.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("conversation: append begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `INSERT INTO messages (conversation_id, role, content, created_at) VALUES (?, ?, ?, ?)`
	for _, m := range msgs {
		if _, err := tx.ExecContext(ctx, q, id, string(m.Role), m.Content, m.CreatedAt.UnixNano()); err != nil {
			return fmt.Errorf("conversation: append: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("conversation: append commit: %w", err)
	}
	return nil
}

// Messages returns the log of conversation id, oldest first.
func (s *SQLiteStore) Messages(ctx context.Context, id string) ([]rag.Message, error) {
	const q = `SELECT role, content, created_at FROM messages WHERE conversation_id = ? ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("conversation: messages: %w", err)
	}
	defer rows.Close()

	msgs := []rag.Message{}
	for rows.Next() {
		var m rag.Message
		var ts int64
		var role string
		if err := rows.Scan(&role, &m.Content, &ts); err != nil {
			return nil, fmt.Errorf("conversation: messages scan: %w", err)
		}
		m.Role = rag.Role(role)
		m.CreatedAt = time.Unix(0, ts)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: messages rows: %w", err)
	}
	return msgs, nil
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("conversation: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("conversation: close: %w", err)
	}
	return nil
}
