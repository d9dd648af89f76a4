package vectorstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/studyrag-go/internal/rag"
)

// SQLiteStore is a rag.VectorStore backed by a local SQLite database.
// Vectors are stored as JSON arrays; the dimensionality is recorded in the
// meta table on first insert and enforced afterwards.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// OpenSQLite opens (or creates) a SQLiteStore at the given path and runs the
// schema migration. Use ":memory:" for an in-memory database in tests.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("vectorstore: open %s: %w", path, err)
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
CREATE TABLE IF NOT EXISTS chunks (
    seq          INTEGER PRIMARY KEY AUTOINCREMENT,
    id           TEXT    NOT NULL UNIQUE,
    owner_id     TEXT    NOT NULL,
    source       TEXT    NOT NULL,
    content      TEXT    NOT NULL,
    embedding    TEXT    NOT NULL,  -- JSON array, or a legacy object form
    created_at   INTEGER NOT NULL   -- Unix timestamp (nanoseconds)
);
CREATE INDEX IF NOT EXISTS idx_chunks_owner_seq ON chunks (owner_id, seq);
CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("vectorstore: migrate: %w", err)
	}
	return nil
}

const metaDimension = "embedding_dimension"

// Put appends chunks for ownerID under sourceLabel in a single transaction.
func (s *SQLiteStore) Put(ctx context.Context, ownerID, sourceLabel string, chunks []rag.ChunkInput) (int, error) {
	dim, err := validateBatch(ownerID, chunks)
	if err != nil || len(chunks) == 0 {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("vectorstore: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := checkDimension(ctx, tx, dim); err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, owner_id, source, content, embedding, created_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("vectorstore: prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixNano()
	for i, c := range chunks {
		enc, err := EncodeVector(c.Vector)
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, uuid.NewString(), ownerID, sourceLabel, c.Text, string(enc), now); err != nil {
			return 0, fmt.Errorf("vectorstore: insert chunk %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("vectorstore: commit: %w", err)
	}
	return len(chunks), nil
}

// checkDimension records dim on first use and rejects any other length after.
func checkDimension(ctx context.Context, tx *sql.Tx, dim int) error {
	var stored string
	err := tx.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, metaDimension).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, metaDimension, strconv.Itoa(dim)); err != nil {
			return fmt.Errorf("vectorstore: record dimension: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("vectorstore: read dimension: %w", err)
	}

	want, err := strconv.Atoi(stored)
	if err != nil {
		return fmt.Errorf("vectorstore: corrupt dimension %q: %w", stored, err)
	}
	if want != dim {
		return dimensionError(want, dim)
	}
	return nil
}

// GetByOwner returns ownerID's chunks in insertion order.
func (s *SQLiteStore) GetByOwner(ctx context.Context, ownerID string) ([]rag.Chunk, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, content, embedding FROM chunks WHERE owner_id = ? ORDER BY seq ASC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: query: %w", err)
	}
	defer rows.Close()

	out := []rag.Chunk{}
	for rows.Next() {
		var c rag.Chunk
		var raw string
		if err := rows.Scan(&c.ID, &c.SourceLabel, &c.Text, &raw); err != nil {
			return nil, fmt.Errorf("vectorstore: scan: %w", err)
		}
		vec, err := DecodeVector([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("vectorstore: chunk %s: %w", c.ID, err)
		}
		c.OwnerID = ownerID
		c.Vector = vec
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vectorstore: rows: %w", err)
	}
	return out, nil
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("vectorstore: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("vectorstore: close: %w", err)
	}
	return nil
}
