// Package rag defines the shared types and interfaces of the retrieval
// pipeline: stored chunks, scored retrieval results, conversations, and the
// embedding and vector storage contracts. Concrete implementations (SQLite,
// Qdrant, Ollama, etc.) satisfy these interfaces so the orchestrators never
// depend on a specific backend.
package rag

import (
	"context"
	"time"
)

// Chunk is a bounded slice of source-document text paired with its embedding.
// Chunks are immutable once stored.
type Chunk struct {
	// ID is the unique identifier generated for this chunk at insert time.
	ID string

	// SourceLabel names the document the chunk was cut from (e.g. a file name).
	SourceLabel string

	// OwnerID is the tenant the chunk belongs to. Retrieval is always scoped by it.
	OwnerID string

	// Text is the trimmed chunk content.
	Text string

	// Vector is the dense embedding of Text.
	Vector []float32
}

// ChunkInput is a single (text, vector) pair handed to VectorStore.Put.
type ChunkInput struct {
	// Text is the chunk content.
	Text string

	// Vector is the embedding computed for Text.
	Vector []float32
}

// ScoredChunk is a retrieval result. It is never persisted.
type ScoredChunk struct {
	// Chunk is the candidate that was scored.
	Chunk Chunk

	// Score is the cosine similarity to the query, in [-1, 1].
	Score float64
}

// Context is the assembled retrieval context handed to the prompt builder.
type Context struct {
	// Text is the concatenated, size-bounded chunk text.
	Text string

	// Sources holds the source label of every ranked chunk, in rank order.
	// It reflects the ranked set, not only the characters that survived
	// truncation of Text.
	Sources []string
}

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser is a message sent by the student.
	RoleUser Role = "user"
	// RoleAssistant is a message produced by the completion provider.
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is a single turn in a conversation.
type Message struct {
	// Role is the author of the message.
	Role Role `json:"role"`
	// Content is the text of the message.
	Content string `json:"content"`
	// CreatedAt is when the message was appended.
	CreatedAt time.Time `json:"createdAt"`
}

// Conversation is the metadata of an append-only transcript owned by one user.
// The message log itself is read through the conversation store.
type Conversation struct {
	// ID is the unique conversation identifier.
	ID string `json:"id"`
	// OwnerID is the user that owns the conversation.
	OwnerID string `json:"userId"`
	// Title is a human-readable label. Defaults to DefaultConversationTitle.
	Title string `json:"title"`
	// CreatedAt is when the conversation was created.
	CreatedAt time.Time `json:"createdAt"`
}

// DefaultConversationTitle is used when a conversation is created without a title.
const DefaultConversationTitle = "New Chat"

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore is the interface for persisting and fetching chunk embeddings.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Put appends a batch of chunks for ownerID under sourceLabel and returns
	// the number inserted. Every chunk gets a fresh ID; nothing is deduplicated.
	// The batch is stored entirely or not at all.
	Put(ctx context.Context, ownerID, sourceLabel string, chunks []ChunkInput) (int, error)

	// GetByOwner returns every chunk owned by ownerID in insertion order, with
	// vectors normalized to dense form. It returns an empty slice, not an
	// error, when the owner has no chunks.
	GetByOwner(ctx context.Context, ownerID string) ([]Chunk, error)

	// Close releases any resources held by the store.
	Close() error
}
