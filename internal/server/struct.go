package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/studyrag-go/internal/assistant"
	"github.com/54b3r/studyrag-go/internal/ingestion"
	"github.com/54b3r/studyrag-go/internal/rag"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 3001).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// ChatTimeout bounds a single /api/chat request end to end. Defaults to 2m.
	ChatTimeout time.Duration
	// MaxBodyBytes caps request bodies. Defaults to 50 MiB.
	MaxBodyBytes int64
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero; negative disables it.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives the server's collectors. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// Ingester stores a document's chunks. *ingestion.Pipeline satisfies it.
type Ingester interface {
	Ingest(ctx context.Context, doc ingestion.Document) (int, error)
}

// Answerer answers a question inside a conversation. *assistant.Assistant
// satisfies it.
type Answerer interface {
	Answer(ctx context.Context, ownerID, conversationID, question string) (*assistant.Answer, error)
}

// Conversations is the subset of *conversation.Manager the chat routes use.
type Conversations interface {
	Create(ctx context.Context, ownerID, title string) (*rag.Conversation, error)
	Get(ctx context.Context, id string) (*rag.Conversation, error)
	List(ctx context.Context, ownerID string) ([]rag.Conversation, error)
	History(ctx context.Context, id string) ([]rag.Message, error)
}

// Server is the HTTP server that exposes ingestion, question answering and
// conversation management.
type Server struct {
	// ingester handles POST /api/vector-store.
	ingester Ingester
	// answerer handles POST /api/chat.
	answerer Answerer
	// conversations backs the /api/chats routes.
	conversations Conversations
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// ingestRequest is the JSON body for POST /api/vector-store.
type ingestRequest struct {
	// Text is the extracted plain text of the document.
	Text string `json:"text"`
	// Source labels the document in answers (e.g. "lecture-3.pdf").
	Source string `json:"source"`
	// UserID is the owner the chunks are stored for.
	UserID string `json:"userId"`
}

// ingestResponse is the JSON response for POST /api/vector-store.
type ingestResponse struct {
	// Added is the number of chunks stored.
	Added int `json:"added"`
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	// Question is the student's question.
	Question string `json:"question"`
	// UserID scopes retrieval to the student's own material.
	UserID string `json:"userId"`
	// ChatID is the conversation the turn is appended to.
	ChatID string `json:"chatId"`
}

// chatResponse is the JSON response for POST /api/chat.
type chatResponse struct {
	Success bool `json:"success"`
	*assistant.Answer
}

// createChatRequest is the JSON body for POST /api/chats.
type createChatRequest struct {
	// UserID owns the new conversation.
	UserID string `json:"userId"`
	// Title is optional; a default is used when blank.
	Title string `json:"title"`
}

// chatEnvelope is the JSON response for POST /api/chats.
type chatEnvelope struct {
	Chat *rag.Conversation `json:"chat"`
}

// chatsEnvelope is the JSON response for GET /api/chats.
type chatsEnvelope struct {
	Chats []rag.Conversation `json:"chats"`
}

// messagesEnvelope is the JSON response for GET /api/chats/{id}/messages.
type messagesEnvelope struct {
	Messages []rag.Message `json:"messages"`
}

// errorResponse is the JSON body of every error response.
type errorResponse struct {
	// Error is a human-readable description.
	Error string `json:"error"`
	// Code is the stable machine-readable error code.
	Code string `json:"code"`
}
