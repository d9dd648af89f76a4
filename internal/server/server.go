// Package server implements the HTTP API of the study assistant: document
// ingestion, grounded chat, and conversation management.
// The server is started by the `studyrag serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/studyrag-go/internal/ingestion"
	"github.com/54b3r/studyrag-go/internal/logging"
	"github.com/54b3r/studyrag-go/internal/rag"
)

// defaultMaxBodyBytes matches the 50 MiB upload limit of the web client.
const defaultMaxBodyBytes = 50 << 20

// New constructs a Server from the provided services and config.
func New(ing Ingester, ans Answerer, convs Conversations, cfg *Config) (*Server, error) {
	switch {
	case ing == nil:
		return nil, fmt.Errorf("server: ingester must not be nil: %w", rag.ErrConfiguration)
	case ans == nil:
		return nil, fmt.Errorf("server: answerer must not be nil: %w", rag.ErrConfiguration)
	case convs == nil:
		return nil, fmt.Errorf("server: conversations must not be nil: %w", rag.ErrConfiguration)
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 3001
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.ChatTimeout == 0 {
		cfg.ChatTimeout = 2 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		// Must outlast a chat request plus encoding.
		cfg.WriteTimeout = cfg.ChatTimeout + 30*time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
	log := cfg.Logger
	if log == nil {
		log = logging.New("info", "json")
	}

	s := &Server{
		ingester:      ing,
		answerer:      ans,
		conversations: convs,
		cfg:           cfg,
		log:           log,
		pingers:       cfg.Pingers,
		metrics:       newServerMetrics(cfg.MetricsRegistry),
	}

	rl, stop := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.metrics.rateLimitedTotal)
	s.stopRL = stop

	if cfg.APIKey == "" {
		log.Warn("server: API key not set, authentication disabled")
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.routes(rl),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// routes builds the handler chain. Probes and /metrics stay outside auth and
// rate limiting so orchestrators can always reach them.
func (s *Server) routes(rl *rateLimiter) http.Handler {
	protect := func(h http.HandlerFunc) http.Handler {
		return authMiddleware(s.cfg.APIKey, rl.middleware(h))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/vector-store", protect(s.handleIngest))
	mux.Handle("POST /api/chat", protect(s.handleChat))
	mux.Handle("POST /api/chats", protect(s.handleCreateChat))
	mux.Handle("GET /api/chats", protect(s.handleListChats))
	mux.Handle("GET /api/chats/{id}/messages", protect(s.handleMessages))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	var h http.Handler = s.instrument(mux)
	h = corsMiddleware(h)
	return requestLogger(s.log, h)
}

// Handler returns the fully wrapped HTTP handler. Used by tests and by
// callers embedding the API in another server.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server: listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		s.log.Info("server: stopped")
		return nil
	}
}

// handleIngest handles POST /api/vector-store.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if !s.decode(w, r, &req) {
		return
	}

	n, err := s.ingester.Ingest(r.Context(), ingestion.Document{
		OwnerID:     req.UserID,
		SourceLabel: req.Source,
		Text:        req.Text,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.metrics.ingestChunksTotal.Add(float64(n))
	writeJSON(r.Context(), w, http.StatusOK, ingestResponse{Added: n})
}

// handleChat handles POST /api/chat.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	outcome := rag.CodeInternal
	defer func() {
		s.metrics.chatRequestsTotal.WithLabelValues(outcome).Inc()
		s.metrics.chatDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	var req chatRequest
	if !s.decode(w, r, &req) {
		outcome = rag.CodeMissingInput
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ChatTimeout)
	defer cancel()

	ans, err := s.answerer.Answer(ctx, req.UserID, req.ChatID, req.Question)
	outcome = rag.Code(err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.metrics.retrievalCandidates.Observe(float64(ans.Candidates))
	writeJSON(r.Context(), w, http.StatusOK, chatResponse{Success: true, Answer: ans})
}

// handleCreateChat handles POST /api/chats.
func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var req createChatRequest
	if !s.decode(w, r, &req) {
		return
	}
	conv, err := s.conversations.Create(r.Context(), req.UserID, req.Title)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusCreated, chatEnvelope{Chat: conv})
}

// handleListChats handles GET /api/chats?userId=.
func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	convs, err := s.conversations.List(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if convs == nil {
		convs = []rag.Conversation{}
	}
	writeJSON(r.Context(), w, http.StatusOK, chatsEnvelope{Chats: convs})
}

// handleMessages handles GET /api/chats/{id}/messages. When userId is given
// a conversation owned by someone else is reported as not found.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if owner := r.URL.Query().Get("userId"); owner != "" {
		conv, err := s.conversations.Get(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if conv.OwnerID != owner {
			s.writeError(w, r, fmt.Errorf("server: conversation %q: %w", id, rag.ErrConversationNotFound))
			return
		}
	}

	msgs, err := s.conversations.History(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []rag.Message{}
	}
	writeJSON(r.Context(), w, http.StatusOK, messagesEnvelope{Messages: msgs})
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode reads a JSON body bounded by MaxBodyBytes. It writes a 400 and
// returns false on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	limit := s.cfg.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(r.Context(), w, http.StatusRequestEntityTooLarge, errorResponse{
				Error: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
				Code:  rag.CodeMissingInput,
			})
			return false
		}
		s.writeError(w, r, fmt.Errorf("server: invalid request body: %w: %w", rag.ErrMissingInput, err))
		return false
	}
	return true
}
