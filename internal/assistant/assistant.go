// Package assistant answers a student's question from their own ingested
// material. Answer runs the full retrieval path (embed, fetch, rank,
// assemble), grounds the completion prompt in the result, and records the
// question and answer as one adjacent pair in the conversation.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel/attribute"

	"github.com/54b3r/studyrag-go/internal/assembler"
	"github.com/54b3r/studyrag-go/internal/logging"
	"github.com/54b3r/studyrag-go/internal/provider"
	"github.com/54b3r/studyrag-go/internal/rag"
	"github.com/54b3r/studyrag-go/internal/ranker"
	"github.com/54b3r/studyrag-go/internal/tracing"
)

// QueryEmbedder embeds a single question. *embedder.Gateway satisfies it.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Conversations is the subset of *conversation.Manager the assistant uses.
type Conversations interface {
	Get(ctx context.Context, id string) (*rag.Conversation, error)
	History(ctx context.Context, id string) ([]rag.Message, error)
	Append(ctx context.Context, id string, msgs ...rag.Message) ([]rag.Message, error)
}

// Config holds the dependencies and tuning of an Assistant.
type Config struct {
	Embedder      QueryEmbedder
	Store         rag.VectorStore
	Conversations Conversations
	Completer     provider.Completer

	// TopK is the number of chunks kept after ranking (default 5).
	TopK int
	// MaxContextChars bounds the assembled context (default 6000).
	MaxContextChars int
	// MaxHistoryTokens trims prior turns when positive. Zero sends the full history.
	MaxHistoryTokens int
	// RetryAttempts is the number of extra attempts for embedding and
	// completion calls. Zero disables retries.
	RetryAttempts int
}

// Answer is the result of a successful query.
type Answer struct {
	// Text is the model's answer.
	Text string `json:"answer"`
	// Sources holds one source label per ranked chunk, in rank order.
	Sources []string `json:"sources"`
	// ConversationID echoes the conversation the turn was appended to.
	ConversationID string `json:"chatId"`
	// Candidates is how many stored chunks were scored.
	Candidates int `json:"-"`
}

// Assistant runs grounded question answering. It is safe for concurrent use.
type Assistant struct {
	embedder         QueryEmbedder
	store            rag.VectorStore
	conversations    Conversations
	completer        provider.Completer
	topK             int
	maxContextChars  int
	maxHistoryTokens int
	retryAttempts    int
	newBackOff       func() backoff.BackOff
}

// New validates cfg and returns an Assistant.
func New(cfg Config) (*Assistant, error) {
	switch {
	case cfg.Embedder == nil:
		return nil, fmt.Errorf("assistant: embedder must not be nil: %w", rag.ErrConfiguration)
	case cfg.Store == nil:
		return nil, fmt.Errorf("assistant: vector store must not be nil: %w", rag.ErrConfiguration)
	case cfg.Conversations == nil:
		return nil, fmt.Errorf("assistant: conversations must not be nil: %w", rag.ErrConfiguration)
	case cfg.Completer == nil:
		return nil, fmt.Errorf("assistant: completer must not be nil: %w", rag.ErrConfiguration)
	}

	topK := cfg.TopK
	if topK <= 0 {
		topK = ranker.DefaultTopK
	}
	maxChars := cfg.MaxContextChars
	if maxChars <= 0 {
		maxChars = assembler.DefaultMaxChars
	}

	return &Assistant{
		embedder:         cfg.Embedder,
		store:            cfg.Store,
		conversations:    cfg.Conversations,
		completer:        cfg.Completer,
		topK:             topK,
		maxContextChars:  maxChars,
		maxHistoryTokens: cfg.MaxHistoryTokens,
		retryAttempts:    cfg.RetryAttempts,
		newBackOff:       func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}, nil
}

// Answer answers question for ownerID inside conversation conversationID.
//
// The conversation is only written after the completion succeeds, and then
// exactly once: the question followed by the answer. Any earlier failure
// leaves it untouched.
func (a *Assistant) Answer(ctx context.Context, ownerID, conversationID, question string) (_ *Answer, err error) {
	ownerID = strings.TrimSpace(ownerID)
	conversationID = strings.TrimSpace(conversationID)
	question = strings.TrimSpace(question)

	ctx, span := tracing.StartSpan(ctx, "assistant.answer",
		attribute.String("studyrag.owner_id", ownerID),
		attribute.String("studyrag.conversation_id", conversationID),
	)
	defer func() { tracing.End(span, err) }()

	log := logging.FromContext(ctx).With(
		slog.String("owner_id", ownerID),
		slog.String("conversation_id", conversationID),
	)
	start := time.Now()

	switch {
	case question == "":
		return nil, fmt.Errorf("assistant: question is required: %w", rag.ErrMissingInput)
	case ownerID == "":
		return nil, fmt.Errorf("assistant: owner id is required: %w", rag.ErrMissingInput)
	case conversationID == "":
		return nil, fmt.Errorf("assistant: conversation id is required: %w", rag.ErrMissingInput)
	}

	queryVec, err := a.embedQuestion(ctx, question)
	if err != nil {
		return nil, err
	}

	retrieved, err := a.retrieve(ctx, ownerID, queryVec)
	if err != nil {
		return nil, err
	}

	history, err := a.loadHistory(ctx, ownerID, conversationID)
	if err != nil {
		return nil, err
	}

	msgs := BuildPrompt(history, retrieved.context.Text, question, a.maxHistoryTokens)
	if dropped := len(history) - (len(msgs) - 2); dropped > 0 {
		log.Debug("assistant: trimmed history to fit budget",
			slog.Int("dropped", dropped),
			slog.Int("max_history_tokens", a.maxHistoryTokens),
		)
	}

	text, err := a.complete(ctx, msgs)
	if err != nil {
		return nil, err
	}

	if _, err := a.conversations.Append(ctx, conversationID,
		rag.Message{Role: rag.RoleUser, Content: question},
		rag.Message{Role: rag.RoleAssistant, Content: text},
	); err != nil {
		return nil, fmt.Errorf("assistant: record turn: %w", err)
	}

	log.Info("assistant: answered",
		slog.Int("candidates", retrieved.candidates),
		slog.Int("ranked", len(retrieved.context.Sources)),
		slog.Int("context_chars", len([]rune(retrieved.context.Text))),
		slog.Int("history", len(history)),
		slog.Duration("duration", time.Since(start)),
	)

	return &Answer{
		Text:           text,
		Sources:        retrieved.context.Sources,
		ConversationID: conversationID,
		Candidates:     retrieved.candidates,
	}, nil
}

func (a *Assistant) embedQuestion(ctx context.Context, question string) (_ []float32, err error) {
	ctx, span := tracing.StartClientSpan(ctx, "assistant.embed")
	defer func() { tracing.End(span, err) }()

	var vec []float32
	err = a.retry(ctx, func() error {
		v, err := a.embedder.Embed(ctx, question)
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("assistant: embed question: %w", err)
	}
	return vec, nil
}

type retrieval struct {
	context    rag.Context
	candidates int
}

func (a *Assistant) retrieve(ctx context.Context, ownerID string, queryVec []float32) (_ retrieval, err error) {
	ctx, span := tracing.StartSpan(ctx, "assistant.retrieve")
	defer func() { tracing.End(span, err) }()

	chunks, err := a.store.GetByOwner(ctx, ownerID)
	if err != nil {
		return retrieval{}, fmt.Errorf("assistant: load chunks: %w", err)
	}
	if len(chunks) == 0 {
		return retrieval{}, fmt.Errorf("assistant: owner %q: %w", ownerID, rag.ErrNoCorpusIngested)
	}

	scored := ranker.Rank(queryVec, chunks, a.topK)
	span.SetAttributes(
		attribute.Int("studyrag.candidates", len(chunks)),
		attribute.Int("studyrag.ranked", len(scored)),
	)
	return retrieval{
		context:    assembler.Assemble(scored, a.maxContextChars),
		candidates: len(chunks),
	}, nil
}

// loadHistory returns the conversation log. A conversation owned by someone
// else is reported as not found.
func (a *Assistant) loadHistory(ctx context.Context, ownerID, conversationID string) ([]rag.Message, error) {
	conv, err := a.conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("assistant: load conversation: %w", err)
	}
	if conv.OwnerID != ownerID {
		return nil, fmt.Errorf("assistant: load conversation %q: %w", conversationID, rag.ErrConversationNotFound)
	}
	history, err := a.conversations.History(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("assistant: load history: %w", err)
	}
	return history, nil
}

func (a *Assistant) complete(ctx context.Context, msgs []*schema.Message) (_ string, err error) {
	ctx, span := tracing.StartClientSpan(ctx, "assistant.complete",
		attribute.Int("studyrag.messages", len(msgs)),
	)
	defer func() { tracing.End(span, err) }()

	var text string
	err = a.retry(ctx, func() error {
		t, err := a.completer.Complete(ctx, msgs)
		if err != nil {
			return err
		}
		text = t
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("assistant: complete: %w", err)
	}
	return text, nil
}

// retry runs op up to RetryAttempts extra times with exponential backoff.
// Timeouts and caller errors are returned immediately.
func (a *Assistant) retry(ctx context.Context, op func() error) error {
	if a.retryAttempts <= 0 {
		return op()
	}

	attempt := 0
	b := backoff.WithContext(backoff.WithMaxRetries(a.newBackOff(), uint64(a.retryAttempts)), ctx)
	err := backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		logging.FromContext(ctx).Warn("assistant: retrying provider call",
			slog.Int("attempt", attempt),
			slog.String("code", rag.Code(err)),
			slog.Any("error", err),
		)
		return err
	}, b)

	if err != nil && !errors.Is(err, rag.ErrTimeout) && rag.IsTimeout(err) {
		return fmt.Errorf("%w: %w", rag.ErrTimeout, err)
	}
	return err
}

func retryable(err error) bool {
	if errors.Is(err, rag.ErrTimeout) || rag.IsTimeout(err) {
		return false
	}
	return errors.Is(err, rag.ErrEmbeddingUnavailable) || errors.Is(err, rag.ErrCompletionUnavailable)
}
