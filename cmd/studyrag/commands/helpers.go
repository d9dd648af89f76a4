package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino/callbacks"

	"github.com/54b3r/studyrag-go/internal/assistant"
	"github.com/54b3r/studyrag-go/internal/chunker"
	"github.com/54b3r/studyrag-go/internal/config"
	"github.com/54b3r/studyrag-go/internal/conversation"
	"github.com/54b3r/studyrag-go/internal/embedder"
	"github.com/54b3r/studyrag-go/internal/ingestion"
	"github.com/54b3r/studyrag-go/internal/provider"
	"github.com/54b3r/studyrag-go/internal/rag"
	"github.com/54b3r/studyrag-go/internal/server"
	"github.com/54b3r/studyrag-go/internal/tracing"
	"github.com/54b3r/studyrag-go/internal/vectorstore"
)

// stack holds every component a command may need. Fields are nil when the
// command did not ask for them.
type stack struct {
	gateway   *embedder.Gateway
	vectors   rag.VectorStore
	convStore conversation.Store
	convs     *conversation.Manager
	completer *provider.ChatCompleter

	closers []func() error
}

// needs selects which parts of the stack a command builds.
type needs struct {
	embedder      bool
	vectors       bool
	conversations bool
	completer     bool
}

// buildStack opens the requested components from settings. On error every
// component opened so far is closed.
func buildStack(ctx context.Context, s *config.Settings, n needs, log *slog.Logger) (_ *stack, err error) {
	st := &stack{}
	defer func() {
		if err != nil {
			_ = st.Close()
		}
	}()

	if n.embedder {
		if err := embedder.ValidateForRAG(&s.Embedding, log); err != nil {
			return nil, err
		}
		gw, err := embedder.NewGatewayFromConfig(&s.Embedding)
		if err != nil {
			return nil, fmt.Errorf("failed to initialise embedder: %w", err)
		}
		st.gateway = gw
		log.Info("embedder initialised",
			slog.String("provider", s.Embedding.Provider),
			slog.String("model", s.Embedding.Model),
		)
	}

	if n.vectors {
		dim := embedder.DefaultDimensions(&s.Embedding)
		vs, err := vectorstore.New(ctx, s.VectorStore, dim)
		if err != nil {
			return nil, fmt.Errorf("failed to open vector store: %w", err)
		}
		st.vectors = vs
		st.closers = append(st.closers, vs.Close)
		log.Info("vector store ready", slog.String("backend", s.VectorStore.Backend), slog.Int("dimensions", dim))
	}

	if n.conversations {
		cs, err := conversation.NewStore(ctx, s.Conversation)
		if err != nil {
			return nil, fmt.Errorf("failed to open conversation store: %w", err)
		}
		st.convStore = cs
		st.convs = conversation.NewManager(cs)
		st.closers = append(st.closers, cs.Close)
		log.Info("conversation store ready", slog.String("backend", s.Conversation.Backend))
	}

	if n.completer {
		c, err := provider.NewCompleter(ctx, s.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to initialise model provider: %w", err)
		}
		st.completer = c
		log.Info("provider initialised", slog.String("provider", s.Model.Provider))
	}

	return st, nil
}

// Close releases every opened component in reverse order.
func (st *stack) Close() error {
	var errs []error
	for i := len(st.closers) - 1; i >= 0; i-- {
		errs = append(errs, st.closers[i]())
	}
	st.closers = nil
	return errors.Join(errs...)
}

// pipeline builds the ingestion pipeline over the stack's embedder and store.
func (st *stack) pipeline(s *config.Settings, progress func(string)) (*ingestion.Pipeline, error) {
	return ingestion.NewPipeline(st.gateway, st.vectors, &ingestion.Config{
		Chunking:     chunker.Config{Size: s.Ingestion.ChunkSize, Overlap: s.Ingestion.ChunkOverlap},
		MinTextChars: s.Ingestion.MinTextChars,
		Concurrency:  s.Ingestion.Concurrency,
		Progress:     progress,
	})
}

// assistant builds the question-answering orchestrator.
func (st *stack) assistant(s *config.Settings) (*assistant.Assistant, error) {
	return assistant.New(assistant.Config{
		Embedder:         st.gateway,
		Store:            st.vectors,
		Conversations:    st.convs,
		Completer:        st.completer,
		TopK:             s.Retrieval.TopK,
		MaxContextChars:  s.Retrieval.MaxContextChars,
		MaxHistoryTokens: s.Retrieval.MaxHistoryTokens,
		RetryAttempts:    s.Retrieval.RetryAttempts,
	})
}

// pingers returns the readiness probes for every opened dependency. The
// in-memory backends have nothing to probe and are skipped.
func (st *stack) pingers(s *config.Settings) []server.Pinger {
	var out []server.Pinger
	if st.completer != nil {
		hc := provider.NewHealthCheck(provider.FromConfig(s.Model))
		out = append(out, server.NewLLMPinger(st.completer, hc, s.Model.Provider))
	}
	if p := server.NewStorePinger(s.VectorStore.Backend, st.vectors); p != nil {
		out = append(out, p)
	}
	if p := server.NewStorePinger(s.Conversation.Backend, st.convStore); p != nil {
		out = append(out, p)
	}
	return out
}

// setupTracing enables Langfuse and OpenTelemetry when configured. The
// returned function flushes both and must be called before exit.
func setupTracing(ctx context.Context, s *config.Settings, log *slog.Logger) (func(), error) {
	var flushers []func()

	if handler, flush, ok := tracing.SetupLangfuse(s.Tracing); ok {
		callbacks.AppendGlobalHandlers(handler)
		flushers = append(flushers, flush)
		log.Info("langfuse tracing enabled")
	} else {
		log.Debug("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
	}

	tp, err := tracing.SetupOTel(ctx, s.Tracing)
	if err != nil {
		return nil, err
	}
	if tp.Enabled() {
		log.Info("opentelemetry tracing enabled", slog.String("endpoint", s.Tracing.OTLPEndpoint))
		flushers = append(flushers, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				log.Warn("opentelemetry shutdown failed", slog.Any("error", err))
			}
		})
	}

	return func() {
		for _, f := range flushers {
			f()
		}
	}, nil
}
