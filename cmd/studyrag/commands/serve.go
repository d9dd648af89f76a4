package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/studyrag-go/internal/logging"
	"github.com/54b3r/studyrag-go/internal/server"
)

// NewServeCmd constructs the `studyrag serve` command, which starts the HTTP
// API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the studyrag HTTP API",
		Long: `Start the studyrag HTTP API.

Routes:
  POST /api/vector-store        ingest {text, source, userId}
  POST /api/chat                ask {question, userId, chatId}
  POST /api/chats               create a conversation
  GET  /api/chats?userId=       list conversations, newest first
  GET  /api/chats/{id}/messages conversation log
  GET  /api/health, /api/ready  probes
  GET  /metrics                 Prometheus

Examples:
  studyrag serve
  studyrag serve --port 9090
  MODEL_PROVIDER=openai VECTOR_STORE=qdrant studyrag serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.FromContext(ctx)
			s := settings
			if cmd.Flags().Changed("host") {
				s.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				s.Server.Port = port
			}

			log.Info("serve starting",
				slog.String("provider", s.Model.Provider),
				slog.String("vector_store", s.VectorStore.Backend),
				slog.String("conversation_store", s.Conversation.Backend),
			)

			flush, err := setupTracing(ctx, s, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer flush()

			st, err := buildStack(ctx, s, needs{embedder: true, vectors: true, conversations: true, completer: true}, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() {
				if err := st.Close(); err != nil {
					log.Warn("serve: close failed", slog.Any("error", err))
				}
			}()

			pipeline, err := st.pipeline(s, func(msg string) { log.Debug(msg) })
			if err != nil {
				return fmt.Errorf("serve: failed to create pipeline: %w", err)
			}
			asst, err := st.assistant(s)
			if err != nil {
				return fmt.Errorf("serve: failed to create assistant: %w", err)
			}

			pingers := st.pingers(s)
			checkDependencies(ctx, log, pingers)

			srv, err := server.New(pipeline, asst, st.convs, &server.Config{
				Host:      s.Server.Host,
				Port:      s.Server.Port,
				Logger:    log,
				Pingers:   pingers,
				RateLimit: s.Server.RateLimit,
				APIKey:    s.Server.APIKey,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (overrides STUDYRAG_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 3001, "TCP port to listen on (overrides STUDYRAG_PORT)")

	return cmd
}

// checkDependencies runs every probe once at startup. Failures are logged,
// not fatal: /api/ready keeps reporting them until they clear.
func checkDependencies(ctx context.Context, log *slog.Logger, pingers []server.Pinger) {
	if len(pingers) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.NewMultiPinger(pingers...).Ping(ctx); err != nil {
		log.Warn("serve: dependency not ready at startup", slog.Any("error", err))
		return
	}
	log.Info("serve: all dependencies ready", slog.Int("checks", len(pingers)))
}
