// Package tracing wires the two tracing layers used by studyrag: Langfuse
// callbacks on every eino chat model call, and OpenTelemetry spans around
// the retrieval and ingestion stages.
package tracing

import (
	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"

	"github.com/54b3r/studyrag-go/internal/config"
)

// SetupLangfuse initialises the Langfuse callback handler if both keys are
// set. Returns a flush function that must be called before process exit to
// ensure all traces are sent. If Langfuse is not configured, the handler and
// flush are nil and ok is false.
func SetupLangfuse(cfg config.TracingConfig) (handler callbacks.Handler, flush func(), ok bool) {
	if cfg.LangfusePublicKey == "" || cfg.LangfuseSecretKey == "" {
		return nil, nil, false
	}
	host := cfg.LangfuseHost
	if host == "" {
		host = "http://localhost:3000"
	}

	handler, flush = langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      host,
		PublicKey: cfg.LangfusePublicKey,
		SecretKey: cfg.LangfuseSecretKey,
	})

	return handler, flush, true
}
