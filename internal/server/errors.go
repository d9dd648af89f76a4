package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/54b3r/studyrag-go/internal/logging"
	"github.com/54b3r/studyrag-go/internal/rag"
)

// statusFor maps a stable error code to its HTTP status.
func statusFor(code string) int {
	switch code {
	case rag.CodeMissingInput, rag.CodeTextTooShort:
		return http.StatusBadRequest
	case rag.CodeConversationNotFound:
		return http.StatusNotFound
	case rag.CodeNoCorpusIngested:
		return http.StatusUnprocessableEntity
	case rag.CodeEmbeddingUnavailable, rag.CodeCompletionUnavailable:
		return http.StatusBadGateway
	case rag.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs err and writes it as {"error","code"}. Internal errors are
// not echoed to the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := rag.Code(err)
	status := statusFor(code)
	log := logging.FromContext(r.Context())

	msg := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway && status != http.StatusGatewayTimeout {
		log.Error("request failed", slog.String("code", code), slog.Any("error", err))
		msg = http.StatusText(status)
	} else {
		log.Warn("request rejected", slog.String("code", code), slog.Any("error", err))
	}

	writeJSON(r.Context(), w, status, errorResponse{Error: msg, Code: code})
}

// writeJSON encodes v with the given status.
func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(ctx).Error("response encode error", slog.Any("error", err))
	}
}
