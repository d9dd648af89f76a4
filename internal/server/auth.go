package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/studyrag-go/internal/logging"
)

// codeUnauthorized is the error code written on 401 responses.
const codeUnauthorized = "unauthorized"

// authMiddleware guards the ingestion, chat and conversation routes with a
// shared service key sent as "Authorization: Bearer <apiKey>". It identifies
// the calling client (the web front end), not the student: ownership is still
// decided by the userId in each request. An empty apiKey disables the check.
//
// Rejections are 401 with a Bearer challenge and the usual JSON error body.
// The presented token is never logged.
func authMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}
	want := []byte(apiKey)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		switch {
		case token == "":
			reject(w, r, `Bearer realm="studyrag"`, "authorization required")
		case subtle.ConstantTimeCompare([]byte(token), want) != 1:
			reject(w, r, `Bearer realm="studyrag", error="invalid_token"`, "invalid token")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func reject(w http.ResponseWriter, r *http.Request, challenge, msg string) {
	logging.FromContext(r.Context()).Warn("auth: request rejected",
		slog.String("path", r.URL.Path),
		slog.String("reason", msg),
	)
	w.Header().Set("WWW-Authenticate", challenge)
	writeJSON(r.Context(), w, http.StatusUnauthorized, errorResponse{Error: msg, Code: codeUnauthorized})
}

// bearerToken returns the token of an "Authorization: Bearer <token>" header,
// or "" when the header is absent or uses another scheme.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
