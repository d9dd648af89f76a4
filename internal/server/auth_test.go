package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		apiKey        string
		header        string
		wantStatus    int
		wantChallenge string
		wantMsg       string
	}{
		{name: "disabled without key", apiKey: "", wantStatus: http.StatusOK},
		{name: "disabled ignores header", apiKey: "", header: "Bearer anything", wantStatus: http.StatusOK},
		{name: "correct token", apiKey: "secret", header: "Bearer secret", wantStatus: http.StatusOK},
		{name: "lowercase scheme", apiKey: "secret", header: "bearer secret", wantStatus: http.StatusOK},
		{
			name: "missing header", apiKey: "secret",
			wantStatus: http.StatusUnauthorized, wantChallenge: `Bearer realm="studyrag"`, wantMsg: "authorization required",
		},
		{
			name: "wrong token", apiKey: "secret", header: "Bearer wrong-token",
			wantStatus: http.StatusUnauthorized, wantChallenge: `error="invalid_token"`, wantMsg: "invalid token",
		},
		{
			name: "key prefix is not enough", apiKey: "secret", header: "Bearer secre",
			wantStatus: http.StatusUnauthorized, wantChallenge: `error="invalid_token"`, wantMsg: "invalid token",
		},
		{
			name: "basic auth", apiKey: "secret", header: "Basic dXNlcjpwYXNz",
			wantStatus: http.StatusUnauthorized, wantChallenge: `Bearer realm="studyrag"`, wantMsg: "authorization required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			authMiddleware(tt.apiKey, okHandler).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK {
				return
			}

			if got := w.Header().Get("WWW-Authenticate"); !strings.Contains(got, tt.wantChallenge) {
				t.Errorf("WWW-Authenticate = %q, want it to contain %q", got, tt.wantChallenge)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
			var body errorResponse
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Code != codeUnauthorized || body.Error != tt.wantMsg {
				t.Errorf("body = %+v, want code %q and error %q", body, codeUnauthorized, tt.wantMsg)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		header string
		want   string
	}{
		{"Bearer mytoken", "mytoken"},
		{"BEARER mytoken", "mytoken"},
		{"Bearer  spaced ", "spaced"},
		{"Basic dXNlcjpwYXNz", ""},
		{"", ""},
		{"Bearer", ""},
		{"token only", ""},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		if got := bearerToken(req); got != tt.want {
			t.Errorf("bearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}
