package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/54b3r/studyrag-go/internal/version"
)

// maxResponseBytes caps how much of a provider response is read. A batch of
// 1536-dim float vectors is well below this.
const maxResponseBytes = 64 << 20

// postJSON sends body as JSON to url and decodes a 2xx response into out.
// Non-2xx responses are returned as errors carrying errMsg(body) when it
// yields a message, or a snippet of the raw body otherwise.
func postJSON(ctx context.Context, client *http.Client, url string, header http.Header, body, out any, errMsg func([]byte) string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := ""
		if errMsg != nil {
			msg = errMsg(raw)
		}
		if msg == "" {
			msg = snippet(raw)
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// snippet returns at most 200 bytes of b for error messages.
func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		s = "empty body"
	}
	return s
}
