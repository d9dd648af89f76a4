package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/54b3r/studyrag-go/internal/logging"
)

// probeTimeout bounds each dependency probe so /api/ready answers quickly
// when a backend hangs.
const probeTimeout = 5 * time.Second

// Pinger is implemented by every dependency that can report its own
// reachability: the completion backend, the vector store and the
// conversation store. Implementations must be safe for concurrent use.
type Pinger interface {
	// Ping returns nil when the dependency is reachable.
	Ping(ctx context.Context) error

	// Name labels the dependency in readiness output (e.g. "ollama", "sqlite").
	Name() string
}

// probeResult is one Pinger's outcome.
type probeResult struct {
	name    string
	err     error
	elapsed time.Duration
}

// probeAll runs every pinger concurrently, each under probeTimeout, and
// returns the results in the order given.
func probeAll(ctx context.Context, pingers []Pinger) []probeResult {
	results := make([]probeResult, len(pingers))
	var g errgroup.Group
	for i, p := range pingers {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()
			start := time.Now()
			err := p.Ping(pctx)
			results[i] = probeResult{name: p.Name(), err: err, elapsed: time.Since(start)}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// MultiPinger checks several dependencies as one.
type MultiPinger struct {
	pingers []Pinger
}

// NewMultiPinger constructs a MultiPinger from the provided list of Pingers.
func NewMultiPinger(pingers ...Pinger) *MultiPinger {
	return &MultiPinger{pingers: pingers}
}

// Ping probes every dependency concurrently and joins all failures, each
// prefixed with the dependency name, in registration order.
func (m *MultiPinger) Ping(ctx context.Context) error {
	var errs []error
	for _, r := range probeAll(ctx, m.pingers) {
		if r.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.name, r.err))
		}
	}
	return errors.Join(errs...)
}

// Name returns a combined label for logging purposes.
func (m *MultiPinger) Name() string { return "multi" }

// readyCheck is one dependency's entry in the /api/ready body.
type readyCheck struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
}

// readyResponse is the JSON body returned by GET /api/ready.
type readyResponse struct {
	// Ready is true only when every dependency probe succeeded.
	Ready  bool         `json:"ready"`
	Checks []readyCheck `json:"checks"`
}

// handleReady handles GET /api/ready. It answers 200 when every dependency
// is reachable and 503 otherwise. /api/health, by contrast, only reports
// that the process is up.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	resp := readyResponse{Ready: true, Checks: []readyCheck{}}
	for _, res := range probeAll(r.Context(), s.pingers) {
		check := readyCheck{Name: res.name, OK: res.err == nil, LatencyMS: res.elapsed.Milliseconds()}
		if res.err != nil {
			check.Error = res.err.Error()
			resp.Ready = false
			log.Warn("readiness probe failed",
				slog.String("dependency", res.name),
				slog.Duration("elapsed", res.elapsed),
				slog.Any("error", res.err),
			)
		}
		resp.Checks = append(resp.Checks, check)
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(r.Context(), w, status, resp)
}
