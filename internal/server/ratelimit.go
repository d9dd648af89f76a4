package server

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/54b3r/studyrag-go/internal/logging"
)

const (
	// defaultRateLimit is the sustained requests per second per client.
	defaultRateLimit = 10
	// defaultRateBurst lets a student paste a few questions back to back.
	defaultRateBurst = 20

	// codeRateLimited is the error code written on 429 responses.
	codeRateLimited = "rate_limited"

	bucketIdleTTL = 5 * time.Minute
	sweepInterval = time.Minute
)

// bucket is one client's token bucket.
type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter throttles the ingestion and chat routes per client address.
// Each ingest fans out into many embedding calls and each question costs a
// completion, so the limit protects the upstream providers as much as the
// server itself.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	limit rate.Limit
	burst int

	// rejected counts 429 responses. May be nil.
	rejected prometheus.Counter
}

// newRateLimiter returns a limiter and a stop function for its sweeper.
// A negative rps disables limiting and starts no sweeper.
func newRateLimiter(rps float64, burst int, rejected prometheus.Counter) (*rateLimiter, func()) {
	rl := &rateLimiter{
		buckets:  make(map[string]*bucket),
		limit:    rate.Limit(rps),
		burst:    burst,
		rejected: rejected,
	}
	if rps < 0 {
		rl.limit = rate.Inf
		return rl, func() {}
	}

	stop := make(chan struct{})
	go rl.sweep(stop)

	var once sync.Once
	return rl, func() { once.Do(func() { close(stop) }) }
}

func (rl *rateLimiter) allow(client string, now time.Time) bool {
	rl.mu.Lock()
	b, ok := rl.buckets[client]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[client] = b
	}
	b.lastSeen = now
	rl.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

func (rl *rateLimiter) sweep(stop <-chan struct{}) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			rl.evictIdle(now)
		}
	}
}

// evictIdle drops buckets not used within bucketIdleTTL of now.
func (rl *rateLimiter) evictIdle(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := now.Add(-bucketIdleTTL)
	for client, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, client)
		}
	}
}

// retryAfter is the whole number of seconds until one token is refilled.
func (rl *rateLimiter) retryAfter() int {
	if rl.limit <= 0 || rl.limit == rate.Inf {
		return 1
	}
	return max(1, int(math.Ceil(1/float64(rl.limit))))
}

// middleware rejects over-limit requests with 429 and a JSON error body.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	if rl.limit == rate.Inf {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientIP(r)
		if rl.allow(client, time.Now()) {
			next.ServeHTTP(w, r)
			return
		}

		if rl.rejected != nil {
			rl.rejected.Inc()
		}
		logging.FromContext(r.Context()).Warn("rate limit exceeded",
			slog.String("client", client),
			slog.String("path", r.URL.Path),
		)
		w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfter()))
		writeJSON(r.Context(), w, http.StatusTooManyRequests, errorResponse{
			Error: "rate limit exceeded",
			Code:  codeRateLimited,
		})
	})
}

// clientIP returns the host part of RemoteAddr. X-Forwarded-For is ignored:
// the server binds to loopback unless an operator puts it behind a proxy
// that enforces its own limits.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
