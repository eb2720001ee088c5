package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/Hardik94/shabdabhav/internal/apierr"
	"github.com/Hardik94/shabdabhav/internal/metrics"
)

// RateLimiter is a sliding-window request counter keyed by peer host:port.
// Timestamps older than the window are dropped lazily on each check.
type RateLimiter struct {
	maxRequests int
	window      time.Duration

	mu   sync.Mutex
	hits map[string][]time.Time

	now func() time.Time
}

// NewRateLimiter creates a limiter allowing maxRequests per window per key.
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		hits:        make(map[string][]time.Time),
		now:         time.Now,
	}
}

// Allow records a hit for key and reports whether it stays within the
// window budget. Checks for the same key are mutually exclusive.
func (rl *RateLimiter) Allow(key string) bool {
	now := rl.now()
	cutoff := now.Add(-rl.window)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	q := rl.hits[key]
	keep := 0
	for _, ts := range q {
		if ts.After(cutoff) {
			q[keep] = ts
			keep++
		}
	}
	q = q[:keep]
	if len(q) >= rl.maxRequests {
		rl.hits[key] = q
		return false
	}
	rl.hits[key] = append(q, now)
	return true
}

// Middleware rejects over-budget peers with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientKey(r)) {
			metrics.RateLimited.Inc()
			apierr.WriteJSON(w, apierr.New(apierr.RateLimited, "Rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey identifies a peer as host:port.
func clientKey(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	return r.RemoteAddr
}
