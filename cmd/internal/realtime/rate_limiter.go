package realtime

import (
	"sync"
	"time"
)

// RateLimiter is a per-connection sliding-window limiter backed by a ring of timestamps.
type RateLimiter struct {
	mu     sync.Mutex
	ring   []time.Time
	next   int
	window time.Duration
}

// NewRateLimiter allows limit events per window. Non-positive inputs use the package defaults.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = rateLimitEvents
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &RateLimiter{ring: make([]time.Time, limit), window: window}
}

// Allow records an event at now and reports whether it fits the budget.
// The oldest slot in the ring is the limit-th most recent accepted event.
func (r *RateLimiter) Allow(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	oldest := r.ring[r.next]
	if !oldest.IsZero() && now.Sub(oldest) < r.window {
		return false
	}
	r.ring[r.next] = now
	r.next = (r.next + 1) % len(r.ring)
	return true
}
