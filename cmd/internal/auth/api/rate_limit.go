package authapi

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"pulse/cmd/internal/httpx"

	"golang.org/x/time/rate"
)

// IPLimiter is a per-client-IP token bucket with an idle entry janitor.
type IPLimiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration

	mu      sync.Mutex
	buckets map[string]*ipBucket
}

type ipBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPLimiter allows n requests per window per IP, refilled evenly.
func NewIPLimiter(n int, window time.Duration) *IPLimiter {
	n = max(n, 1)
	if window <= 0 {
		window = time.Minute
	}
	return &IPLimiter{
		limit:   rate.Every(window / time.Duration(n)),
		burst:   n,
		idle:    2 * window,
		buckets: make(map[string]*ipBucket),
	}
}

// Allow consumes one token for key at now.
// When refused it returns the wait until the next token.
func (l *IPLimiter) Allow(key string, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &ipBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, l.retryAfter()
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d
	}
	return true, 0
}

func (l *IPLimiter) retryAfter() time.Duration {
	return time.Duration(float64(time.Second) / float64(l.limit))
}

// Len reports tracked keys.
func (l *IPLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Sweep drops buckets idle for longer than twice the window.
func (l *IPLimiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idle {
			delete(l.buckets, k)
			n++
		}
	}
	return n
}

// Run sweeps idle buckets every interval until ctx is done.
func (l *IPLimiter) Run(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			l.Sweep(now)
		}
	}
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	secs := max(int64(math.Ceil(retryAfter.Seconds())), 1)
	w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	httpx.WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
}
