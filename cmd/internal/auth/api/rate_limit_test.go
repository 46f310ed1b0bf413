package authapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIPLimiter_WindowBudget(t *testing.T) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	l := NewIPLimiter(10, time.Minute)

	for i := range 10 {
		if ok, _ := l.Allow("10.0.0.1", now); !ok {
			t.Fatalf("request %d refused inside budget", i)
		}
	}
	ok, retry := l.Allow("10.0.0.1", now)
	if ok {
		t.Fatalf("11th request allowed")
	}
	if retry <= 0 || retry > 7*time.Second {
		t.Fatalf("retry = %v, want about 6s", retry)
	}

	if ok, _ := l.Allow("10.0.0.2", now); !ok {
		t.Fatalf("budget leaked across IPs")
	}
	if ok, _ := l.Allow("10.0.0.1", now.Add(7*time.Second)); !ok {
		t.Fatalf("token not refilled after one interval")
	}
}

func TestIPLimiter_RefusalDoesNotConsume(t *testing.T) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	l := NewIPLimiter(1, time.Minute)

	if ok, _ := l.Allow("ip", now); !ok {
		t.Fatalf("first request refused")
	}
	for range 5 {
		l.Allow("ip", now.Add(time.Second))
	}
	if ok, _ := l.Allow("ip", now.Add(time.Minute+time.Second)); !ok {
		t.Fatalf("refused requests pushed the refill back")
	}
}

func TestIPLimiter_Sweep(t *testing.T) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	l := NewIPLimiter(10, time.Minute)
	l.Allow("old", now)
	l.Allow("fresh", now.Add(2*time.Minute))

	if n := l.Sweep(now.Add(150 * time.Second)); n != 1 {
		t.Fatalf("swept %d, want 1", n)
	}
	if l.Len() != 1 {
		t.Fatalf("len = %d", l.Len())
	}
}

func TestIPLimiter_RunStopsOnCancel(t *testing.T) {
	l := NewIPLimiter(10, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, time.Millisecond) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}

func TestWriteRateLimited_RetryAfter(t *testing.T) {
	rr := httptest.NewRecorder()
	writeRateLimited(rr, 1500*time.Millisecond)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("Retry-After = %q, want 2", got)
	}
}
