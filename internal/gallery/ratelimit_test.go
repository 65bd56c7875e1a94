package gallery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestRateLimiterBlocksSaves(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(1), 1)
	h, _, _ := newTestHandler()
	srv := rl.Middleware(h)

	post := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/save-image", strings.NewReader(`{"imageURL":"u","prompt":"p"}`))
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := post(); code != http.StatusOK {
		t.Fatalf("first save status = %d, want 200", code)
	}
	if code := post(); code != http.StatusTooManyRequests {
		t.Errorf("second save status = %d, want 429", code)
	}

	// Reads are never limited.
	req := httptest.NewRequest(http.MethodGet, "/api/tags", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("GET status = %d, want 200", rec.Code)
	}
}

func TestRateLimiterPerIP(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(1), 1)
	if !rl.get("a").Allow() {
		t.Fatal("first request from a denied")
	}
	if !rl.get("b").Allow() {
		t.Error("first request from b denied; limits must be per IP")
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(1), 1)
	rl.get("stale")

	rl.mu.Lock()
	rl.limiters["stale"].lastSeen = time.Now().Add(-time.Hour)
	rl.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	rl.StartCleanup(ctx, &wg, 10*time.Millisecond, time.Minute)

	deadline := time.Now().Add(2 * time.Second)
	for {
		rl.mu.Lock()
		n := len(rl.limiters)
		rl.mu.Unlock()
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("stale limiter not evicted")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	wg.Wait()
}
