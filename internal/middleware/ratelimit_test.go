package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiter_SlidingWindow(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(3, 10*time.Second)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	// Four requests inside one second: three pass, the fourth is rejected.
	for i := 0; i < 3; i++ {
		if !rl.Allow("peer:1") {
			t.Fatalf("request %d rejected, want allowed", i+1)
		}
		now = now.Add(250 * time.Millisecond)
	}
	if rl.Allow("peer:1") {
		t.Fatal("fourth request allowed, want rejected")
	}

	// After the window has passed, the peer gets budget back.
	now = now.Add(11 * time.Second)
	if !rl.Allow("peer:1") {
		t.Fatal("request after window rejected, want allowed")
	}
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(1, time.Minute)
	if !rl.Allow("a:1") {
		t.Fatal("first a:1 rejected")
	}
	if rl.Allow("a:1") {
		t.Fatal("second a:1 allowed")
	}
	if !rl.Allow("b:2") {
		t.Fatal("b:2 rejected, want independent budget")
	}
}

func TestRateLimiter_Middleware429(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(1, time.Minute)
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/health", nil)
	req.RemoteAddr = "10.0.0.1:4242"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", rec.Code)
	}
}
