package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterAllowsWithinLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.Allow("client-a") {
			t.Fatalf("expected request %d to be allowed", i+1)
		}
	}
	if rl.Allow("client-a") {
		t.Error("expected fourth request to be rejected")
	}
}

func TestRateLimiterIsolatesClients(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)

	if !rl.Allow("client-a") {
		t.Fatal("expected first client to be allowed")
	}
	if !rl.Allow("client-b") {
		t.Error("expected second client to have its own budget")
	}
}

func TestRateLimiterResetsAfterWindow(t *testing.T) {
	rl := NewRateLimiter(1, 10*time.Millisecond)

	if !rl.Allow("client-a") {
		t.Fatal("expected first request to be allowed")
	}
	if rl.Allow("client-a") {
		t.Fatal("expected second request to be rejected")
	}

	time.Sleep(20 * time.Millisecond)
	if !rl.Allow("client-a") {
		t.Error("expected request after window reset to be allowed")
	}
}

func TestRateLimitMiddlewareSparesReads(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected GETs to bypass the limiter, got %d", rec.Code)
		}
	}
}

func TestRateLimitMiddlewareThrottlesIntents(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/sch-1/connect", nil)
	req.RemoteAddr = "10.0.0.1:55555"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected first intent to pass, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected second intent to be throttled, got %d", rec.Code)
	}
}
