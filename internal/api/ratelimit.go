package api

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// RateLimiter throttles intent requests per client address. Every
// intent fans out to the external gateway, so a stuck UI retry loop
// would otherwise hammer it.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientWindow
	limit   int
	window  time.Duration
}

type clientWindow struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter creates a fixed-window limiter allowing limit
// requests per window per client.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		clients: make(map[string]*clientWindow),
		limit:   limit,
		window:  window,
	}
}

// Allow reports whether the client may proceed.
func (rl *RateLimiter) Allow(clientKey string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	cw, exists := rl.clients[clientKey]
	if !exists {
		if len(rl.clients) >= maxTrackedClients {
			rl.cleanupLocked(now)
		}
		rl.clients[clientKey] = &clientWindow{count: 1, windowStart: now}
		return true
	}

	if now.Sub(cw.windowStart) >= rl.window {
		cw.count = 1
		cw.windowStart = now
		return true
	}

	if cw.count >= rl.limit {
		return false
	}

	cw.count++
	return true
}

const maxTrackedClients = 1024

// cleanupLocked drops clients idle for several windows. Caller holds mu.
func (rl *RateLimiter) cleanupLocked(now time.Time) {
	for key, cw := range rl.clients {
		if now.Sub(cw.windowStart) > 5*rl.window {
			delete(rl.clients, key)
		}
	}
}

// Middleware rejects over-limit mutating requests with 429. Reads pass
// through untouched.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}

		if !rl.Allow(host) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"Too Many Requests","code":429,"message":"Intent rate limit exceeded"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}
