/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimitFor(t *testing.T) {
	cfg := &Config{prefix: "/dragon"}

	cases := map[string]int{
		"/dragon/ws/abc/def":                 0,
		"/dragon/assets/dragon/app.js":       0,
		"/dragon/favicons/favicon.svg":       0,
		"/dragon/api/games":                  2,
		"/dragon/healthz":                    10,
		"/dragon/api/games/abc/join":         20,
		"/dragon/api/games/abc/players/x/go": 20,
		"/dragon/game/abc":                   25,
		"/dragon/":                           5,
		"/dragon/version":                    5,
	}

	for path, want := range cases {
		assert.Equal(t, want, rateLimitFor(cfg, path), path)
	}
}

func TestRateLimiterWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	rl := newRateLimiter()
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("1.2.3.4", 2))
	assert.True(t, rl.allow("1.2.3.4", 2))
	assert.False(t, rl.allow("1.2.3.4", 2))
	assert.True(t, rl.allow("5.6.7.8", 2), "limits are per address")

	now = now.Add(rateWindow + time.Millisecond)
	assert.True(t, rl.allow("1.2.3.4", 2))
}

func TestRateLimiterCleanup(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	rl := newRateLimiter()
	rl.now = func() time.Time { return now }
	rl.lastCleanup = now

	assert.True(t, rl.allow("1.2.3.4", 5))

	now = now.Add(2 * rateCleanupEvery)
	assert.True(t, rl.allow("5.6.7.8", 5))

	rl.mu.Lock()
	defer rl.mu.Unlock()

	assert.NotContains(t, rl.requests, "1.2.3.4")
	assert.Contains(t, rl.requests, "5.6.7.8")
}

func TestRateLimitMiddleware(t *testing.T) {
	cfg := &Config{}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := newRateLimiter().middleware(cfg, next)

	do := func(path string) int {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, do("/api/games"))
	assert.Equal(t, http.StatusNoContent, do("/api/games"))
	assert.Equal(t, http.StatusTooManyRequests, do("/api/games"))

	for range 50 {
		assert.Equal(t, http.StatusNoContent, do("/ws/abc/def"))
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[::1]:5555"
	assert.Equal(t, "::1", clientIP(req))

	req.Header.Set("X-Real-IP", "203.0.113.9")
	assert.Equal(t, "203.0.113.9", clientIP(req))
}
