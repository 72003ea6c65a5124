/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	rateWindow       = time.Second
	rateCleanupEvery = time.Minute
)

// rateLimiter keeps a sliding one-second window of request times per IP.
type rateLimiter struct {
	mu          sync.Mutex
	requests    map[string][]time.Time
	lastCleanup time.Time
	now         func() time.Time
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{
		requests:    make(map[string][]time.Time),
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

func (rl *rateLimiter) allow(ip string, limit int) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rateWindow)

	kept := rl.requests[ip][:0]
	for _, ts := range rl.requests[ip] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= limit {
		rl.requests[ip] = kept
		return false
	}

	rl.requests[ip] = append(kept, now)

	if now.Sub(rl.lastCleanup) >= rateCleanupEvery {
		rl.cleanupLocked(now)
	}

	return true
}

// cleanupLocked forgets IPs that have been quiet for a minute.
func (rl *rateLimiter) cleanupLocked(now time.Time) {
	cutoff := now.Add(-rateCleanupEvery)

	for ip, stamps := range rl.requests {
		if len(stamps) == 0 || stamps[len(stamps)-1].Before(cutoff) {
			delete(rl.requests, ip)
		}
	}

	rl.lastCleanup = now
}

// rateLimitFor returns the per-second limit for a path, or 0 for none.
func rateLimitFor(cfg *Config, path string) int {
	path = strings.TrimPrefix(path, cfg.prefix)

	switch {
	case strings.HasPrefix(path, "/ws/"), strings.HasPrefix(path, "/assets/"), strings.HasPrefix(path, "/favicons/"):
		return 0
	case path == "/api/games":
		return 2
	case path == "/healthz":
		return 10
	case strings.HasPrefix(path, "/api/"):
		return 20
	case strings.HasPrefix(path, "/game/"):
		return 25
	default:
		return 5
	}
}

func clientIP(r *http.Request) string {
	addr := realIP(r)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return strings.Trim(host, "[]")
	}
	return strings.Trim(addr, "[]")
}

func (rl *rateLimiter) middleware(cfg *Config, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := rateLimitFor(cfg, r.URL.Path)
		if limit == 0 || rl.allow(clientIP(r), limit) {
			next.ServeHTTP(w, r)
			return
		}

		logf(cfg, "LIMIT: %s %s from %s", r.Method, r.URL.Path, realIP(r))

		securityHeaders(cfg, w)
		writeJSON(w, http.StatusTooManyRequests, errorBody{
			Error:   "RATE_LIMITED",
			Message: "Rate limit exceeded. Please try again later.",
		})
	})
}
