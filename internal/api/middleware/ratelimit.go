package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// ipLimiter is a sliding-window request counter keyed by client IP. It guards
// the public surface (webhooks included) against abuse; per-user publishing
// quotas live elsewhere.
type ipLimiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	clients map[string][]time.Time
}

func newIPLimiter(limit, windowSeconds int) *ipLimiter {
	if limit <= 0 {
		limit = 100
	}
	if windowSeconds <= 0 {
		windowSeconds = 60
	}
	l := &ipLimiter{
		limit:   limit,
		window:  time.Duration(windowSeconds) * time.Second,
		clients: make(map[string][]time.Time),
	}
	go l.evictLoop()
	return l
}

func (l *ipLimiter) allow(ip string) (bool, int, time.Time) {
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	stamps := l.clients[ip]
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.limit {
		l.clients[ip] = kept
		return false, 0, kept[0].Add(l.window)
	}

	kept = append(kept, now)
	l.clients[ip] = kept
	return true, l.limit - len(kept), now.Add(l.window)
}

func (l *ipLimiter) evictLoop() {
	ticker := time.NewTicker(time.Minute)
	for range ticker.C {
		cutoff := time.Now().Add(-2 * l.window)
		l.mu.Lock()
		for ip, stamps := range l.clients {
			if len(stamps) == 0 || stamps[len(stamps)-1].Before(cutoff) {
				delete(l.clients, ip)
			}
		}
		l.mu.Unlock()
	}
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// RateLimit applies a per-IP request limit over a sliding window.
func RateLimit(limit, windowSeconds int) func(http.Handler) http.Handler {
	limiter := newIPLimiter(limit, windowSeconds)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, remaining, reset := limiter.allow(clientIP(r))

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

			if !allowed {
				http.Error(w, "Too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
