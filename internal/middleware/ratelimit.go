package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/remind/internal/auth"
)

// RealIP returns the host part of the request's RemoteAddr. Forwarded
// headers are only honoured through ProxyHeaders.
func RealIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ProxyHeaders replaces RemoteAddr with the client address reported by a
// fronting proxy: Cloudflare's CF-Connecting-IP, then the first
// X-Forwarded-For hop. Install it only when every request arrives through
// such a proxy, otherwise clients can pick their own rate limit key.
func ProxyHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ip := forwardedIP(r); ip != "" {
			r2 := r.Clone(r.Context())
			r2.RemoteAddr = net.JoinHostPort(ip, "0")
			r = r2
		}
		next.ServeHTTP(w, r)
	})
}

func forwardedIP(r *http.Request) string {
	candidate := r.Header.Get("CF-Connecting-IP")
	if candidate == "" {
		xff := r.Header.Get("X-Forwarded-For")
		// First IP in the chain is the original client
		if i := strings.IndexByte(xff, ','); i > 0 {
			xff = xff[:i]
		}
		candidate = strings.TrimSpace(xff)
	}
	if net.ParseIP(candidate) == nil {
		return ""
	}
	return candidate
}

type entry struct {
	count    int
	windowAt time.Time
}

// Limiter decides whether another request for key fits in the window.
type Limiter interface {
	Allow(key string, limit int, window time.Duration) bool
	Cleanup()
}

// RateLimiter provides in-memory rate limiting. Counters live in this
// process only; use store.RateLimitStore when several instances serve the
// same users.
type RateLimiter struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		entries: make(map[string]*entry),
	}
}

// Allow returns true if the key has not exceeded limit in the given window.
func (rl *RateLimiter) Allow(key string, limit int, window time.Duration) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	e, ok := rl.entries[key]
	if !ok || now.After(e.windowAt) {
		rl.entries[key] = &entry{count: 1, windowAt: now.Add(window)}
		return true
	}
	e.count++
	return e.count <= limit
}

// Cleanup removes expired entries.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for key, e := range rl.entries {
		if now.After(e.windowAt) {
			delete(rl.entries, key)
		}
	}
}

// RateLimit returns middleware that rate-limits requests by a key function.
func RateLimit(limiter Limiter, keyFunc func(*http.Request) string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if !limiter.Allow(key, limit, window) {
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ByIP keys requests by client address under the given prefix.
func ByIP(prefix string) func(*http.Request) string {
	return func(r *http.Request) string {
		return prefix + ":" + RealIP(r)
	}
}

// ByUser keys requests by authenticated user, falling back to client address.
func ByUser(prefix string) func(*http.Request) string {
	return func(r *http.Request) string {
		if id := auth.UserID(r.Context()); id != 0 {
			return prefix + ":user:" + strconv.FormatInt(id, 10)
		}
		return prefix + ":" + RealIP(r)
	}
}
