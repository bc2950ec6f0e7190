package api

import (
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// clientLimiter is the token bucket of one client.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// PerClientRateLimiter applies a token bucket per client key. Idle clients
// are dropped periodically.
type PerClientRateLimiter struct {
	lastCleanup     time.Time
	clients         map[string]*clientLimiter
	now             func() time.Time
	limit           rate.Limit
	burst           int
	cleanupInterval time.Duration
	maxIdleTime     time.Duration
	requests        atomic.Int64
	rejected        atomic.Int64
	mu              sync.Mutex
}

// RateLimitStats reports aggregate limiter statistics.
type RateLimitStats struct {
	PerMinute     float64 `json:"per_minute"`
	Burst         int     `json:"burst"`
	ActiveClients int     `json:"active_clients"`
	TotalRequests int64   `json:"total_requests"`
	TotalRejected int64   `json:"total_rejected"`
}

// NewPerClientRateLimiter allows perMinute requests per client with the
// given burst.
func NewPerClientRateLimiter(perMinute float64, burst int) *PerClientRateLimiter {
	return &PerClientRateLimiter{
		limit:           rate.Limit(perMinute / 60),
		burst:           burst,
		clients:         make(map[string]*clientLimiter),
		now:             time.Now,
		cleanupInterval: 5 * time.Minute,
		maxIdleTime:     10 * time.Minute,
		lastCleanup:     time.Now(),
	}
}

// Allow reports whether a request from clientKey may proceed.
func (l *PerClientRateLimiter) Allow(clientKey string) bool {
	l.requests.Add(1)

	l.mu.Lock()
	now := l.now()
	if now.Sub(l.lastCleanup) > l.cleanupInterval {
		l.cleanupLocked(now)
	}
	c, ok := l.clients[clientKey]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[clientKey] = c
	}
	c.lastSeen = now
	l.mu.Unlock()

	if c.limiter.AllowN(now, 1) {
		return true
	}
	l.rejected.Add(1)
	return false
}

// cleanupLocked removes idle clients. Must be called with l.mu held.
func (l *PerClientRateLimiter) cleanupLocked(now time.Time) {
	for key, c := range l.clients {
		if now.Sub(c.lastSeen) > l.maxIdleTime {
			delete(l.clients, key)
		}
	}
	l.lastCleanup = now
}

// Stats returns aggregate statistics.
func (l *PerClientRateLimiter) Stats() RateLimitStats {
	l.mu.Lock()
	active := len(l.clients)
	l.mu.Unlock()

	return RateLimitStats{
		PerMinute:     float64(l.limit) * 60,
		Burst:         l.burst,
		ActiveClients: active,
		TotalRequests: l.requests.Load(),
		TotalRejected: l.rejected.Load(),
	}
}

// PerClientRateLimitMiddleware rejects requests over the client's limit with
// 429. Clients are keyed by RemoteAddr, which chi's RealIP middleware sets
// from proxy headers.
func PerClientRateLimitMiddleware(limiter *PerClientRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(clientKey(r)) {
				w.Header().Set("Retry-After", "60")
				writeErrorMessage(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
