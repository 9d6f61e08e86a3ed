package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	rateLimitSweepInterval = 5 * time.Minute
	rateLimitIdleTTL       = 10 * time.Minute
)

// RateLimiter applies a token bucket per client IP. Buckets idle for longer
// than rateLimitIdleTTL are evicted.
type RateLimiter struct {
	limit      rate.Limit
	burst      int
	trustProxy bool
	now        func() time.Time

	mu        sync.Mutex
	clients   map[string]*rateClient
	lastSweep time.Time
}

type rateClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows requests per window for each client. It returns nil
// when requests is not positive; a nil *RateLimiter allows everything.
//
// Clients are keyed by RemoteAddr. With trustProxy set, the address the
// fronting proxy appended to X-Forwarded-For is used instead.
func NewRateLimiter(requests int, window time.Duration, trustProxy bool) *RateLimiter {
	if requests <= 0 || window <= 0 {
		return nil
	}
	return &RateLimiter{
		limit:      rate.Every(window / time.Duration(requests)),
		burst:      requests,
		trustProxy: trustProxy,
		now:        time.Now,
		clients:    make(map[string]*rateClient),
		lastSweep:  time.Now(),
	}
}

// Allow reports whether the client key may make another request now.
func (l *RateLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := l.now()

	l.mu.Lock()
	if now.Sub(l.lastSweep) > rateLimitSweepInterval {
		for k, c := range l.clients {
			if now.Sub(c.lastSeen) > rateLimitIdleTTL {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}
	c, ok := l.clients[key]
	if !ok {
		c = &rateClient{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	l.mu.Unlock()

	return c.limiter.AllowN(now, 1)
}

// Middleware rejects over-limit requests with 429.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientIP(r, l.trustProxy)) {
			writeError(w, http.StatusTooManyRequests, msgRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// clientIP returns the RemoteAddr host. Behind a trusted proxy it returns the
// last X-Forwarded-For hop, which the proxy itself appended, falling back to
// X-Real-IP. Earlier hops are client supplied and never used.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			hops := strings.Split(xff, ",")
			if ip := strings.TrimSpace(hops[len(hops)-1]); ip != "" {
				return ip
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
