package httpapi

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientLimiter holds one token bucket per client IP. Entries idle for
// longer than clientTTL are dropped on the next sweep.
type clientLimiter struct {
	mu      sync.Mutex
	perSec  float64
	burst   int
	clients map[string]*limiterEntry
	swept   time.Time
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

const (
	clientTTL     = 10 * time.Minute
	sweepInterval = time.Minute
)

func newClientLimiter(perSec float64, burst int) *clientLimiter {
	return &clientLimiter{
		perSec:  perSec,
		burst:   burst,
		clients: make(map[string]*limiterEntry),
		swept:   time.Now(),
	}
}

func (c *clientLimiter) allow(key string) bool {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if now.Sub(c.swept) > sweepInterval {
		for k, e := range c.clients {
			if now.Sub(e.lastSeen) > clientTTL {
				delete(c.clients, k)
			}
		}
		c.swept = now
	}
	e, ok := c.clients[key]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(rate.Limit(c.perSec), c.burst)}
		c.clients[key] = e
	}
	e.lastSeen = now
	return e.lim.Allow()
}

// RateLimitMiddleware rejects clients exceeding the configured request rate
// with 429. Keyed by remote IP; RealIP middleware must run first so proxied
// requests key on the originating address.
func RateLimitMiddleware(perSec float64, burst int) func(http.Handler) http.Handler {
	limiter := newClientLimiter(perSec, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.RemoteAddr
			if host, _, err := net.SplitHostPort(key); err == nil {
				key = host
			}
			if !limiter.allow(key) {
				IncrementBackpressure("client_rate")
				writeJSONError(w, http.StatusTooManyRequests, "request rate exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
