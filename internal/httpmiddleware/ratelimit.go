package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Clients idle longer than this are forgotten; OTP submission bursts
// are seconds long, so anything this old is dead weight.
const clientIdleTTL = 10 * time.Minute

// RateLimiter throttles per client IP. Each client gets a bucket of
// `burst` tokens refilled continuously at `perMinute`; a burst covers a
// whole class submitting codes at once without letting one IP hammer
// the redeem endpoints.
type RateLimiter struct {
	burst     float64
	perMinute float64

	mu        sync.Mutex
	clients   map[string]*client
	lastPrune time.Time
}

type client struct {
	tokens float64
	last   time.Time
}

// NewRateLimiter creates a limiter allowing perMinute sustained requests
// with bursts up to burst. Burst defaults to perMinute when non-positive.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if burst <= 0 {
		burst = perMinute
	}
	return &RateLimiter{
		burst:     float64(burst),
		perMinute: float64(perMinute),
		clients:   make(map[string]*client),
	}
}

// Middleware returns a gin handler enforcing the limit. Paths in skip
// are exempt so health checks and scrapes never eat a client's budget.
func (l *RateLimiter) Middleware(skip ...string) gin.HandlerFunc {
	exempt := make(map[string]bool, len(skip))
	for _, p := range skip {
		exempt[p] = true
	}
	return func(c *gin.Context) {
		if exempt[c.FullPath()] || exempt[c.Request.URL.Path] {
			c.Next()
			return
		}
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !l.allowAt(ip, time.Now()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded, slow down"})
			return
		}
		c.Next()
	}
}

// allowAt spends one token from the client's bucket, refilling
// fractionally for the time elapsed since the last request.
func (l *RateLimiter) allowAt(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(now)

	b, ok := l.clients[key]
	if !ok {
		l.clients[key] = &client{tokens: l.burst - 1, last: now}
		return true
	}
	b.tokens += now.Sub(b.last).Minutes() * l.perMinute
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	b.last = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (l *RateLimiter) pruneLocked(now time.Time) {
	if now.Sub(l.lastPrune) < clientIdleTTL {
		return
	}
	l.lastPrune = now
	for key, b := range l.clients {
		if now.Sub(b.last) > clientIdleTTL {
			delete(l.clients, key)
		}
	}
}
