package ratelimiter

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientEntry tracks the token bucket and last activity of one client
type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a token bucket per client key (usually the client IP)
type RateLimiter struct {
	clients   map[string]*clientEntry
	mutex     sync.Mutex
	perMinute int
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
}

// New creates a RateLimiter refilling requestsPerMinute tokens per minute with the given burst
func New(requestsPerMinute, burst int, idleTTL time.Duration) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &RateLimiter{
		clients:   make(map[string]*clientEntry),
		perMinute: requestsPerMinute,
		limit:     rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:     burst,
		idleTTL:   idleTTL,
	}
}

// Allow reports whether the client may make a request at now.
// When it may not, the second value is how long until a token is available.
func (rl *RateLimiter) Allow(key string, now time.Time) (bool, time.Duration) {
	key = strings.TrimSpace(key)
	if key == "" {
		return true, 0
	}

	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	e, exists := rl.clients[key]
	if !exists {
		e = &clientEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = e
	}
	e.lastSeen = now

	r := e.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Minute
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Remaining returns the whole tokens left for the client at now
func (rl *RateLimiter) Remaining(key string, now time.Time) int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	e, exists := rl.clients[key]
	if !exists {
		return rl.burst
	}
	tokens := int(e.limiter.TokensAt(now))
	if tokens < 0 {
		return 0
	}
	return tokens
}

// Cleanup removes clients idle for longer than the idle TTL
func (rl *RateLimiter) Cleanup(now time.Time) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	cutoff := now.Add(-rl.idleTTL)
	for key, e := range rl.clients {
		if e.lastSeen.Before(cutoff) {
			delete(rl.clients, key)
		}
	}
}

// Size returns the number of tracked clients
func (rl *RateLimiter) Size() int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	return len(rl.clients)
}
