package router

import (
	"sync"
	"time"
)

// DefaultRateLimitPerMinute is the mutation budget of one connection
const DefaultRateLimitPerMinute = 600

// RateLimiter implements per-connection rate limiting of mutation intents
// ARCHITECTURAL DISCOVERY: Per-connection state tracking with proper cleanup prevents memory leaks
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	now     func() time.Time
	clients map[string]*ClientLimit
}

// ClientLimit tracks the current window of one connection
// FUNCTIONAL DISCOVERY: Fixed one-minute window reset on first event after expiry
type ClientLimit struct {
	messageCount int
	windowStart  time.Time
}

// NewRateLimiter allows perMinute events per connection; zero or less uses the default
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = DefaultRateLimitPerMinute
	}
	return &RateLimiter{
		limit:   perMinute,
		now:     time.Now,
		clients: make(map[string]*ClientLimit),
	}
}

// Allow records one event for the connection and reports whether it is within budget
func (rl *RateLimiter) Allow(connID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	limit, exists := rl.clients[connID]
	if !exists {
		rl.clients[connID] = &ClientLimit{messageCount: 1, windowStart: now}
		return true
	}

	if now.Sub(limit.windowStart) >= time.Minute {
		limit.messageCount = 1
		limit.windowStart = now
		return true
	}

	if limit.messageCount >= rl.limit {
		return false
	}

	limit.messageCount++
	return true
}

// Forget drops the state of a closed connection
func (rl *RateLimiter) Forget(connID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.clients, connID)
}

// Cleanup removes entries idle for more than five windows
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for connID, limit := range rl.clients {
		if now.Sub(limit.windowStart) > 5*time.Minute {
			delete(rl.clients, connID)
		}
	}
}

// Len returns the number of tracked connections
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}
