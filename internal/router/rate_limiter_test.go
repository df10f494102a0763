package router

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(limit int) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	rl := NewRateLimiter(limit)
	rl.now = clock.Now
	return rl, clock
}

// Functional Validation Tests

func TestRateLimiter_EnforcesWindow(t *testing.T) {
	rl, clock := newTestLimiter(3)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("c1"))
	}
	assert.False(t, rl.Allow("c1"))
	assert.True(t, rl.Allow("c2"), "limits are per connection")

	clock.Advance(time.Minute)
	assert.True(t, rl.Allow("c1"))
}

func TestRateLimiter_DefaultLimit(t *testing.T) {
	assert.Equal(t, DefaultRateLimitPerMinute, NewRateLimiter(0).limit)
}

func TestRateLimiter_CleanupAndForget(t *testing.T) {
	rl, clock := newTestLimiter(10)
	rl.Allow("old")
	clock.Advance(6 * time.Minute)
	rl.Allow("fresh")

	rl.Cleanup()
	assert.Equal(t, 1, rl.Len())

	rl.Forget("fresh")
	assert.Equal(t, 0, rl.Len())
}
