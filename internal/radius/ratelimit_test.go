package radius

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock drives the injectable now() of the limiter and the NAS
// cache so window math is exact instead of sleep-based.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	r := newRateLimiter(rateLimitMax, rateLimitWindow)
	r.now = clk.now

	allowed, denied := 0, 0
	for i := 0; i < 60; i++ {
		if r.allow("10.0.0.1") {
			allowed++
		} else {
			denied++
		}
	}
	assert.Equal(t, 50, allowed)
	assert.Equal(t, 10, denied)
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	r := newRateLimiter(2, 10*time.Second)
	r.now = clk.now

	assert.True(t, r.allow("src"))
	assert.True(t, r.allow("src"))
	assert.False(t, r.allow("src"))

	// still inside the window
	clk.advance(6 * time.Second)
	assert.False(t, r.allow("src"))

	// the first two hits slid out
	clk.advance(5 * time.Second)
	assert.True(t, r.allow("src"))
}

func TestRateLimiter_SourcesAreIndependent(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	r := newRateLimiter(1, 10*time.Second)
	r.now = clk.now

	assert.True(t, r.allow("10.0.0.1"))
	assert.False(t, r.allow("10.0.0.1"))
	assert.True(t, r.allow("10.0.0.2")) // a noisy neighbour punishes only itself
}

func TestRateLimiter_SweepEvictsQuietSources(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	r := newRateLimiter(5, 10*time.Second)
	r.now = clk.now

	r.allow("quiet")
	clk.advance(11 * time.Second)
	r.allow("busy")

	assert.Equal(t, 2, r.size())
	assert.Equal(t, 1, r.sweep())
	assert.Equal(t, 1, r.size())

	// the surviving source still has budget
	assert.True(t, r.allow("busy"))
}
