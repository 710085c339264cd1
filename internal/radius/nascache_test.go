package radius

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNasCache_PutGet(t *testing.T) {
	t.Parallel()

	c := newNasCache(5 * time.Minute)

	_, ok := c.get("10.0.0.1")
	assert.False(t, ok)

	nas := testNas()
	c.put("10.0.0.1", nas)

	got, ok := c.get("10.0.0.1")
	require.True(t, ok)
	assert.Same(t, nas, got)
}

func TestNasCache_EntriesExpire(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	c := newNasCache(5 * time.Minute)
	c.now = clk.now

	c.put("10.0.0.1", testNas())
	clk.advance(5*time.Minute + time.Second)

	_, ok := c.get("10.0.0.1")
	assert.False(t, ok)

	// expiry hides the entry, sweep actually removes it
	assert.Equal(t, 1, c.size())
	assert.Equal(t, 1, c.sweep())
	assert.Zero(t, c.size())
}

func TestNasCache_PutRefreshesTTL(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	c := newNasCache(5 * time.Minute)
	c.now = clk.now

	c.put("10.0.0.1", testNas())
	clk.advance(4 * time.Minute)
	c.put("10.0.0.1", testNas())
	clk.advance(4 * time.Minute)

	_, ok := c.get("10.0.0.1")
	assert.True(t, ok) // the second put restarted the clock
}

func TestNasCache_Invalidate(t *testing.T) {
	t.Parallel()

	c := newNasCache(5 * time.Minute)
	c.put("10.0.0.1", testNas())

	c.invalidate("10.0.0.1")
	_, ok := c.get("10.0.0.1")
	assert.False(t, ok)

	// unknown addresses are a no-op
	c.invalidate("192.0.2.4")
}

func TestNasCache_SweepKeepsFreshEntries(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	c := newNasCache(5 * time.Minute)
	c.now = clk.now

	c.put("old", testNas())
	clk.advance(6 * time.Minute)
	c.put("new", testNas())

	assert.Equal(t, 1, c.sweep())
	_, ok := c.get("new")
	assert.True(t, ok)
}
