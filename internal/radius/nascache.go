package radius

import (
	"sync"
	"time"

	"github.com/jazanet/backend/internal/models"
)

const nasCacheTTL = 5 * time.Minute

// nasCache keeps recently resolved NAS rows keyed by source address so
// the hot path resolves shared secrets without a store round trip.
// Entries are replaced wholesale; a stale secret lives at most the TTL
// after the row changes.
type nasCache struct {
	mu      sync.RWMutex
	entries map[string]nasCacheEntry
	ttl     time.Duration

	now func() time.Time
}

type nasCacheEntry struct {
	nas     *models.Nas
	expires time.Time
}

func newNasCache(ttl time.Duration) *nasCache {
	return &nasCache{
		entries: make(map[string]nasCacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *nasCache) get(addr string) (*models.Nas, bool) {
	c.mu.RLock()
	e, ok := c.entries[addr]
	c.mu.RUnlock()
	if !ok || c.now().After(e.expires) {
		return nil, false
	}
	return e.nas, true
}

func (c *nasCache) put(addr string, nas *models.Nas) {
	c.mu.Lock()
	c.entries[addr] = nasCacheEntry{nas: nas, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// invalidate drops one address. The admin layer calls this through
// Server.InvalidateNas after editing a NAS row.
func (c *nasCache) invalidate(addr string) {
	c.mu.Lock()
	delete(c.entries, addr)
	c.mu.Unlock()
}

// sweep drops expired entries; returns the number removed
func (c *nasCache) sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for addr, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, addr)
			removed++
		}
	}
	return removed
}

func (c *nasCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
