package radius

import (
	"sync"
	"time"
)

const (
	rateLimitMax    = 50
	rateLimitWindow = 10 * time.Second
	rateLimitSweep  = 60 * time.Second
)

// rateLimiter enforces a per-source sliding window: at most limit
// datagrams per window. Sources over the limit are dropped before any
// parsing happens. A sweeper evicts sources that have gone quiet so a
// scan of spoofed addresses cannot grow the map forever.
type rateLimiter struct {
	mu      sync.Mutex
	sources map[string]*sourceWindow
	limit   int
	window  time.Duration

	now func() time.Time
}

type sourceWindow struct {
	hits []time.Time // in arrival order, pruned to the window on each check
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		sources: make(map[string]*sourceWindow),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

// allow records one datagram from src and reports whether it is within
// the window budget.
func (r *rateLimiter) allow(src string) bool {
	now := r.now()
	cutoff := now.Add(-r.window)

	r.mu.Lock()
	defer r.mu.Unlock()

	w := r.sources[src]
	if w == nil {
		w = &sourceWindow{}
		r.sources[src] = w
	}

	// drop hits that slid out of the window
	i := 0
	for i < len(w.hits) && w.hits[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		w.hits = append(w.hits[:0], w.hits[i:]...)
	}

	if len(w.hits) >= r.limit {
		return false
	}
	w.hits = append(w.hits, now)
	return true
}

// sweep evicts sources whose newest hit predates the window. Returns
// the number of sources removed.
func (r *rateLimiter) sweep() int {
	cutoff := r.now().Add(-r.window)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for src, w := range r.sources {
		if len(w.hits) == 0 || w.hits[len(w.hits)-1].Before(cutoff) {
			delete(r.sources, src)
			removed++
		}
	}
	return removed
}

func (r *rateLimiter) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sources)
}
