package hlsprobe

import (
	"sync"
	"time"
)

// Probe results are cached with asymmetric TTLs: a confirmed duration (or a
// confirmed non-probeable URL) is stable and kept for a day, while a transient
// failure should be retried soon.
const (
	successTTL = 24 * time.Hour
	failureTTL = 5 * time.Minute
)

type cachedDuration struct {
	ticks     int64
	ok        bool
	expiresAt time.Time
}

type durationCache struct {
	mu      sync.RWMutex
	now     func() time.Time
	entries map[string]cachedDuration
}

func newDurationCache() *durationCache {
	return &durationCache{
		now:     time.Now,
		entries: make(map[string]cachedDuration),
	}
}

func (c *durationCache) get(url string) (cachedDuration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[url]
	if !ok || c.now().After(e.expiresAt) {
		return cachedDuration{}, false
	}
	return e, true
}

func (c *durationCache) putSuccess(url string, ticks int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[url] = cachedDuration{ticks: ticks, ok: true, expiresAt: c.now().Add(successTTL)}
}

func (c *durationCache) putFailure(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[url] = cachedDuration{expiresAt: c.now().Add(failureTTL)}
}

// cleanup removes expired entries.
func (c *durationCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for url, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, url)
		}
	}
}
