// ABOUTME: TTL cache for platform event IDs so replayed sync events are dropped.
// ABOUTME: Bounded size with FIFO eviction; expired entries are pruned lazily.

package dedupe

import (
	"sync"
	"time"
)

// Cache remembers recently handled keys. The messaging platform may
// redeliver events after reconnects; a key that was seen within the TTL is
// rejected instead of triggering a duplicate exchange.
type Cache struct {
	mu      sync.Mutex
	entries map[string]time.Time
	order   []string
	ttl     time.Duration
	max     int
}

// New returns a cache that forgets keys after ttl and never holds more than
// max entries.
func New(ttl time.Duration, max int) *Cache {
	return &Cache{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		max:     max,
	}
}

// Seen atomically checks whether key was handled within the TTL and marks
// it if not. Returns true for duplicates.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if at, ok := c.entries[key]; ok && now.Sub(at) < c.ttl {
		return true
	}

	c.pruneLocked(now)
	if _, ok := c.entries[key]; !ok {
		c.order = append(c.order, key)
	}
	c.entries[key] = now
	return false
}

// Len reports the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// pruneLocked drops expired entries from the front of the insertion order,
// then evicts the oldest entries while the cache is at capacity.
// Caller holds c.mu.
func (c *Cache) pruneLocked(now time.Time) {
	for len(c.order) > 0 {
		key := c.order[0]
		at, ok := c.entries[key]
		if ok && now.Sub(at) < c.ttl && len(c.entries) < c.max {
			break
		}
		c.order = c.order[1:]
		delete(c.entries, key)
	}
}
