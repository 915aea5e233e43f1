package dedupe

import (
	"sync"
	"time"

	"card-server/internal/tracking/events"
)

const (
	DefaultCapacity  = 10000
	DefaultRetention = 48 * time.Hour

	// Fraction of the cache evicted in one sweep when capacity is hit, so
	// eviction cost is amortized instead of paid on every insert.
	evictFraction = 10
)

// entry records the first sighting of an event id.
type entry struct {
	eventID     string
	eventName   events.Name
	firstSeenAt time.Time
}

// Cache is a bounded, insertion-ordered set of previously seen event ids.
// All access is serialized: concurrent callers may race on the same id and
// exactly one of them must observe it as new.
type Cache struct {
	mu        sync.Mutex
	capacity  int
	retention time.Duration
	index     map[string]int
	order     []entry
	now       func() time.Time
}

// New creates a Cache. Non-positive arguments fall back to the defaults.
func New(capacity int, retention time.Duration) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Cache{
		capacity:  capacity,
		retention: retention,
		index:     make(map[string]int),
		now:       time.Now,
	}
}

// Seen reports whether eventID was already recorded, recording it if not.
func (c *Cache) Seen(eventID string, eventName events.Name) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.evictExpired(now)

	if _, ok := c.index[eventID]; ok {
		return true
	}

	if len(c.order) >= c.capacity {
		c.evictOldest(c.capacity / evictFraction)
	}

	c.index[eventID] = len(c.order)
	c.order = append(c.order, entry{
		eventID:     eventID,
		eventName:   eventName,
		firstSeenAt: now,
	})
	return false
}

// Len returns the current number of tracked ids.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// evictExpired drops entries older than the retention window. Entries are
// insertion-ordered, so expiry only ever trims a prefix.
func (c *Cache) evictExpired(now time.Time) {
	cutoff := now.Add(-c.retention)
	expired := 0
	for expired < len(c.order) && c.order[expired].firstSeenAt.Before(cutoff) {
		expired++
	}
	if expired > 0 {
		c.evictOldest(expired)
	}
}

// evictOldest removes the n oldest entries and reindexes the remainder.
func (c *Cache) evictOldest(n int) {
	if n <= 0 {
		n = 1
	}
	if n > len(c.order) {
		n = len(c.order)
	}
	for i := 0; i < n; i++ {
		delete(c.index, c.order[i].eventID)
	}
	c.order = append([]entry(nil), c.order[n:]...)
	for i, e := range c.order {
		c.index[e.eventID] = i
	}
}
