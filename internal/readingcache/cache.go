// Package readingcache keeps a bounded, time-limited history of recent
// readings for snapshot queries.
package readingcache

import (
	"container/list"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"ex-hibiki/internal/statusfeed"
)

const (
	defaultMaxEntries = 1000
	defaultTTL        = time.Hour
)

// Option mutates cache configuration.
type Option func(*Cache)

// WithMaxEntries sets the in-memory cache capacity.
func WithMaxEntries(maxEntries int) Option {
	return func(cache *Cache) {
		if maxEntries > 0 {
			cache.maxEntries = maxEntries
		}
	}
}

// WithTTL sets how long a reading can be returned after it was recorded.
func WithTTL(ttl time.Duration) Option {
	return func(cache *Cache) {
		if ttl > 0 {
			cache.ttl = ttl
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(clk clock.Clock) Option {
	return func(cache *Cache) {
		if clk != nil {
			cache.clock = clk
		}
	}
}

// Cache stores recent readings newest first, evicting by capacity and age.
type Cache struct {
	maxEntries int
	ttl        time.Duration
	clock      clock.Clock

	mu      sync.Mutex
	entries *list.List
	latest  map[string]*list.Element
}

type cacheEntry struct {
	reading    statusfeed.Reading
	recordedAt time.Time
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	cache := &Cache{
		maxEntries: defaultMaxEntries,
		ttl:        defaultTTL,
		clock:      clock.New(),
		entries:    list.New(),
		latest:     make(map[string]*list.Element),
	}
	for _, opt := range opts {
		opt(cache)
	}

	return cache
}

// Record stores one reading. It is safe for concurrent use and cheap enough
// to sit directly on an emitter subscription.
func (c *Cache) Record(reading statusfeed.Reading) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element := c.entries.PushFront(cacheEntry{reading: reading, recordedAt: c.clock.Now()})
	c.latest[reading.Device] = element

	for c.entries.Len() > c.maxEntries {
		c.evictOldest()
	}
}

// Recent returns up to limit readings, newest first, skipping expired
// entries. A limit <= 0 means the full cache capacity.
func (c *Cache) Recent(limit int) []statusfeed.Reading {
	c.mu.Lock()
	defer c.mu.Unlock()

	if limit <= 0 {
		limit = c.maxEntries
	}

	now := c.clock.Now()
	readings := make([]statusfeed.Reading, 0, limit)
	for element := c.entries.Front(); element != nil; element = element.Next() {
		entry := element.Value.(cacheEntry)
		if now.Sub(entry.recordedAt) > c.ttl {
			// Entries sit in insertion order, so everything behind this one
			// has expired as well.
			c.dropFrom(element)
			break
		}
		readings = append(readings, entry.reading)
		if len(readings) == limit {
			break
		}
	}

	return readings
}

// Latest returns the most recent reading for a device, if it has not
// expired.
func (c *Cache) Latest(device string) (statusfeed.Reading, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.latest[device]
	if !ok {
		return statusfeed.Reading{}, false
	}

	entry := element.Value.(cacheEntry)
	if c.clock.Now().Sub(entry.recordedAt) > c.ttl {
		return statusfeed.Reading{}, false
	}

	return entry.reading, true
}

// Len reports the number of cached readings, counting expired entries that
// have not been swept yet.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.entries.Len()
}

func (c *Cache) evictOldest() {
	element := c.entries.Back()
	if element == nil {
		return
	}
	c.remove(element)
}

// dropFrom removes element and everything older than it.
func (c *Cache) dropFrom(element *list.Element) {
	for element != nil {
		older := element.Next()
		c.remove(element)
		element = older
	}
}

func (c *Cache) remove(element *list.Element) {
	entry := element.Value.(cacheEntry)
	if current, ok := c.latest[entry.reading.Device]; ok && current == element {
		delete(c.latest, entry.reading.Device)
	}
	c.entries.Remove(element)
}
