package stations

import (
	"context"
	"errors"
	"sync"

	"github.com/couchcryptid/wildfire-watch/internal/domain"
	"github.com/couchcryptid/wildfire-watch/internal/observability"
)

// CachedLookup wraps a StationLookup with an in-memory LRU cache.
type CachedLookup struct {
	inner   domain.StationLookup
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedLookup creates a cache decorator around a station lookup.
func NewCachedLookup(inner domain.StationLookup, maxEntries int, metrics *observability.Metrics) *CachedLookup {
	return &CachedLookup{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

func (c *CachedLookup) LookupStation(ctx context.Context, deviceID uint16) (domain.Station, error) {
	if st, ok := c.cache.get(deviceID); ok {
		c.metrics.StationCache.WithLabelValues("hit").Inc()
		c.metrics.StationLookups.WithLabelValues("hit").Inc()
		return st, nil
	}
	c.metrics.StationCache.WithLabelValues("miss").Inc()

	st, err := c.inner.LookupStation(ctx, deviceID)
	if err != nil {
		// Misses are not cached so a station registered later is picked up.
		if errors.Is(err, ErrNotFound) {
			c.metrics.StationLookups.WithLabelValues("miss").Inc()
		} else {
			c.metrics.StationLookups.WithLabelValues("error").Inc()
		}
		return st, err
	}
	c.metrics.StationLookups.WithLabelValues("hit").Inc()
	c.cache.put(deviceID, st)
	return st, nil
}

// lruCache is a simple thread-safe LRU cache of stations by device id.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[uint16]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   uint16
	value domain.Station
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: max(maxEntries, 1),
		entries:    make(map[uint16]*entry),
	}
}

func (c *lruCache) get(key uint16) (domain.Station, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return domain.Station{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key uint16, value domain.Station) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
