package memcache

import (
	"container/list"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/resilient-client/go/internal/core/ports"
)

const (
	DefaultCapacity = 100
	DefaultTTL      = 10 * time.Minute
)

// Config groups the cache tuning parameters.
type Config struct {
	Capacity   int
	DefaultTTL time.Duration
}

// Stats is a point-in-time view of the cache used by diagnostics.
type Stats struct {
	Size      int    `json:"size"`
	Capacity  int    `json:"capacity"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Expired   uint64 `json:"expired"`
}

// Cache is an in-memory TTL cache with strict LRU eviction.
//
// The access list is ordered by lastAccessedAt: the front is the most recently
// touched entry and the back is the eviction candidate.
type Cache struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	order      *list.List
	capacity   int
	defaultTTL time.Duration
	clock      clockwork.Clock
	logger     *logrus.Logger

	hits, misses, evictions, expired uint64
}

// New creates a cache. A nil clock uses the real clock.
func New(cfg *Config, clock clockwork.Clock, logger *logrus.Logger) *Cache {
	capacity := DefaultCapacity
	ttl := DefaultTTL
	if cfg != nil {
		if cfg.Capacity > 0 {
			capacity = cfg.Capacity
		}
		if cfg.DefaultTTL > 0 {
			ttl = cfg.DefaultTTL
		}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Cache{
		items:      make(map[string]*list.Element, capacity),
		order:      list.New(),
		capacity:   capacity,
		defaultTTL: ttl,
		clock:      clock,
		logger:     logger,
	}
}

var _ ports.Cache = (*Cache)(nil)

// Set inserts or overwrites key. ttl <= 0 stores an entry that never expires.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		e.value = value
		setExpiry(e, now, ttl)
		e.lastAccessedAt = now
		c.order.MoveToFront(el)
		return
	}

	if len(c.items) >= c.capacity {
		c.evictOldestLocked()
	}

	e := &entry{key: key, value: value, lastAccessedAt: now}
	setExpiry(e, now, ttl)
	c.items[key] = c.order.PushFront(e)
	cacheSize.Set(float64(len(c.items)))
}

// SetDefault stores value with the configured default TTL.
func (c *Cache) SetDefault(key string, value any) {
	c.Set(key, value, c.defaultTTL)
}

func setExpiry(e *entry, now time.Time, ttl time.Duration) {
	if ttl <= 0 {
		e.neverExpires = true
		e.expiresAt = time.Time{}
		return
	}
	e.neverExpires = false
	e.expiresAt = now.Add(ttl)
}

// Get returns the live value for key and marks it as recently used.
// An expired entry is removed as a side effect.
func (c *Cache) Get(key string) (any, bool) {
	v, expired, ok := c.Lookup(key)
	if !ok || expired {
		return nil, false
	}
	return v, true
}

// Lookup is Get that also hands back an expired entry's value, flagged
// expired, in the same critical section that removes it.
func (c *Cache) Lookup(key string) (value any, expired bool, ok bool) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	el, found := c.items[key]
	if !found {
		c.misses++
		cacheMisses.Inc()
		return nil, false, false
	}
	e := el.Value.(*entry)
	if e.expired(now) {
		c.removeLocked(el)
		c.misses++
		c.expired++
		cacheMisses.Inc()
		cacheEvictions.WithLabelValues("expired").Inc()
		return e.value, true, true
	}
	e.lastAccessedAt = now
	c.order.MoveToFront(el)
	c.hits++
	cacheHits.Inc()
	return e.value, false, true
}

// Contains reports whether key holds a live entry. It does not touch or remove anything.
func (c *Cache) Contains(key string) bool {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	return !el.Value.(*entry).expired(now)
}

func (c *Cache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.removeLocked(el)
	}
}

func (c *Cache) ClearByPrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, el := range c.items {
		if strings.HasPrefix(key, prefix) {
			c.removeLocked(el)
		}
	}
}

func (c *Cache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element, c.capacity)
	c.order.Init()
	cacheSize.Set(0)
}

// RemoveExpiredEntries drops every expired entry and returns how many were removed.
func (c *Cache) RemoveExpiredEntries() int {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, el := range c.items {
		if el.Value.(*entry).expired(now) {
			c.removeLocked(el)
			removed++
		}
	}
	if removed > 0 {
		c.expired += uint64(removed)
		cacheEvictions.WithLabelValues("expired").Add(float64(removed))
		if c.logger != nil {
			c.logger.WithFields(logrus.Fields{"removed": removed, "remaining": len(c.items)}).Debug("cache sweep removed expired entries")
		}
	}
	return removed
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:      len(c.items),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Expired:   c.expired,
	}
}

func (c *Cache) evictOldestLocked() {
	el := c.order.Back()
	if el == nil {
		return
	}
	e := el.Value.(*entry)
	c.removeLocked(el)
	c.evictions++
	cacheEvictions.WithLabelValues("capacity").Inc()
	if c.logger != nil {
		c.logger.WithFields(logrus.Fields{"key": e.key, "last_accessed_at": e.lastAccessedAt}).Debug("cache evicted least recently used entry")
	}
}

func (c *Cache) removeLocked(el *list.Element) {
	e := el.Value.(*entry)
	delete(c.items, e.key)
	c.order.Remove(el)
	cacheSize.Set(float64(len(c.items)))
}
