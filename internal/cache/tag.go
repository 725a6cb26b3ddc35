// Package cache provides an in-memory cache whose entries are invalidated
// by tag.
package cache

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"isi-import/internal/domain"
)

var _ domain.CacheInvalidator = (*TagCache)(nil)

// TagCache stores values under keys, each entry labelled with tags.
// Invalidating a tag bumps its generation; an entry recorded under an older
// generation of any of its tags is stale and never returned.
type TagCache struct {
	mu          sync.Mutex
	generations map[string]uint64
	entries     map[string]entry
	ttl         time.Duration
	now         func() time.Time
	loads       singleflight.Group
}

type entry struct {
	value   any
	tags    map[string]uint64
	expires time.Time
}

// Option configures a TagCache.
type Option func(*TagCache)

// WithTTL expires entries after d in addition to tag invalidation.
func WithTTL(d time.Duration) Option {
	return func(c *TagCache) { c.ttl = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *TagCache) { c.now = now }
}

// New creates an empty TagCache.
func New(opts ...Option) *TagCache {
	c := &TagCache{
		generations: make(map[string]uint64),
		entries:     make(map[string]entry),
		now:         time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Set stores value under key, labelled with tags.
func (c *TagCache) Set(key string, value any, tags ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value, c.snapshotLocked(tags))
}

func (c *TagCache) snapshotLocked(tags []string) map[string]uint64 {
	snap := make(map[string]uint64, len(tags))
	for _, t := range tags {
		snap[t] = c.generations[t]
	}
	return snap
}

func (c *TagCache) setLocked(key string, value any, tags map[string]uint64) {
	e := entry{value: value, tags: tags}
	if c.ttl > 0 {
		e.expires = c.now().Add(c.ttl)
	}
	c.entries[key] = e
}

// Get returns the value stored under key if it is still fresh.
func (c *TagCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(key)
}

func (c *TagCache) getLocked(key string) (any, bool) {
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	for t, gen := range e.tags {
		if c.generations[t] != gen {
			delete(c.entries, key)
			return nil, false
		}
	}
	return e.value, true
}

// GetOrLoad returns the fresh value under key or calls load once, even when
// several goroutines miss at the same time, and caches its result.
// A load that races with an invalidation of one of its tags is returned but
// not cached.
func (c *TagCache) GetOrLoad(key string, load func() (any, error), tags ...string) (any, error) {
	c.mu.Lock()
	if v, ok := c.getLocked(key); ok {
		c.mu.Unlock()
		return v, nil
	}
	snap := c.snapshotLocked(tags)
	c.mu.Unlock()

	v, err, _ := c.loads.Do(key, func() (any, error) {
		v, err := load()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		for t, gen := range snap {
			if c.generations[t] != gen {
				return v, nil
			}
		}
		c.setLocked(key, v, snap)
		return v, nil
	})
	return v, err
}

// InvalidateTags marks every entry labelled with any of tags as stale.
func (c *TagCache) InvalidateTags(tags ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range tags {
		c.generations[t]++
	}
}

// Generation returns how often tag has been invalidated.
func (c *TagCache) Generation(tag string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[tag]
}

// Len returns the number of stored entries, stale ones included.
func (c *TagCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
