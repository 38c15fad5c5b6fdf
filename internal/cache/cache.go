// Package cache memoizes final orchestration answers keyed by a
// normalized fingerprint of the task text and its optional context.
// Entries expire by TTL and are evicted by hit count when the cache
// grows past its configured capacity.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"
)

// Config controls cache behavior.
type Config struct {
	// Enabled turns the cache on. When false, Get and Set are no-ops.
	Enabled bool

	// TTL is how long an entry stays valid after creation.
	TTL time.Duration

	// Capacity is the maximum number of entries held after any operation.
	Capacity int
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:  true,
		TTL:      time.Hour,
		Capacity: 100,
	}
}

// entry is one memoized result.
type entry struct {
	key       string
	result    string
	createdAt time.Time
	hits      int
}

// Cache is an in-memory result cache. It is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	cfg     Config
	entries map[string]*entry

	// now is injectable for TTL tests.
	now func() time.Time
}

// New creates a Cache with the given configuration.
func New(cfg Config) *Cache {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultConfig().Capacity
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	return &Cache{
		cfg:     cfg,
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Fingerprint computes the cache key for a task and optional context.
// Normalization lower-cases and collapses runs of whitespace so that
// cosmetically different phrasings of the same request share a key.
func Fingerprint(taskText, contextText string) string {
	normalized := normalize(taskText) + "\x00" + normalize(contextText)
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Get returns the memoized result for (taskText, contextText) and whether
// it was found. Entries older than the TTL are purged and reported as
// misses. Hits bump the entry's hit counter, which eviction consults.
func (c *Cache) Get(taskText, contextText string) (string, bool) {
	if !c.cfg.Enabled {
		return "", false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := Fingerprint(taskText, contextText)
	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if c.now().Sub(e.createdAt) > c.cfg.TTL {
		delete(c.entries, key)
		return "", false
	}

	e.hits++
	return e.result, true
}

// Set stores or overwrites the result for (taskText, contextText), then
// evicts if the cache is over capacity: expired entries go first, then the
// lowest-hit 20% until the cache fits.
func (c *Cache) Set(taskText, contextText, result string) {
	if !c.cfg.Enabled {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := Fingerprint(taskText, contextText)
	c.entries[key] = &entry{
		key:       key,
		result:    result,
		createdAt: c.now(),
	}

	if len(c.entries) > c.cfg.Capacity {
		c.evict()
	}
}

// evict removes expired entries, then the lowest-hit 20% while the cache
// remains over capacity. Caller must hold mu.
func (c *Cache) evict() {
	now := c.now()
	for key, e := range c.entries {
		if now.Sub(e.createdAt) > c.cfg.TTL {
			delete(c.entries, key)
		}
	}
	if len(c.entries) <= c.cfg.Capacity {
		return
	}

	live := make([]*entry, 0, len(c.entries))
	for _, e := range c.entries {
		live = append(live, e)
	}
	sort.Slice(live, func(i, j int) bool {
		if live[i].hits != live[j].hits {
			return live[i].hits < live[j].hits
		}
		return live[i].createdAt.Before(live[j].createdAt)
	})

	drop := len(live) / 5
	if drop < 1 {
		drop = 1
	}
	for len(c.entries) > c.cfg.Capacity && drop > 0 {
		delete(c.entries, live[0].key)
		live = live[1:]
		drop--
	}
	// The 20% batch may not be enough when capacity shrank; keep dropping
	// lowest-hit entries until the invariant holds.
	for len(c.entries) > c.cfg.Capacity && len(live) > 0 {
		delete(c.entries, live[0].key)
		live = live[1:]
	}
}

// Len returns the number of entries currently held.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}
