// Package cache holds recent backend responses keyed by prompt text.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"

	"github.com/pario-ai/llmgate/pkg/models"
)

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 128

// Cache is a bounded exact-match prompt cache. When full, the entry inserted
// earliest is evicted; reads do not refresh an entry's position.
type Cache struct {
	capacity int

	mu      sync.Mutex
	entries map[string]string
	order   []string

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a Cache holding at most capacity entries.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[string]string, capacity),
		order:    make([]string, 0, capacity),
	}
}

// HashPrompt returns the hex SHA-256 digest used as the cache key.
func HashPrompt(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached response for prompt.
func (c *Cache) Get(prompt string) (string, bool) {
	key := HashPrompt(prompt)

	c.mu.Lock()
	resp, ok := c.entries[key]
	c.mu.Unlock()

	if !ok {
		c.misses.Add(1)
		return "", false
	}
	c.hits.Add(1)
	return resp, true
}

// Put stores response for prompt. Replacing an existing key keeps its
// insertion position and never evicts.
func (c *Cache) Put(prompt, response string) {
	key := HashPrompt(prompt)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.entries[key] = response
		return
	}
	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = response
	c.order = append(c.order, key)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Capacity returns the maximum number of entries.
func (c *Cache) Capacity() int { return c.capacity }

// Stats returns cache occupancy and hit counters.
func (c *Cache) Stats() models.CacheStats {
	return models.CacheStats{
		Entries:  c.Len(),
		Capacity: c.capacity,
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
	}
}

// Clear removes every entry. Counters are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]string, c.capacity)
	c.order = c.order[:0]
}
