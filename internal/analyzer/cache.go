package analyzer

import (
	"maps"
	"sync"

	"github.com/ibeckermayer/ytfilter/internal/types"
)

// Cache holds successful scores for the lifetime of the process. Entries
// are never evicted and never overwritten.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]types.ScoreEntry
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]types.ScoreEntry)}
}

func (c *Cache) Get(id string) (types.ScoreEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	return e, ok
}

// Put stores e for id unless id is already cached. It reports whether e was stored.
func (c *Cache) Put(id string, e types.ScoreEntry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[id]; ok {
		return false
	}
	c.entries[id] = e
	return true
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Snapshot returns a copy of every cached entry
func (c *Cache) Snapshot() map[string]types.ScoreEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.entries)
}
