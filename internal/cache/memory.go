package cache

import (
	"context"
	"sync"
)

const DefaultMaxEntries = 256

// MemoryCache keeps entries in process, evicting the oldest insert once
// MaxEntries is reached.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]*Entry
	order      []string
	maxEntries int
}

func NewMemoryCache(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryCache{
		entries:    make(map[string]*Entry),
		maxEntries: maxEntries,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) (*Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	clone := *entry
	return &clone, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, entry *Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	clone := *entry
	c.entries[key] = &clone

	for len(c.order) > c.maxEntries {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	return nil
}

func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryCache) Close() error {
	return nil
}
