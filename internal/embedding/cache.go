package embedding

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of embeddings kept when no capacity is configured.
const DefaultCacheSize = 1000

// EmbeddingCache is a bounded LRU cache for embeddings keyed by exact text.
// It is safe for concurrent use.
type EmbeddingCache struct {
	capacity int
	lru      *lru.Cache[string, []float32]
}

// NewEmbeddingCache creates a new cache with the given capacity.
// A non-positive capacity falls back to DefaultCacheSize.
func NewEmbeddingCache(capacity int) *EmbeddingCache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	// lru.New only fails for a non-positive size.
	l, _ := lru.New[string, []float32](capacity)
	return &EmbeddingCache{capacity: capacity, lru: l}
}

// Get returns the cached embedding for key if present and marks it most recently used.
func (c *EmbeddingCache) Get(key string) ([]float32, bool) {
	return c.lru.Get(key)
}

// Set stores the embedding for key, evicting the least recently used entry if at capacity.
func (c *EmbeddingCache) Set(key string, value []float32) {
	c.lru.Add(key, value)
}

// Len returns the number of cached embeddings.
func (c *EmbeddingCache) Len() int {
	return c.lru.Len()
}

// Capacity returns the maximum number of cached embeddings.
func (c *EmbeddingCache) Capacity() int {
	return c.capacity
}

// Purge drops every entry.
func (c *EmbeddingCache) Purge() {
	c.lru.Purge()
}
