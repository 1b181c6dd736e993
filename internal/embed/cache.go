package embed

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"
)

// Cache stores raw (unnormalized, full width) vectors by model and text.
// Implementations must be safe for concurrent use: one cache is shared by
// every model's worker.
type Cache interface {
	Get(ctx context.Context, model, text string) ([]float32, bool)
	Set(ctx context.Context, model, text string, v []float32)
}

// CacheKey derives the storage key for text under model.
func CacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return "glowrs:emb:" + model + ":" + hex.EncodeToString(sum[:])
}

// CacheStats counts lookups.
type CacheStats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Size   int    `json:"size"`
}

// MemoryCache is a bounded in-process LRU.
type MemoryCache struct {
	mu    sync.Mutex
	cap   int
	ll    *list.List
	items map[string]*list.Element

	hits, misses atomic.Uint64
}

type memEntry struct {
	key string
	vec []float32
}

// NewMemoryCache returns an LRU holding at most size vectors (1024 if size <= 0).
func NewMemoryCache(size int) *MemoryCache {
	if size <= 0 {
		size = 1024
	}
	return &MemoryCache{cap: size, ll: list.New(), items: make(map[string]*list.Element, size)}
}

func (c *MemoryCache) Get(_ context.Context, model, text string) ([]float32, bool) {
	k := CacheKey(model, text)
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[k]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.ll.MoveToFront(el)
	return append([]float32(nil), el.Value.(*memEntry).vec...), true
}

func (c *MemoryCache) Set(_ context.Context, model, text string, v []float32) {
	k := CacheKey(model, text)
	vec := append([]float32(nil), v...)
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[k]; ok {
		el.Value.(*memEntry).vec = vec
		c.ll.MoveToFront(el)
		return
	}
	c.items[k] = c.ll.PushFront(&memEntry{key: k, vec: vec})
	for c.ll.Len() > c.cap {
		last := c.ll.Back()
		c.ll.Remove(last)
		delete(c.items, last.Value.(*memEntry).key)
	}
}

// Stats reports hit and miss counts and the current size.
func (c *MemoryCache) Stats() CacheStats {
	c.mu.Lock()
	n := c.ll.Len()
	c.mu.Unlock()
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load(), Size: n}
}
