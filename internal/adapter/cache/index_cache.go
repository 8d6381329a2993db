package cache

import (
	"os"
	"sync"
	"time"

	"pyrock/internal/adapter/resolver"
	"pyrock/internal/domain"
	"pyrock/internal/port"
)

// IndexCache keeps the last loaded index in memory and reloads it when the
// backing file changes. The generation is the file's size and mtime.
type IndexCache struct {
	mu     sync.RWMutex
	store  port.IndexStore
	path   string
	idx    domain.SymbolIndex
	gen    generation
	loaded bool
	hits   uint64
	loads  uint64

	// res is built for the index of load number resLoad.
	res     *resolver.Resolver
	resLoad uint64
}

type generation struct {
	size    int64
	modTime time.Time
}

func NewIndexCache(store port.IndexStore, path string) *IndexCache {
	return &IndexCache{store: store, path: path}
}

func (c *IndexCache) current() (generation, bool) {
	info, err := os.Stat(c.path)
	if err != nil {
		return generation{}, false
	}
	return generation{size: info.Size(), modTime: info.ModTime()}, true
}

// Get returns the cached index, loading it when missing or stale. A missing
// index file yields domain.ErrNoIndex.
func (c *IndexCache) Get() (domain.SymbolIndex, error) {
	gen, ok := c.current()
	if !ok {
		c.Invalidate()
		return nil, domain.ErrNoIndex
	}

	c.mu.RLock()
	if c.loaded && c.gen == gen {
		idx := c.idx
		c.mu.RUnlock()
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return idx, nil
	}
	c.mu.RUnlock()

	idx, err := c.store.Load()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.idx = idx
	c.gen = gen
	c.loaded = true
	c.loads++
	return idx, nil
}

// Resolver returns a dotted-name resolver over the current index. It is
// built once per loaded generation.
func (c *IndexCache) Resolver() (*resolver.Resolver, error) {
	idx, err := c.Get()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.res == nil || c.resLoad != c.loads {
		c.res = resolver.New(idx)
		c.resLoad = c.loads
	}
	return c.res, nil
}

// Invalidate drops the cached index.
func (c *IndexCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idx = nil
	c.loaded = false
	c.res = nil
}

// Stats returns cache hits and loads.
func (c *IndexCache) Stats() (hits, loads uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.loads
}
