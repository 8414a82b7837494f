package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"
)

const (
	// DMMF documents are a few hundred KiB for large schemas.
	defaultRistrettoMaxCost = 64 << 20
	// Rule of thumb from Ristretto: ~10x expected live keys.
	defaultRistrettoNumCounters = 10_000
	defaultRistrettoBufferItems = 64
)

// MemoryCache is an in-process byte cache backed by Ristretto
type MemoryCache struct {
	store *ristretto.Cache
}

// NewMemoryCache creates an in-process cache
func NewMemoryCache() (*MemoryCache, error) {
	store, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: defaultRistrettoNumCounters,
		MaxCost:     defaultRistrettoMaxCost,
		BufferItems: defaultRistrettoBufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &MemoryCache{store: store}, nil
}

// Get returns a copy of the cached value
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	value, ok := c.store.Get(key)
	if !ok {
		return nil, false
	}
	b, ok := value.([]byte)
	if !ok {
		return nil, false
	}
	return append([]byte(nil), b...), true
}

// Set stores value under key. A zero ttl keeps the value until evicted.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	cost := int64(len(value))
	if cost == 0 {
		cost = 1
	}
	stored := append([]byte(nil), value...)

	var accepted bool
	if ttl > 0 {
		accepted = c.store.SetWithTTL(key, stored, cost, ttl)
	} else {
		accepted = c.store.Set(key, stored, cost)
	}
	if accepted {
		// Ristretto sets are asynchronous. Wait ensures the value can be read
		// immediately by the next lookup.
		c.store.Wait()
	}
}

// Close releases the cache
func (c *MemoryCache) Close() error {
	c.store.Close()
	return nil
}
