// Package cache implements the shared, concurrent hash -> string cache the
// query executor uses to hydrate identifier and tag hashes without
// re-reading the reference partitions on every hit.
package cache

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

const shardCount = 32

// Cache is a sharded, concurrent map from a 64-bit hash to its original
// string. Concurrent readers on the same shard never block each other
// longer than the map access itself; writers write-if-absent.
type Cache struct {
	shards [shardCount]shard
	group  singleflight.Group

	hits   uint64
	misses uint64
	mu     sync.Mutex // guards hits/misses only
}

type shard struct {
	mu sync.RWMutex
	m  map[uint64]string
}

func New() *Cache {
	c := &Cache{}
	for i := range c.shards {
		c.shards[i].m = make(map[uint64]string)
	}
	return c
}

func (c *Cache) shardFor(hash uint64) *shard {
	return &c.shards[hash%shardCount]
}

// Get returns the cached value for hash, if present.
func (c *Cache) Get(hash uint64) (string, bool) {
	s := c.shardFor(hash)
	s.mu.RLock()
	v, ok := s.m[hash]
	s.mu.RUnlock()
	c.recordLookup(ok)
	return v, ok
}

type loadResult struct {
	value string
	found bool
}

// GetOrLoad returns the cached value for hash, loading it with load on a
// miss. Concurrent misses for the same hash are collapsed via
// singleflight so a burst of readers resolving the same uncached hash
// issues exactly one call to load.
func (c *Cache) GetOrLoad(hash uint64, load func() (string, bool, error)) (string, bool, error) {
	if v, ok := c.Get(hash); ok {
		return v, true, nil
	}
	result, err, _ := c.group.Do(keyOf(hash), func() (any, error) {
		v, ok, err := load()
		if err != nil {
			return nil, err
		}
		if ok {
			c.set(hash, v)
		}
		return loadResult{value: v, found: ok}, nil
	})
	if err != nil {
		return "", false, err
	}
	r := result.(loadResult)
	return r.value, r.found, nil
}

func (c *Cache) set(hash uint64, value string) {
	s := c.shardFor(hash)
	s.mu.Lock()
	if _, exists := s.m[hash]; !exists {
		s.m[hash] = value
	}
	s.mu.Unlock()
}

func (c *Cache) recordLookup(hit bool) {
	c.mu.Lock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
	c.mu.Unlock()
}

// Hits returns the number of lookups that found the hash already cached.
func (c *Cache) Hits() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits
}

// Misses returns the number of lookups that did not find the hash cached,
// including plain Get calls that run no loader.
func (c *Cache) Misses() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.misses
}

func keyOf(hash uint64) string {
	const hextable = "0123456789abcdef"
	b := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		b[i] = hextable[hash&0xf]
		hash >>= 4
	}
	return string(b)
}
