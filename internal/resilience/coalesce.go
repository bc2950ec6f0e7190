package resilience

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Coalescer collapses identical concurrent calls into one and keeps the
// result for a short TTL so immediate repeats are served from memory.
type Coalescer[T any] struct {
	now       func() time.Time
	entries   map[string]cached[T]
	gens      map[string]uint64
	group     singleflight.Group
	ttl       time.Duration
	maxSize   int
	mu        sync.RWMutex
	hits      atomic.Int64
	coalesced atomic.Int64
	calls     atomic.Int64
}

type cached[T any] struct {
	expires time.Time
	value   T
}

// NewCoalescer creates a Coalescer. A zero ttl disables the result cache.
func NewCoalescer[T any](ttl time.Duration, maxSize int) *Coalescer[T] {
	return &Coalescer[T]{
		entries: make(map[string]cached[T]),
		gens:    make(map[string]uint64),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Do returns the cached value for key or runs fn, sharing one execution
// among concurrent callers with the same key. Errors are never cached, and
// neither is a result whose key was forgotten while fn ran.
func (c *Coalescer[T]) Do(ctx context.Context, key string, fn func(context.Context) (T, error)) (T, error) {
	v, gen, ok := c.lookup(key)
	if ok {
		c.hits.Add(1)
		return v, nil
	}

	res, err, shared := c.group.Do(key, func() (any, error) {
		c.calls.Add(1)
		return fn(ctx)
	})
	if shared {
		c.coalesced.Add(1)
	}
	if err != nil {
		var zero T
		return zero, err
	}

	result := res.(T)
	c.store(key, result, gen)
	return result, nil
}

// Forget drops key from the cache so the next call runs fn again. Calls
// already running for key still return their result but do not cache it.
func (c *Coalescer[T]) Forget(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.gens[key]++
	c.mu.Unlock()
	c.group.Forget(key)
}

// lookup returns the live cached value for key and the key's generation.
func (c *Coalescer[T]) lookup(key string) (T, uint64, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	gen := c.gens[key]
	c.mu.RUnlock()
	if !ok || c.now().After(e.expires) {
		var zero T
		return zero, gen, false
	}
	return e.value, gen, true
}

// store caches v unless key was forgotten after gen was read.
func (c *Coalescer[T]) store(key string, v T, gen uint64) {
	if c.ttl <= 0 {
		return
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gens[key] != gen {
		return
	}

	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		for k, e := range c.entries {
			if now.After(e.expires) {
				delete(c.entries, k)
			}
		}
		// Still full: drop arbitrary entries until there is room.
		for k := range c.entries {
			if len(c.entries) < c.maxSize {
				break
			}
			delete(c.entries, k)
		}
	}
	c.entries[key] = cached[T]{value: v, expires: now.Add(c.ttl)}
}

// CoalescerStats reports how often work was avoided.
type CoalescerStats struct {
	Calls     int64 `json:"calls"`
	CacheHits int64 `json:"cache_hits"`
	Coalesced int64 `json:"coalesced"`
	Entries   int   `json:"entries"`
}

// Stats returns the current counters.
func (c *Coalescer[T]) Stats() CoalescerStats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return CoalescerStats{
		Calls:     c.calls.Load(),
		CacheHits: c.hits.Load(),
		Coalesced: c.coalesced.Load(),
		Entries:   n,
	}
}
