// Package cache provides an in-process key-value store with per-key
// TTLs, a background eviction loop, and a health snapshot. It backs
// session stat snapshots and login throttling counters.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/quanhua92/buildscale-ai-sub000/internal/observability"
)

// NoTTL marks a key without an expiry.
const NoTTL = time.Duration(-1)

type entry struct {
	value     any
	expiresAt time.Time // zero means no expiry
	size      int64
}

// Options configures a Cache.
type Options struct {
	// CleanupInterval is the eviction loop period. Zero disables the
	// background loop; expired keys are then only reaped lazily.
	CleanupInterval time.Duration

	// Metrics records lookups and evictions when set.
	Metrics *observability.Metrics
}

// Cache is a TTL map safe for concurrent use. No operation blocks
// while holding the lock, so callers never stall behind each other.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time

	interval time.Duration
	metrics  *observability.Metrics

	cancel context.CancelFunc
	done   chan struct{}

	lastCleanup  time.Time
	cleanedTotal int64
	approxBytes  int64
}

// New builds a Cache. Call Start to run the eviction loop.
func New(opts Options) *Cache {
	return &Cache{
		entries:  make(map[string]entry),
		now:      time.Now,
		interval: opts.CleanupInterval,
		metrics:  opts.Metrics,
	}
}

// Start launches the background eviction loop. It runs until Stop is
// called or ctx is cancelled. Starting a cache with no cleanup
// interval is a no-op.
func (c *Cache) Start(ctx context.Context) {
	if c.interval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Cleanup()
			}
		}
	}()
}

// Stop terminates the eviction loop and waits for it to exit.
func (c *Cache) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
	c.cancel = nil
}

// Set stores a value without an expiry.
func (c *Cache) Set(key string, value any) {
	c.SetEx(key, value, 0)
}

// SetEx stores a value that expires after ttl. A non-positive ttl
// stores the value without an expiry.
func (c *Cache) SetEx(key string, value any, ttl time.Duration) {
	e := entry{value: value, size: approxSize(key, value)}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.entries[key]; ok {
		c.approxBytes -= old.size
	}
	c.entries[key] = e
	c.approxBytes += e.size
}

// Get returns the live value for a key.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	e, ok := c.liveLocked(key)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordCacheLookup(ok)
	}
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Delete removes a key and reports whether it was present and live.
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.liveLocked(key)
	c.removeLocked(key)
	return ok
}

// Exists reports whether a live value is stored under key.
func (c *Cache) Exists(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.liveLocked(key)
	return ok
}

// TTL returns the remaining lifetime of a key. Keys without an expiry
// report NoTTL. The second return is false when the key is absent.
func (c *Cache) TTL(key string) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.liveLocked(key)
	if !ok {
		return 0, false
	}
	if e.expiresAt.IsZero() {
		return NoTTL, true
	}
	return e.expiresAt.Sub(c.now()), true
}

// Expire sets a fresh ttl on an existing key.
func (c *Cache) Expire(key string, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.liveLocked(key)
	if !ok {
		return false
	}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	} else {
		e.expiresAt = time.Time{}
	}
	c.entries[key] = e
	return true
}

// Persist removes the expiry from a key, keeping it until deleted.
func (c *Cache) Persist(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.liveLocked(key)
	if !ok {
		return false
	}
	e.expiresAt = time.Time{}
	c.entries[key] = e
	return true
}

// SetNX stores a value only when the key is absent, returning whether
// the write happened. A positive ttl bounds the stored value.
func (c *Cache) SetNX(key string, value any, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.liveLocked(key); ok {
		return false
	}
	e := entry{value: value, size: approxSize(key, value)}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	if old, ok := c.entries[key]; ok {
		c.approxBytes -= old.size
	}
	c.entries[key] = e
	c.approxBytes += e.size
	return true
}

// GetAndSet swaps in a new value and returns the previous one. The new
// value has no expiry, like Set.
func (c *Cache) GetAndSet(key string, value any) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, had := c.liveLocked(key)
	if old, ok := c.entries[key]; ok {
		c.approxBytes -= old.size
	}
	e := entry{value: value, size: approxSize(key, value)}
	c.entries[key] = e
	c.approxBytes += e.size
	if !had {
		return nil, false
	}
	return prev.value, true
}

// Keys returns the live keys in no particular order.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	keys := make([]string, 0, len(c.entries))
	for k, e := range c.entries {
		if e.expiresAt.IsZero() || e.expiresAt.After(now) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
	c.approxBytes = 0
}

// MGet returns the live values found among keys.
func (c *Cache) MGet(keys ...string) map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if e, ok := c.liveLocked(k); ok {
			out[k] = e.value
		}
	}
	return out
}

// MSet stores every pair without expiries.
func (c *Cache) MSet(pairs map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range pairs {
		if old, ok := c.entries[k]; ok {
			c.approxBytes -= old.size
		}
		e := entry{value: v, size: approxSize(k, v)}
		c.entries[k] = e
		c.approxBytes += e.size
	}
}

// MDelete removes the given keys and returns how many were present.
func (c *Cache) MDelete(keys ...string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, k := range keys {
		if _, ok := c.liveLocked(k); ok {
			n++
		}
		c.removeLocked(k)
	}
	return n
}

// Health is a point-in-time snapshot of the cache.
type Health struct {
	NumKeys           int       `json:"num_keys"`
	LastCleanupAt     time.Time `json:"last_cleanup_at"`
	CleanedCountTotal int64     `json:"cleaned_count_total"`
	ApproxBytes       int64     `json:"approx_bytes"`
}

// Health reports the current cache state. NumKeys counts live keys
// only.
func (c *Cache) Health() Health {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	live := 0
	for _, e := range c.entries {
		if e.expiresAt.IsZero() || e.expiresAt.After(now) {
			live++
		}
	}
	return Health{
		NumKeys:           live,
		LastCleanupAt:     c.lastCleanup,
		CleanedCountTotal: c.cleanedTotal,
		ApproxBytes:       c.approxBytes,
	}
}

// Cleanup removes expired entries now. The background loop calls this
// on every tick; tests call it directly.
func (c *Cache) Cleanup() int {
	c.mu.Lock()
	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if !e.expiresAt.IsZero() && !e.expiresAt.After(now) {
			c.approxBytes -= e.size
			delete(c.entries, k)
			removed++
		}
	}
	c.lastCleanup = now
	c.cleanedTotal += int64(removed)
	c.mu.Unlock()

	if removed > 0 && c.metrics != nil {
		c.metrics.RecordCacheEvictions(removed)
	}
	return removed
}

// liveLocked fetches an entry, lazily reaping it when expired. The
// caller holds c.mu.
func (c *Cache) liveLocked(key string) (entry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return entry{}, false
	}
	if !e.expiresAt.IsZero() && !e.expiresAt.After(c.now()) {
		c.approxBytes -= e.size
		delete(c.entries, key)
		c.cleanedTotal++
		return entry{}, false
	}
	return e, true
}

// removeLocked drops a key regardless of liveness. The caller holds
// c.mu.
func (c *Cache) removeLocked(key string) {
	if e, ok := c.entries[key]; ok {
		c.approxBytes -= e.size
		delete(c.entries, key)
	}
}

// approxSize estimates the bytes a pair occupies: strings and byte
// slices count their length, any other value a flat 48.
func approxSize(key string, value any) int64 {
	size := int64(len(key))
	switch v := value.(type) {
	case string:
		size += int64(len(v))
	case []byte:
		size += int64(len(v))
	case nil:
	default:
		size += 48
	}
	return size
}
