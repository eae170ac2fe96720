package cache

import (
	"context"
	"sync"
	"testing"
	"time"
)

func newTestCache() (*Cache, *time.Time) {
	c := New(Options{})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestSetGetDelete(t *testing.T) {
	c, _ := newTestCache()

	c.Set("a", "one")
	v, ok := c.Get("a")
	if !ok || v != "one" {
		t.Fatalf("Get(a) = %v, %v; want one, true", v, ok)
	}

	if !c.Delete("a") {
		t.Fatal("Delete(a) = false, want true")
	}
	if _, ok := c.Get("a"); ok {
		t.Fatal("Get(a) after delete = true, want false")
	}
	if c.Delete("a") {
		t.Fatal("second Delete(a) = true, want false")
	}
}

func TestSetExExpires(t *testing.T) {
	c, now := newTestCache()

	c.SetEx("a", "one", time.Minute)
	if !c.Exists("a") {
		t.Fatal("Exists(a) = false before expiry")
	}

	*now = now.Add(2 * time.Minute)
	if c.Exists("a") {
		t.Fatal("Exists(a) = true after expiry")
	}
	if _, ok := c.Get("a"); ok {
		t.Fatal("Get(a) after expiry = true, want false")
	}
}

func TestTTLAndExpireAndPersist(t *testing.T) {
	c, now := newTestCache()

	c.Set("forever", 1)
	ttl, ok := c.TTL("forever")
	if !ok || ttl != NoTTL {
		t.Fatalf("TTL(forever) = %v, %v; want NoTTL, true", ttl, ok)
	}

	c.SetEx("bounded", 1, time.Minute)
	ttl, ok = c.TTL("bounded")
	if !ok || ttl != time.Minute {
		t.Fatalf("TTL(bounded) = %v, %v; want 1m, true", ttl, ok)
	}

	if !c.Expire("forever", 30*time.Second) {
		t.Fatal("Expire(forever) = false, want true")
	}
	*now = now.Add(time.Minute)
	if c.Exists("forever") {
		t.Fatal("key should have expired after Expire ttl passed")
	}

	c.SetEx("keep", 1, time.Minute)
	if !c.Persist("keep") {
		t.Fatal("Persist(keep) = false, want true")
	}
	*now = now.Add(time.Hour)
	if !c.Exists("keep") {
		t.Fatal("persisted key must not expire")
	}

	if _, ok := c.TTL("missing"); ok {
		t.Fatal("TTL(missing) = true, want false")
	}
}

func TestSetNX(t *testing.T) {
	c, now := newTestCache()

	if !c.SetNX("a", 1, 0) {
		t.Fatal("SetNX on empty key = false, want true")
	}
	if c.SetNX("a", 2, 0) {
		t.Fatal("SetNX on taken key = true, want false")
	}
	if v, _ := c.Get("a"); v != 1 {
		t.Fatalf("Get(a) = %v, want original value", v)
	}

	c.SetEx("b", 1, time.Minute)
	*now = now.Add(2 * time.Minute)
	if !c.SetNX("b", 2, 0) {
		t.Fatal("SetNX after expiry = false, want true")
	}
}

func TestGetAndSet(t *testing.T) {
	c, _ := newTestCache()

	prev, had := c.GetAndSet("a", "new")
	if had || prev != nil {
		t.Fatalf("GetAndSet on empty = %v, %v; want nil, false", prev, had)
	}
	prev, had = c.GetAndSet("a", "newer")
	if !had || prev != "new" {
		t.Fatalf("GetAndSet = %v, %v; want new, true", prev, had)
	}
	if v, _ := c.Get("a"); v != "newer" {
		t.Fatalf("Get(a) = %v, want newer", v)
	}
}

func TestBatchOperations(t *testing.T) {
	c, _ := newTestCache()

	c.MSet(map[string]any{"a": 1, "b": 2, "c": 3})
	got := c.MGet("a", "b", "missing")
	if len(got) != 2 || got["a"] != 1 || got["b"] != 2 {
		t.Fatalf("MGet() = %v, want a and b only", got)
	}

	if n := c.MDelete("a", "b", "missing"); n != 2 {
		t.Fatalf("MDelete() = %d, want 2", n)
	}
	if len(c.Keys()) != 1 {
		t.Fatalf("Keys() = %v, want only c", c.Keys())
	}

	c.Clear()
	if len(c.Keys()) != 0 {
		t.Fatal("Keys() after Clear is not empty")
	}
}

func TestCleanupReapsExpired(t *testing.T) {
	c, now := newTestCache()

	c.SetEx("a", 1, time.Minute)
	c.SetEx("b", 2, time.Hour)
	c.Set("c", 3)

	*now = now.Add(30 * time.Minute)
	if removed := c.Cleanup(); removed != 1 {
		t.Fatalf("Cleanup() = %d removed, want 1", removed)
	}

	h := c.Health()
	if h.NumKeys != 2 {
		t.Fatalf("NumKeys = %d, want 2", h.NumKeys)
	}
	if h.CleanedCountTotal != 1 {
		t.Fatalf("CleanedCountTotal = %d, want 1", h.CleanedCountTotal)
	}
	if !h.LastCleanupAt.Equal(*now) {
		t.Fatalf("LastCleanupAt = %v, want %v", h.LastCleanupAt, *now)
	}
}

func TestHealthTracksApproxBytes(t *testing.T) {
	c, _ := newTestCache()

	c.Set("key", "value")
	h := c.Health()
	want := int64(len("key") + len("value"))
	if h.ApproxBytes != want {
		t.Fatalf("ApproxBytes = %d, want %d", h.ApproxBytes, want)
	}

	c.Set("key", "longer-value")
	h = c.Health()
	want = int64(len("key") + len("longer-value"))
	if h.ApproxBytes != want {
		t.Fatalf("ApproxBytes after overwrite = %d, want %d", h.ApproxBytes, want)
	}

	c.Delete("key")
	if h := c.Health(); h.ApproxBytes != 0 {
		t.Fatalf("ApproxBytes after delete = %d, want 0", h.ApproxBytes)
	}
}

func TestLazyExpiryCountsAsCleaned(t *testing.T) {
	c, now := newTestCache()

	c.SetEx("a", 1, time.Minute)
	*now = now.Add(2 * time.Minute)
	if _, ok := c.Get("a"); ok {
		t.Fatal("expired key still readable")
	}
	if h := c.Health(); h.CleanedCountTotal != 1 {
		t.Fatalf("CleanedCountTotal = %d, want 1 after lazy reap", h.CleanedCountTotal)
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New(Options{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := string(rune('a' + n))
			for j := 0; j < 200; j++ {
				c.Set(key, j)
				c.Get(key)
				c.Exists(key)
				c.TTL(key)
			}
		}(i)
	}
	wg.Wait()

	if h := c.Health(); h.NumKeys != 8 {
		t.Fatalf("NumKeys = %d, want 8", h.NumKeys)
	}
}

func TestBackgroundLoopStops(t *testing.T) {
	c := New(Options{CleanupInterval: 5 * time.Millisecond})
	c.SetEx("a", 1, time.Nanosecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	deadline := time.After(time.Second)
	for {
		if h := c.Health(); h.CleanedCountTotal >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("background loop never evicted the expired key")
		case <-time.After(time.Millisecond):
		}
	}

	c.Stop()
	// Stop twice must not panic or hang.
	c.Stop()
}
