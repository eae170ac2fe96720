// Package infra holds small concurrency primitives shared across
// services.
package infra

import "sync"

// Group deduplicates concurrent work by key: while one call for a key
// is in flight, callers with the same key wait for it and share its
// result instead of running their own. Different keys never contend.
type Group[K comparable, V any] struct {
	mu    sync.Mutex
	calls map[K]*call[V]
}

type call[V any] struct {
	wg  sync.WaitGroup
	val V
	err error
}

// Do executes fn for key, ensuring at most one execution per key is in
// flight. Duplicate callers block until the first returns and receive
// its result; shared reports whether that happened.
func (g *Group[K, V]) Do(key K, fn func() (V, error)) (val V, err error, shared bool) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[K]*call[V])
	}
	if c, ok := g.calls[key]; ok {
		g.mu.Unlock()
		c.wg.Wait()
		return c.val, c.err, true
	}

	c := new(call[V])
	c.wg.Add(1)
	g.calls[key] = c
	g.mu.Unlock()

	c.val, c.err = fn()

	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()
	c.wg.Done()

	return c.val, c.err, false
}

// Forget drops any in-flight record for key so the next Do executes
// fresh instead of waiting on it.
func (g *Group[K, V]) Forget(key K) {
	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()
}
