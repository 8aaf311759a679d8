package api

import "sync"

// FetchGuard drops a list fetch when an identical one is still outstanding.
// Dropped, not queued: two overlapping responses for the same resource could
// otherwise write state out of order.
type FetchGuard struct {
	mu     sync.Mutex
	active map[string]bool
}

func NewFetchGuard() *FetchGuard {
	return &FetchGuard{active: make(map[string]bool)}
}

// Begin marks key in flight. It returns false when key already is; the
// caller must then skip the fetch entirely.
func (g *FetchGuard) Begin(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active[key] {
		return false
	}
	g.active[key] = true
	return true
}

// End releases key. Safe to call for a key that was never begun.
func (g *FetchGuard) End(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, key)
}

// Do runs fn under the guard, returning ErrFetchInFlight when dropped.
func (g *FetchGuard) Do(key string, fn func() error) error {
	if !g.Begin(key) {
		return ErrFetchInFlight
	}
	defer g.End(key)
	return fn()
}
