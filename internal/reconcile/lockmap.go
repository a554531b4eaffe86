package reconcile

import "sync"

// lockMap provides per-key mutual exclusion. Entries are refcounted and
// removed when the last holder releases, so the map does not grow with the
// number of calls ever seen.
//
// Locks for different keys are fully independent; only the map bookkeeping
// itself is briefly serialized.
type lockMap struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newLockMap() *lockMap {
	return &lockMap{entries: make(map[string]*lockEntry)}
}

// acquire blocks until the key's lock is held and returns the entry to pass
// back to release.
func (m *lockMap) acquire(key string) *lockEntry {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &lockEntry{}
		m.entries[key] = e
	}
	e.refs++
	m.mu.Unlock()

	e.mu.Lock()
	return e
}

func (m *lockMap) release(key string, e *lockEntry) {
	e.mu.Unlock()

	m.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(m.entries, key)
	}
	m.mu.Unlock()
}
