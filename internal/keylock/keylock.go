// Package keylock provides a keyed mutex table.
//
// Each key maps to its own mutex, created on demand and dropped once no
// goroutine holds or waits for it, so the table never grows beyond the number
// of keys currently in contention.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Table serializes callers that lock the same key. Distinct keys never block
// each other. The zero value is ready to use and safe for concurrent use.
type Table struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// Lock acquires the mutex for key and returns the function that releases it.
// The unlock function must be called exactly once.
func (t *Table) Lock(key string) (unlock func()) {
	t.mu.Lock()
	if t.entries == nil {
		t.entries = make(map[string]*entry)
	}
	e, ok := t.entries[key]
	if !ok {
		e = &entry{}
		t.entries[key] = e
	}
	e.refs++
	t.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			t.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(t.entries, key)
			}
			t.mu.Unlock()
		})
	}
}
