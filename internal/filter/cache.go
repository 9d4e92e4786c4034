package filter

import (
	"runtime"
	"sync"
	"weak"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Collection gives a record slice an identity. Memoized results are cached
// per collection; once a collection is unreachable its cache entries are
// dropped.
type Collection[R any] struct {
	records []R
}

// NewCollection wraps records. The slice must not be modified afterwards.
func NewCollection[R any](records []R) *Collection[R] {
	return &Collection[R]{records: records}
}

// Records returns the wrapped records.
func (c *Collection[R]) Records() []R {
	return c.records
}

// Len returns the number of wrapped records.
func (c *Collection[R]) Len() int {
	return len(c.records)
}

// memoCache is a two-level LRU: collection identity, then serialized
// condition set. Collections are held weakly.
type memoCache[R any] struct {
	mu      sync.Mutex
	outer   *lru.Cache[weak.Pointer[Collection[R]], *lru.Cache[string, []R]]
	entries int
}

func newMemoCache[R any](collections, entries int) *memoCache[R] {
	collections = max(collections, 1)
	entries = max(entries, 1)
	// Sizes are clamped to >= 1, so New cannot fail.
	outer, _ := lru.New[weak.Pointer[Collection[R]], *lru.Cache[string, []R]](collections)
	return &memoCache[R]{outer: outer, entries: entries}
}

func (m *memoCache[R]) get(c *Collection[R], key string) ([]R, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inner, ok := m.outer.Get(weak.Make(c))
	if !ok {
		return nil, false
	}
	return inner.Get(key)
}

func (m *memoCache[R]) put(c *Collection[R], key string, result []R) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wp := weak.Make(c)
	inner, ok := m.outer.Get(wp)
	if !ok {
		inner, _ = lru.New[string, []R](m.entries)
		m.outer.Add(wp, inner)
		runtime.AddCleanup(c, m.drop, wp)
	}
	inner.Add(key, result)
}

// drop removes a collection's entries after the collection is collected.
func (m *memoCache[R]) drop(wp weak.Pointer[Collection[R]]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outer.Remove(wp)
}

// collections returns the number of collections currently cached.
func (m *memoCache[R]) collections() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outer.Len()
}

func (m *memoCache[R]) purge() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outer.Purge()
}
