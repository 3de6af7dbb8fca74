package cache

import (
	"container/list"
	"context"
	"sync"
)

// lruEntry links the cache key and the entry to the list element.
type lruEntry struct {
	key   string
	size  int64
	value *Entry
}

// MemoryStore is the in-process backend: an LRU bounded by a byte quota.
// A quota of zero disables eviction.
type MemoryStore struct {
	mu sync.Mutex
	// Doubly linked list for LRU order, front is most recently used
	lru   *list.List
	items map[string]*list.Element

	maxBytes     int64
	currentBytes int64
}

// NewMemoryStore creates an in-process store limited to maxBytes.
func NewMemoryStore(maxBytes int64) *MemoryStore {
	return &MemoryStore{
		lru:      list.New(),
		items:    make(map[string]*list.Element),
		maxBytes: maxBytes,
	}
}

// Get returns a copy of the entry and marks it most recently used.
func (m *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	element, ok := m.items[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	m.lru.MoveToFront(element)
	return element.Value.(*lruEntry).value.Clone(), nil
}

// Put stores a copy of entry, evicting least recently used entries while the
// quota is exceeded. An entry larger than the whole quota is not stored.
func (m *MemoryStore) Put(_ context.Context, key string, entry *Entry) error {
	if entry == nil {
		return ErrInvalidEntry
	}
	stored := entry.Clone()
	itemSize := stored.Size()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxBytes > 0 && itemSize > m.maxBytes {
		m.removeLocked(key)
		return nil
	}

	if element, ok := m.items[key]; ok {
		old := element.Value.(*lruEntry)
		m.currentBytes += itemSize - old.size
		old.size = itemSize
		old.value = stored
		m.lru.MoveToFront(element)
	} else {
		element := m.lru.PushFront(&lruEntry{key: key, size: itemSize, value: stored})
		m.items[key] = element
		m.currentBytes += itemSize
	}

	// Eviction
	for m.maxBytes > 0 && m.currentBytes > m.maxBytes {
		back := m.lru.Back()
		if back == nil {
			break
		}
		m.removeElementLocked(back)
	}
	MemoryBytes.Set(float64(m.currentBytes))
	return nil
}

// Invalidate removes key.
func (m *MemoryStore) Invalidate(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(key)
	MemoryBytes.Set(float64(m.currentBytes))
	return nil
}

// InvalidateAll removes every entry.
func (m *MemoryStore) InvalidateAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lru.Init()
	m.items = make(map[string]*list.Element)
	m.currentBytes = 0
	MemoryBytes.Set(0)
	return nil
}

// Close is a no-op for in-memory, but required by the interface.
func (m *MemoryStore) Close() error {
	return nil
}

// Len returns the number of stored entries.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Bytes returns the accounted size of all stored entries.
func (m *MemoryStore) Bytes() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentBytes
}

func (m *MemoryStore) removeLocked(key string) {
	if element, ok := m.items[key]; ok {
		m.removeElementLocked(element)
	}
}

func (m *MemoryStore) removeElementLocked(element *list.Element) {
	evicted := m.lru.Remove(element).(*lruEntry)
	delete(m.items, evicted.key)
	m.currentBytes -= evicted.size
}
