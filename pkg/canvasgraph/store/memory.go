package store

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for testing.
// Data is lost when the process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]storedValue
	quota  int64
	used   int64
	closed bool
}

// storedValue holds a value with metadata for List().
type storedValue struct {
	data      []byte
	updatedAt time.Time
}

// NewMemoryStore creates a new in-memory store with the default quota.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithQuota(DefaultQuota)
}

// NewMemoryStoreWithQuota creates an in-memory store with an explicit
// quota in bytes. A quota of zero or less means unlimited.
func NewMemoryStoreWithQuota(quota int64) *MemoryStore {
	return &MemoryStore{
		data:  make(map[string]storedValue),
		quota: quota,
	}
}

// Set implements Store.
func (m *MemoryStore) Set(key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	var prev int64
	if old, ok := m.data[key]; ok {
		prev = int64(len(old.data))
	}
	if m.quota > 0 && m.used-prev+int64(len(data)) > m.quota {
		return ErrQuotaExceeded
	}

	// Copy to avoid retaining the caller's slice
	stored := make([]byte, len(data))
	copy(stored, data)

	m.used += int64(len(data)) - prev
	m.data[key] = storedValue{data: stored, updatedAt: time.Now().UTC()}
	return nil
}

// Get implements Store.
func (m *MemoryStore) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}

	// Return a copy to prevent modification
	result := make([]byte, len(v.data))
	copy(result, v.data)
	return result, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	if v, ok := m.data[key]; ok {
		m.used -= int64(len(v.data))
		delete(m.data, key)
	}
	return nil
}

// List implements Store.
func (m *MemoryStore) List(prefix string) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	infos := make([]Info, 0)
	for key, v := range m.data {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		infos = append(infos, Info{
			Key:       key,
			Size:      int64(len(v.data)),
			UpdatedAt: v.updatedAt,
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Key < infos[j].Key
	})

	return infos, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.data = nil
	m.used = 0
	return nil
}

// Used returns the number of bytes currently stored.
// Useful for testing quota accounting.
func (m *MemoryStore) Used() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.used
}
