// Package registry provides a generic thread-safe registry for values
// indexed by key.
//
// The engine uses it to map node kinds to structural validators so that
// restored snapshots can be checked kind-by-kind, but it works for any
// comparable key and any value type:
//
//	validators := registry.New[string, func([]byte) error]()
//	validators.Register("output", validateOutput)
//	if v, ok := validators.Get("output"); ok {
//	    err := v(data)
//	}
package registry

import (
	"sort"
	"sync"
)

// Registry is a thread-safe key/value registry.
// The zero value is not usable; call New.
type Registry[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]V
}

// New creates an empty registry.
func New[K comparable, V any]() *Registry[K, V] {
	return &Registry[K, V]{entries: make(map[K]V)}
}

// Register adds or replaces the value for key.
func (r *Registry[K, V]) Register(key K, value V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = value
}

// Get returns the value for key and whether it exists.
func (r *Registry[K, V]) Get(key K) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.entries[key]
	return v, ok
}

// Has reports whether key is registered.
func (r *Registry[K, V]) Has(key K) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[key]
	return ok
}

// Delete removes a key. Removing an absent key is a no-op.
func (r *Registry[K, V]) Delete(key K) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key)
}

// Len returns the number of registered entries.
func (r *Registry[K, V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Range calls fn for each entry over a snapshot of the registry, so
// mutating the registry from fn is safe. Iteration stops when fn
// returns false. Order is unspecified.
func (r *Registry[K, V]) Range(fn func(K, V) bool) {
	r.mu.RLock()
	snapshot := make(map[K]V, len(r.entries))
	for k, v := range r.entries {
		snapshot[k] = v
	}
	r.mu.RUnlock()

	for k, v := range snapshot {
		if !fn(k, v) {
			return
		}
	}
}

// SortedKeys returns all keys ordered by the given less function.
func (r *Registry[K, V]) SortedKeys(less func(a, b K) bool) []K {
	r.mu.RLock()
	keys := make([]K, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	r.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool { return less(keys[i], keys[j]) })
	return keys
}
