// Package store provides durable key/value storage for canvas snapshots.
package store

import (
	"errors"
	"time"
)

// Store is a byte-string key/value store with a finite quota.
// Implementations must be safe for concurrent use.
//
// A Store models browser-style local storage: writes that would exceed
// the quota are rejected with ErrQuotaExceeded and leave the previous
// value for the key untouched.
type Store interface {
	// Set stores data under key, overwriting any previous value.
	// Returns ErrQuotaExceeded if the write would exceed the quota.
	Set(key string, data []byte) error

	// Get retrieves the value for key.
	// Returns ErrNotFound if the key doesn't exist.
	Get(key string) ([]byte, error)

	// Delete removes a key.
	// Returns nil if the key doesn't exist.
	Delete(key string) error

	// List returns metadata for every key with the given prefix,
	// ordered by key. Returns an empty slice (not an error) when
	// nothing matches.
	List(prefix string) ([]Info, error)

	// Close releases any resources (connections, files).
	Close() error
}

// Info provides entry metadata without loading the full value.
type Info struct {
	Key       string
	Size      int64
	UpdatedAt time.Time
}

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates the key doesn't exist.
	ErrNotFound = errors.New("key not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("store closed")

	// ErrQuotaExceeded indicates a write was rejected because it would
	// exceed the store's quota.
	ErrQuotaExceeded = errors.New("store quota exceeded")
)

// DefaultQuota is the default per-store quota in bytes.
// Matches the common browser local-storage allowance.
const DefaultQuota = 10 << 20
