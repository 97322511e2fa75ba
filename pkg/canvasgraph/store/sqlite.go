package store

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists values to SQLite.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	quota  int64
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore creates a new SQLite-backed store with the default quota.
// The path should be a file path (e.g., "./canvas.db") or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithQuota(path, DefaultQuota)
}

// NewSQLiteStoreWithQuota creates a SQLite-backed store with an explicit
// quota in bytes. A quota of zero or less means unlimited.
func NewSQLiteStoreWithQuota(path string, quota int64) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS entries (
			key TEXT NOT NULL PRIMARY KEY,
			updated_at TEXT NOT NULL,
			data BLOB NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLiteStore{db: db, quota: quota}, nil
}

// Set implements Store.
func (s *SQLiteStore) Set(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if s.quota > 0 {
		var used, prev int64
		if err := s.db.QueryRow(`
			SELECT COALESCE(SUM(LENGTH(data)), 0) FROM entries
		`).Scan(&used); err != nil {
			return fmt.Errorf("quota check: %w", err)
		}
		if err := s.db.QueryRow(`
			SELECT COALESCE(LENGTH(data), 0) FROM entries WHERE key = ?
		`, key).Scan(&prev); err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("quota check: %w", err)
		}
		if used-prev+int64(len(data)) > s.quota {
			return ErrQuotaExceeded
		}
	}

	_, err := s.db.Exec(`
		INSERT INTO entries (key, updated_at, data)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			updated_at = excluded.updated_at,
			data = excluded.data
	`, key, time.Now().UTC().Format(time.RFC3339Nano), data)

	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var data []byte
	err := s.db.QueryRow(`
		SELECT data FROM entries WHERE key = ?
	`, key).Scan(&data)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return data, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.Exec(`DELETE FROM entries WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// List implements Store.
func (s *SQLiteStore) List(prefix string) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	// Escape LIKE wildcards in the prefix
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)

	rows, err := s.db.Query(`
		SELECT key, LENGTH(data), updated_at
		FROM entries
		WHERE key LIKE ? ESCAPE '\'
		ORDER BY key
	`, escaped+"%")
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, err)
	}
	defer rows.Close()

	infos := make([]Info, 0)
	for rows.Next() {
		var info Info
		var updated string
		if err := rows.Scan(&info.Key, &info.Size, &updated); err != nil {
			return nil, fmt.Errorf("scan entry info: %w", err)
		}
		info.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		infos = append(infos, info)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}

	return infos, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}
