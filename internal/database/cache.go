package database

import (
	"database/sql"
	"fmt"
	"time"
)

// CacheSet stores an opaque blob under key, replacing any previous value.
func (db *DB) CacheSet(key string, value []byte) error {
	_, err := db.conn.Exec(`
		INSERT INTO cache (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to write cache key %s: %w", key, err)
	}
	return nil
}

// CacheGet returns the blob stored under key, or ok=false when absent.
func (db *DB) CacheGet(key string) ([]byte, bool, error) {
	var value []byte
	err := db.conn.QueryRow(`SELECT value FROM cache WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache key %s: %w", key, err)
	}
	return value, true, nil
}
