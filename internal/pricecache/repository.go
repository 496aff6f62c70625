// Package pricecache provides persistent caching for precious metal spot
// prices. Data is stored as JSON blobs with expiration timestamps for
// cache-first behavior; expired rows remain readable as a stale fallback.
package pricecache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultTTL is the freshness window for cached prices. Beyond it, a refetch
// is attempted; on provider failure the stale row is still served.
const DefaultTTL = 24 * time.Hour

// Entry is a cached price row.
type Entry struct {
	Data      json.RawMessage
	FetchedAt time.Time
	Fresh     bool
}

// Repository provides cache operations for metal prices.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new price cache repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Key builds the cache key for a metal/currency pair.
func Key(metal, currency string) string {
	return metal + ":" + currency
}

// Store saves data with expiration = now + ttl.
// Uses INSERT OR REPLACE to upsert data.
func (r *Repository) Store(key string, data interface{}, ttl time.Duration) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	now := time.Now()
	_, err = r.db.Exec(
		"INSERT OR REPLACE INTO metal_prices (pair, data, fetched_at, expires_at) VALUES (?, ?, ?, ?)",
		key, string(jsonData), now.Unix(), now.Add(ttl).Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store price for %s: %w", key, err)
	}

	return nil
}

// GetIfFresh returns the entry only if expires_at > now.
// Returns nil, nil if the key doesn't exist or the data is expired.
// Use Get() to retrieve stale data as a fallback when provider calls fail.
func (r *Repository) GetIfFresh(key string) (*Entry, error) {
	return r.get(key, true)
}

// Get returns the entry regardless of expiration status.
// Stale data is better than no data when the provider is down.
// Returns nil, nil if the key doesn't exist.
func (r *Repository) Get(key string) (*Entry, error) {
	return r.get(key, false)
}

func (r *Repository) get(key string, freshOnly bool) (*Entry, error) {
	query := "SELECT data, fetched_at, expires_at FROM metal_prices WHERE pair = ?"
	args := []interface{}{key}
	if freshOnly {
		query += " AND expires_at > ?"
		args = append(args, time.Now().Unix())
	}

	var data string
	var fetchedAt, expiresAt int64
	err := r.db.QueryRow(query, args...).Scan(&data, &fetchedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get price for %s: %w", key, err)
	}

	return &Entry{
		Data:      json.RawMessage(data),
		FetchedAt: time.Unix(fetchedAt, 0).UTC(),
		Fresh:     expiresAt > time.Now().Unix(),
	}, nil
}

// DeleteExpired removes all rows where expires_at < cutoff. The detection of
// staleness for serving happens at read time; this only reclaims rows so old
// that they are no longer a useful fallback.
func (r *Repository) DeleteExpired(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).Unix()

	result, err := r.db.Exec("DELETE FROM metal_prices WHERE expires_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired prices: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return deleted, nil
}
