// ABOUTME: Cache store methods for TTL-based key-value persistence
// ABOUTME: Lazy expiry on read plus a manual Cleanup sweep; hit/miss counters are process-local

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Set serializes value and upserts it under key. A positive ttl sets an
// absolute expiry of now+ttl; ttl <= 0 stores a never-expiring entry. A
// second Set on the same key replaces value, expiry, and creation time.
func (s *SQLiteStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("serializing cache value: %w", err)
	}

	now := time.Now()
	var expiresAt any
	if ttl > 0 {
		expiresAt = now.Add(ttl).UnixMilli()
	}

	query := `
		INSERT OR REPLACE INTO cache (key, value, expires_at, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query, key, data, expiresAt, now.UnixMilli())
	if err != nil {
		return fmt.Errorf("upserting cache entry: %w", err)
	}

	s.logger.Debug("cache set", "key", key, "size", len(data), "ttl", ttl)
	return nil
}

// Get loads the value stored under key into out (a pointer) and reports
// whether the key was found. An entry whose expiry has passed is treated as
// a miss and deleted as a side effect; expired rows are otherwise only
// removed by Cleanup.
func (s *SQLiteStore) Get(ctx context.Context, key string, out any) (bool, error) {
	var data []byte
	var expiresAt sql.NullInt64

	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM cache WHERE key = ?`, key,
	).Scan(&data, &expiresAt)

	if err == sql.ErrNoRows {
		s.misses.Add(1)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying cache entry: %w", err)
	}

	if expiresAt.Valid && expiresAt.Int64 < time.Now().UnixMilli() {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM cache WHERE key = ?`, key); err != nil {
			return false, fmt.Errorf("deleting expired cache entry: %w", err)
		}
		s.misses.Add(1)
		s.logger.Debug("cache expired", "key", key)
		return false, nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("deserializing cache value: %w", err)
	}

	s.hits.Add(1)
	return true, nil
}

// Delete removes key, reporting whether a row existed.
func (s *SQLiteStore) Delete(ctx context.Context, key string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM cache WHERE key = ?`, key)
	if err != nil {
		return false, fmt.Errorf("deleting cache entry: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// Clear removes all cache entries.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache`); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}

	s.logger.Debug("cache cleared")
	return nil
}

// escapeLikePattern escapes LIKE metacharacters so a caller-supplied prefix
// always matches literally.
func escapeLikePattern(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// ClearPrefix removes all entries whose key starts with prefix. The prefix
// is matched literally, not as a pattern.
func (s *SQLiteStore) ClearPrefix(ctx context.Context, prefix string) error {
	query := `DELETE FROM cache WHERE key LIKE ? ESCAPE '\'`

	result, err := s.db.ExecContext(ctx, query, escapeLikePattern(prefix)+"%")
	if err != nil {
		return fmt.Errorf("clearing cache prefix: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	s.logger.Debug("cache prefix cleared", "prefix", prefix, "removed", rowsAffected)
	return nil
}

// Stats returns a fresh snapshot of cache state. Row counts and byte sizes
// are computed from storage on every call; hit/miss counters live in the
// process and survive only until ResetStats or restart.
func (s *SQLiteStore) Stats(ctx context.Context) (*CacheStats, error) {
	stats := &CacheStats{
		HitCount:  s.hits.Load(),
		MissCount: s.misses.Load(),
	}

	query := `
		SELECT COUNT(*),
		       COALESCE(SUM(LENGTH(value)), 0),
		       COUNT(CASE WHEN expires_at IS NOT NULL AND expires_at < ? THEN 1 END)
		FROM cache
	`

	err := s.db.QueryRowContext(ctx, query, time.Now().UnixMilli()).Scan(
		&stats.TotalEntries,
		&stats.SizeBytes,
		&stats.ExpiredEntries,
	)
	if err != nil {
		return nil, fmt.Errorf("querying cache stats: %w", err)
	}

	return stats, nil
}

// ResetStats zeroes the hit/miss counters.
func (s *SQLiteStore) ResetStats() {
	s.hits.Store(0)
	s.misses.Store(0)
}

// Cleanup deletes all expired entries and returns the number removed. This
// is the only proactive eviction path; the store never schedules it itself.
func (s *SQLiteStore) Cleanup(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM cache WHERE expires_at IS NOT NULL AND expires_at < ?`,
		time.Now().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("cleaning up cache: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}

	if removed > 0 {
		s.logger.Debug("cache cleanup", "removed", removed)
	}
	return removed, nil
}
