package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// RateLimitStore is a fixed-window rate limiter backed by the rate_limits
// table. Every process sharing the database sees the same counters.
type RateLimitStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewRateLimitStore(db *sql.DB) *RateLimitStore {
	return &RateLimitStore{db: db, now: time.Now}
}

// Hit increments the counter for key and returns the count within the
// current window. An expired window restarts at 1.
func (s *RateLimitStore) Hit(key string, window time.Duration) (int, error) {
	now := s.now().UnixNano()
	var count int
	err := s.db.QueryRow(
		`INSERT INTO rate_limits (key, count, window_end) VALUES (?, 1, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   count = CASE WHEN rate_limits.window_end <= ? THEN 1 ELSE rate_limits.count + 1 END,
		   window_end = CASE WHEN rate_limits.window_end <= ? THEN excluded.window_end ELSE rate_limits.window_end END
		 RETURNING count`,
		key, now+int64(window), now, now,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("hit rate limit: %w", err)
	}
	return count, nil
}

// Allow reports whether key is within limit for the window. Database
// errors fail open.
func (s *RateLimitStore) Allow(key string, limit int, window time.Duration) bool {
	count, err := s.Hit(key, window)
	if err != nil {
		slog.Error("rate limit check failed", "key", key, "error", err)
		return true
	}
	return count <= limit
}

// Cleanup removes expired windows.
func (s *RateLimitStore) Cleanup() {
	if _, err := s.db.Exec(`DELETE FROM rate_limits WHERE window_end <= ?`, s.now().UnixNano()); err != nil {
		slog.Error("rate limit cleanup failed", "error", err)
	}
}
