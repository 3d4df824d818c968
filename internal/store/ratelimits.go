package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// IncrementWindow counts one hit against key in the fixed window starting at
// windowStart (unix millis). A hit is refused once count reaches limit; the
// returned count is the number of accepted hits in the window.
func (s *Store) IncrementWindow(ctx context.Context, key string, windowStart int64, limit int) (count int, allowed bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, err
	}
	defer func() { _ = tx.Rollback() }()

	var storedStart int64
	err = tx.QueryRowContext(ctx, `SELECT window_start, count FROM rate_limits WHERE key=?`, key).Scan(&storedStart, &count)
	switch {
	case errors.Is(err, sql.ErrNoRows) || (err == nil && storedStart != windowStart):
		count = 1
		allowed = true
	case err != nil:
		return 0, false, fmt.Errorf("load rate limit: %w", err)
	case count >= limit:
		return count, false, nil
	default:
		count++
		allowed = true
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO rate_limits(key, window_start, count) VALUES(?,?,?)
ON CONFLICT(key) DO UPDATE SET window_start=excluded.window_start, count=excluded.count`, key, windowStart, count); err != nil {
		return 0, false, fmt.Errorf("save rate limit: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, false, err
	}
	return count, allowed, nil
}

// PruneRateLimits removes windows that started before the given unix millis.
func (s *Store) PruneRateLimits(ctx context.Context, before int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rate_limits WHERE window_start < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("prune rate limits: %w", err)
	}
	return res.RowsAffected()
}
