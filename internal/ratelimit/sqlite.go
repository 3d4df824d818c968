package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// WindowCounter is the persistence SQLite needs; *store.Store implements it.
type WindowCounter interface {
	IncrementWindow(ctx context.Context, key string, windowStart int64, limit int) (count int, allowed bool, err error)
}

// SQLite keeps windows in the application database so every process using
// the same file shares the limits.
type SQLite struct {
	counter WindowCounter
	now     func() time.Time
}

// NewSQLite creates a SQLite limiter.
func NewSQLite(counter WindowCounter) *SQLite {
	return &SQLite{counter: counter, now: time.Now}
}

// Consume implements Limiter.
func (s *SQLite) Consume(ctx context.Context, key string, limit int, size time.Duration) (Result, error) {
	start := WindowStart(s.now(), size)
	reset := start.Add(size)

	count, allowed, err := s.counter.IncrementWindow(ctx, key, start.UnixMilli(), limit)
	if err != nil {
		return Result{}, fmt.Errorf("sqlite rate limit: %w", err)
	}
	if !allowed {
		return Result{Allowed: false, Remaining: 0, ResetAt: reset}, nil
	}
	return Result{Allowed: true, Remaining: max(limit-count, 0), ResetAt: reset}, nil
}
