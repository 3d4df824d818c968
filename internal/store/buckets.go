package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/teemow/inboxbuckets/internal/inbox"
)

// EnsureDefaultBuckets inserts defaults when the user has no buckets and
// returns the user's buckets in display order.
func (s *Store) EnsureDefaultBuckets(ctx context.Context, userID string, defaults []inbox.Bucket) ([]inbox.Bucket, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM buckets WHERE user_id=?`, userID).Scan(&count); err != nil {
		return nil, fmt.Errorf("count buckets: %w", err)
	}
	if count == 0 {
		now := time.Now().UnixMilli()
		for i, b := range defaults {
			typ := b.Type
			if typ == "" {
				typ = inbox.BucketTypeDefault
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO buckets(id, user_id, name, type, description, position, created_at)
VALUES(?,?,?,?,?,?,?)`, uuid.NewString(), userID, b.Name, typ, b.Description, i, now); err != nil {
				return nil, fmt.Errorf("insert default bucket: %w", err)
			}
		}
	}

	buckets, err := listBuckets(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return buckets, nil
}

// ListBuckets returns the user's buckets in display order.
func (s *Store) ListBuckets(ctx context.Context, userID string) ([]inbox.Bucket, error) {
	return listBuckets(ctx, s.db, userID)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listBuckets(ctx context.Context, q querier, userID string) ([]inbox.Bucket, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, name, type, description FROM buckets
WHERE user_id=? ORDER BY position, created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	defer rows.Close()

	buckets := []inbox.Bucket{}
	for rows.Next() {
		var b inbox.Bucket
		if err := rows.Scan(&b.ID, &b.Name, &b.Type, &b.Description); err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// CreateBucket appends a custom bucket.
func (s *Store) CreateBucket(ctx context.Context, userID, name, description string) (inbox.Bucket, error) {
	b := inbox.Bucket{
		ID:          uuid.NewString(),
		Name:        name,
		Type:        inbox.BucketTypeCustom,
		Description: description,
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO buckets(id, user_id, name, type, description, position, created_at)
VALUES(?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM buckets WHERE user_id=?), ?)`,
		b.ID, userID, b.Name, b.Type, b.Description, userID, time.Now().UnixMilli())
	if err != nil {
		return inbox.Bucket{}, fmt.Errorf("create bucket: %w", err)
	}
	return b, nil
}

// UpdateBucket changes name and description of a bucket the user owns.
func (s *Store) UpdateBucket(ctx context.Context, userID, bucketID, name, description string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE buckets SET name=?, description=? WHERE id=? AND user_id=?`,
		name, description, bucketID, userID)
	if err != nil {
		return fmt.Errorf("update bucket: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return inbox.ErrBucketNotFound
	}
	return nil
}

// DeleteBucket removes a bucket the user owns unless it is the last one.
// Classifications pointing at the bucket are removed with it.
func (s *Store) DeleteBucket(ctx context.Context, userID, bucketID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var owner string
	err = tx.QueryRowContext(ctx, `SELECT user_id FROM buckets WHERE id=?`, bucketID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != userID) {
		return inbox.ErrBucketNotFound
	}
	if err != nil {
		return fmt.Errorf("load bucket: %w", err)
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM buckets WHERE user_id=?`, userID).Scan(&count); err != nil {
		return fmt.Errorf("count buckets: %w", err)
	}
	if count <= 1 {
		return inbox.ErrLastBucket
	}

	for _, stmt := range []string{
		`DELETE FROM buckets WHERE id=? AND user_id=?`,
		`DELETE FROM thread_classifications WHERE bucket_id=? AND user_id=?`,
		`DELETE FROM classification_cache WHERE bucket_id=? AND user_id=?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, bucketID, userID); err != nil {
			return fmt.Errorf("delete bucket: %w", err)
		}
	}
	return tx.Commit()
}
