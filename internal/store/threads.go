package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/teemow/inboxbuckets/internal/inbox"
)

// ListThreads returns the stored snapshots, newest first.
func (s *Store) ListThreads(ctx context.Context, userID string) ([]inbox.ThreadSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT thread_id, subject, snippet, sender, received_at
FROM thread_snapshots WHERE user_id=? ORDER BY received_at DESC, thread_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	threads := []inbox.ThreadSummary{}
	for rows.Next() {
		var t inbox.ThreadSummary
		if err := rows.Scan(&t.ID, &t.Subject, &t.Snippet, &t.Sender, &t.ReceivedAt); err != nil {
			return nil, err
		}
		threads = append(threads, t)
	}
	return threads, rows.Err()
}

// ListClassifications returns the stored classifications.
func (s *Store) ListClassifications(ctx context.Context, userID string) ([]inbox.Classification, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT thread_id, bucket_id, confidence, reason
FROM thread_classifications WHERE user_id=? ORDER BY thread_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list classifications: %w", err)
	}
	defer rows.Close()

	out := []inbox.Classification{}
	for rows.Next() {
		var c inbox.Classification
		if err := rows.Scan(&c.ThreadID, &c.BucketID, &c.Confidence, &c.Reason); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ReplaceThreads swaps the user's snapshots and classifications in one transaction.
func (s *Store) ReplaceThreads(ctx context.Context, userID string, threads []inbox.ThreadSummary, classifications []inbox.Classification) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM thread_snapshots WHERE user_id=?`, userID); err != nil {
		return fmt.Errorf("clear threads: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO thread_snapshots(user_id, thread_id, subject, snippet, sender, received_at)
VALUES(?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, t := range threads {
		if _, err := stmt.ExecContext(ctx, userID, t.ID, t.Subject, t.Snippet, t.Sender, t.ReceivedAt); err != nil {
			return fmt.Errorf("insert thread: %w", err)
		}
	}

	if err := replaceClassifications(ctx, tx, userID, classifications); err != nil {
		return err
	}
	return tx.Commit()
}

// ReplaceClassifications swaps the user's classifications.
func (s *Store) ReplaceClassifications(ctx context.Context, userID string, classifications []inbox.Classification) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := replaceClassifications(ctx, tx, userID, classifications); err != nil {
		return err
	}
	return tx.Commit()
}

func replaceClassifications(ctx context.Context, tx *sql.Tx, userID string, classifications []inbox.Classification) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM thread_classifications WHERE user_id=?`, userID); err != nil {
		return fmt.Errorf("clear classifications: %w", err)
	}
	for _, c := range classifications {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO thread_classifications(user_id, thread_id, bucket_id, confidence, reason)
VALUES(?,?,?,?,?)`, userID, c.ThreadID, c.BucketID, c.Confidence, c.Reason); err != nil {
			return fmt.Errorf("insert classification: %w", err)
		}
	}
	return nil
}

// CachedClassifications returns cached results for the given message ids.
func (s *Store) CachedClassifications(ctx context.Context, userID string, threadIDs []string) ([]inbox.Classification, error) {
	out := []inbox.Classification{}
	// stay well below SQLite's bound-parameter limit
	const chunk = 500
	for start := 0; start < len(threadIDs); start += chunk {
		end := min(start+chunk, len(threadIDs))
		ids := threadIDs[start:end]

		args := make([]any, 0, len(ids)+1)
		args = append(args, userID)
		for _, id := range ids {
			args = append(args, id)
		}
		rows, err := s.db.QueryContext(ctx, `SELECT email_id, bucket_id, confidence, reason FROM classification_cache
WHERE user_id=? AND email_id IN (`+placeholders(len(ids))+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("load cached classifications: %w", err)
		}
		for rows.Next() {
			var c inbox.Classification
			if err := rows.Scan(&c.ThreadID, &c.BucketID, &c.Confidence, &c.Reason); err != nil {
				rows.Close()
				return nil, err
			}
			out = append(out, c)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// UpsertCachedClassifications writes results to the cache, one row per (user, message).
func (s *Store) UpsertCachedClassifications(ctx context.Context, userID string, classifications []inbox.Classification) error {
	if len(classifications) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, c := range classifications {
		if _, err := tx.ExecContext(ctx, `INSERT INTO classification_cache(user_id, email_id, bucket_id, confidence, reason, updated_at)
VALUES(?,?,?,?,?,?)
ON CONFLICT(user_id, email_id) DO UPDATE SET
  bucket_id=excluded.bucket_id, confidence=excluded.confidence, reason=excluded.reason, updated_at=excluded.updated_at;
`, userID, c.ThreadID, c.BucketID, c.Confidence, c.Reason, now); err != nil {
			return fmt.Errorf("upsert cached classification: %w", err)
		}
	}
	return tx.Commit()
}
