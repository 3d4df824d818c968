package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// Store persists tokens, buckets, thread snapshots, classifications, the
// classification cache and rate-limit windows in SQLite.
type Store struct {
	db     *sql.DB
	cipher *tokenCipher
}

// Options configures Open.
type Options struct {
	// EncryptionKey seals OAuth tokens at rest when set (32 bytes).
	EncryptionKey []byte
}

// Open opens (and creates/migrates) the database at the given path.
// The special path ":memory:" opens a private in-memory database.
func Open(ctx context.Context, dbPath string, opts Options) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("empty database path")
	}
	cipher, err := newTokenCipher(opts.EncryptionKey)
	if err != nil {
		return nil, err
	}

	dsn := dbPath
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			f, err := os.OpenFile(dbPath, os.O_CREATE|os.O_RDWR, 0o600)
			if err != nil {
				return nil, fmt.Errorf("create database file: %w", err)
			}
			_ = f.Close()
		}
	}

	db, err := sql.Open("sqlite", dsn+"?"+connPragmas(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// each connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, cipher: cipher}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// connPragmas returns the DSN query that modernc applies to every new pooled
// connection. WAL is a property of the database file and is skipped for
// :memory:.
func connPragmas(dbPath string) string {
	pragmas := []string{"busy_timeout(5000)", "foreign_keys(1)", "synchronous(NORMAL)"}
	if dbPath != ":memory:" {
		pragmas = append(pragmas, "journal_mode(WAL)")
	}
	q := make([]string, len(pragmas))
	for i, p := range pragmas {
		q[i] = "_pragma=" + p
	}
	return strings.Join(q, "&")
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the database connection. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrations are applied in order; migration i moves user_version from i to i+1.
var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS oauth_tokens (
  user_id       TEXT PRIMARY KEY,
  access_token  TEXT NOT NULL,
  refresh_token TEXT NOT NULL DEFAULT '',
  token_type    TEXT NOT NULL DEFAULT '',
  scope         TEXT NOT NULL DEFAULT '',
  expires_at    INTEGER NOT NULL DEFAULT 0,
  updated_at    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS buckets (
  id          TEXT PRIMARY KEY,
  user_id     TEXT NOT NULL,
  name        TEXT NOT NULL,
  type        TEXT NOT NULL CHECK (type IN ('default', 'custom')),
  description TEXT NOT NULL DEFAULT '',
  position    INTEGER NOT NULL,
  created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_buckets_user ON buckets(user_id, position);
CREATE TABLE IF NOT EXISTS thread_snapshots (
  user_id     TEXT NOT NULL,
  thread_id   TEXT NOT NULL,
  subject     TEXT NOT NULL,
  snippet     TEXT NOT NULL,
  sender      TEXT NOT NULL DEFAULT '',
  received_at INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (user_id, thread_id)
);
CREATE TABLE IF NOT EXISTS thread_classifications (
  user_id    TEXT NOT NULL,
  thread_id  TEXT NOT NULL,
  bucket_id  TEXT NOT NULL,
  confidence REAL NOT NULL,
  reason     TEXT NOT NULL DEFAULT '',
  PRIMARY KEY (user_id, thread_id)
);
CREATE TABLE IF NOT EXISTS classification_cache (
  user_id    TEXT NOT NULL,
  email_id   TEXT NOT NULL,
  bucket_id  TEXT NOT NULL,
  confidence REAL NOT NULL,
  reason     TEXT NOT NULL DEFAULT '',
  updated_at INTEGER NOT NULL,
  PRIMARY KEY (user_id, email_id)
);
CREATE TABLE IF NOT EXISTS rate_limits (
  key          TEXT PRIMARY KEY,
  window_start INTEGER NOT NULL,
  count        INTEGER NOT NULL
);
`,
}

func (s *Store) migrate(ctx context.Context) error {
	var ver int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version;").Scan(&ver); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for ; ver < len(migrations); ver++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, migrations[ver])
		if err == nil {
			// PRAGMA does not accept bound parameters
			_, err = tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version=%d;", ver+1))
		}
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migrate v%d: %w", ver+1, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// SchemaVersion returns the applied migration count.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var ver int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version;").Scan(&ver)
	return ver, err
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
