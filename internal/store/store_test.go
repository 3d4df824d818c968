package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxbuckets/internal/inbox"
)

func openTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "inbox.db"), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_ValidationErrors(t *testing.T) {
	for _, path := range []string{"", "   ", "\t"} {
		s, err := Open(context.Background(), path, Options{})
		assert.Nil(t, s)
		assert.ErrorContains(t, err, "empty database path")
	}

	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "x.db"), Options{EncryptionKey: []byte("short")})
	assert.ErrorContains(t, err, "encryption key must be exactly 32 bytes")
}

func TestOpen_PragmasApplyToEveryConnection(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, Options{})

	// hold several connections at once so the pool has to open new ones
	conns := make([]*sql.Conn, 3)
	for i := range conns {
		c, err := s.db.Conn(ctx)
		require.NoError(t, err)
		conns[i] = c
	}
	for i, c := range conns {
		var timeout, foreignKeys int
		var journal string
		require.NoError(t, c.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout))
		require.NoError(t, c.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&foreignKeys))
		require.NoError(t, c.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journal))
		assert.Equal(t, 5000, timeout, "connection %d", i)
		assert.Equal(t, 1, foreignKeys, "connection %d", i)
		assert.Equal(t, "wal", journal, "connection %d", i)
	}
	for _, c := range conns {
		require.NoError(t, c.Close())
	}
}

func TestConnPragmas(t *testing.T) {
	assert.Equal(t, "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)", connPragmas(":memory:"))
	assert.Contains(t, connPragmas("/tmp/inbox.db"), "&_pragma=journal_mode(WAL)")
}

func TestOpen_MigratesAndReopens(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "inbox.db")

	s, err := Open(ctx, path, Options{})
	require.NoError(t, err)
	ver, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), ver)
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path, Options{})
	require.NoError(t, err)
	defer s.Close()
	ver, err = s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), ver)
}

func TestOpen_Memory(t *testing.T) {
	s, err := Open(context.Background(), ":memory:", Options{})
	require.NoError(t, err)
	defer s.Close()

	buckets, err := s.EnsureDefaultBuckets(context.Background(), "u", inbox.DefaultBuckets())
	require.NoError(t, err)
	assert.Len(t, buckets, 4)
}

func TestTokens(t *testing.T) {
	ctx := context.Background()
	key, err := GenerateKey()
	require.NoError(t, err)
	raw, err := KeyFromBase64(key)
	require.NoError(t, err)

	s := openTestStore(t, Options{EncryptionKey: raw})

	_, err = s.Token(ctx, "u")
	assert.ErrorIs(t, err, ErrTokenNotFound)

	expiry := time.UnixMilli(time.Now().Add(time.Hour).UnixMilli())
	require.NoError(t, s.SaveToken(ctx, "u", Token{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		TokenType:    "Bearer",
		Scope:        "gmail.readonly",
		Expiry:       expiry,
	}))

	var storedAccess string
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT access_token FROM oauth_tokens WHERE user_id='u'`).Scan(&storedAccess))
	assert.NotEqual(t, "access-1", storedAccess, "tokens are sealed at rest")

	// refresh responses usually omit the refresh token
	require.NoError(t, s.SaveToken(ctx, "u", Token{AccessToken: "access-2"}))

	tok, err := s.Token(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, "access-2", tok.AccessToken)
	assert.Equal(t, "refresh-1", tok.RefreshToken)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.Equal(t, "gmail.readonly", tok.Scope)
	assert.True(t, expiry.Equal(tok.Expiry))

	require.NoError(t, s.DeleteToken(ctx, "u"))
	require.NoError(t, s.DeleteToken(ctx, "u"))
	_, err = s.Token(ctx, "u")
	assert.ErrorIs(t, err, ErrTokenNotFound)

	assert.Error(t, s.SaveToken(ctx, "", Token{AccessToken: "x"}))
}

func TestTokens_Plaintext(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, Options{})

	require.NoError(t, s.SaveToken(ctx, "u", Token{AccessToken: "plain"}))
	tok, err := s.Token(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, "plain", tok.AccessToken)
	assert.True(t, tok.Expiry.IsZero())
}

func TestBuckets(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, Options{})

	buckets, err := s.EnsureDefaultBuckets(ctx, "u", inbox.DefaultBuckets())
	require.NoError(t, err)
	require.Len(t, buckets, 4)
	assert.Equal(t, []string{"Important", "Can Wait", "Auto-Archive", "Newsletter"}, names(buckets))
	for _, b := range buckets {
		assert.NotEmpty(t, b.ID)
		assert.Equal(t, inbox.BucketTypeDefault, b.Type)
	}

	again, err := s.EnsureDefaultBuckets(ctx, "u", inbox.DefaultBuckets())
	require.NoError(t, err)
	assert.Equal(t, buckets, again, "defaults are only inserted once")

	travel, err := s.CreateBucket(ctx, "u", "Travel", "Trips")
	require.NoError(t, err)
	assert.Equal(t, inbox.BucketTypeCustom, travel.Type)

	list, err := s.ListBuckets(ctx, "u")
	require.NoError(t, err)
	require.Len(t, list, 5)
	assert.Equal(t, travel, list[4])

	require.NoError(t, s.UpdateBucket(ctx, "u", travel.ID, "Trips", ""))
	assert.ErrorIs(t, s.UpdateBucket(ctx, "other", travel.ID, "x", ""), inbox.ErrBucketNotFound)
	assert.ErrorIs(t, s.UpdateBucket(ctx, "u", "missing", "x", ""), inbox.ErrBucketNotFound)

	assert.ErrorIs(t, s.DeleteBucket(ctx, "other", travel.ID), inbox.ErrBucketNotFound)
	require.NoError(t, s.DeleteBucket(ctx, "u", travel.ID))
	assert.ErrorIs(t, s.DeleteBucket(ctx, "u", travel.ID), inbox.ErrBucketNotFound)

	list, err = s.ListBuckets(ctx, "u")
	require.NoError(t, err)
	for _, b := range list[1:] {
		require.NoError(t, s.DeleteBucket(ctx, "u", b.ID))
	}
	assert.ErrorIs(t, s.DeleteBucket(ctx, "u", list[0].ID), inbox.ErrLastBucket)
}

func TestThreadsAndClassifications(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, Options{})

	threads := []inbox.ThreadSummary{
		{ID: "a", Subject: "A", Snippet: "sa", Sender: "x@example.com", ReceivedAt: 100},
		{ID: "b", Subject: "B", Snippet: "sb", ReceivedAt: 200},
	}
	cls := []inbox.Classification{
		{ThreadID: "a", BucketID: "imp", Confidence: 0.9, Reason: "r"},
		{ThreadID: "b", BucketID: "wait", Confidence: 0.5},
	}
	require.NoError(t, s.ReplaceThreads(ctx, "u", threads, cls))

	got, err := s.ListThreads(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, []inbox.ThreadSummary{threads[1], threads[0]}, got)

	gotCls, err := s.ListClassifications(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, cls, gotCls)

	require.NoError(t, s.ReplaceThreads(ctx, "u", threads[:1], cls[:1]))
	got, err = s.ListThreads(ctx, "u")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	require.NoError(t, s.ReplaceClassifications(ctx, "u", nil))
	gotCls, err = s.ListClassifications(ctx, "u")
	require.NoError(t, err)
	assert.Empty(t, gotCls)

	other, err := s.ListThreads(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestClassificationCache(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, Options{})

	require.NoError(t, s.UpsertCachedClassifications(ctx, "u", []inbox.Classification{
		{ThreadID: "a", BucketID: "imp", Confidence: 0.9},
		{ThreadID: "b", BucketID: "wait", Confidence: 0.4},
	}))
	require.NoError(t, s.UpsertCachedClassifications(ctx, "u", []inbox.Classification{
		{ThreadID: "a", BucketID: "news", Confidence: 0.7, Reason: "updated"},
	}))
	require.NoError(t, s.UpsertCachedClassifications(ctx, "u", nil))

	got, err := s.CachedClassifications(ctx, "u", []string{"a", "c"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, inbox.Classification{ThreadID: "a", BucketID: "news", Confidence: 0.7, Reason: "updated"}, got[0])

	got, err = s.CachedClassifications(ctx, "other", []string{"a"})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.CachedClassifications(ctx, "u", nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestIncrementWindow(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, Options{})

	for i := 1; i <= 3; i++ {
		count, allowed, err := s.IncrementWindow(ctx, "threads_get:u", 1000, 3)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, i, count)
	}

	count, allowed, err := s.IncrementWindow(ctx, "threads_get:u", 1000, 3)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 3, count)

	count, allowed, err = s.IncrementWindow(ctx, "threads_get:u", 61000, 3)
	require.NoError(t, err)
	assert.True(t, allowed, "a new window resets the counter")
	assert.Equal(t, 1, count)

	_, _, err = s.IncrementWindow(ctx, "classify_post:u", 1000, 3)
	require.NoError(t, err)
	n, err := s.PruneRateLimits(ctx, 61000)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func names(buckets []inbox.Bucket) []string {
	out := make([]string, len(buckets))
	for i, b := range buckets {
		out[i] = b.Name
	}
	return out
}
