package inbox

import "context"

// CacheStore persists classifications keyed by (user, message id) so a
// message is only sent to the classifier once.
type CacheStore interface {
	CachedClassifications(ctx context.Context, userID string, threadIDs []string) ([]Classification, error)
	UpsertCachedClassifications(ctx context.Context, userID string, classifications []Classification) error
}

// Store is the per-user persistence the service needs.
type Store interface {
	CacheStore

	// EnsureDefaultBuckets inserts defaults when the user has no buckets and
	// returns the user's buckets in display order.
	EnsureDefaultBuckets(ctx context.Context, userID string, defaults []Bucket) ([]Bucket, error)
	CreateBucket(ctx context.Context, userID, name, description string) (Bucket, error)
	UpdateBucket(ctx context.Context, userID, bucketID, name, description string) error
	DeleteBucket(ctx context.Context, userID, bucketID string) error

	ListThreads(ctx context.Context, userID string) ([]ThreadSummary, error)
	ListClassifications(ctx context.Context, userID string) ([]Classification, error)
	ReplaceThreads(ctx context.Context, userID string, threads []ThreadSummary, classifications []Classification) error
	ReplaceClassifications(ctx context.Context, userID string, classifications []Classification) error
}

// Mailbox reads one user's Gmail messages.
type Mailbox interface {
	ListRecentMessages(ctx context.Context, limit int) ([]ThreadSummary, error)
	ListRecentMessageIDs(ctx context.Context, limit int) ([]string, error)
	MessageDetail(ctx context.Context, id string) (*MessageDetail, error)
}

// MailboxProvider resolves a Mailbox for a user. It returns ErrNotConnected
// when the user has not connected a Google account.
type MailboxProvider interface {
	Mailbox(ctx context.Context, userID string) (Mailbox, error)
	Disconnect(ctx context.Context, userID string) error
}

// ThreadClassifier assigns threads to buckets.
type ThreadClassifier interface {
	Classify(ctx context.Context, threads []ThreadSummary, buckets []Bucket) ([]Classification, error)
}

// ThreadSearcher picks the thread ids relevant to a free-text query,
// most relevant first.
type ThreadSearcher interface {
	Search(ctx context.Context, query string, threads []ThreadSummary, limit int) ([]string, error)
}
