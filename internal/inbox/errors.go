package inbox

import "errors"

var (
	// ErrNotConnected means the user has no stored Google token.
	ErrNotConnected = errors.New("google account is not connected")

	// ErrAuthExpired means Gmail rejected the stored token (401/403).
	ErrAuthExpired = errors.New("gmail authorization expired")

	// ErrBucketNotFound is returned for unknown buckets or buckets owned by another user.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrLastBucket prevents deleting the only remaining bucket.
	ErrLastBucket = errors.New("cannot delete the last category")

	// ErrInvalidBucket wraps bucket name or description limit violations.
	ErrInvalidBucket = errors.New("invalid bucket")

	// ErrInvalidSearch wraps chat search query or limit violations.
	ErrInvalidSearch = errors.New("invalid search")

	// ErrNoBuckets is returned when classification is attempted without buckets.
	ErrNoBuckets = errors.New("at least one bucket is required for classification")
)

// NeedsGoogleAuth reports whether err should prompt the user to reconnect Google.
func NeedsGoogleAuth(err error) bool {
	return errors.Is(err, ErrNotConnected) || errors.Is(err, ErrAuthExpired)
}
