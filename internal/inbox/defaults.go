package inbox

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultBuckets returns the buckets every user starts with, in display order.
// IDs are assigned by the store.
func DefaultBuckets() []Bucket {
	return []Bucket{
		{Name: "Important", Type: BucketTypeDefault, Description: "Actionable or urgent conversations."},
		{Name: "Can Wait", Type: BucketTypeDefault, Description: "Useful updates that are not urgent."},
		{Name: "Auto-Archive", Type: BucketTypeDefault, Description: "Low-value notifications that can be archived."},
		{Name: "Newsletter", Type: BucketTypeDefault, Description: "Subscriptions, digests, and marketing content."},
	}
}

// FallbackBucket returns the "Can Wait" bucket, or the first bucket when the
// user removed it. ok is false when buckets is empty.
func FallbackBucket(buckets []Bucket) (Bucket, bool) {
	if len(buckets) == 0 {
		return Bucket{}, false
	}
	for _, b := range buckets {
		if b.Name == FallbackBucketName {
			return b, true
		}
	}
	return buckets[0], true
}

// Bucket field limits, in characters.
const (
	BucketNameMinLength        = 2
	BucketNameMaxLength        = 60
	BucketDescriptionMaxLength = 240
)

// ValidateBucket checks the length limits of a bucket name and description.
// Both are measured after trimming, the form in which they are stored.
func ValidateBucket(name, description string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	if n < BucketNameMinLength || n > BucketNameMaxLength {
		return fmt.Errorf("%w: name must be between %d and %d characters",
			ErrInvalidBucket, BucketNameMinLength, BucketNameMaxLength)
	}
	if utf8.RuneCountInString(strings.TrimSpace(description)) > BucketDescriptionMaxLength {
		return fmt.Errorf("%w: description must be at most %d characters",
			ErrInvalidBucket, BucketDescriptionMaxLength)
	}
	return nil
}
