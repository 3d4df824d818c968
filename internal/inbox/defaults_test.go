package inbox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultBuckets(t *testing.T) {
	buckets := DefaultBuckets()
	names := make([]string, 0, len(buckets))
	for _, b := range buckets {
		names = append(names, b.Name)
		assert.Equal(t, BucketTypeDefault, b.Type)
		assert.NotEmpty(t, b.Description)
		assert.NoError(t, ValidateBucket(b.Name, b.Description))
	}
	assert.Equal(t, []string{"Important", "Can Wait", "Auto-Archive", "Newsletter"}, names)
}

func TestValidateBucket(t *testing.T) {
	tests := []struct {
		name        string
		bucketName  string
		description string
		wantErr     bool
	}{
		{"minimum name", "ab", "", false},
		{"maximum name in runes", strings.Repeat("ü", 60), "", false},
		{"maximum description", "Receipts", strings.Repeat("d", 240), false},
		{"name too short", "a", "", true},
		{"empty name", "", "", true},
		{"name too long", strings.Repeat("a", 61), "", true},
		{"description too long", "Receipts", strings.Repeat("d", 241), true},
		{"whitespace-only name", "    ", "", true},
		{"one character padded", " a ", "", true},
		{"padded name within limits", "  ab  ", "", false},
		{"padding beyond maximum name", " " + strings.Repeat("a", 60) + " ", "", false},
		{"padded description within limits", "Receipts", " " + strings.Repeat("d", 240) + " ", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBucket(tt.bucketName, tt.description)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidBucket)
				return
			}
			assert.NoError(t, err)
		})
	}
}
