package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/teemow/inboxbuckets/internal/inbox"
)

// Request limits.
const (
	maxBodyBytes = 1 << 20

	maxKnownIDs = 200
)

// validationError is reported to clients as 400.
type validationError struct {
	field string
	msg   string
}

func (e *validationError) Error() string {
	return e.field + ": " + e.msg
}

func invalid(field, format string, args ...any) error {
	return &validationError{field: field, msg: fmt.Sprintf(format, args...)}
}

func isValidationError(err error) bool {
	var ve *validationError
	return errors.As(err, &ve)
}

// decodeJSON reads a JSON body into dst. Malformed bodies are validation errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return invalid("body", "request body is required")
		}
		return invalid("body", "invalid JSON: %v", err)
	}
	return nil
}

type bucketRequest struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

func (b bucketRequest) description() string {
	if b.Description == nil {
		return ""
	}
	return *b.Description
}

func (b bucketRequest) validateCreate() error {
	if err := inbox.ValidateBucket(b.Name, b.description()); err != nil {
		return &validationError{field: "bucket", msg: err.Error()}
	}
	return nil
}

func (b bucketRequest) validateUpdate() error {
	if err := b.validateID(); err != nil {
		return err
	}
	return b.validateCreate()
}

func (b bucketRequest) validateID() error {
	if b.ID == "" {
		return invalid("id", "is required")
	}
	return nil
}

type searchRequest struct {
	Query string `json:"query"`
	Limit *int   `json:"limit"`
}

// normalize trims the query and applies the default limit. An explicit
// limit must be at least one.
func (s *searchRequest) normalize() (query string, limit int, err error) {
	if s.Limit != nil {
		if *s.Limit < 1 {
			return "", 0, invalid("limit", "must be between 1 and %d", inbox.MaxSearchLimit)
		}
		limit = *s.Limit
	}
	query, limit, err = inbox.NormalizeSearch(s.Query, limit)
	if err != nil {
		return "", 0, &validationError{field: "search", msg: err.Error()}
	}
	return query, limit, nil
}

type messageDetailRequest struct {
	ID string `json:"id"`
}

func (m *messageDetailRequest) normalize() (string, error) {
	id := strings.TrimSpace(m.ID)
	if id == "" {
		return "", invalid("id", "is required")
	}
	return id, nil
}

type checkNewRequest struct {
	KnownIDs []string `json:"knownIds"`
}

func (c checkNewRequest) validate() error {
	if c.KnownIDs == nil {
		return invalid("knownIds", "is required")
	}
	if len(c.KnownIDs) > maxKnownIDs {
		return invalid("knownIds", "must contain at most %d ids", maxKnownIDs)
	}
	return nil
}
