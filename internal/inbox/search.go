package inbox

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Chat search limits.
const (
	SearchQueryMinLength = 2
	SearchQueryMaxLength = 500
	DefaultSearchLimit   = 15
	MaxSearchLimit       = 50
)

// NormalizeSearch trims query and checks it and limit against the search
// limits. A zero limit selects DefaultSearchLimit.
func NormalizeSearch(query string, limit int) (string, int, error) {
	query = strings.TrimSpace(query)
	n := utf8.RuneCountInString(query)
	if n < SearchQueryMinLength || n > SearchQueryMaxLength {
		return "", 0, fmt.Errorf("%w: query must be between %d and %d characters",
			ErrInvalidSearch, SearchQueryMinLength, SearchQueryMaxLength)
	}
	if limit == 0 {
		limit = DefaultSearchLimit
	}
	if limit < 1 || limit > MaxSearchLimit {
		return "", 0, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidSearch, MaxSearchLimit)
	}
	return query, limit, nil
}

var searchStopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "any": {}, "about": {}, "are": {}, "did": {}, "do": {},
	"email": {}, "emails": {}, "for": {}, "from": {}, "have": {}, "i": {}, "in": {},
	"is": {}, "me": {}, "my": {}, "of": {}, "on": {}, "or": {}, "show": {}, "that": {},
	"the": {}, "to": {}, "what": {}, "where": {}, "which": {}, "with": {},
}

// SearchByKeywords ranks threads by how many query terms they contain.
// Subject matches count double. Threads without any match are dropped.
func SearchByKeywords(query string, threads []ThreadSummary, limit int) []string {
	terms := queryTerms(query)
	if len(terms) == 0 || limit <= 0 {
		return []string{}
	}

	type scored struct {
		thread ThreadSummary
		score  int
	}
	var matches []scored
	for _, t := range threads {
		subject := strings.ToLower(t.Subject)
		body := strings.ToLower(t.Snippet + " " + t.Sender)
		score := 0
		for _, term := range terms {
			if strings.Contains(subject, term) {
				score += 2
			}
			if strings.Contains(body, term) {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, scored{t, score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		if matches[i].thread.ReceivedAt != matches[j].thread.ReceivedAt {
			return matches[i].thread.ReceivedAt > matches[j].thread.ReceivedAt
		}
		return matches[i].thread.ID < matches[j].thread.ID
	})

	ids := make([]string, 0, min(limit, len(matches)))
	for _, m := range matches {
		if len(ids) == limit {
			break
		}
		ids = append(ids, m.thread.ID)
	}
	return ids
}

func queryTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '@' && r != '.'
	})

	seen := make(map[string]struct{}, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".")
		if len(f) < 2 {
			continue
		}
		if _, stop := searchStopWords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}

// KeywordSearcher adapts SearchByKeywords to ThreadSearcher.
type KeywordSearcher struct{}

// Search implements ThreadSearcher.
func (KeywordSearcher) Search(_ context.Context, query string, threads []ThreadSummary, limit int) ([]string, error) {
	return SearchByKeywords(query, threads, limit), nil
}
