package inbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

type memStore struct {
	mu              sync.Mutex
	buckets         map[string][]Bucket
	threads         map[string][]ThreadSummary
	classifications map[string][]Classification
	cache           map[string]map[string]Classification
	nextID          int

	cacheErr  error
	upsertErr error
	upserts   int
}

func newMemStore() *memStore {
	return &memStore{
		buckets:         map[string][]Bucket{},
		threads:         map[string][]ThreadSummary{},
		classifications: map[string][]Classification{},
		cache:           map[string]map[string]Classification{},
	}
}

func (s *memStore) CachedClassifications(_ context.Context, userID string, ids []string) ([]Classification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cacheErr != nil {
		return nil, s.cacheErr
	}
	var out []Classification
	for _, id := range ids {
		if c, ok := s.cache[userID][id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memStore) UpsertCachedClassifications(_ context.Context, userID string, cls []Classification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	if s.upsertErr != nil {
		return s.upsertErr
	}
	if s.cache[userID] == nil {
		s.cache[userID] = map[string]Classification{}
	}
	for _, c := range cls {
		s.cache[userID][c.ThreadID] = c
	}
	return nil
}

func (s *memStore) EnsureDefaultBuckets(_ context.Context, userID string, defaults []Bucket) ([]Bucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buckets[userID]) == 0 {
		for _, b := range defaults {
			s.nextID++
			b.ID = fmt.Sprintf("b%d", s.nextID)
			s.buckets[userID] = append(s.buckets[userID], b)
		}
	}
	return append([]Bucket{}, s.buckets[userID]...), nil
}

func (s *memStore) CreateBucket(_ context.Context, userID, name, description string) (Bucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	b := Bucket{ID: fmt.Sprintf("b%d", s.nextID), Name: name, Type: BucketTypeCustom, Description: description}
	s.buckets[userID] = append(s.buckets[userID], b)
	return b, nil
}

func (s *memStore) UpdateBucket(_ context.Context, userID, id, name, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, b := range s.buckets[userID] {
		if b.ID == id {
			s.buckets[userID][i].Name = name
			s.buckets[userID][i].Description = description
			return nil
		}
	}
	return ErrBucketNotFound
}

func (s *memStore) DeleteBucket(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.buckets[userID]
	for i, b := range list {
		if b.ID == id {
			if len(list) == 1 {
				return ErrLastBucket
			}
			s.buckets[userID] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return ErrBucketNotFound
}

func (s *memStore) ListThreads(_ context.Context, userID string) ([]ThreadSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ThreadSummary{}, s.threads[userID]...), nil
}

func (s *memStore) ListClassifications(_ context.Context, userID string) ([]Classification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Classification{}, s.classifications[userID]...), nil
}

func (s *memStore) ReplaceThreads(_ context.Context, userID string, threads []ThreadSummary, cls []Classification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[userID] = append([]ThreadSummary{}, threads...)
	s.classifications[userID] = append([]Classification{}, cls...)
	return nil
}

func (s *memStore) ReplaceClassifications(_ context.Context, userID string, cls []Classification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classifications[userID] = append([]Classification{}, cls...)
	return nil
}

type fakeMailbox struct {
	threads []ThreadSummary
	ids     []string
	detail  *MessageDetail
	err     error
}

func (m *fakeMailbox) ListRecentMessages(_ context.Context, limit int) ([]ThreadSummary, error) {
	if m.err != nil {
		return nil, m.err
	}
	if len(m.threads) > limit {
		return m.threads[:limit], nil
	}
	return m.threads, nil
}

func (m *fakeMailbox) ListRecentMessageIDs(_ context.Context, _ int) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.ids, nil
}

func (m *fakeMailbox) MessageDetail(_ context.Context, id string) (*MessageDetail, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.detail == nil {
		return nil, errors.New("not found")
	}
	return m.detail, nil
}

type fakeMailboxes struct {
	mailbox      *fakeMailbox
	disconnected []string
}

func (p *fakeMailboxes) Mailbox(_ context.Context, _ string) (Mailbox, error) {
	if p.mailbox == nil {
		return nil, ErrNotConnected
	}
	return p.mailbox, nil
}

func (p *fakeMailboxes) Disconnect(_ context.Context, userID string) error {
	p.disconnected = append(p.disconnected, userID)
	p.mailbox = nil
	return nil
}

// recordingClassifier assigns every thread to bucketID and records the
// threads it was asked about.
type recordingClassifier struct {
	mu       sync.Mutex
	bucketID string
	err      error
	calls    [][]string
	result   func(threads []ThreadSummary, buckets []Bucket) []Classification
}

func (c *recordingClassifier) Classify(_ context.Context, threads []ThreadSummary, buckets []Bucket) ([]Classification, error) {
	c.mu.Lock()
	ids := make([]string, len(threads))
	for i, t := range threads {
		ids[i] = t.ID
	}
	c.calls = append(c.calls, ids)
	c.mu.Unlock()

	if c.err != nil {
		return nil, c.err
	}
	if c.result != nil {
		return c.result(threads, buckets), nil
	}
	bucketID := c.bucketID
	if bucketID == "" {
		bucketID = buckets[0].ID
	}
	out := make([]Classification, len(threads))
	for i, t := range threads {
		out[i] = Classification{ThreadID: t.ID, BucketID: bucketID, Confidence: 0.8, Reason: "test"}
	}
	return out, nil
}

type fakeSearcher struct {
	ids []string
	err error
}

func (s fakeSearcher) Search(_ context.Context, _ string, _ []ThreadSummary, _ int) ([]string, error) {
	return s.ids, s.err
}
