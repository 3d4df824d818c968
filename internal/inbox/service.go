package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/teemow/inboxbuckets/internal/instrumentation"
	"github.com/teemow/inboxbuckets/internal/logging"
)

// Dependencies wires a Service.
type Dependencies struct {
	Store      Store
	Mailboxes  MailboxProvider
	Classifier ThreadClassifier
	Searcher   ThreadSearcher
	Logger     *slog.Logger
	Metrics    *instrumentation.Metrics

	// ThreadLimit overrides ThreadLimit when positive.
	ThreadLimit int
}

// Service implements the inbox operations for any user.
type Service struct {
	store       Store
	mailboxes   MailboxProvider
	pipeline    *Pipeline
	searcher    ThreadSearcher
	logger      *slog.Logger
	threadLimit int
}

// NewService creates a Service. Missing classifier and searcher fall back to
// the keyword implementations.
func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	searcher := deps.Searcher
	if searcher == nil {
		searcher = KeywordSearcher{}
	}
	limit := deps.ThreadLimit
	if limit <= 0 {
		limit = ThreadLimit
	}
	return &Service{
		store:       deps.Store,
		mailboxes:   deps.Mailboxes,
		pipeline:    NewPipeline(deps.Store, deps.Classifier, logger, deps.Metrics),
		searcher:    searcher,
		logger:      logger,
		threadLimit: limit,
	}
}

func (s *Service) buckets(ctx context.Context, userID string) ([]Bucket, error) {
	buckets, err := s.store.EnsureDefaultBuckets(ctx, userID, DefaultBuckets())
	if err != nil {
		return nil, fmt.Errorf("failed to load buckets: %w", err)
	}
	return buckets, nil
}

func (s *Service) mailbox(ctx context.Context, userID string) (Mailbox, error) {
	mb, err := s.mailboxes.Mailbox(ctx, userID)
	if err != nil {
		return nil, err
	}
	return mb, nil
}

// LoadInbox fetches recent Gmail messages, classifies the ones not yet in the
// cache, stores the newest snapshots and returns the grouped inbox.
func (s *Service) LoadInbox(ctx context.Context, userID string) (*View, error) {
	logger := logging.WithUser(logging.WithOperation(s.logger, "inbox.load"), userID)

	buckets, err := s.buckets(ctx, userID)
	if err != nil {
		return nil, err
	}
	mb, err := s.mailbox(ctx, userID)
	if err != nil {
		return nil, err
	}

	threads, err := mb.ListRecentMessages(ctx, s.threadLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	classifications, err := s.pipeline.ClassifyUnseen(ctx, userID, threads, buckets)
	if err != nil {
		return nil, fmt.Errorf("failed to classify messages: %w", err)
	}

	kept := KeepNewest(threads, s.threadLimit)
	keptClassifications := FilterClassifications(classifications, kept)
	if err := s.store.ReplaceThreads(ctx, userID, kept, keptClassifications); err != nil {
		return nil, fmt.Errorf("failed to save threads: %w", err)
	}

	logger.Info("inbox loaded", logging.Count(len(kept)))

	view := BuildView(buckets, kept, keptClassifications)
	view.Limit = s.threadLimit
	return view, nil
}

// Inbox returns the stored inbox without contacting Gmail.
func (s *Service) Inbox(ctx context.Context, userID string) (*View, error) {
	buckets, err := s.buckets(ctx, userID)
	if err != nil {
		return nil, err
	}
	threads, err := s.store.ListThreads(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load threads: %w", err)
	}
	classifications, err := s.store.ListClassifications(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load classifications: %w", err)
	}
	return BuildView(buckets, threads, classifications), nil
}

// Buckets returns the user's buckets, creating the defaults on first use.
func (s *Service) Buckets(ctx context.Context, userID string) ([]Bucket, error) {
	return s.buckets(ctx, userID)
}

// Reclassify runs every stored thread through the classifier again and
// replaces the stored classifications.
func (s *Service) Reclassify(ctx context.Context, userID string) (*View, error) {
	buckets, err := s.buckets(ctx, userID)
	if err != nil {
		return nil, err
	}
	threads, err := s.store.ListThreads(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load threads: %w", err)
	}

	classifications, err := s.pipeline.ClassifyAll(ctx, userID, threads, buckets)
	if err != nil {
		return nil, fmt.Errorf("failed to classify threads: %w", err)
	}
	if err := s.store.ReplaceClassifications(ctx, userID, classifications); err != nil {
		return nil, fmt.Errorf("failed to save classifications: %w", err)
	}

	s.logger.Info("inbox reclassified",
		logging.Operation("inbox.reclassify"), logging.UserHash(userID), logging.Count(len(threads)))

	return BuildView(buckets, threads, classifications), nil
}

// AddBucket creates a custom bucket and reclassifies the stored threads.
func (s *Service) AddBucket(ctx context.Context, userID, name, description string) (*View, error) {
	if err := ValidateBucket(name, description); err != nil {
		return nil, err
	}
	if _, err := s.buckets(ctx, userID); err != nil {
		return nil, err
	}
	b, err := s.store.CreateBucket(ctx, userID, strings.TrimSpace(name), strings.TrimSpace(description))
	if err != nil {
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}
	s.logger.Info("bucket created", logging.UserHash(userID), logging.Bucket(b.ID))
	return s.Reclassify(ctx, userID)
}

// UpdateBucket renames a bucket or changes its description, then reclassifies.
func (s *Service) UpdateBucket(ctx context.Context, userID, bucketID, name, description string) (*View, error) {
	if err := ValidateBucket(name, description); err != nil {
		return nil, err
	}
	if err := s.store.UpdateBucket(ctx, userID, bucketID, strings.TrimSpace(name), strings.TrimSpace(description)); err != nil {
		return nil, fmt.Errorf("failed to update bucket: %w", err)
	}
	s.logger.Info("bucket updated", logging.UserHash(userID), logging.Bucket(bucketID))
	return s.Reclassify(ctx, userID)
}

// DeleteBucket removes a bucket, then reclassifies so its threads move.
func (s *Service) DeleteBucket(ctx context.Context, userID, bucketID string) (*View, error) {
	if err := s.store.DeleteBucket(ctx, userID, bucketID); err != nil {
		return nil, fmt.Errorf("failed to delete bucket: %w", err)
	}
	s.logger.Info("bucket deleted", logging.UserHash(userID), logging.Bucket(bucketID))
	return s.Reclassify(ctx, userID)
}

// Search answers a free-text question over the newest stored threads.
// A failing searcher degrades to keyword matching.
func (s *Service) Search(ctx context.Context, userID, query string, limit int) (*SearchResponse, error) {
	stored, err := s.store.ListThreads(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load threads: %w", err)
	}
	candidates := KeepNewest(stored, s.threadLimit)

	resp := &SearchResponse{
		Query:           query,
		TotalCandidates: len(candidates),
		Results:         []SearchResult{},
	}
	if len(candidates) == 0 {
		return resp, nil
	}

	ids, err := s.searcher.Search(ctx, query, candidates, limit)
	if err != nil {
		s.logger.Warn("search failed, using keyword matching",
			logging.Operation("inbox.search"), logging.UserHash(userID), logging.Err(err))
		ids = SearchByKeywords(query, candidates, limit)
	}

	byID := make(map[string]ThreadSummary, len(candidates))
	for _, t := range candidates {
		byID[t.ID] = t
	}
	added := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		t, ok := byID[id]
		if !ok {
			continue
		}
		if _, dup := added[id]; dup {
			continue
		}
		if len(resp.Results) == limit {
			break
		}
		added[id] = struct{}{}
		resp.Results = append(resp.Results, SearchResult{
			ID:         t.ID,
			Subject:    t.Subject,
			Snippet:    t.Snippet,
			Sender:     t.Sender,
			ReceivedAt: t.ReceivedAt,
		})
	}
	return resp, nil
}

// MessageDetail renders one message as sanitized HTML.
func (s *Service) MessageDetail(ctx context.Context, userID, messageID string) (*MessageDetail, error) {
	mb, err := s.mailbox(ctx, userID)
	if err != nil {
		return nil, err
	}
	detail, err := mb.MessageDetail(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message detail: %w", err)
	}
	return detail, nil
}

// CheckNew compares the newest Gmail message ids with the ids the client knows.
func (s *Service) CheckNew(ctx context.Context, userID string, knownIDs []string) (*NewMessages, error) {
	mb, err := s.mailbox(ctx, userID)
	if err != nil {
		return nil, err
	}
	latest, err := mb.ListRecentMessageIDs(ctx, s.threadLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list message ids: %w", err)
	}

	known := make(map[string]struct{}, len(knownIDs))
	for _, id := range knownIDs {
		known[id] = struct{}{}
	}
	newCount := 0
	for _, id := range latest {
		if _, ok := known[id]; !ok {
			newCount++
		}
	}
	if latest == nil {
		latest = []string{}
	}
	return &NewMessages{HasNew: newCount > 0, NewCount: newCount, LatestIDs: latest}, nil
}

// Disconnect forgets the user's Google token.
func (s *Service) Disconnect(ctx context.Context, userID string) error {
	if err := s.mailboxes.Disconnect(ctx, userID); err != nil {
		return fmt.Errorf("failed to disconnect Google account: %w", err)
	}
	s.logger.Info("google account disconnected", logging.UserHash(userID))
	return nil
}
