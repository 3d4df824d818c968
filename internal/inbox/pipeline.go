package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/teemow/inboxbuckets/internal/instrumentation"
	"github.com/teemow/inboxbuckets/internal/logging"
)

const (
	missingConfidence = 0.1
	missingReason     = "Fallback assignment due to missing classification."
)

// Pipeline classifies threads through the per-user cache.
type Pipeline struct {
	cache      CacheStore
	classifier ThreadClassifier
	logger     *slog.Logger
	metrics    *instrumentation.Metrics
}

// NewPipeline creates a Pipeline. A nil classifier falls back to the keyword heuristic.
func NewPipeline(cache CacheStore, classifier ThreadClassifier, logger *slog.Logger, metrics *instrumentation.Metrics) *Pipeline {
	if classifier == nil {
		classifier = HeuristicClassifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cache:      cache,
		classifier: classifier,
		logger:     logging.WithOperation(logger, "inbox.classify"),
		metrics:    metrics,
	}
}

// ClassifyUnseen returns one classification per unique thread id, in order
// of first appearance. Repeated ids yield a single classification and
// threads without an id are skipped, so the result can be shorter than
// threads. Cached results pointing at existing buckets are reused; only the
// remaining threads are classified and written back to the cache.
func (p *Pipeline) ClassifyUnseen(ctx context.Context, userID string, threads []ThreadSummary, buckets []Bucket) ([]Classification, error) {
	if len(buckets) == 0 {
		return nil, ErrNoBuckets
	}
	unique := uniqueThreads(threads)
	if len(unique) == 0 {
		return []Classification{}, nil
	}

	valid := bucketIDs(buckets)
	ids := make([]string, len(unique))
	for i, t := range unique {
		ids[i] = t.ID
	}

	cached, err := p.cache.CachedClassifications(ctx, userID, ids)
	if err != nil {
		p.logger.Warn("classification cache lookup failed, classifying all threads",
			logging.UserHash(userID), logging.Err(err))
		cached = nil
	}

	seen := make(map[string]Classification, len(cached))
	for _, c := range cached {
		if _, ok := valid[c.BucketID]; ok {
			seen[c.ThreadID] = c
		}
	}

	unseen := make([]ThreadSummary, 0, len(unique))
	for _, t := range unique {
		if _, ok := seen[t.ID]; !ok {
			unseen = append(unseen, t)
		}
	}

	p.metrics.RecordCacheLookup(ctx, len(unique)-len(unseen), len(unseen))
	p.metrics.RecordClassifications(ctx, instrumentation.SourceCache, len(unique)-len(unseen))

	fresh, err := p.classify(ctx, unseen, buckets, valid)
	if err != nil {
		return nil, err
	}
	p.store(ctx, userID, fresh)

	for id, c := range fresh {
		seen[id] = c
	}
	return p.assemble(ctx, unique, seen, buckets), nil
}

// ClassifyAll classifies every thread regardless of the cache and refreshes
// the cache with the results. Used after bucket changes. Ids are collapsed
// as in ClassifyUnseen.
func (p *Pipeline) ClassifyAll(ctx context.Context, userID string, threads []ThreadSummary, buckets []Bucket) ([]Classification, error) {
	if len(buckets) == 0 {
		return nil, ErrNoBuckets
	}
	unique := uniqueThreads(threads)
	if len(unique) == 0 {
		return []Classification{}, nil
	}

	fresh, err := p.classify(ctx, unique, buckets, bucketIDs(buckets))
	if err != nil {
		return nil, err
	}
	p.store(ctx, userID, fresh)
	return p.assemble(ctx, unique, fresh, buckets), nil
}

// classify runs the classifier and keeps only results for requested threads
// and known buckets. A classifier error degrades to the keyword heuristic.
func (p *Pipeline) classify(ctx context.Context, threads []ThreadSummary, buckets []Bucket, valid map[string]struct{}) (map[string]Classification, error) {
	out := make(map[string]Classification, len(threads))
	if len(threads) == 0 {
		return out, nil
	}

	results, err := p.classifier.Classify(ctx, threads, buckets)
	if err != nil {
		p.logger.Warn("classifier failed, using keyword heuristic",
			logging.Count(len(threads)), logging.Err(err))
		results, err = ClassifyByKeywords(threads, buckets)
		if err != nil {
			return nil, fmt.Errorf("keyword classification: %w", err)
		}
		p.metrics.RecordClassifications(ctx, instrumentation.SourceHeuristic, len(results))
	}

	requested := make(map[string]struct{}, len(threads))
	for _, t := range threads {
		requested[t.ID] = struct{}{}
	}
	for _, c := range results {
		if _, ok := requested[c.ThreadID]; !ok {
			continue
		}
		if _, ok := valid[c.BucketID]; !ok {
			continue
		}
		if _, dup := out[c.ThreadID]; dup {
			continue
		}
		c.Confidence = clampConfidence(c.Confidence)
		out[c.ThreadID] = c
	}
	return out, nil
}

func (p *Pipeline) store(ctx context.Context, userID string, fresh map[string]Classification) {
	if len(fresh) == 0 {
		return
	}
	batch := make([]Classification, 0, len(fresh))
	for _, c := range fresh {
		batch = append(batch, c)
	}
	if err := p.cache.UpsertCachedClassifications(ctx, userID, batch); err != nil {
		p.logger.Warn("failed to update classification cache",
			logging.UserHash(userID), logging.Count(len(batch)), logging.Err(err))
	}
}

func (p *Pipeline) assemble(ctx context.Context, threads []ThreadSummary, byID map[string]Classification, buckets []Bucket) []Classification {
	fallback, _ := FallbackBucket(buckets)
	out := make([]Classification, 0, len(threads))
	missing := 0
	for _, t := range threads {
		if c, ok := byID[t.ID]; ok {
			out = append(out, c)
			continue
		}
		missing++
		out = append(out, Classification{
			ThreadID:   t.ID,
			BucketID:   fallback.ID,
			Confidence: missingConfidence,
			Reason:     missingReason,
		})
	}
	p.metrics.RecordClassifications(ctx, instrumentation.SourceFallback, missing)
	return out
}

// uniqueThreads keeps the first thread for each non-empty id.
func uniqueThreads(threads []ThreadSummary) []ThreadSummary {
	seen := make(map[string]struct{}, len(threads))
	out := make([]ThreadSummary, 0, len(threads))
	for _, t := range threads {
		if t.ID == "" {
			continue
		}
		if _, ok := seen[t.ID]; ok {
			continue
		}
		seen[t.ID] = struct{}{}
		out = append(out, t)
	}
	return out
}

func bucketIDs(buckets []Bucket) map[string]struct{} {
	ids := make(map[string]struct{}, len(buckets))
	for _, b := range buckets {
		ids[b.ID] = struct{}{}
	}
	return ids
}

func clampConfidence(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
