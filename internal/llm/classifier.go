package llm

import (
	"context"
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/teemow/inboxbuckets/internal/inbox"
	"github.com/teemow/inboxbuckets/internal/instrumentation"
	"github.com/teemow/inboxbuckets/internal/logging"
)

// Batching defaults.
const (
	DefaultBatchSize   = 20
	DefaultConcurrency = 3
)

// ClassifierConfig tunes batching.
type ClassifierConfig struct {
	BatchSize   int
	Concurrency int
}

// Classifier implements inbox.ThreadClassifier with a Provider.
type Classifier struct {
	provider    Provider
	batchSize   int
	concurrency int
	logger      *slog.Logger
	metrics     *instrumentation.Metrics
}

// NewClassifier creates a Classifier. Zero config values use the defaults.
func NewClassifier(p Provider, cfg ClassifierConfig, logger *slog.Logger, metrics *instrumentation.Metrics) *Classifier {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		provider:    p,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
		logger:      logging.WithOperation(logger, "llm.classify"),
		metrics:     metrics,
	}
}

// Classify returns one classification per thread, in input order.
// It only fails when ctx is done or there are no buckets.
func (c *Classifier) Classify(ctx context.Context, threads []inbox.ThreadSummary, buckets []inbox.Bucket) ([]inbox.Classification, error) {
	if len(buckets) == 0 {
		return nil, inbox.ErrNoBuckets
	}
	if len(threads) == 0 {
		return []inbox.Classification{}, nil
	}

	batches := chunk(threads, c.batchSize)
	results := make([][]inbox.Classification, len(batches))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, batch := range batches {
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			results[i] = c.classifyBatch(ctx, i, batch, buckets)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]inbox.Classification, 0, len(threads))
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func (c *Classifier) classifyBatch(ctx context.Context, index int, batch []inbox.ThreadSummary, buckets []inbox.Bucket) []inbox.Classification {
	ctx, span := instrumentation.StartSpan(ctx, "llm.classify_batch",
		instrumentation.NewSpanAttributeBuilder().WithBatch(index).WithThreadCount(len(batch)).Build()...)
	defer span.End()

	text, err := c.provider.Complete(ctx, classifySystemPrompt, classifyPrompt(batch, buckets))
	if err != nil {
		instrumentation.SetSpanError(span, err)
		c.logger.Warn("batch classification failed, using keyword heuristic",
			slog.Int("batch", index), logging.Count(len(batch)), logging.Err(err))
		return c.heuristic(ctx, batch, buckets)
	}

	parsed, err := parseClassifications(text)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		c.logger.Warn("unparsable classification response, using keyword heuristic",
			slog.Int("batch", index), logging.Err(err))
		return c.heuristic(ctx, batch, buckets)
	}
	instrumentation.SetSpanSuccess(span)
	return c.merge(ctx, batch, buckets, parsed)
}

// merge keeps model answers for known threads and buckets, in batch order,
// and fills the rest with the heuristic.
func (c *Classifier) merge(ctx context.Context, batch []inbox.ThreadSummary, buckets []inbox.Bucket, parsed []rawClassification) []inbox.Classification {
	validBucket := make(map[string]struct{}, len(buckets))
	for _, b := range buckets {
		validBucket[b.ID] = struct{}{}
	}
	inBatch := make(map[string]struct{}, len(batch))
	for _, t := range batch {
		inBatch[t.ID] = struct{}{}
	}

	byThread := make(map[string]inbox.Classification, len(parsed))
	for _, p := range parsed {
		if _, ok := inBatch[p.ThreadID]; !ok {
			continue
		}
		if _, ok := validBucket[p.BucketID]; !ok {
			continue
		}
		if _, dup := byThread[p.ThreadID]; dup {
			continue
		}
		byThread[p.ThreadID] = inbox.Classification{
			ThreadID:   p.ThreadID,
			BucketID:   p.BucketID,
			Confidence: clamp01(p.Confidence),
			Reason:     p.Reason,
		}
	}

	var missing []inbox.ThreadSummary
	for _, t := range batch {
		if _, ok := byThread[t.ID]; !ok {
			missing = append(missing, t)
		}
	}
	if len(missing) > 0 {
		for _, h := range c.heuristic(ctx, missing, buckets) {
			byThread[h.ThreadID] = h
		}
	}
	c.metrics.RecordClassifications(ctx, instrumentation.SourceLLM, len(batch)-len(missing))

	out := make([]inbox.Classification, 0, len(batch))
	for _, t := range batch {
		out = append(out, byThread[t.ID])
	}
	return out
}

func (c *Classifier) heuristic(ctx context.Context, threads []inbox.ThreadSummary, buckets []inbox.Bucket) []inbox.Classification {
	// buckets is non-empty here, so the heuristic cannot fail.
	out, _ := inbox.ClassifyByKeywords(threads, buckets)
	c.metrics.RecordClassifications(ctx, instrumentation.SourceHeuristic, len(out))
	return out
}

func chunk(threads []inbox.ThreadSummary, size int) [][]inbox.ThreadSummary {
	var out [][]inbox.ThreadSummary
	for start := 0; start < len(threads); start += size {
		end := min(start+size, len(threads))
		out = append(out, threads[start:end])
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
