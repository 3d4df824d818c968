package inbox

import (
	"context"
	"strings"
)

type keywordRule struct {
	bucketContains string
	keywords       []string
	confidence     float64
	reason         string
}

// Rules are checked in order; the first rule whose bucket exists and whose
// keywords appear wins.
var keywordRules = []keywordRule{
	{"newsletter", []string{"unsubscribe", "digest"}, 0.95, "Newsletter markers detected"},
	{"important", []string{"urgent", "asap", "action required"}, 0.9, "Urgency markers detected"},
	{"archive", []string{"receipt", "notification"}, 0.8, "Low value signal detected"},
}

const (
	defaultRuleConfidence = 0.6
	defaultRuleReason     = "Default fallback"
)

// ClassifyByKeywords is the deterministic classifier used when no LLM
// provider is available or every provider failed.
func ClassifyByKeywords(threads []ThreadSummary, buckets []Bucket) ([]Classification, error) {
	if len(buckets) == 0 {
		return nil, ErrNoBuckets
	}

	out := make([]Classification, 0, len(threads))
	for _, t := range threads {
		out = append(out, classifyOne(t, buckets))
	}
	return out, nil
}

func classifyOne(t ThreadSummary, buckets []Bucket) Classification {
	text := strings.ToLower(t.Subject + " " + t.Snippet)

	for _, rule := range keywordRules {
		b, ok := bucketNameContaining(buckets, rule.bucketContains)
		if !ok || !containsAny(text, rule.keywords) {
			continue
		}
		return Classification{ThreadID: t.ID, BucketID: b.ID, Confidence: rule.confidence, Reason: rule.reason}
	}

	b, ok := bucketNameContaining(buckets, "wait")
	if !ok {
		b = buckets[0]
	}
	return Classification{ThreadID: t.ID, BucketID: b.ID, Confidence: defaultRuleConfidence, Reason: defaultRuleReason}
}

func bucketNameContaining(buckets []Bucket, needle string) (Bucket, bool) {
	for _, b := range buckets {
		if strings.Contains(strings.ToLower(b.Name), needle) {
			return b, true
		}
	}
	return Bucket{}, false
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// HeuristicClassifier adapts ClassifyByKeywords to ThreadClassifier.
type HeuristicClassifier struct{}

// Classify implements ThreadClassifier.
func (HeuristicClassifier) Classify(_ context.Context, threads []ThreadSummary, buckets []Bucket) ([]Classification, error) {
	return ClassifyByKeywords(threads, buckets)
}
