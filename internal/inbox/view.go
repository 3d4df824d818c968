package inbox

import (
	"sort"
)

// SortByRecency orders threads newest first; unknown dates sort last and
// ties break on id so the order is stable across refreshes.
func SortByRecency(threads []ThreadSummary) {
	sort.SliceStable(threads, func(i, j int) bool {
		if threads[i].ReceivedAt != threads[j].ReceivedAt {
			return threads[i].ReceivedAt > threads[j].ReceivedAt
		}
		return threads[i].ID < threads[j].ID
	})
}

// KeepNewest returns a sorted copy of threads with at most n entries.
func KeepNewest(threads []ThreadSummary, n int) []ThreadSummary {
	out := make([]ThreadSummary, len(threads))
	copy(out, threads)
	SortByRecency(out)
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// FilterClassifications keeps classifications whose thread is in threads.
func FilterClassifications(classifications []Classification, threads []ThreadSummary) []Classification {
	keep := make(map[string]struct{}, len(threads))
	for _, t := range threads {
		keep[t.ID] = struct{}{}
	}

	out := make([]Classification, 0, len(classifications))
	for _, c := range classifications {
		if _, ok := keep[c.ThreadID]; ok {
			out = append(out, c)
		}
	}
	return out
}

// BuildView groups threads by bucket in bucket order.
//
// Classifications that reference an unknown thread or bucket are ignored.
// Threads left without a bucket are shown in the fallback bucket with zero
// confidence.
func BuildView(buckets []Bucket, threads []ThreadSummary, classifications []Classification) *View {
	view := &View{
		Buckets: append([]Bucket{}, buckets...),
		Grouped: make([]BucketGroup, 0, len(buckets)),
	}
	if len(buckets) == 0 {
		return view
	}

	threadByID := make(map[string]ThreadSummary, len(threads))
	for _, t := range threads {
		threadByID[t.ID] = t
	}
	groupIndex := make(map[string]int, len(buckets))
	for i, b := range buckets {
		groupIndex[b.ID] = i
		view.Grouped = append(view.Grouped, BucketGroup{Bucket: b, Threads: []ThreadView{}})
	}

	assigned := make(map[string]bool, len(threads))
	for _, c := range classifications {
		t, ok := threadByID[c.ThreadID]
		if !ok || assigned[c.ThreadID] {
			continue
		}
		idx, ok := groupIndex[c.BucketID]
		if !ok {
			continue
		}
		assigned[c.ThreadID] = true
		view.Grouped[idx].Threads = append(view.Grouped[idx].Threads, threadView(t, c.Confidence))
	}

	fallback, _ := FallbackBucket(buckets)
	fallbackIdx := groupIndex[fallback.ID]
	for _, t := range threads {
		if assigned[t.ID] {
			continue
		}
		assigned[t.ID] = true
		view.Grouped[fallbackIdx].Threads = append(view.Grouped[fallbackIdx].Threads, threadView(t, 0))
	}

	for i := range view.Grouped {
		group := view.Grouped[i].Threads
		sort.SliceStable(group, func(a, b int) bool {
			if group[a].ReceivedAt != group[b].ReceivedAt {
				return group[a].ReceivedAt > group[b].ReceivedAt
			}
			return group[a].ID < group[b].ID
		})
	}

	return view
}

func threadView(t ThreadSummary, confidence float64) ThreadView {
	snippet := t.Snippet
	if snippet == "" {
		snippet = NoPreview
	}
	return ThreadView{
		ID:         t.ID,
		Subject:    t.Subject,
		Snippet:    snippet,
		ReceivedAt: t.ReceivedAt,
		Confidence: confidence,
	}
}
