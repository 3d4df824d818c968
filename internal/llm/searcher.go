package llm

import (
	"context"
	"log/slog"

	"github.com/teemow/inboxbuckets/internal/inbox"
	"github.com/teemow/inboxbuckets/internal/logging"
)

// Searcher implements inbox.ThreadSearcher with a Provider.
type Searcher struct {
	provider Provider
	logger   *slog.Logger
}

// NewSearcher creates a Searcher.
func NewSearcher(p Provider, logger *slog.Logger) *Searcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{provider: p, logger: logging.WithOperation(logger, "llm.search")}
}

// Search returns up to limit ids of threads relevant to query, most relevant
// first. Provider failures fall back to keyword scoring.
func (s *Searcher) Search(ctx context.Context, query string, threads []inbox.ThreadSummary, limit int) ([]string, error) {
	if len(threads) == 0 || limit <= 0 {
		return []string{}, nil
	}

	text, err := s.provider.Complete(ctx, searchSystemPrompt, searchPrompt(query, threads, limit))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("llm search failed, using keyword matching", logging.Err(err))
		return inbox.SearchByKeywords(query, threads, limit), nil
	}

	ids, err := parseIDs(text)
	if err != nil {
		s.logger.Warn("unparsable search response, using keyword matching", logging.Err(err))
		return inbox.SearchByKeywords(query, threads, limit), nil
	}

	known := make(map[string]struct{}, len(threads))
	for _, t := range threads {
		known[t.ID] = struct{}{}
	}
	out := make([]string, 0, min(len(ids), limit))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
