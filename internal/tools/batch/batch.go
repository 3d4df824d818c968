package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result represents the result of a single operation in a batch
type Result struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// BatchResult represents the aggregated results of a batch operation
type BatchResult struct {
	Total      int      `json:"total"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Results    []Result `json:"results"`
}

// ParseIDs accepts a single id or an array of ids. Ids are trimmed and
// duplicates dropped; more than max ids is an error when max is positive.
func ParseIDs(param interface{}, paramName string, max int) ([]string, error) {
	if param == nil {
		return nil, fmt.Errorf("%s is required", paramName)
	}

	var raw []string
	switch v := param.(type) {
	case string:
		raw = []string{v}
	case []interface{}:
		if len(v) == 0 {
			return nil, fmt.Errorf("%s cannot be empty", paramName)
		}
		for i, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d] must be a string", paramName, i)
			}
			raw = append(raw, str)
		}
	case []string:
		raw = v
	default:
		return nil, fmt.Errorf("%s must be a string or array of strings", paramName)
	}

	seen := make(map[string]bool, len(raw))
	ids := make([]string, 0, len(raw))
	for i, id := range raw {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("%s[%d] cannot be empty", paramName, i)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%s cannot be empty", paramName)
	}
	if max > 0 && len(ids) > max {
		return nil, fmt.Errorf("%s must contain at most %d ids", paramName, max)
	}
	return ids, nil
}

// Process calls fn for each id in order and collects the outcomes. Once ctx
// is done the remaining ids are reported as failed without calling fn.
func Process(ctx context.Context, ids []string, fn func(ctx context.Context, id string) (any, error)) []Result {
	results := make([]Result, 0, len(ids))

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			results = append(results, NewErrorResult(id, err))
			continue
		}
		v, err := fn(ctx, id)
		if err != nil {
			results = append(results, NewErrorResult(id, err))
			continue
		}
		data, err := json.Marshal(v)
		if err != nil {
			results = append(results, NewErrorResult(id, fmt.Errorf("failed to encode result: %w", err)))
			continue
		}
		results = append(results, Result{ID: id, Status: StatusSuccess, Result: data})
	}

	return results
}

// Summarize aggregates results into a BatchResult.
func Summarize(results []Result) BatchResult {
	br := BatchResult{
		Total:   len(results),
		Results: results,
	}
	for _, r := range results {
		if r.Status == StatusSuccess {
			br.Successful++
		} else {
			br.Failed++
		}
	}
	return br
}

// NewErrorResult creates an error result
func NewErrorResult(id string, err error) Result {
	return Result{
		ID:     id,
		Status: StatusError,
		Error:  err.Error(),
	}
}
