package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// stripFences removes a surrounding markdown code fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// drop the language tag line
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// extractJSON returns the outermost value delimited by opening and closing.
func extractJSON(s string, opening, closing byte) (string, bool) {
	start := strings.IndexByte(s, opening)
	end := strings.LastIndexByte(s, closing)
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

type rawClassification struct {
	ThreadID   string  `json:"threadId"`
	BucketID   string  `json:"bucketId"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// parseClassifications accepts a JSON array, or an object with a
// "classifications" array, optionally inside a code fence.
func parseClassifications(text string) ([]rawClassification, error) {
	text = stripFences(text)

	if strings.HasPrefix(text, "{") {
		var wrapped struct {
			Classifications []rawClassification `json:"classifications"`
		}
		if err := json.Unmarshal([]byte(text), &wrapped); err == nil && wrapped.Classifications != nil {
			return wrapped.Classifications, nil
		}
	}

	arr, ok := extractJSON(text, '[', ']')
	if !ok {
		return nil, fmt.Errorf("no JSON array in response")
	}
	var out []rawClassification
	if err := json.Unmarshal([]byte(arr), &out); err != nil {
		return nil, fmt.Errorf("decode classifications: %w", err)
	}
	return out, nil
}

// parseIDs accepts {"ids":[...]} or a bare array of ids.
func parseIDs(text string) ([]string, error) {
	text = stripFences(text)

	if obj, ok := extractJSON(text, '{', '}'); ok && strings.HasPrefix(text, "{") {
		var wrapped struct {
			IDs []string `json:"ids"`
		}
		if err := json.Unmarshal([]byte(obj), &wrapped); err == nil {
			return wrapped.IDs, nil
		}
	}

	arr, ok := extractJSON(text, '[', ']')
	if !ok {
		return nil, fmt.Errorf("no ids in response")
	}
	var ids []string
	if err := json.Unmarshal([]byte(arr), &ids); err != nil {
		return nil, fmt.Errorf("decode ids: %w", err)
	}
	return ids, nil
}
