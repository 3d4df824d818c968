package common

import (
	"fmt"
	"math"
	"strings"
)

// StringArg returns the trimmed string argument key, or "" when absent or
// not a string.
func StringArg(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// IntArg returns the integer argument key, or def when absent. JSON numbers
// arrive as float64; fractional values are rejected.
func IntArg(args map[string]interface{}, key string, def int) (int, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return def, nil
	}
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%s must be an integer", key)
		}
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("%s must be a number", key)
	}
}
