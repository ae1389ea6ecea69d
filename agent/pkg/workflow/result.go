package workflow

import (
	"fmt"
	"strings"
)

// IsEmptyResult reports whether an execution result carries no usable rows.
// Executors may return slices, wrapped maps, or raw strings depending on the
// query shape, so all of those are inspected.
func IsEmptyResult(result any) bool {
	switch v := result.(type) {
	case nil:
		return true
	case []any:
		return len(v) == 0
	case []map[string]any:
		return len(v) == 0
	case map[string]any:
		if inner, ok := v["result"]; ok {
			return IsEmptyResult(inner)
		}
		return len(v) == 0
	case string:
		t := strings.ToLower(strings.TrimSpace(v))
		return t == "" || strings.Contains(t, "[]") || strings.Contains(t, "empty")
	default:
		return false
	}
}

// ParseResults coerces an execution result into the row slice exposed in the
// response envelope. Scalar and unknown shapes become a single wrapped row.
func ParseResults(result any) []map[string]any {
	switch v := result.(type) {
	case nil:
		return []map[string]any{}
	case []map[string]any:
		return v
	case []any:
		rows := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				rows = append(rows, m)
			} else {
				rows = append(rows, map[string]any{"value": item})
			}
		}
		return rows
	case map[string]any:
		if inner, ok := v["result"]; ok {
			return ParseResults(inner)
		}
		return []map[string]any{v}
	default:
		return []map[string]any{{"value": fmt.Sprintf("%v", v)}}
	}
}
