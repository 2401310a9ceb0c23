package scorer

import (
	"encoding/json"
	"strings"
)

// parseJSONPermissive accepts a bare JSON object, or falls back to the largest
// "{...}" substring of text, matching the reference scorer's permissive JSON
// extraction for model output that wraps JSON in prose or code fences.
func parseJSONPermissive(text string) (map[string]any, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, false
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
		return obj, true
	}

	left := strings.Index(trimmed, "{")
	right := strings.LastIndex(trimmed, "}")
	if left >= 0 && right > left {
		if err := json.Unmarshal([]byte(trimmed[left:right+1]), &obj); err == nil {
			return obj, true
		}
	}
	return nil, false
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asFloat(v any, fallback float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return fallback
	}
}

func asStringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}
