// Package llmutils holds small string helpers shared by the provider and
// agent layers.
package llmutils

import "strings"

// Truncate shortens s to at most max runes, appending an ellipsis when it
// cuts. Used for log output, never for content sent to the LLM.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// StringOrDefault returns s unless it is empty or whitespace-only, in which
// case it returns def.
func StringOrDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// FirstNonEmpty returns the first argument that is not empty after trimming
// whitespace, or "".
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
