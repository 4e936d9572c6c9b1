// Package strings provides string manipulation utilities.
package strings

import (
	"strings"
)

// SplitList splits a comma separated value, trimming whitespace and dropping
// empty and duplicate entries. Order is preserved.
//
//	SplitList(" a@x.edu, b@x.edu,,a@x.edu ", false)
//	// Returns: []string{"a@x.edu", "b@x.edu"}
func SplitList(csv string, lower bool) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	values := strings.Split(csv, ",")
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if lower {
			trimmed = strings.ToLower(trimmed)
		}
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}
