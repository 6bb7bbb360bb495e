// Package strings provides string manipulation utilities.
package strings

import (
	"strings"
)

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element. Order is preserved.
//
// Example:
//
//	DedupeAndTrim([]string{"  foo ", "bar", "foo", "", "  "})
//	// Returns: []string{"foo", "bar"}
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.TrimSpace(v)
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

// NormalizeUpper collapses runs of whitespace to single spaces and
// uppercases the result. Used to canonicalize entity names so cache keys
// and list lookups are insensitive to spacing and case.
//
// Example:
//
//	NormalizeUpper("  alexei   petrov ")
//	// Returns: "ALEXEI PETROV"
func NormalizeUpper(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}
