// Package search implements exact-match lookup over a sorted line slice.
package search

import "sort"

// Exists reports whether query is byte-for-byte equal to an element of
// lines. lines must be sorted ascending; duplicates are allowed. There is no
// prefix or substring matching.
func Exists(lines []string, query string) bool {
	i := sort.SearchStrings(lines, query)
	return i < len(lines) && lines[i] == query
}

// IsSorted reports whether lines is in ascending order.
func IsSorted(lines []string) bool {
	return sort.StringsAreSorted(lines)
}
