package index

import "sort"

// SortResults sorts results by ascending distance, breaking ties by
// ascending ID. All index implementations finalize their output
// through this so identical corpora produce identical neighbor lists.
func SortResults(results []SearchResult) {
	sort.Slice(results, func(i, j int) bool {
		return less(results[i], results[j])
	})
}

// MergeSearchResults merges two sorted lists of SearchResult into a
// single sorted list of size k. Both input lists must already be sorted
// by (distance, ID).
func MergeSearchResults(a, b []SearchResult, k int) []SearchResult {
	if len(a) == 0 {
		if len(b) > k {
			return b[:k]
		}
		return b
	}
	if len(b) == 0 {
		if len(a) > k {
			return a[:k]
		}
		return a
	}

	result := make([]SearchResult, 0, k)
	i, j := 0, 0

	for len(result) < k && (i < len(a) || j < len(b)) {
		switch {
		case i < len(a) && j < len(b):
			if less(a[i], b[j]) {
				result = append(result, a[i])
				i++
			} else {
				result = append(result, b[j])
				j++
			}
		case i < len(a):
			result = append(result, a[i])
			i++
		default:
			result = append(result, b[j])
			j++
		}
	}

	return result
}

func less(a, b SearchResult) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.ID < b.ID
}
