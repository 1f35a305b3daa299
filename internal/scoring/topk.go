package scoring

import "sort"

// topK returns the indexes of the k highest scores, ordered by descending
// score with ties broken by index.
func topK(n, k int, score func(int) float64) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return score(idx[a]) > score(idx[b])
	})
	if k < len(idx) {
		idx = idx[:k]
	}
	return idx
}
