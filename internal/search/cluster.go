package search

import "sort"

// clusterTimestamps merges timestamps into contiguous ranges. Two
// neighbors land in the same range when their gap is at most threshold
// seconds. Input order does not matter; output ranges are ascending,
// non-overlapping, and cover every input timestamp. The operation is
// idempotent: re-clustering range endpoints yields the same ranges.
func clusterTimestamps(timestamps []float64, threshold float64) [][2]float64 {
	if len(timestamps) == 0 {
		return nil
	}

	sorted := make([]float64, len(timestamps))
	copy(sorted, timestamps)
	sort.Float64s(sorted)

	ranges := [][2]float64{{sorted[0], sorted[0]}}
	for _, ts := range sorted[1:] {
		last := &ranges[len(ranges)-1]
		if ts-last[1] <= threshold {
			last[1] = ts
			continue
		}
		ranges = append(ranges, [2]float64{ts, ts})
	}
	return ranges
}
