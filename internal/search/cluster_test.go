package search

import (
	"math"
	"testing"
)

func rangesEqual(a, b [][2]float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i][0]-b[i][0]) > 1e-9 || math.Abs(a[i][1]-b[i][1]) > 1e-9 {
			return false
		}
	}
	return true
}

func TestClusterTimestamps(t *testing.T) {
	tests := []struct {
		name      string
		in        []float64
		threshold float64
		want      [][2]float64
	}{
		{
			name:      "empty",
			in:        nil,
			threshold: 2,
			want:      nil,
		},
		{
			name:      "single",
			in:        []float64{5},
			threshold: 2,
			want:      [][2]float64{{5, 5}},
		},
		{
			name:      "merges_within_threshold",
			in:        []float64{1, 2, 3, 10, 11},
			threshold: 2,
			want:      [][2]float64{{1, 3}, {10, 11}},
		},
		{
			name:      "gap_equal_to_threshold_merges",
			in:        []float64{0, 2, 4},
			threshold: 2,
			want:      [][2]float64{{0, 4}},
		},
		{
			name:      "gap_above_threshold_splits",
			in:        []float64{0, 2.5},
			threshold: 2,
			want:      [][2]float64{{0, 0}, {2.5, 2.5}},
		},
		{
			name:      "unsorted_input",
			in:        []float64{11, 1, 10, 3, 2},
			threshold: 2,
			want:      [][2]float64{{1, 3}, {10, 11}},
		},
		{
			name:      "duplicates_collapse",
			in:        []float64{4, 4, 4},
			threshold: 1,
			want:      [][2]float64{{4, 4}},
		},
		{
			name:      "zero_threshold_splits_distinct",
			in:        []float64{1, 1, 2},
			threshold: 0,
			want:      [][2]float64{{1, 1}, {2, 2}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := clusterTimestamps(tt.in, tt.threshold)
			if !rangesEqual(got, tt.want) {
				t.Errorf("clusterTimestamps(%v, %v) = %v, want %v", tt.in, tt.threshold, got, tt.want)
			}
		})
	}
}

func TestClusterTimestamps_Idempotent(t *testing.T) {
	in := []float64{1, 2, 3, 10, 11, 30}
	threshold := 2.0

	first := clusterTimestamps(in, threshold)

	// Re-cluster the endpoints of the first pass.
	var endpoints []float64
	for _, r := range first {
		endpoints = append(endpoints, r[0], r[1])
	}
	second := clusterTimestamps(endpoints, threshold)

	if !rangesEqual(first, second) {
		t.Errorf("clustering is not idempotent: %v then %v", first, second)
	}
}

func TestClusterTimestamps_CoversAllInputs(t *testing.T) {
	in := []float64{0.5, 3, 7, 7.5, 20}
	ranges := clusterTimestamps(in, 1.0)

	for _, ts := range in {
		covered := false
		for _, r := range ranges {
			if ts >= r[0] && ts <= r[1] {
				covered = true
				break
			}
		}
		if !covered {
			t.Errorf("timestamp %v not covered by %v", ts, ranges)
		}
	}

	// Ranges must be ascending and non-overlapping.
	for i := 1; i < len(ranges); i++ {
		if ranges[i][0] <= ranges[i-1][1] {
			t.Errorf("ranges overlap or are unordered: %v", ranges)
		}
	}
}
