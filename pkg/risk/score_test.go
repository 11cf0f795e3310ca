package risk

import (
	"math"
	"testing"
)

// almostEqual returns true if a and b are within epsilon of each other.
func almostEqual(a, b, epsilon float64) bool {
	return math.Abs(a-b) < epsilon
}

func TestScore_Formula(t *testing.T) {
	tests := []struct {
		name string
		fv   FeatureVector
		want float64
	}{
		{"empty batch", FeatureVector{}, 0},
		{"one info event", FeatureVector{N: 1}, 0.2},
		{"one error event", FeatureVector{N: 1, ErrorCount: 1}, 0.35},
		// 0.2*2 + 0.15*1 = 0.55
		{"error + warning", FeatureVector{N: 2, ErrorCount: 1, WarningCount: 1}, 0.55},
		// 0.2*3 + 0.15*2 = 0.90
		{"error + warning + critical", FeatureVector{N: 3, ErrorCount: 1, CriticalCount: 1, WarningCount: 1}, 0.9},
		// 0.2*5 = 1.0
		{"five quiet events saturate", FeatureVector{N: 5}, 1.0},
		{"many severe events stay at 1", FeatureVector{N: 40, ErrorCount: 20, CriticalCount: 20}, 1.0},
		// 0.2*4 + 0.15*1 = 0.95
		{"four events one critical", FeatureVector{N: 4, CriticalCount: 1}, 0.95},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Score(tc.fv); got != tc.want {
				t.Errorf("Score = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestScore_MonotonicInSevereCount(t *testing.T) {
	for n := 1; n <= 8; n++ {
		prev := -1.0
		for k := 0; k <= n; k++ {
			got := Score(FeatureVector{N: n, ErrorCount: k})
			if got < prev {
				t.Errorf("n=%d: score dropped from %.2f to %.2f at severe=%d", n, prev, got, k)
			}
			prev = got
		}
	}
}

func TestScore_InRange(t *testing.T) {
	for n := 0; n <= 50; n++ {
		for k := 0; k <= n; k += 3 {
			s := Score(FeatureVector{N: n, CriticalCount: k})
			if s < 0 || s > 1 {
				t.Fatalf("Score(n=%d, severe=%d) = %v, outside [0,1]", n, k, s)
			}
		}
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-0.3, 0},
		{0.333333, 0.33},
		{0.505, 0.51},
		{1.7, 1},
		{math.NaN(), 0},
		{math.Inf(1), 1},
	}
	for _, tc := range tests {
		if got := normalize(tc.in); got != tc.want {
			t.Errorf("normalize(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
