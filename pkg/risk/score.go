package risk

import "math"

// Weights of the baseline heuristic.
const (
	// weightVolume is the risk contributed by every event, whatever its level.
	weightVolume = 0.20
	// weightSevere is the extra risk of each error or critical event.
	weightSevere = 0.15
)

// Model maps a FeatureVector to a risk score. Implementations should return
// a value in [0,1]; the pipeline clamps and rounds regardless.
type Model interface {
	Score(fv FeatureVector) float64
}

// ModelFunc adapts a plain function to Model.
type ModelFunc func(fv FeatureVector) float64

// Score calls f(fv).
func (f ModelFunc) Score(fv FeatureVector) float64 { return f(fv) }

// Heuristic is the baseline deterministic model:
//
//	raw   = 0.2*n + 0.15*(error_count + critical_count)
//	score = round2(min(raw, 1.0))
//
// It is monotonic in both n and the severe count, and saturates at 1.0
// (five events of any level are enough).
type Heuristic struct{}

// Score implements Model.
func (Heuristic) Score(fv FeatureVector) float64 {
	raw := weightVolume*float64(fv.N) + weightSevere*float64(fv.Severe())
	return round2(math.Min(raw, 1.0))
}

// Score applies the baseline Heuristic to fv.
func Score(fv FeatureVector) float64 {
	return Heuristic{}.Score(fv)
}

// normalize forces a model output into the contract: [0,1], two decimals.
// NaN is treated as no signal.
func normalize(v float64) float64 {
	return round2(clamp01(v))
}

// clamp01 restricts v to the range [0, 1].
func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// round2 rounds v half away from zero to two decimal places.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
