// Package memory implements the FSRS memory model: the forgetting curve,
// the per-review state transition, history replay and SM-2 migration.
package memory

import "math"

// Forgetting curve constants. Factor is chosen so that
// Retrievability(s, s) == 0.9 for every positive s.
const (
	Decay  = -0.5
	Factor = 19.0 / 81.0
)

// State ranges.
const (
	MinStability  = 0.001
	MaxStability  = 36500.0
	MinDifficulty = 1.0
	MaxDifficulty = 10.0
)

// Retrievability is the probability of recall after elapsedDays for a
// memory of the given stability. A non-positive stability means there is
// no memory to decay and yields 1.
func Retrievability(stability, elapsedDays float64) float64 {
	if stability <= 0 {
		return 1.0
	}
	if elapsedDays <= 0 {
		return 1.0
	}
	return math.Pow(1+Factor*elapsedDays/stability, Decay)
}

// RetrievabilityVec applies Retrievability element-wise. Both slices must
// have the same length; the caller checks.
func RetrievabilityVec(stability, elapsedDays []float64) []float64 {
	out := make([]float64, len(stability))
	for i := range stability {
		out[i] = Retrievability(stability[i], elapsedDays[i])
	}
	return out
}

func clampStability(s float64) float64 {
	return math.Min(math.Max(s, MinStability), MaxStability)
}

func clampDifficulty(d float64) float64 {
	return math.Min(math.Max(d, MinDifficulty), MaxDifficulty)
}
