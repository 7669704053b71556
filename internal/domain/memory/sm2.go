package memory

import (
	"fmt"
	"math"

	"github.com/okian/fsrs/internal/domain/model"
)

// FromSM2 converts a legacy SM-2 card into a memory state.
//
// Stability is the value whose scheduled interval at sm2Retention equals
// intervalDays. Difficulty inverts the recall growth formula so that a
// successful review at that retention grows stability by easeFactor;
// higher ease factors therefore map to lower difficulty.
func (m *Model) FromSM2(easeFactor, intervalDays, sm2Retention float64) (model.MemoryState, error) {
	if !(easeFactor > 0) || math.IsInf(easeFactor, 0) {
		return model.MemoryState{}, fmt.Errorf("%w: %v", model.ErrInvalidEaseFactor, easeFactor)
	}
	if !(sm2Retention > 0 && sm2Retention < 1) {
		return model.MemoryState{}, fmt.Errorf("%w: sm2 retention %v", model.ErrInvalidRetention, sm2Retention)
	}
	if math.IsNaN(intervalDays) || math.IsInf(intervalDays, 0) {
		return model.MemoryState{}, fmt.Errorf("%w: interval %v", model.ErrInvalidInput, intervalDays)
	}

	stability := clampStability(math.Max(intervalDays, MinStability) * Factor /
		(math.Pow(sm2Retention, 1/Decay) - 1))

	growth := math.Exp(m.w[8]) *
		math.Pow(stability, -m.w[9]) *
		(math.Exp((1-sm2Retention)*m.w[10]) - 1)

	difficulty := m.initDifficulty(model.Good)
	if growth > 0 && !math.IsInf(growth, 0) {
		difficulty = 11 - (easeFactor-1)/growth
	}

	return model.MemoryState{
		Stability:  stability,
		Difficulty: clampDifficulty(difficulty),
	}, nil
}
