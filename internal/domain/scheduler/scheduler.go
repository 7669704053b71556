// Package scheduler turns memory states into review intervals.
package scheduler

import (
	"fmt"
	"math"

	"github.com/okian/fsrs/internal/domain/memory"
	"github.com/okian/fsrs/internal/domain/model"
)

const (
	// MinInterval is the shortest interval ever scheduled, in days.
	MinInterval = 1.0

	// DefaultDesiredRetention is the usual recall target.
	DefaultDesiredRetention = 0.9
)

// ValidateRetention reports whether r lies in (0, 1].
func ValidateRetention(r float64) error {
	if !(r > 0 && r <= 1) {
		return fmt.Errorf("%w: got %v", model.ErrInvalidRetention, r)
	}
	return nil
}

// NextInterval inverts the forgetting curve: it returns the whole number
// of days after which recall probability falls to desiredRetention, never
// less than MinInterval.
func NextInterval(stability, desiredRetention float64) (float64, error) {
	if err := ValidateRetention(desiredRetention); err != nil {
		return 0, err
	}
	ivl := stability / memory.Factor * (math.Pow(desiredRetention, 1/memory.Decay) - 1)
	if math.IsNaN(ivl) {
		return MinInterval, nil
	}
	return math.Max(math.Round(ivl), MinInterval), nil
}

// Repeat computes the outcome of every rating against prior together with
// the interval each resulting state would be scheduled for.
func Repeat(m *memory.Model, prior *model.MemoryState, elapsedDays, desiredRetention float64) (model.OutcomeSet, error) {
	if err := ValidateRetention(desiredRetention); err != nil {
		return model.OutcomeSet{}, err
	}
	branches := m.NextStates(prior, elapsedDays)

	var set model.OutcomeSet
	for _, r := range model.Ratings {
		st := branches.For(r)
		ivl, err := NextInterval(st.Stability, desiredRetention)
		if err != nil {
			return model.OutcomeSet{}, err
		}
		set.Set(r, model.Outcome{MemoryState: st, Interval: ivl})
	}
	return set, nil
}
