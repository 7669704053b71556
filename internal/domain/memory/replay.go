package memory

import (
	"fmt"

	"github.com/okian/fsrs/internal/domain/model"
)

// Replay folds a chronological history into its terminal memory state.
//
// Without an initial state the first review seeds the fold through
// InitialState and its elapsed time is ignored. With one, every review
// is applied on top of it using its recorded elapsed time.
func (m *Model) Replay(h model.History, initial *model.MemoryState) (model.MemoryState, error) {
	if len(h) == 0 {
		return model.MemoryState{}, fmt.Errorf("replay: %w", model.ErrEmptyHistory)
	}
	state, rest := m.seed(h, initial)
	for _, rv := range rest {
		state = m.NextState(&state, float64(rv.ElapsedDays), rv.Rating)
	}
	return state, nil
}

func (m *Model) seed(h model.History, initial *model.MemoryState) (model.MemoryState, model.History) {
	if initial != nil {
		return *initial, h
	}
	return m.InitialState(h[0].Rating), h[1:]
}

// PredictLast replays every review of h but the last and returns the
// predicted probability of recalling the last one. A single-review
// history has no prior memory and predicts 1.
func (m *Model) PredictLast(h model.History) (float64, error) {
	if len(h) == 0 {
		return 0, fmt.Errorf("predict: %w", model.ErrEmptyHistory)
	}
	if len(h) == 1 {
		return 1.0, nil
	}
	state, err := m.Replay(h[:len(h)-1], nil)
	if err != nil {
		return 0, err
	}
	return Retrievability(state.Stability, float64(h.Last().ElapsedDays)), nil
}
