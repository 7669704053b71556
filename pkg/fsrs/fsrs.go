// Package fsrs is the public entry point to the FSRS memory model: the
// forgetting curve, state transitions, interval scheduling, SM-2
// migration, evaluation and parameter fitting.
//
// Optional arguments are nil pointers or nil slices. A nil parameter
// vector selects the defaults; a nil prior state means the card is new.
package fsrs

import (
	"context"
	"fmt"

	"github.com/okian/fsrs/internal/domain/dataset"
	"github.com/okian/fsrs/internal/domain/evaluation"
	"github.com/okian/fsrs/internal/domain/memory"
	"github.com/okian/fsrs/internal/domain/model"
	"github.com/okian/fsrs/internal/domain/optimizer"
	"github.com/okian/fsrs/internal/domain/params"
	"github.com/okian/fsrs/internal/domain/scheduler"
	"github.com/okian/fsrs/pkg/metrics"
)

type (
	// MemoryState is a card's stability and difficulty.
	MemoryState = model.MemoryState
	// Outcome is one rating's resulting state and interval.
	Outcome = model.Outcome
	// OutcomeSet holds the outcome of every rating.
	OutcomeSet = model.OutcomeSet
	// Rating is Again (1), Hard (2), Good (3) or Easy (4).
	Rating = model.Rating
	// OptimizeOption tunes Optimize.
	OptimizeOption = optimizer.Option
)

// Ratings.
const (
	Again = model.Again
	Hard  = model.Hard
	Good  = model.Good
	Easy  = model.Easy
)

// ParameterCount is the length of DefaultParameters.
const ParameterCount = params.Len

// Error kinds. Compare with errors.Is.
var (
	ErrInvalidParameterVector = model.ErrInvalidParameterVector
	ErrInvalidRetention       = model.ErrInvalidRetention
	ErrInvalidEaseFactor      = model.ErrInvalidEaseFactor
	ErrEmptyHistory           = model.ErrEmptyHistory
	ErrNoTrainableData        = model.ErrNoTrainableData
	ErrNumericalDivergence    = model.ErrNumericalDivergence
	ErrInvalidInput           = model.ErrInvalidInput
)

// Optimizer options.
var (
	WithEpochs       = optimizer.WithEpochs
	WithBatchSize    = optimizer.WithBatchSize
	WithLearningRate = optimizer.WithLearningRate
	WithSeed         = optimizer.WithSeed
	WithMaxSeqLen    = optimizer.WithMaxSeqLen
	WithTolerance    = optimizer.WithTolerance
	WithParallelism  = optimizer.WithParallelism
)

// DefaultParameters returns a copy of the default parameter vector.
func DefaultParameters() []float64 {
	return params.Default().Float64s()
}

// NextInterval returns the whole number of days, at least one, until the
// recall probability of a memory with the given stability falls to
// desiredRetention. w is validated but the curve does not depend on it.
func NextInterval(stability, desiredRetention float64, w []float64) (float64, error) {
	if _, err := params.Normalize(w); err != nil {
		return 0, err
	}
	return scheduler.NextInterval(stability, desiredRetention)
}

// InitialState is the memory after the first review of a card.
func InitialState(rating int, w []float64) (MemoryState, error) {
	m, err := memory.New(w)
	if err != nil {
		return MemoryState{}, err
	}
	return m.InitialState(model.RatingFromInt(rating)), nil
}

// NextState applies one review to a card with the given stability and
// difficulty.
func NextState(stability, difficulty, elapsedDays float64, rating int, w []float64) (MemoryState, error) {
	m, err := memory.New(w)
	if err != nil {
		return MemoryState{}, err
	}
	prior := MemoryState{Stability: stability, Difficulty: difficulty}
	return m.NextState(&prior, elapsedDays, model.RatingFromInt(rating)), nil
}

// Repeat returns the outcome of every rating. A nil stability treats the
// card as new; a nil difficulty with a stability uses the Good initial
// difficulty.
func Repeat(stability, difficulty *float64, elapsedDays, desiredRetention float64, w []float64) (OutcomeSet, error) {
	m, err := memory.New(w)
	if err != nil {
		return OutcomeSet{}, err
	}
	return scheduler.Repeat(m, priorState(m, stability, difficulty), elapsedDays, desiredRetention)
}

func priorState(m *memory.Model, stability, difficulty *float64) *MemoryState {
	if stability == nil {
		return nil
	}
	s := MemoryState{Stability: *stability}
	if difficulty != nil {
		s.Difficulty = *difficulty
	} else {
		s.Difficulty = m.InitialState(model.Good).Difficulty
	}
	return &s
}

// Retrievability is the probability of recall after elapsedDays.
func Retrievability(stability, elapsedDays float64) float64 {
	return memory.Retrievability(stability, elapsedDays)
}

// RetrievabilityVec applies Retrievability element-wise.
func RetrievabilityVec(stability, elapsedDays []float64) ([]float64, error) {
	if len(stability) != len(elapsedDays) {
		return nil, fmt.Errorf("%w: %d stabilities but %d elapsed values", ErrInvalidInput, len(stability), len(elapsedDays))
	}
	return memory.RetrievabilityVec(stability, elapsedDays), nil
}

// FromSM2 converts an SM-2 ease factor and interval into a memory state,
// assuming the SM-2 schedule achieved sm2Retention.
func FromSM2(easeFactor, intervalDays, sm2Retention float64, w []float64) (MemoryState, error) {
	m, err := memory.New(w)
	if err != nil {
		return MemoryState{}, err
	}
	return m.FromSM2(easeFactor, intervalDays, sm2Retention)
}

// ReplayHistory folds parallel rating/elapsed sequences of one card into
// its memory state. initialStability and initialDifficulty seed the fold
// when both are given.
func ReplayHistory(ratings, deltaTs []int, initialStability, initialDifficulty *float64, w []float64) (MemoryState, error) {
	if len(ratings) != len(deltaTs) {
		return MemoryState{}, fmt.Errorf("%w: %d ratings but %d delta_ts", ErrInvalidInput, len(ratings), len(deltaTs))
	}
	m, err := memory.New(w)
	if err != nil {
		return MemoryState{}, err
	}
	histories, err := dataset.Split(ratings, deltaTs, []int{1})
	if err != nil {
		return MemoryState{}, err
	}
	if len(histories) == 0 {
		return MemoryState{}, fmt.Errorf("replay: %w", ErrEmptyHistory)
	}

	var initial *MemoryState
	if initialStability != nil && initialDifficulty != nil {
		initial = &MemoryState{Stability: *initialStability, Difficulty: *initialDifficulty}
	}
	return m.Replay(histories[0], initial)
}

// OptimizeResult reports a fitting run. Parameters is empty unless
// Success is true.
type OptimizeResult struct {
	Parameters  []float64 `json:"parameters"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	State       string    `json:"state"`
	Loss        float64   `json:"loss,omitempty"`
	InitialLoss float64   `json:"initial_loss,omitempty"`
	Iterations  int       `json:"iterations"`
	Items       int       `json:"items"`
}

// Optimize fits a parameter vector to the review log. cardStarts holds the
// 1-based index of each card's first review.
func Optimize(ctx context.Context, ratings, deltaTs, cardStarts []int, enableShortTerm bool, opts ...OptimizeOption) OptimizeResult {
	res, err := optimize(ctx, ratings, deltaTs, cardStarts, enableShortTerm, opts)
	if err != nil {
		return OptimizeResult{
			Parameters: []float64{},
			Error:      err.Error(),
			State:      optimizer.Failed.String(),
			Iterations: res.Iterations,
			Items:      res.Items,
		}
	}
	return OptimizeResult{
		Parameters:  res.Parameters.Float64s(),
		Success:     true,
		State:       res.State.String(),
		Loss:        res.Loss,
		InitialLoss: res.InitialLoss,
		Iterations:  res.Iterations,
		Items:       res.Items,
	}
}

func optimize(ctx context.Context, ratings, deltaTs, cardStarts []int, enableShortTerm bool, opts []OptimizeOption) (optimizer.Result, error) {
	histories, err := dataset.Split(ratings, deltaTs, cardStarts)
	if err != nil {
		return optimizer.Result{}, err
	}
	all := append([]OptimizeOption{optimizer.WithShortTerm(enableShortTerm)}, opts...)
	o, err := optimizer.New(all...)
	if err != nil {
		return optimizer.Result{}, err
	}
	return o.Optimize(ctx, histories)
}

// EvaluateResult reports how well a parameter vector predicts a review log.
// LogLoss, CalibrationError and Items are only meaningful when Success is
// true; a failed evaluation leaves them zero and sets Error. Zero is used
// rather than NaN so the result always encodes as JSON.
type EvaluateResult struct {
	LogLoss          float64 `json:"log_loss"`
	CalibrationError float64 `json:"calibration_error"`
	Items            int     `json:"items"`
	Success          bool    `json:"success"`
	Error            string  `json:"error,omitempty"`
}

// Evaluate scores w against every training item of the review log.
// Failures are reported in the result; check Success before reading the
// scores.
func Evaluate(ratings, deltaTs, cardStarts []int, w []float64) EvaluateResult {
	res, err := EvaluateLog(ratings, deltaTs, cardStarts, w)
	if err != nil {
		return EvaluateResult{Error: err.Error()}
	}
	return res
}

// EvaluateLog is Evaluate with the failure returned as an error.
func EvaluateLog(ratings, deltaTs, cardStarts []int, w []float64) (EvaluateResult, error) {
	res, err := evaluate(ratings, deltaTs, cardStarts, w)
	if err != nil {
		return EvaluateResult{}, err
	}
	metrics.RecordEvaluation(res.LogLoss)
	return EvaluateResult{
		LogLoss:          res.LogLoss,
		CalibrationError: res.CalibrationError,
		Items:            res.Items,
		Success:          true,
	}, nil
}

func evaluate(ratings, deltaTs, cardStarts []int, w []float64) (evaluation.Metrics, error) {
	m, err := memory.New(w)
	if err != nil {
		return evaluation.Metrics{}, err
	}
	histories, err := dataset.Split(ratings, deltaTs, cardStarts)
	if err != nil {
		return evaluation.Metrics{}, err
	}
	return evaluation.Evaluate(m, dataset.Items(histories, 0))
}
