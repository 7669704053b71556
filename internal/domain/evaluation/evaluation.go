// Package evaluation scores a parameter vector against labelled training
// items with log-loss and binned calibration error.
package evaluation

import (
	"fmt"
	"math"

	"github.com/okian/fsrs/internal/domain/memory"
	"github.com/okian/fsrs/internal/domain/model"
)

// Bins is the number of fixed-width probability bins used for calibration.
const Bins = 20

// probClamp keeps predictions away from 0 and 1 so the loss stays finite.
const probClamp = 1e-7

// Metrics summarises how well predictions match observed outcomes.
type Metrics struct {
	LogLoss          float64 `json:"log_loss"`
	CalibrationError float64 `json:"calibration_error"`
	Items            int     `json:"items"`
}

// LogLoss is the negative log-likelihood of label under prediction p.
func LogLoss(p, label float64) float64 {
	p = math.Max(probClamp, math.Min(p, 1-probClamp))
	return -(label*math.Log(p) + (1-label)*math.Log(1-p))
}

type bin struct {
	n      int
	pred   float64
	actual float64
}

// Accumulator gathers predictions and outcomes. The zero value is ready to
// use; accumulators from disjoint shards combine with Merge.
type Accumulator struct {
	n    int
	loss float64
	bins [Bins]bin
}

// Add records one prediction and its binary outcome.
func (a *Accumulator) Add(p, label float64) {
	a.n++
	a.loss += LogLoss(p, label)
	b := &a.bins[binIndex(p)]
	b.n++
	b.pred += p
	b.actual += label
}

// Merge folds o into a.
func (a *Accumulator) Merge(o *Accumulator) {
	a.n += o.n
	a.loss += o.loss
	for i := range a.bins {
		a.bins[i].n += o.bins[i].n
		a.bins[i].pred += o.bins[i].pred
		a.bins[i].actual += o.bins[i].actual
	}
}

// Len returns the number of recorded predictions.
func (a *Accumulator) Len() int { return a.n }

// Metrics computes the final scores. It fails on an empty accumulator.
func (a *Accumulator) Metrics() (Metrics, error) {
	if a.n == 0 {
		return Metrics{}, fmt.Errorf("evaluate: %w", model.ErrEmptyHistory)
	}
	var sq float64
	for _, b := range a.bins {
		if b.n == 0 {
			continue
		}
		diff := b.pred/float64(b.n) - b.actual/float64(b.n)
		sq += float64(b.n) * diff * diff
	}
	out := Metrics{
		LogLoss:          a.loss / float64(a.n),
		CalibrationError: math.Sqrt(sq / float64(a.n)),
		Items:            a.n,
	}
	if math.IsNaN(out.LogLoss) || math.IsInf(out.LogLoss, 0) {
		return out, fmt.Errorf("evaluate: %w: log loss %v", model.ErrNumericalDivergence, out.LogLoss)
	}
	return out, nil
}

func binIndex(p float64) int {
	i := int(p * Bins)
	switch {
	case i < 0 || math.IsNaN(p):
		return 0
	case i >= Bins:
		return Bins - 1
	default:
		return i
	}
}

// Evaluate predicts the final review of every item from the reviews before
// it and scores the predictions.
func Evaluate(m *memory.Model, items []model.TrainingItem) (Metrics, error) {
	if len(items) == 0 {
		return Metrics{}, fmt.Errorf("evaluate: no items: %w", model.ErrEmptyHistory)
	}
	var acc Accumulator
	for i, it := range items {
		p, err := m.PredictLast(it.Reviews)
		if err != nil {
			return Metrics{}, fmt.Errorf("evaluate item %d: %w", i, err)
		}
		acc.Add(p, it.Label())
	}
	return acc.Metrics()
}
