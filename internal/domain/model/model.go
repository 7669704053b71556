// Package model contains domain models passed between layers.
package model

// Review is a single graded recall attempt of a card.
type Review struct {
	Rating      Rating // learner's grade
	ElapsedDays uint32 // days since the previous review of the same card (0 for the first)
}

// History is a card's reviews in chronological order.
type History []Review

// Len returns the number of reviews.
func (h History) Len() int { return len(h) }

// Last returns the final review. It panics on an empty history; callers
// check Len first.
func (h History) Last() Review { return h[len(h)-1] }

// HasInterval reports whether any review carries a non-zero elapsed time.
func (h History) HasInterval() bool {
	for _, r := range h {
		if r.ElapsedDays > 0 {
			return true
		}
	}
	return false
}

// MemoryState is the latent memory of a card after a review.
type MemoryState struct {
	Stability  float64 `json:"stability"`  // days until recall probability decays to 90%
	Difficulty float64 `json:"difficulty"` // in [1, 10]
}

// Outcome is the state and scheduled interval resulting from one rating.
type Outcome struct {
	MemoryState
	Interval float64 `json:"interval"`
}

// OutcomeSet holds the outcome of every possible rating against the same prior.
type OutcomeSet struct {
	Again Outcome `json:"again"`
	Hard  Outcome `json:"hard"`
	Good  Outcome `json:"good"`
	Easy  Outcome `json:"easy"`
}

// For returns the outcome for rating r, clamping r into range.
func (o OutcomeSet) For(r Rating) Outcome {
	switch r.Clamp() {
	case Again:
		return o.Again
	case Hard:
		return o.Hard
	case Easy:
		return o.Easy
	default:
		return o.Good
	}
}

// Set stores the outcome for rating r, clamping r into range.
func (o *OutcomeSet) Set(r Rating, out Outcome) {
	switch r.Clamp() {
	case Again:
		o.Again = out
	case Hard:
		o.Hard = out
	case Easy:
		o.Easy = out
	default:
		o.Good = out
	}
}

// TrainingItem is a history prefix used as one labelled example: every
// review but the last builds the memory state, the last one is the label.
type TrainingItem struct {
	Reviews History
}

// Label returns 1 when the final review was recalled, 0 on Again.
func (t TrainingItem) Label() float64 {
	if t.Reviews.Last().Rating.Clamp() == Again {
		return 0
	}
	return 1
}
