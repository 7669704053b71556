package memory

import (
	"math"

	"github.com/okian/fsrs/internal/domain/model"
	"github.com/okian/fsrs/internal/domain/params"
)

// Option applies a configuration option to the Model.
type Option func(*Model)

// WithShortTerm toggles the same-day stability formula. It is on by default.
func WithShortTerm(enabled bool) Option {
	return func(m *Model) {
		m.shortTerm = enabled
	}
}

// Model evaluates memory state transitions for one parameter vector.
// It is immutable after construction and safe for concurrent use.
type Model struct {
	w         params.Vector
	shortTerm bool
}

// New builds a Model from a raw parameter vector. A nil or empty vector
// selects the defaults.
func New(w []float64, opts ...Option) (*Model, error) {
	v, err := params.Normalize(w)
	if err != nil {
		return nil, err
	}
	return newModel(v, opts...), nil
}

// NewDefault builds a Model with the default parameters.
func NewDefault(opts ...Option) *Model {
	return newModel(params.Default(), opts...)
}

// FromVector wraps an already normalized vector without copying it. The
// optimizer uses it to evaluate perturbed vectors cheaply.
func FromVector(v params.Vector, opts ...Option) *Model {
	return newModel(v, opts...)
}

func newModel(v params.Vector, opts ...Option) *Model {
	m := &Model{w: v, shortTerm: true}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Parameters returns a copy of the model's vector.
func (m *Model) Parameters() params.Vector {
	return m.w.Clone()
}

// ShortTerm reports whether same-day reviews use the short-term formula.
func (m *Model) ShortTerm() bool {
	return m.shortTerm
}

// InitialState is the memory after the very first review of a card.
func (m *Model) InitialState(r model.Rating) model.MemoryState {
	r = r.Clamp()
	return model.MemoryState{
		Stability:  clampStability(m.w[r-1]),
		Difficulty: clampDifficulty(m.initDifficulty(r)),
	}
}

// NextState applies one review with the given rating to prior. A nil prior,
// or one without positive stability, yields InitialState and elapsedDays is
// ignored. A non-finite prior difficulty is replaced by the Good initial
// difficulty.
func (m *Model) NextState(prior *model.MemoryState, elapsedDays float64, r model.Rating) model.MemoryState {
	r = r.Clamp()
	if !hasMemory(prior) {
		return m.InitialState(r)
	}
	s := prior.Stability
	d := prior.Difficulty
	if math.IsNaN(d) || math.IsInf(d, 0) {
		d = m.initDifficulty(model.Good)
	}
	d = clampDifficulty(d)
	if elapsedDays < 0 || math.IsNaN(elapsedDays) {
		elapsedDays = 0
	}

	var next float64
	switch {
	case elapsedDays == 0 && m.shortTerm:
		next = m.shortTermStability(s, r)
	case r == model.Again:
		next = m.forgetStability(d, s, Retrievability(s, elapsedDays))
	default:
		next = m.recallStability(d, s, Retrievability(s, elapsedDays), r)
	}

	return model.MemoryState{
		Stability:  clampStability(next),
		Difficulty: m.nextDifficulty(d, r),
	}
}

// Branches holds the next state for each rating, indexed by rating-1.
type Branches [4]model.MemoryState

// For returns the branch of rating r, clamping r into range.
func (b Branches) For(r model.Rating) model.MemoryState {
	return b[r.Clamp()-1]
}

// NextStates applies every rating to the same prior.
func (m *Model) NextStates(prior *model.MemoryState, elapsedDays float64) Branches {
	var out Branches
	for _, r := range model.Ratings {
		out[r-1] = m.NextState(prior, elapsedDays, r)
	}
	return out
}

func hasMemory(s *model.MemoryState) bool {
	return s != nil && s.Stability > 0 && !math.IsNaN(s.Stability) && !math.IsInf(s.Stability, 0)
}

// initDifficulty is D0(G) = w4 - e^(w5*(G-1)) + 1, unclamped.
func (m *Model) initDifficulty(r model.Rating) float64 {
	return m.w[4] - math.Exp(m.w[5]*float64(r-1)) + 1
}

// nextDifficulty applies the rating delta with linear damping towards 10,
// then mean-reverts towards D0(Easy).
func (m *Model) nextDifficulty(d float64, r model.Rating) float64 {
	delta := -m.w[6] * (float64(r) - 3)
	damped := d + delta*(10-d)/9
	reverted := m.w[7]*m.initDifficulty(model.Easy) + (1-m.w[7])*damped
	return clampDifficulty(reverted)
}

// recallStability grows s after a successful review. The gain shrinks as
// s and retrievability rise.
func (m *Model) recallStability(d, s, ret float64, r model.Rating) float64 {
	hardPenalty := 1.0
	if r == model.Hard {
		hardPenalty = m.w[15]
	}
	easyBonus := 1.0
	if r == model.Easy {
		easyBonus = m.w[16]
	}
	return s * (1 + math.Exp(m.w[8])*
		(11-d)*
		math.Pow(s, -m.w[9])*
		(math.Exp((1-ret)*m.w[10])-1)*
		hardPenalty*easyBonus)
}

// forgetStability is the post-lapse stability, capped so a lapse never
// leaves the card more stable than the short-term floor allows.
func (m *Model) forgetStability(d, s, ret float64) float64 {
	long := m.w[11] *
		math.Pow(d, -m.w[12]) *
		(math.Pow(s+1, m.w[13]) - 1) *
		math.Exp((1-ret)*m.w[14])
	short := s / math.Exp(m.w[17]*m.w[18])
	return math.Min(long, short)
}

// shortTermStability handles a same-day review.
func (m *Model) shortTermStability(s float64, r model.Rating) float64 {
	inc := math.Exp(m.w[17]*(float64(r)-3+m.w[18])) * math.Pow(s, -m.w[19])
	if r >= model.Good {
		inc = math.Max(inc, 1)
	}
	return s * inc
}
