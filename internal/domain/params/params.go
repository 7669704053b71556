// Package params holds the positional FSRS parameter vector, its default
// values and the ranges the optimizer keeps it within.
package params

import (
	"fmt"
	"math"

	"github.com/okian/fsrs/internal/domain/model"
)

// Vector lengths accepted by Normalize.
const (
	Len      = 21
	MinLen   = 19
	padShort = 0.0 // w19: no stability damping in the short-term formula
	padDecay = 0.5 // w20: the fixed curve exponent
)

// Vector is a positional parameter vector, always Len entries long once
// normalized.
//
//	w0..w3   initial stability per rating
//	w4..w7   initial difficulty, difficulty delta, mean reversion
//	w8..w10  recall stability growth
//	w11..w14 post-lapse stability
//	w15,w16  hard penalty, easy bonus
//	w17..w19 short-term (same-day) stability
//	w20      curve decay, carried for compatibility
type Vector []float64

// defaults is the FSRS-6 default fit. Never handed out directly.
var defaults = [Len]float64{
	0.212, 1.2931, 2.3065, 8.2956,
	6.4133, 0.8334, 3.0194, 0.001,
	1.8722, 0.1666, 0.796, 1.4835,
	0.0614, 0.2629, 1.6483, 0.6014,
	1.8729, 0.5425, 0.0912, 0.0658,
	0.1542,
}

// LowerBounds is the minimum value of each entry after projection.
var LowerBounds = [Len]float64{
	0.001, 0.001, 0.001, 0.001,
	1.0, 0.001, 0.001, 0.001,
	0.0, 0.0, 0.001, 0.001,
	0.001, 0.001, 0.0, 0.0,
	1.0, 0.0, 0.0, 0.0,
	0.1,
}

// UpperBounds is the maximum value of each entry after projection.
var UpperBounds = [Len]float64{
	100.0, 100.0, 100.0, 100.0,
	10.0, 4.0, 4.0, 0.75,
	4.5, 0.8, 3.5, 5.0,
	0.25, 0.9, 4.0, 1.0,
	6.0, 2.0, 2.0, 0.8,
	0.8,
}

// Default returns a fresh copy of the default vector.
func Default() Vector {
	v := make(Vector, Len)
	copy(v, defaults[:])
	return v
}

// Normalize returns a Len-entry copy of v. A nil or empty v yields the
// default vector; 19 and 20 entry vectors are padded. Any other length or
// a non-finite entry is rejected.
func Normalize(v []float64) (Vector, error) {
	if len(v) == 0 {
		return Default(), nil
	}
	if len(v) < MinLen || len(v) > Len {
		return nil, fmt.Errorf("%w: got %d entries, want %d to %d", model.ErrInvalidParameterVector, len(v), MinLen, Len)
	}
	out := make(Vector, Len)
	copy(out, v)
	if len(v) < 20 {
		out[19] = padShort
	}
	if len(v) < Len {
		out[20] = padDecay
	}
	for i, x := range out {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("%w: w[%d] = %v", model.ErrInvalidParameterVector, i, x)
		}
	}
	return out, nil
}

// Validate checks every entry against LowerBounds and UpperBounds.
func Validate(v Vector) error {
	if len(v) != Len {
		return fmt.Errorf("%w: got %d entries, want %d", model.ErrInvalidParameterVector, len(v), Len)
	}
	for i, x := range v {
		if math.IsNaN(x) || x < LowerBounds[i] || x > UpperBounds[i] {
			return fmt.Errorf("%w: w[%d] = %g, bounds [%g, %g]",
				model.ErrInvalidParameterVector, i, x, LowerBounds[i], UpperBounds[i])
		}
	}
	return nil
}

// Project clamps every entry of v into its bounds in place and returns v.
// NaN entries are reset to the default value.
func Project(v Vector) Vector {
	for i := range v {
		switch {
		case math.IsNaN(v[i]):
			v[i] = defaults[i]
		case v[i] < LowerBounds[i]:
			v[i] = LowerBounds[i]
		case v[i] > UpperBounds[i]:
			v[i] = UpperBounds[i]
		}
	}
	return v
}

// Clone returns an independent copy of v.
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// Float64s returns v as a plain slice copy.
func (v Vector) Float64s() []float64 {
	return []float64(v.Clone())
}
