package model

import "fmt"

// Rating is the learner's self-reported recall outcome.
type Rating int

const (
	Again Rating = iota + 1 // failed to recall
	Hard                    // recalled with serious difficulty
	Good                    // recalled with some effort
	Easy                    // recalled effortlessly
)

// Ratings lists every rating in ascending order.
var Ratings = [...]Rating{Again, Hard, Good, Easy}

var ratingNames = [...]string{Again: "again", Hard: "hard", Good: "good", Easy: "easy"}

// RatingFromInt saturates an arbitrary integer into [Again, Easy].
// Out-of-range grades are not an error.
func RatingFromInt(v int) Rating {
	return Rating(v).Clamp()
}

// Clamp saturates r into [Again, Easy].
func (r Rating) Clamp() Rating {
	switch {
	case r < Again:
		return Again
	case r > Easy:
		return Easy
	default:
		return r
	}
}

// IsValid reports whether r is within [Again, Easy] without clamping.
func (r Rating) IsValid() bool {
	return r >= Again && r <= Easy
}

// Recalled reports whether the rating counts as a successful recall.
func (r Rating) Recalled() bool {
	return r.Clamp() != Again
}

func (r Rating) String() string {
	if r.IsValid() {
		return ratingNames[r]
	}
	return fmt.Sprintf("rating(%d)", int(r))
}
