package fsrs

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/fsrs/internal/simulate"
)

func TestDefaultParameters(t *testing.T) {
	Convey("Given the default parameters", t, func() {
		a := DefaultParameters()
		b := DefaultParameters()

		Convey("Then they should have the documented length and be stable across calls", func() {
			So(a, ShouldHaveLength, ParameterCount)
			So(a, ShouldResemble, b)
			a[0] = -1
			So(DefaultParameters()[0], ShouldNotEqual, -1)
		})
	})
}

func TestScalarOperations(t *testing.T) {
	Convey("Given the boundary operations", t, func() {
		Convey("When computing retrievability", func() {
			Convey("Then the documented examples should hold", func() {
				So(Retrievability(10, 10), ShouldAlmostEqual, 0.9, 1e-12)
				So(Retrievability(0, 100), ShouldEqual, 1.0)
			})
		})

		Convey("When computing retrievability for sequences", func() {
			out, err := RetrievabilityVec([]float64{1, 5}, []float64{2, 5})

			Convey("Then each entry should match the scalar call", func() {
				So(err, ShouldBeNil)
				So(out[0], ShouldEqual, Retrievability(1, 2))
				So(out[1], ShouldEqual, Retrievability(5, 5))
			})

			Convey("Then unequal lengths should be rejected", func() {
				_, err := RetrievabilityVec([]float64{1}, nil)
				So(errors.Is(err, ErrInvalidInput), ShouldBeTrue)
			})

			Convey("Then empty input should give empty output", func() {
				out, err := RetrievabilityVec(nil, nil)
				So(err, ShouldBeNil)
				So(out, ShouldBeEmpty)
			})
		})

		Convey("When scheduling", func() {
			ivl, err := NextInterval(10, 0.9, nil)
			So(err, ShouldBeNil)

			Convey("Then the interval should invert the curve", func() {
				So(ivl, ShouldEqual, 10)
			})

			Convey("Then invalid retention and parameters should be rejected", func() {
				_, err := NextInterval(10, 1.5, nil)
				So(errors.Is(err, ErrInvalidRetention), ShouldBeTrue)
				_, err = NextInterval(10, 0.9, []float64{1})
				So(errors.Is(err, ErrInvalidParameterVector), ShouldBeTrue)
			})
		})

		Convey("When deriving states", func() {
			again, err := InitialState(1, nil)
			So(err, ShouldBeNil)
			easy, err := InitialState(4, nil)
			So(err, ShouldBeNil)
			clamped, err := InitialState(17, nil)
			So(err, ShouldBeNil)
			next, err := NextState(again.Stability, again.Difficulty, 1, 3, nil)
			So(err, ShouldBeNil)

			Convey("Then a non-finite prior difficulty should fall back to the Good initial difficulty", func() {
				good, _ := InitialState(3, nil)
				nan, err := NextState(5, math.NaN(), 3, 3, nil)
				So(err, ShouldBeNil)
				want, _ := NextState(5, good.Difficulty, 3, 3, nil)
				So(nan, ShouldResemble, want)
				So(math.IsNaN(nan.Stability), ShouldBeFalse)
			})

			Convey("Then ratings should be ordered and clamped", func() {
				So(again.Stability, ShouldBeLessThan, easy.Stability)
				So(clamped, ShouldResemble, easy)
				So(next.Stability, ShouldBeGreaterThan, again.Stability)
			})
		})

		Convey("When repeating a new card", func() {
			set, err := Repeat(nil, nil, 0, 0.9, nil)
			So(err, ShouldBeNil)
			good, _ := InitialState(3, nil)

			Convey("Then outcomes should come from initial states", func() {
				So(set.Good.MemoryState, ShouldResemble, good)
				So(set.Good.Interval, ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When repeating with only a stability", func() {
			s := 12.0
			set, err := Repeat(&s, nil, 12, 0.9, nil)
			So(err, ShouldBeNil)

			Convey("Then a successful review should grow stability", func() {
				So(set.Good.Stability, ShouldBeGreaterThan, s)
				So(set.Again.Stability, ShouldBeLessThan, s)
			})
		})

		Convey("When importing an SM-2 card", func() {
			st, err := FromSM2(2.5, 30, 0.9, nil)
			_, bad := FromSM2(-2, 30, 0.9, nil)

			Convey("Then the stability should reproduce the interval", func() {
				So(err, ShouldBeNil)
				So(st.Stability, ShouldAlmostEqual, 30, 1e-9)
				So(errors.Is(bad, ErrInvalidEaseFactor), ShouldBeTrue)
			})
		})
	})
}

func TestReplayHistory(t *testing.T) {
	Convey("Given a single card's review log", t, func() {
		ratings := []int{3, 3, 1}
		deltas := []int{0, 4, 9}

		Convey("When replayed without a seed", func() {
			got, err := ReplayHistory(ratings, deltas, nil, nil, nil)
			So(err, ShouldBeNil)

			Convey("Then it should equal stepping through NextState", func() {
				s, _ := InitialState(3, nil)
				s, _ = NextState(s.Stability, s.Difficulty, 4, 3, nil)
				s, _ = NextState(s.Stability, s.Difficulty, 9, 1, nil)
				So(got, ShouldResemble, s)
			})
		})

		Convey("When replayed from a seed", func() {
			st, d := 30.0, 4.0
			got, err := ReplayHistory([]int{3}, []int{20}, &st, &d, nil)
			So(err, ShouldBeNil)

			Convey("Then every review should apply to the seed", func() {
				want, _ := NextState(st, d, 20, 3, nil)
				So(got, ShouldResemble, want)
			})
		})

		Convey("When the log is empty or malformed", func() {
			_, empty := ReplayHistory(nil, nil, nil, nil, nil)
			_, mismatch := ReplayHistory([]int{3}, nil, nil, nil, nil)
			_, overflow := ReplayHistory([]int{3, 3}, []int{0, int(int64(math.MaxUint32) + 2)}, nil, nil, nil)

			Convey("Then it should fail", func() {
				So(errors.Is(empty, ErrEmptyHistory), ShouldBeTrue)
				So(errors.Is(mismatch, ErrInvalidInput), ShouldBeTrue)
				So(errors.Is(overflow, ErrInvalidInput), ShouldBeTrue)
			})
		})
	})
}

func TestOptimizeAndEvaluate(t *testing.T) {
	Convey("Given a simulated review log", t, func() {
		cfg := simulate.DefaultCorpusConfig()
		cfg.Cards = 50
		cfg.ReviewsPerCard = 6
		corpus, err := simulate.Generate(context.Background(), cfg)
		So(err, ShouldBeNil)
		ratings, deltas, starts := corpus.Flatten()

		Convey("When optimizing", func() {
			res := Optimize(context.Background(), ratings, deltas, starts, true, WithEpochs(2), WithBatchSize(128))

			Convey("Then a full vector should be returned", func() {
				So(res.Success, ShouldBeTrue)
				So(res.Error, ShouldBeEmpty)
				So(res.Parameters, ShouldHaveLength, ParameterCount)
			})

			Convey("Then the fitted vector should evaluate no worse than the defaults", func() {
				fitted := Evaluate(ratings, deltas, starts, res.Parameters)
				base := Evaluate(ratings, deltas, starts, nil)
				So(fitted.Success, ShouldBeTrue)
				So(fitted.LogLoss, ShouldBeLessThanOrEqualTo, base.LogLoss+1e-9)
			})
		})

		Convey("When optimizing twice with the same seed", func() {
			a := Optimize(context.Background(), ratings, deltas, starts, true, WithEpochs(1), WithBatchSize(64), WithSeed(3))
			b := Optimize(context.Background(), ratings, deltas, starts, true, WithEpochs(1), WithBatchSize(64), WithSeed(3))

			Convey("Then the vectors should be identical", func() {
				So(a.Parameters, ShouldResemble, b.Parameters)
			})
		})

		Convey("When every elapsed time is zero", func() {
			zeros := make([]int, len(deltas))
			res := Optimize(context.Background(), ratings, zeros, starts, true)

			Convey("Then it should fail with an empty vector and a message", func() {
				So(res.Success, ShouldBeFalse)
				So(res.Parameters, ShouldBeEmpty)
				So(res.Error, ShouldContainSubstring, ErrNoTrainableData.Error())
			})
		})

		Convey("When evaluating defaults against an all-zero vector", func() {
			def := Evaluate(ratings, deltas, starts, nil)
			zero := Evaluate(ratings, deltas, starts, make([]float64, ParameterCount))

			Convey("Then the defaults should have strictly lower log-loss", func() {
				So(def.Success, ShouldBeTrue)
				So(zero.Success, ShouldBeTrue)
				So(def.LogLoss, ShouldBeLessThan, zero.LogLoss)
				So(math.IsNaN(def.CalibrationError), ShouldBeFalse)
			})
		})

		Convey("When evaluating an empty log", func() {
			res := Evaluate(nil, nil, nil, nil)

			Convey("Then it should report failure", func() {
				So(res.Success, ShouldBeFalse)
				So(res.Error, ShouldNotBeEmpty)
				_, err := EvaluateLog(nil, nil, nil, nil)
				So(errors.Is(err, ErrEmptyHistory), ShouldBeTrue)
			})

			Convey("Then the failed result should still encode as JSON with zero scores", func() {
				So(res.LogLoss, ShouldEqual, 0)
				So(res.CalibrationError, ShouldEqual, 0)
				So(res.Items, ShouldEqual, 0)
				_, err := json.Marshal(res)
				So(err, ShouldBeNil)
			})
		})
	})
}
