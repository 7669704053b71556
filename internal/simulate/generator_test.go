package simulate

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/fsrs/internal/domain/dataset"
	"github.com/okian/fsrs/internal/domain/model"
	"github.com/okian/fsrs/internal/domain/params"
)

func TestGenerate(t *testing.T) {
	Convey("Given the default corpus configuration", t, func() {
		ctx := context.Background()
		cfg := DefaultCorpusConfig()
		cfg.Cards = 50

		Convey("When a corpus is generated twice with the same seed", func() {
			a, errA := Generate(ctx, cfg)
			b, errB := Generate(ctx, cfg)

			Convey("Then both corpora should be identical", func() {
				So(errA, ShouldBeNil)
				So(errB, ShouldBeNil)
				So(a, ShouldResemble, b)
			})

			Convey("Then every card should have the requested shape", func() {
				So(a.Cards, ShouldHaveLength, 50)
				So(a.Reviews(), ShouldEqual, 50*cfg.ReviewsPerCard)
				ids := map[string]bool{}
				for _, c := range a.Cards {
					So(c.Reviews, ShouldHaveLength, cfg.ReviewsPerCard)
					So(c.Reviews[0].ElapsedDays, ShouldEqual, 0)
					ids[c.ID] = true
				}
				So(ids, ShouldHaveLength, 50)
			})

			Convey("Then the corpus should yield training items", func() {
				So(len(dataset.Items(a.Histories(), 0)), ShouldBeGreaterThan, 50)
			})

			Convey("Then flattening should round-trip through Split", func() {
				ratings, deltaTs, starts := a.Flatten()
				So(starts, ShouldHaveLength, 50)
				So(starts[0], ShouldEqual, 1)
				histories, err := dataset.Split(ratings, deltaTs, starts)
				So(err, ShouldBeNil)
				So(histories, ShouldResemble, a.Histories())
			})
		})

		Convey("When a different seed is used", func() {
			a, _ := Generate(ctx, cfg)
			cfg.Seed++
			b, _ := Generate(ctx, cfg)

			Convey("Then the corpora should differ", func() {
				So(a, ShouldNotResemble, b)
			})
		})

		Convey("When no lapse is ever relearned the same day", func() {
			cfg.SameDayRate = 0
			c, err := Generate(ctx, cfg)
			So(err, ShouldBeNil)

			Convey("Then only first reviews should have zero elapsed days", func() {
				for _, card := range c.Cards {
					for _, r := range card.Reviews[1:] {
						So(r.ElapsedDays, ShouldBeGreaterThan, 0)
					}
				}
			})
		})

		Convey("When the configuration is invalid", func() {
			for _, mutate := range []func(*CorpusConfig){
				func(c *CorpusConfig) { c.Cards = 0 },
				func(c *CorpusConfig) { c.ReviewsPerCard = -1 },
				func(c *CorpusConfig) { c.SameDayRate = 1.5 },
			} {
				bad := cfg
				mutate(&bad)
				_, err := Generate(ctx, bad)
				So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)
			}

			bad := cfg
			bad.Retention = 0
			_, err := Generate(ctx, bad)
			So(errors.Is(err, model.ErrInvalidRetention), ShouldBeTrue)

			bad = cfg
			bad.Parameters = params.Vector{1, 2}
			_, err = Generate(ctx, bad)
			So(errors.Is(err, model.ErrInvalidParameterVector), ShouldBeTrue)
		})

		Convey("When the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := Generate(cctx, cfg)

			Convey("Then generation should stop with the context error", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			})
		})
	})
}
