package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	dedupe "github.com/okian/fsrs/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given a new InMemoryDeduper", t, func() {
		ctx := context.Background()

		Convey("When creating a deduper with default options", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("Then it should be empty", func() {
				So(d, ShouldNotBeNil)
				So(d.Size(), ShouldEqual, 0)
			})
		})

		Convey("When claiming a new fingerprint", func() {
			d := dedupe.NewInMemoryDeduper()
			id, dup := d.Claim(ctx, "fp-1", "job-1")

			Convey("Then the new job should be bound", func() {
				So(dup, ShouldBeFalse)
				So(id, ShouldEqual, "job-1")
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("And claiming it again with another job", func() {
				id, dup := d.Claim(ctx, "fp-1", "job-2")

				Convey("Then the original job should be returned", func() {
					So(dup, ShouldBeTrue)
					So(id, ShouldEqual, "job-1")
					So(d.Size(), ShouldEqual, 1)
				})
			})

			Convey("And looking it up", func() {
				id, ok := d.Lookup(ctx, "fp-1")
				_, missing := d.Lookup(ctx, "fp-x")

				Convey("Then the binding should be found", func() {
					So(ok, ShouldBeTrue)
					So(id, ShouldEqual, "job-1")
					So(missing, ShouldBeFalse)
				})
			})

			Convey("And releasing it", func() {
				d.Release(ctx, "fp-1")
				id, dup := d.Claim(ctx, "fp-1", "job-3")

				Convey("Then a retry should bind a fresh job", func() {
					So(dup, ShouldBeFalse)
					So(id, ShouldEqual, "job-3")
				})
			})

			Convey("And releasing an unknown key", func() {
				d.Release(ctx, "unknown")

				Convey("Then nothing should change", func() {
					So(d.Size(), ShouldEqual, 1)
				})
			})
		})

		Convey("When the deduper is bounded", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
			for i := 1; i <= 4; i++ {
				d.Claim(ctx, fmt.Sprintf("fp-%d", i), fmt.Sprintf("job-%d", i))
			}

			Convey("Then the oldest binding should be evicted", func() {
				So(d.Size(), ShouldEqual, 3)
				_, ok := d.Lookup(ctx, "fp-1")
				So(ok, ShouldBeFalse)
				for i := 2; i <= 4; i++ {
					_, ok := d.Lookup(ctx, fmt.Sprintf("fp-%d", i))
					So(ok, ShouldBeTrue)
				}
			})

			Convey("And a middle binding is released", func() {
				d.Release(ctx, "fp-3")
				d.Claim(ctx, "fp-5", "job-5")
				d.Claim(ctx, "fp-6", "job-6")

				Convey("Then eviction order should stay intact", func() {
					So(d.Size(), ShouldEqual, 3)
					_, ok := d.Lookup(ctx, "fp-2")
					So(ok, ShouldBeFalse)
					_, ok = d.Lookup(ctx, "fp-4")
					So(ok, ShouldBeTrue)
				})
			})
		})

		Convey("When the deduper is unbounded", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
			for i := 0; i < 500; i++ {
				d.Claim(ctx, fmt.Sprintf("fp-%d", i), "job")
			}

			Convey("Then nothing should be evicted", func() {
				So(d.Size(), ShouldEqual, 500)
			})
		})

		Convey("When many goroutines claim the same fingerprint", func() {
			d := dedupe.NewInMemoryDeduper()
			var wg sync.WaitGroup
			var mu sync.Mutex
			winners := 0
			bound := map[string]struct{}{}
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					id, dup := d.Claim(ctx, "shared", fmt.Sprintf("job-%d", i))
					mu.Lock()
					defer mu.Unlock()
					bound[id] = struct{}{}
					if !dup {
						winners++
					}
				}(i)
			}
			wg.Wait()

			Convey("Then exactly one claim should win", func() {
				So(winners, ShouldEqual, 1)
				So(bound, ShouldHaveLength, 1)
			})
		})
	})
}
