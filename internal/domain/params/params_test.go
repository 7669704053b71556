package params

import (
	"errors"
	"math"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/fsrs/internal/domain/model"
)

func TestDefault(t *testing.T) {
	Convey("Given the default vector", t, func() {
		a := Default()
		b := Default()

		Convey("Then it should have the documented length and be identical across calls", func() {
			So(a, ShouldHaveLength, Len)
			So(a, ShouldResemble, b)
		})

		Convey("Then mutating a copy should not leak into later calls", func() {
			a[0] = 99
			So(Default()[0], ShouldEqual, 0.212)
		})

		Convey("Then it should lie within bounds", func() {
			So(Validate(b), ShouldBeNil)
		})
	})
}

func TestNormalize(t *testing.T) {
	Convey("Given raw parameter slices", t, func() {
		Convey("When the slice is nil", func() {
			v, err := Normalize(nil)

			Convey("Then the default vector should be used", func() {
				So(err, ShouldBeNil)
				So(v, ShouldResemble, Default())
			})
		})

		Convey("When the slice has 19 entries", func() {
			v, err := Normalize(Default()[:19])

			Convey("Then it should be padded", func() {
				So(err, ShouldBeNil)
				So(v, ShouldHaveLength, Len)
				So(v[19], ShouldEqual, 0.0)
				So(v[20], ShouldEqual, 0.5)
			})
		})

		Convey("When the slice has 20 entries", func() {
			v, err := Normalize(Default()[:20])

			Convey("Then only the last entry should be padded", func() {
				So(err, ShouldBeNil)
				So(v[19], ShouldEqual, Default()[19])
				So(v[20], ShouldEqual, 0.5)
			})
		})

		Convey("When the slice has a wrong length", func() {
			_, short := Normalize(make([]float64, 18))
			_, long := Normalize(make([]float64, 22))

			Convey("Then it should be rejected", func() {
				So(errors.Is(short, model.ErrInvalidParameterVector), ShouldBeTrue)
				So(errors.Is(long, model.ErrInvalidParameterVector), ShouldBeTrue)
			})
		})

		Convey("When the slice holds NaN", func() {
			raw := Default()
			raw[3] = math.NaN()
			_, err := Normalize(raw)

			Convey("Then it should be rejected", func() {
				So(errors.Is(err, model.ErrInvalidParameterVector), ShouldBeTrue)
			})
		})

		Convey("When the slice is all zeros", func() {
			v, err := Normalize(make([]float64, Len))

			Convey("Then it should be accepted for evaluation", func() {
				So(err, ShouldBeNil)
				So(Validate(v), ShouldNotBeNil)
			})
		})

		Convey("When the input is modified after normalizing", func() {
			raw := Default().Float64s()
			v, _ := Normalize(raw)
			raw[0] = 50

			Convey("Then the normalized copy should not change", func() {
				So(v[0], ShouldEqual, 0.212)
			})
		})
	})
}

func TestProject(t *testing.T) {
	Convey("Given an out-of-range vector", t, func() {
		v := make(Vector, Len)
		for i := range v {
			v[i] = 1e6
		}
		v[0] = -5
		v[1] = math.NaN()

		Convey("When projected", func() {
			Project(v)

			Convey("Then it should satisfy Validate", func() {
				So(Validate(v), ShouldBeNil)
				So(v[0], ShouldEqual, LowerBounds[0])
				So(v[1], ShouldEqual, Default()[1])
				So(v[4], ShouldEqual, UpperBounds[4])
			})
		})
	})
}
