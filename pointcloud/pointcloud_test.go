package pointcloud

import (
	"image/color"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func TestPointCloudBasic(t *testing.T) {
	pc := New()

	p0 := r3.Vector{0, 0, 0}
	d0 := NewValueData(5)

	test.That(t, pc.Set(p0, d0), test.ShouldBeNil)
	d, got := pc.At(0, 0, 0)
	test.That(t, got, test.ShouldBeTrue)
	test.That(t, d, test.ShouldResemble, d0)

	_, got = pc.At(1, 0, 1)
	test.That(t, got, test.ShouldBeFalse)

	p1 := r3.Vector{1, 0, 1}
	d1 := NewValueData(17)
	test.That(t, pc.Set(p1, d1), test.ShouldBeNil)

	d, got = pc.At(1, 0, 1)
	test.That(t, got, test.ShouldBeTrue)
	test.That(t, d, test.ShouldResemble, d1)
	test.That(t, d, test.ShouldNotResemble, d0)

	p2 := r3.Vector{-1, -2, 1}
	d2 := NewValueData(81)
	test.That(t, pc.Set(p2, d2), test.ShouldBeNil)

	test.That(t, Positions(pc), test.ShouldResemble, []r3.Vector{p0, p1, p2})
	test.That(t, CloudContains(pc, 1, 1, 1), test.ShouldBeFalse)

	meta := pc.MetaData()
	test.That(t, meta.HasValue, test.ShouldBeTrue)
	test.That(t, meta.HasColor, test.ShouldBeFalse)
	test.That(t, meta.Min(), test.ShouldResemble, r3.Vector{-1, -2, 0})
	test.That(t, meta.Max(), test.ShouldResemble, r3.Vector{1, 0, 1})

	for _, tc := range []struct {
		p   r3.Vector
		msg string
	}{
		{r3.Vector{math.NaN(), 0, 0}, "x component"},
		{r3.Vector{0, math.Inf(1), 0}, "y component"},
		{r3.Vector{0, 0, math.Inf(-1)}, "z component"},
	} {
		err := pc.Set(tc.p, nil)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, tc.msg)
	}
	test.That(t, pc.Size(), test.ShouldEqual, 3)
}

func TestPointCloudKeepsDuplicates(t *testing.T) {
	pc := New()
	test.That(t, pc.Set(r3.Vector{1, 1, 1}, NewValueData(1)), test.ShouldBeNil)
	test.That(t, pc.Set(r3.Vector{2, 2, 2}, NewValueData(2)), test.ShouldBeNil)
	test.That(t, pc.Set(r3.Vector{1, 1, 1}, NewValueData(3)), test.ShouldBeNil)
	test.That(t, pc.Size(), test.ShouldEqual, 3)

	// At reports the first point stored at a position
	d, got := pc.At(1, 1, 1)
	test.That(t, got, test.ShouldBeTrue)
	test.That(t, d.Value(), test.ShouldEqual, 1)

	var values []int
	pc.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		values = append(values, d.Value())
		return true
	})
	test.That(t, values, test.ShouldResemble, []int{1, 2, 3})
}

func TestPointCloudIterateBatches(t *testing.T) {
	pc := NewWithPrealloc(10)
	for i := 0; i < 10; i++ {
		test.That(t, pc.Set(r3.Vector{float64(i), 0, 0}, nil), test.ShouldBeNil)
	}

	seen := map[float64]int{}
	for batch := 0; batch < 3; batch++ {
		pc.Iterate(3, batch, func(p r3.Vector, d Data) bool {
			seen[p.X]++
			return true
		})
	}
	test.That(t, len(seen), test.ShouldEqual, 10)
	for _, n := range seen {
		test.That(t, n, test.ShouldEqual, 1)
	}

	count := 0
	pc.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		count++
		return count < 4
	})
	test.That(t, count, test.ShouldEqual, 4)
}

func TestPointCloudCentroid(t *testing.T) {
	pc := New()

	test.That(t, pc.Size(), test.ShouldEqual, 0)
	test.That(t, CloudCentroid(pc), test.ShouldResemble, r3.Vector{0, 0, 0})

	point := r3.Vector{10, 100, 1000}
	test.That(t, pc.Set(point, NewValueData(1)), test.ShouldBeNil)
	test.That(t, CloudCentroid(pc), test.ShouldResemble, point)

	test.That(t, pc.Set(r3.Vector{20, 200, 2000}, NewValueData(2)), test.ShouldBeNil)
	test.That(t, CloudCentroid(pc), test.ShouldResemble, r3.Vector{15, 150, 1500})

	test.That(t, pc.Set(r3.Vector{30, 300, 3000}, NewValueData(3)), test.ShouldBeNil)
	test.That(t, CloudCentroid(pc), test.ShouldResemble, r3.Vector{20, 200, 2000})
}

func TestPointCloudMatrix(t *testing.T) {
	pc := New()
	test.That(t, CloudMatrix(pc), test.ShouldBeNil)

	test.That(t, pc.Set(r3.Vector{1, 2, 3}, nil), test.ShouldBeNil)
	test.That(t, pc.Set(r3.Vector{0, 0, 0}, NewColoredData(color.NRGBA{1, 2, 3, 255})), test.ShouldBeNil)
	test.That(t, CloudMatrix(pc), test.ShouldResemble, mat.NewDense(2, 3, []float64{1, 2, 3, 0, 0, 0}))
}

func TestPointData(t *testing.T) {
	d := NewBasicData()
	test.That(t, d.HasColor(), test.ShouldBeFalse)
	test.That(t, d.HasValue(), test.ShouldBeFalse)

	d.SetColor(color.NRGBA{10, 20, 30, 255}).SetValue(7)
	test.That(t, d.HasColor(), test.ShouldBeTrue)
	r, g, b := d.RGB255()
	test.That(t, []uint8{r, g, b}, test.ShouldResemble, []uint8{10, 20, 30})
	test.That(t, d.Value(), test.ShouldEqual, 7)

	packed := packRGB(d)
	test.That(t, packed, test.ShouldEqual, uint32(10<<16|20<<8|30))
	test.That(t, unpackRGB(packed), test.ShouldResemble, color.NRGBA{10, 20, 30, 255})
}
