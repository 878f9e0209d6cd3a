package sampler

import (
	"context"
	"image/color"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/meshcloud/logging"
	"go.viam.com/meshcloud/pointcloud"
	"go.viam.com/meshcloud/spatialmath"
)

func seededConfig(points int, seed int64) Config {
	cfg := DefaultConfig()
	cfg.Points = points
	cfg.Seed = &seed
	return cfg
}

// distanceToSurface returns the distance from p to the closest face of mesh.
func distanceToSurface(mesh *spatialmath.Mesh, p r3.Vector) float64 {
	best := math.Inf(1)
	for _, tri := range mesh.Triangles() {
		best = math.Min(best, tri.ClosestPointToPoint(p).Sub(p).Norm())
	}
	return best
}

func TestConfigValidate(t *testing.T) {
	test.That(t, DefaultConfig().Validate(), test.ShouldBeNil)
	test.That(t, DefaultConfig().Points, test.ShouldEqual, 10000)
	test.That(t, DefaultConfig().ReferenceSize, test.ShouldEqual, 1.0)
	test.That(t, DefaultConfig().Seed, test.ShouldBeNil)

	for _, n := range []int{0, -1, -10000} {
		cfg := DefaultConfig()
		cfg.Points = n
		err := cfg.Validate()
		test.That(t, errors.Is(err, ErrInvalidPointCount), test.ShouldBeTrue)

		_, err = NewSampler(cfg, logging.NewTestLogger(t))
		test.That(t, errors.Is(err, ErrInvalidPointCount), test.ShouldBeTrue)
	}

	for _, size := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		cfg := DefaultConfig()
		cfg.ReferenceSize = size
		test.That(t, cfg.Validate(), test.ShouldNotBeNil)
	}

	for _, mode := range []ColorMode{"", ColorNone, ColorFace, ColorHeight, "#00ff7f"} {
		cfg := DefaultConfig()
		cfg.Color = mode
		test.That(t, cfg.Validate(), test.ShouldBeNil)
	}
	for _, mode := range []ColorMode{"rainbow", "#nothex"} {
		cfg := DefaultConfig()
		cfg.Color = mode
		test.That(t, cfg.Validate(), test.ShouldNotBeNil)
	}
}

func TestNormalize(t *testing.T) {
	mesh, err := spatialmath.NewMesh(
		[]r3.Vector{{10, -3, 7}, {14, -3, 7}, {14, -1, 7}, {10, -1, 8}},
		[]spatialmath.Face{{Indices: [3]int{0, 1, 2}}, {Indices: [3]int{0, 2, 3}}},
	)
	test.That(t, err, test.ShouldBeNil)

	for _, size := range []float64{1, 2.5, 0.01} {
		normalized, norm, err := Normalize(mesh, size)
		test.That(t, err, test.ShouldBeNil)
		box := normalized.BoundingBox()
		test.That(t, spatialmath.R3VectorAlmostEqual(box.Center(), r3.Vector{}, 1e-9), test.ShouldBeTrue)
		test.That(t, box.MaxDimension(), test.ShouldAlmostEqual, size)
		test.That(t, norm.Scale, test.ShouldAlmostEqual, size/4)
		test.That(t, spatialmath.R3VectorAlmostEqual(norm.Apply(mesh.Vertices()[1]), normalized.Vertices()[1], 1e-9),
			test.ShouldBeTrue)
	}
	// the source mesh is untouched
	test.That(t, mesh.Vertices()[0], test.ShouldResemble, r3.Vector{10, -3, 7})

	_, _, err = Normalize(mesh, 0)
	test.That(t, err, test.ShouldNotBeNil)

	// a mesh without extent is centered but not scaled
	point, err := spatialmath.NewMesh([]r3.Vector{{3, 3, 3}}, []spatialmath.Face{{Indices: [3]int{0, 0, 0}}})
	test.That(t, err, test.ShouldBeNil)
	normalized, norm, err := Normalize(point, 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, norm.Scale, test.ShouldEqual, 1.0)
	test.That(t, normalized.Vertices()[0], test.ShouldResemble, r3.Vector{})
}

func TestSampleExactCount(t *testing.T) {
	logger := logging.NewTestLogger(t)
	mesh := spatialmath.NewTorusMesh(2, 0.5, 16, 8)
	for _, n := range []int{1, 2, 7, 4096, 4097, 10000} {
		s, err := NewSampler(seededConfig(n, int64(n)), logger)
		test.That(t, err, test.ShouldBeNil)
		cloud, err := s.Sample(context.Background(), mesh)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, cloud.Size(), test.ShouldEqual, n)
	}
}

func TestSampleSinglePoint(t *testing.T) {
	s, err := NewSampler(seededConfig(1, 3), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	cloud, err := s.Sample(context.Background(), spatialmath.NewBoxMesh(r3.Vector{}, 1))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cloud.Size(), test.ShouldEqual, 1)
	p := pointcloud.Positions(cloud)[0]
	for _, c := range []float64{p.X, p.Y, p.Z} {
		test.That(t, math.IsNaN(c) || math.IsInf(c, 0), test.ShouldBeFalse)
		test.That(t, math.Abs(c), test.ShouldBeLessThanOrEqualTo, 0.5+1e-9)
	}
}

func TestCubeScenario(t *testing.T) {
	cube := spatialmath.NewBoxMesh(r3.Vector{5, 5, 5}, 2)
	test.That(t, len(cube.Vertices()), test.ShouldEqual, 8)
	test.That(t, cube.NumFaces(), test.ShouldEqual, 12)

	s, err := NewSampler(seededConfig(1000, 42), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	cloud, err := s.Sample(context.Background(), cube)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cloud.Size(), test.ShouldEqual, 1000)

	normalized, _, err := Normalize(cube, DefaultReferenceSize)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, spatialmath.R3VectorAlmostEqual(normalized.BoundingBox().Center(), r3.Vector{}, 1e-9), test.ShouldBeTrue)

	for _, p := range pointcloud.Positions(cloud) {
		test.That(t, distanceToSurface(normalized, p), test.ShouldBeLessThan, 1e-9)
		// every point lies on one of the six faces of the unit cube
		maxAbs := math.Max(math.Abs(p.X), math.Max(math.Abs(p.Y), math.Abs(p.Z)))
		test.That(t, maxAbs, test.ShouldAlmostEqual, 0.5, 1e-9)
	}
	meta := cloud.MetaData()
	test.That(t, meta.HasColor, test.ShouldBeFalse)
	test.That(t, meta.MaxX, test.ShouldBeLessThanOrEqualTo, 0.5+1e-9)
	test.That(t, meta.MinX, test.ShouldBeGreaterThanOrEqualTo, -0.5-1e-9)
}

func TestAreaWeighting(t *testing.T) {
	// two disjoint triangles with areas 2 and 1
	mesh, err := spatialmath.NewMesh(
		[]r3.Vector{{0, 0, 0}, {2, 0, 0}, {0, 2, 0}, {5, 0, 0}, {6, 0, 0}, {5, 2, 0}},
		[]spatialmath.Face{{Indices: [3]int{0, 1, 2}}, {Indices: [3]int{3, 4, 5}}},
	)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mesh.FaceAreas(), test.ShouldResemble, []float64{2, 1})

	const n = 30000
	var ratios []float64
	for seed := int64(1); seed <= 5; seed++ {
		s, err := NewSampler(seededConfig(n, seed), logging.NewTestLogger(t))
		test.That(t, err, test.ShouldBeNil)
		samples, err := s.SampleFaces(context.Background(), mesh)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, len(samples), test.ShouldEqual, n)

		counts := [2]int{}
		for _, sample := range samples {
			counts[sample.Face]++
			tri := mesh.Triangle(sample.Face)
			test.That(t, tri.ClosestPointToPoint(sample.Point).Sub(sample.Point).Norm(), test.ShouldBeLessThan, 1e-9)
		}
		ratio := float64(counts[0]) / float64(counts[1])
		test.That(t, ratio, test.ShouldAlmostEqual, 2, 0.15)
		ratios = append(ratios, ratio)
	}
	mean := 0.0
	for _, r := range ratios {
		mean += r / float64(len(ratios))
	}
	test.That(t, mean, test.ShouldAlmostEqual, 2, 0.06)
}

func TestZeroAreaFaces(t *testing.T) {
	vertices := []r3.Vector{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {2, 2, 2}}
	mesh, err := spatialmath.NewMesh(vertices, []spatialmath.Face{
		{Indices: [3]int{0, 0, 1}}, // degenerate
		{Indices: [3]int{0, 1, 2}},
		{Indices: [3]int{3, 3, 3}}, // degenerate
	})
	test.That(t, err, test.ShouldBeNil)

	s, err := NewSampler(seededConfig(5000, 9), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	samples, err := s.SampleFaces(context.Background(), mesh)
	test.That(t, err, test.ShouldBeNil)
	for _, sample := range samples {
		test.That(t, sample.Face, test.ShouldEqual, 1)
	}

	flat, err := spatialmath.NewMesh(vertices, []spatialmath.Face{{Indices: [3]int{0, 1, 1}}, {Indices: [3]int{2, 2, 2}}})
	test.That(t, err, test.ShouldBeNil)
	_, err = s.Sample(context.Background(), flat)
	test.That(t, errors.Is(err, ErrDegenerateMesh), test.ShouldBeTrue)

	empty, err := spatialmath.NewMesh(vertices, nil)
	test.That(t, err, test.ShouldBeNil)
	_, err = s.Sample(context.Background(), empty)
	test.That(t, errors.Is(err, ErrEmptyMesh), test.ShouldBeTrue)
	_, err = s.SampleFaces(context.Background(), empty)
	test.That(t, errors.Is(err, ErrEmptyMesh), test.ShouldBeTrue)
}

func TestSeedDeterminism(t *testing.T) {
	logger := logging.NewTestLogger(t)
	mesh := spatialmath.NewTorusMesh(1, 0.25, 12, 6)
	sample := func(cfg Config) []r3.Vector {
		s, err := NewSampler(cfg, logger)
		test.That(t, err, test.ShouldBeNil)
		cloud, err := s.Sample(context.Background(), mesh)
		test.That(t, err, test.ShouldBeNil)
		return pointcloud.Positions(cloud)
	}

	a := sample(seededConfig(500, 7))
	b := sample(seededConfig(500, 7))
	c := sample(seededConfig(500, 8))
	test.That(t, a, test.ShouldResemble, b)
	test.That(t, a, test.ShouldNotResemble, c)
}

func TestSampleCanceled(t *testing.T) {
	s, err := NewSampler(seededConfig(10, 1), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Sample(ctx, spatialmath.NewBoxMesh(r3.Vector{}, 1))
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
}

func TestSampleColors(t *testing.T) {
	logger := logging.NewTestLogger(t)
	red := &color.NRGBA{R: 255, A: 255}
	mesh, err := spatialmath.NewMesh(
		[]r3.Vector{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
		[]spatialmath.Face{{Indices: [3]int{0, 1, 2}, Color: red}, {Indices: [3]int{0, 1, 3}}},
	)
	test.That(t, err, test.ShouldBeNil)

	sampleWith := func(mode ColorMode) pointcloud.PointCloud {
		cfg := seededConfig(200, 5)
		cfg.Color = mode
		s, err := NewSampler(cfg, logger)
		test.That(t, err, test.ShouldBeNil)
		cloud, err := s.Sample(context.Background(), mesh)
		test.That(t, err, test.ShouldBeNil)
		return cloud
	}

	cloud := sampleWith(ColorNone)
	test.That(t, cloud.MetaData().HasColor, test.ShouldBeFalse)

	cloud = sampleWith(ColorFace)
	test.That(t, cloud.MetaData().HasColor, test.ShouldBeTrue)
	seen := map[color.NRGBA]bool{}
	cloud.Iterate(0, 0, func(p r3.Vector, d pointcloud.Data) bool {
		r, g, b := d.RGB255()
		seen[color.NRGBA{R: r, G: g, B: b, A: 255}] = true
		return true
	})
	test.That(t, seen, test.ShouldResemble, map[color.NRGBA]bool{*red: true, DefaultFaceColor: true})

	cloud = sampleWith("#102030")
	cloud.Iterate(0, 0, func(p r3.Vector, d pointcloud.Data) bool {
		r, g, b := d.RGB255()
		test.That(t, []uint8{r, g, b}, test.ShouldResemble, []uint8{0x10, 0x20, 0x30})
		return true
	})

	// higher points are redder
	cloud = sampleWith(ColorHeight)
	var low, high r3.Vector
	var lowRed, highRed uint8
	first := true
	cloud.Iterate(0, 0, func(p r3.Vector, d pointcloud.Data) bool {
		r, _, _ := d.RGB255()
		if first || p.Y < low.Y {
			low, lowRed = p, r
		}
		if first || p.Y > high.Y {
			high, highRed = p, r
		}
		first = false
		return true
	})
	test.That(t, highRed, test.ShouldBeGreaterThan, lowRed)
}
