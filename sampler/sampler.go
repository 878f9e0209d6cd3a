// Package sampler turns triangle meshes into point clouds by area-weighted random sampling
// of the mesh surface.
package sampler

import (
	"context"
	"image/color"
	"math/rand"
	"sort"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"go.viam.com/meshcloud/logging"
	"go.viam.com/meshcloud/pointcloud"
	"go.viam.com/meshcloud/spatialmath"
	"go.viam.com/meshcloud/utils"
)

// cancellation is checked once per batch of this many points.
const sampleBatchSize = 4096

// Normalization records how a mesh was moved into the reference frame: every vertex v
// became (v + Offset) * Scale.
type Normalization struct {
	Offset r3.Vector
	Scale  float64
}

// Apply maps a point from the source mesh frame into the normalized frame.
func (n Normalization) Apply(p r3.Vector) r3.Vector {
	return p.Add(n.Offset).Mul(n.Scale)
}

// Normalize translates the mesh so its bounding box center is at the origin, then scales it
// uniformly so its largest dimension equals referenceSize. A mesh whose bounding box has no
// extent is centered but not scaled.
func Normalize(mesh *spatialmath.Mesh, referenceSize float64) (*spatialmath.Mesh, Normalization, error) {
	if !utils.PositiveFinite(referenceSize) {
		return nil, Normalization{}, errors.Errorf("reference size must be a positive number, got %v", referenceSize)
	}
	box := mesh.BoundingBox()
	if box.IsEmpty() {
		return nil, Normalization{}, ErrEmptyMesh
	}
	norm := Normalization{Offset: box.Center().Mul(-1), Scale: 1}
	if largest := box.MaxDimension(); largest > 0 {
		norm.Scale = referenceSize / largest
	}
	return mesh.Transform(norm.Offset, norm.Scale), norm, nil
}

// Sample is a single point drawn from a mesh along with the face it was drawn from.
type Sample struct {
	Face  int
	Point r3.Vector
}

// Sampler draws points from mesh surfaces. A Sampler is not safe for concurrent use since it
// owns its random stream.
type Sampler struct {
	cfg    Config
	rng    *rand.Rand
	fixed  *color.NRGBA
	logger logging.Logger
}

// NewSampler validates cfg and returns a Sampler. When cfg.Seed is nil the random stream is
// seeded from the clock.
func NewSampler(cfg Config, logger logging.Logger) (*Sampler, error) {
	if cfg.Color == "" {
		cfg.Color = ColorNone
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seed := time.Now().UnixNano()
	if cfg.Seed != nil {
		seed = *cfg.Seed
	}
	s := &Sampler{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(seed)), //nolint:gosec
		logger: logger,
	}
	if c, ok, err := cfg.Color.Fixed(); err != nil {
		return nil, err
	} else if ok {
		s.fixed = &c
	}
	return s, nil
}

// Config returns the configuration the sampler was built with.
func (s *Sampler) Config() Config {
	return s.cfg
}

// SampleFaces draws exactly cfg.Points samples from the surface of mesh as given, without
// normalizing it. Faces are chosen with probability proportional to their area, so faces with
// zero area are never chosen.
func (s *Sampler) SampleFaces(ctx context.Context, mesh *spatialmath.Mesh) ([]Sample, error) {
	if mesh == nil || mesh.NumFaces() == 0 {
		return nil, ErrEmptyMesh
	}
	areas := mesh.FaceAreas()
	cumulative := make([]float64, len(areas))
	floats.CumSum(cumulative, areas)
	total := cumulative[len(cumulative)-1]
	if !utils.PositiveFinite(total) {
		return nil, ErrDegenerateMesh
	}
	s.logger.Debugw("sampling mesh surface", "faces", len(areas), "area", total, "points", s.cfg.Points)

	triangles := mesh.Triangles()
	samples := make([]Sample, s.cfg.Points)
	for i := range samples {
		if i%sampleBatchSize == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		target := s.rng.Float64() * total
		// first face whose cumulative area exceeds target; ties land on the earlier face
		// and zero-area faces never exceed their predecessor
		face := sort.Search(len(cumulative), func(j int) bool { return cumulative[j] > target })
		if face == len(cumulative) {
			face = lastWeighted(areas)
		}
		samples[i] = Sample{
			Face:  face,
			Point: triangles[face].PointAt(s.rng.Float64(), s.rng.Float64()),
		}
	}
	return samples, nil
}

// lastWeighted returns the index of the last face with a positive area.
func lastWeighted(areas []float64) int {
	for i := len(areas) - 1; i >= 0; i-- {
		if areas[i] > 0 {
			return i
		}
	}
	return len(areas) - 1
}

// Sample normalizes the mesh and draws exactly cfg.Points points from its surface.
func (s *Sampler) Sample(ctx context.Context, mesh *spatialmath.Mesh) (pointcloud.PointCloud, error) {
	cloud, _, err := s.sample(ctx, mesh)
	return cloud, err
}

func (s *Sampler) sample(ctx context.Context, mesh *spatialmath.Mesh) (pointcloud.PointCloud, Normalization, error) {
	if mesh == nil || mesh.NumFaces() == 0 {
		return nil, Normalization{}, ErrEmptyMesh
	}
	normalized, norm, err := Normalize(mesh, s.cfg.ReferenceSize)
	if err != nil {
		return nil, Normalization{}, err
	}
	s.logger.Debugw("normalized mesh", "offset", norm.Offset, "scale", norm.Scale,
		"bounds", normalized.BoundingBox().String())

	samples, err := s.SampleFaces(ctx, normalized)
	if err != nil {
		return nil, Normalization{}, err
	}

	colorOf := s.colorer(normalized)
	cloud := pointcloud.NewWithPrealloc(len(samples))
	for _, sample := range samples {
		d := pointcloud.NewBasicData()
		if colorOf != nil {
			d.SetColor(colorOf(sample))
		}
		if err := cloud.Set(sample.Point, d); err != nil {
			return nil, Normalization{}, err
		}
	}
	return cloud, norm, nil
}

// colorer returns the color function for the configured mode, nil when points are uncolored.
func (s *Sampler) colorer(mesh *spatialmath.Mesh) func(Sample) color.NRGBA {
	if s.fixed != nil {
		c := *s.fixed
		return func(Sample) color.NRGBA { return c }
	}
	switch s.cfg.Color {
	case ColorFace:
		faces := mesh.Faces()
		return func(sample Sample) color.NRGBA {
			if c := faces[sample.Face].Color; c != nil {
				return *c
			}
			return DefaultFaceColor
		}
	case ColorHeight:
		box := mesh.BoundingBox()
		span := box.Max.Y - box.Min.Y
		return func(sample Sample) color.NRGBA {
			t := 0.5
			if span > 0 {
				t = (sample.Point.Y - box.Min.Y) / span
			}
			r, g, b := heightLow.BlendHcl(heightHigh, t).Clamped().RGB255()
			return color.NRGBA{R: r, G: g, B: b, A: 0xff}
		}
	default:
		return nil
	}
}
