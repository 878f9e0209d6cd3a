package sampler

import (
	"image/color"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"

	"go.viam.com/meshcloud/utils"
)

const (
	// DefaultPoints is the number of points sampled when none is requested.
	DefaultPoints = 10000
	// DefaultReferenceSize is the largest bounding box dimension of a normalized mesh.
	DefaultReferenceSize = 1.0
)

var (
	// ErrInvalidPointCount is returned when the requested point count is not positive.
	ErrInvalidPointCount = errors.New("point count must be a positive integer")
	// ErrEmptyMesh is returned when a mesh has no faces to sample.
	ErrEmptyMesh = errors.New("mesh has no faces")
	// ErrDegenerateMesh is returned when every face of a mesh has zero area.
	ErrDegenerateMesh = errors.New("mesh has zero surface area")
)

// ColorMode selects the color attached to each sampled point.
type ColorMode string

const (
	// ColorNone writes positions only.
	ColorNone ColorMode = "none"
	// ColorFace copies the color of the face a point was drawn from.
	ColorFace ColorMode = "face"
	// ColorHeight colors points along a gradient from the lowest to the highest Y.
	ColorHeight ColorMode = "height"
)

// DefaultFaceColor is used in ColorFace mode for faces that carry no color.
var DefaultFaceColor = color.NRGBA{R: 0xcc, G: 0xcc, B: 0xcc, A: 0xff}

// height gradient end points
var (
	heightLow  = colorful.Color{R: 0.17, G: 0.48, B: 0.71}
	heightHigh = colorful.Color{R: 0.84, G: 0.10, B: 0.11}
)

// Fixed returns the color of a "#rrggbb" mode. The second return is false for the named modes.
func (m ColorMode) Fixed() (color.NRGBA, bool, error) {
	if !strings.HasPrefix(string(m), "#") {
		return color.NRGBA{}, false, nil
	}
	c, err := colorful.Hex(string(m))
	if err != nil {
		return color.NRGBA{}, false, errors.Wrapf(err, "invalid color %q", string(m))
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 0xff}, true, nil
}

// Validate returns an error if the mode is neither a named mode nor a hex color.
func (m ColorMode) Validate() error {
	switch m {
	case "", ColorNone, ColorFace, ColorHeight:
		return nil
	}
	if _, ok, err := m.Fixed(); err != nil {
		return err
	} else if !ok {
		return errors.Errorf("unknown color mode %q (want none, face, height or #rrggbb)", string(m))
	}
	return nil
}

// Colored reports whether points sampled in this mode carry a color.
func (m ColorMode) Colored() bool {
	return m != "" && m != ColorNone
}

// Config describes a single sampling run.
type Config struct {
	// Points is the exact number of points to sample.
	Points int `json:"points"`
	// ReferenceSize is the largest bounding box dimension after normalization.
	ReferenceSize float64 `json:"reference_size"`
	// Seed fixes the random stream. Nil means fresh randomness per run.
	Seed *int64 `json:"seed,omitempty"`
	// Color selects the per-point color.
	Color ColorMode `json:"color,omitempty"`
}

// DefaultConfig returns a Config with the default point count and reference size.
func DefaultConfig() Config {
	return Config{
		Points:        DefaultPoints,
		ReferenceSize: DefaultReferenceSize,
		Color:         ColorNone,
	}
}

// Validate ensures all parts of the config are valid.
func (c Config) Validate() error {
	if c.Points <= 0 {
		return errors.Wrapf(ErrInvalidPointCount, "got %d", c.Points)
	}
	if !utils.PositiveFinite(c.ReferenceSize) {
		return errors.Errorf("reference size must be a positive number, got %v", c.ReferenceSize)
	}
	return c.Color.Validate()
}
