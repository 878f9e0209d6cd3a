package spatialmath

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// Ordered list of unit box vertices.
var boxVertices = [8]r3.Vector{
	{1, 1, 1},
	{1, 1, -1},
	{1, -1, 1},
	{1, -1, -1},
	{-1, 1, 1},
	{-1, 1, -1},
	{-1, -1, 1},
	{-1, -1, -1},
}

// The sets of indices of the box vertices that tile the box exterior.
var boxTriangles = [12][3]int{
	{0, 1, 3},
	{0, 2, 3},
	{0, 1, 5},
	{0, 4, 5},
	{0, 2, 6},
	{0, 4, 6},
	{7, 1, 3},
	{7, 2, 3},
	{7, 1, 5},
	{7, 4, 5},
	{7, 2, 6},
	{7, 4, 6},
}

// Box is an axis-aligned bounding box.
type Box struct {
	Min r3.Vector
	Max r3.Vector
}

// EmptyBox returns a box that contains nothing; expanding it by a point yields that point.
func EmptyBox() Box {
	return Box{
		Min: r3.Vector{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)},
		Max: r3.Vector{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)},
	}
}

// IsEmpty reports whether the box has never been expanded.
func (b Box) IsEmpty() bool {
	return b.Min.X > b.Max.X || b.Min.Y > b.Max.Y || b.Min.Z > b.Max.Z
}

// Expand returns the smallest box containing both b and pt.
func (b Box) Expand(pt r3.Vector) Box {
	return Box{
		Min: r3.Vector{X: math.Min(b.Min.X, pt.X), Y: math.Min(b.Min.Y, pt.Y), Z: math.Min(b.Min.Z, pt.Z)},
		Max: r3.Vector{X: math.Max(b.Max.X, pt.X), Y: math.Max(b.Max.Y, pt.Y), Z: math.Max(b.Max.Z, pt.Z)},
	}
}

// Center returns the center of the box.
func (b Box) Center() r3.Vector {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Dims returns the edge lengths of the box along each axis.
func (b Box) Dims() r3.Vector {
	return b.Max.Sub(b.Min)
}

// MaxDimension returns the largest edge length of the box.
func (b Box) MaxDimension() float64 {
	d := b.Dims()
	return math.Max(d.X, math.Max(d.Y, d.Z))
}

// Contains reports whether pt lies within the box grown by epsilon on every side.
func (b Box) Contains(pt r3.Vector, epsilon float64) bool {
	return pt.X >= b.Min.X-epsilon && pt.X <= b.Max.X+epsilon &&
		pt.Y >= b.Min.Y-epsilon && pt.Y <= b.Max.Y+epsilon &&
		pt.Z >= b.Min.Z-epsilon && pt.Z <= b.Max.Z+epsilon
}

func (b Box) String() string {
	return fmt.Sprintf("[%.4f %.4f %.4f] to [%.4f %.4f %.4f]", b.Min.X, b.Min.Y, b.Min.Z, b.Max.X, b.Max.Y, b.Max.Z)
}

// NewBoxMesh returns a closed triangle mesh of a cube with the given center and edge length:
// 8 vertices and 12 faces.
func NewBoxMesh(center r3.Vector, edge float64) *Mesh {
	half := edge / 2
	vertices := make([]r3.Vector, 0, len(boxVertices))
	for _, v := range boxVertices {
		vertices = append(vertices, center.Add(v.Mul(half)))
	}
	faces := make([]Face, 0, len(boxTriangles))
	for _, tri := range boxTriangles {
		faces = append(faces, Face{Indices: tri})
	}
	return &Mesh{vertices: vertices, faces: faces}
}
