package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
)

const floatEpsilon = 1e-6

// PlaneNormal returns the unit normal of the plane through three points. Collinear points
// yield the zero vector.
func PlaneNormal(p0, p1, p2 r3.Vector) r3.Vector {
	cross := p1.Sub(p0).Cross(p2.Sub(p0))
	norm := cross.Norm()
	if norm == 0 {
		return r3.Vector{}
	}
	return cross.Mul(1 / norm)
}

// ClosestPointSegmentPoint takes a line segment and a point, and returns the point on the segment
// closest to the given point.
func ClosestPointSegmentPoint(segA, segB, pt r3.Vector) r3.Vector {
	ab := segB.Sub(segA)
	denom := ab.Norm2()
	if denom == 0 {
		return segA
	}
	t := pt.Sub(segA).Dot(ab) / denom
	t = math.Max(0, math.Min(1, t))
	return segA.Add(ab.Mul(t))
}

// R3VectorAlmostEqual compares two r3.Vector objects and returns if they are all within epsilon
// of each other.
func R3VectorAlmostEqual(a, b r3.Vector, epsilon float64) bool {
	return math.Abs(a.X-b.X) < epsilon && math.Abs(a.Y-b.Y) < epsilon && math.Abs(a.Z-b.Z) < epsilon
}
