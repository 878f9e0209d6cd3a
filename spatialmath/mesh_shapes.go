package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
)

// NewTorusMesh returns a torus around the Y axis centered on the origin with the given major
// radius (center of the tube) and minor radius (tube radius). segments is the number of
// subdivisions around the major circle and rings around the tube; both are raised to 3.
func NewTorusMesh(majorRadius, minorRadius float64, segments, rings int) *Mesh {
	segments = max(segments, 3)
	rings = max(rings, 3)

	vertices := make([]r3.Vector, 0, segments*rings)
	for s := 0; s < segments; s++ {
		u := 2 * math.Pi * float64(s) / float64(segments)
		for r := 0; r < rings; r++ {
			v := 2 * math.Pi * float64(r) / float64(rings)
			dist := majorRadius + minorRadius*math.Cos(v)
			vertices = append(vertices, r3.Vector{
				X: dist * math.Cos(u),
				Y: minorRadius * math.Sin(v),
				Z: dist * math.Sin(u),
			})
		}
	}

	idx := func(s, r int) int {
		return (s%segments)*rings + r%rings
	}
	faces := make([]Face, 0, 2*segments*rings)
	for s := 0; s < segments; s++ {
		for r := 0; r < rings; r++ {
			v1 := idx(s, r)
			v2 := idx(s+1, r)
			v3 := idx(s+1, r+1)
			v4 := idx(s, r+1)
			faces = append(faces, Face{Indices: [3]int{v1, v2, v3}}, Face{Indices: [3]int{v1, v3, v4}})
		}
	}
	return &Mesh{vertices: vertices, faces: faces}
}
