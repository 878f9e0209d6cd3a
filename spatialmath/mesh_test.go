package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func makeSimpleTriangleMesh() *Mesh {
	return NewMeshFromTriangles([]*Triangle{
		NewTriangle(r3.Vector{X: 0, Y: 0, Z: 0}, r3.Vector{X: 1, Y: 0, Z: 0}, r3.Vector{X: 0, Y: 1, Z: 0}),
		NewTriangle(r3.Vector{X: 1, Y: 1, Z: 0}, r3.Vector{X: 1, Y: 0, Z: 0}, r3.Vector{X: 0, Y: 1, Z: 0}),
		NewTriangle(r3.Vector{X: 0, Y: 0, Z: 10}, r3.Vector{X: 1, Y: 0, Z: 10}, r3.Vector{X: 0, Y: 1, Z: 10}),
	})
}

func TestNewMesh(t *testing.T) {
	vertices := []r3.Vector{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}
	m, err := NewMesh(vertices, []Face{{Indices: [3]int{0, 1, 2}}})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.NumFaces(), test.ShouldEqual, 1)
	test.That(t, m.Triangle(0).Points(), test.ShouldResemble, vertices)

	_, err = NewMesh(vertices, []Face{{Indices: [3]int{0, 1, 3}}})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "references vertex 3")

	_, err = NewMesh(vertices, []Face{{Indices: [3]int{-1, 1, 2}}})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestMeshFromTrianglesDeduplicates(t *testing.T) {
	m := makeSimpleTriangleMesh()
	test.That(t, m.NumFaces(), test.ShouldEqual, 3)
	// the first two triangles share an edge
	test.That(t, len(m.Vertices()), test.ShouldEqual, 7)
	test.That(t, m.SurfaceArea(), test.ShouldAlmostEqual, 1.5)
	test.That(t, m.HasFaceColors(), test.ShouldBeFalse)
}

func TestMeshBoundingBox(t *testing.T) {
	m := makeSimpleTriangleMesh()
	box := m.BoundingBox()
	test.That(t, box.Min, test.ShouldResemble, r3.Vector{0, 0, 0})
	test.That(t, box.Max, test.ShouldResemble, r3.Vector{1, 1, 10})
	test.That(t, box.Center(), test.ShouldResemble, r3.Vector{0.5, 0.5, 5})
	test.That(t, box.MaxDimension(), test.ShouldEqual, 10.0)
	test.That(t, box.Contains(r3.Vector{0.5, 0.5, 10.0000001}, 1e-6), test.ShouldBeTrue)
	test.That(t, box.Contains(r3.Vector{0.5, 0.5, 10.1}, 1e-6), test.ShouldBeFalse)

	empty, err := NewMesh(nil, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, empty.BoundingBox().IsEmpty(), test.ShouldBeTrue)
}

func TestMeshTransform(t *testing.T) {
	mesh := makeSimpleTriangleMesh()

	transformed := mesh.Transform(r3.Vector{X: -0.5, Y: -0.5, Z: -5}, 0.1)
	box := transformed.BoundingBox()
	test.That(t, R3VectorAlmostEqual(box.Center(), r3.Vector{}, 1e-9), test.ShouldBeTrue)
	test.That(t, box.MaxDimension(), test.ShouldAlmostEqual, 1)
	test.That(t, transformed.SurfaceArea(), test.ShouldAlmostEqual, 0.015)

	// the source mesh is unchanged
	test.That(t, mesh.BoundingBox().Max.Z, test.ShouldEqual, 10.0)
}

func TestBoxMesh(t *testing.T) {
	cube := NewBoxMesh(r3.Vector{5, 5, 5}, 2)
	test.That(t, len(cube.Vertices()), test.ShouldEqual, 8)
	test.That(t, cube.NumFaces(), test.ShouldEqual, 12)
	test.That(t, cube.SurfaceArea(), test.ShouldAlmostEqual, 24)
	box := cube.BoundingBox()
	test.That(t, box.Min, test.ShouldResemble, r3.Vector{4, 4, 4})
	test.That(t, box.Max, test.ShouldResemble, r3.Vector{6, 6, 6})
	for _, a := range cube.FaceAreas() {
		test.That(t, a, test.ShouldAlmostEqual, 2)
	}
}

func TestTorusMesh(t *testing.T) {
	torus := NewTorusMesh(1, 0.25, 48, 16)
	test.That(t, len(torus.Vertices()), test.ShouldEqual, 48*16)
	test.That(t, torus.NumFaces(), test.ShouldEqual, 2*48*16)
	// a fine tessellation approaches the analytic area 4*pi^2*R*r
	test.That(t, torus.SurfaceArea(), test.ShouldAlmostEqual, 4*math.Pi*math.Pi*0.25, 0.2)
	box := torus.BoundingBox()
	test.That(t, box.Max.Y, test.ShouldAlmostEqual, 0.25, 0.01)
	test.That(t, box.Max.X, test.ShouldAlmostEqual, 1.25)

	degenerate := NewTorusMesh(1, 0.25, 0, 1)
	test.That(t, degenerate.NumFaces(), test.ShouldEqual, 18)
}
