package spatialmath

import (
	"image/color"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// Face is a triangle referencing three vertices of a Mesh by index, with an optional color
// carried over from the source file.
type Face struct {
	Indices [3]int
	Color   *color.NRGBA
}

// Mesh is an immutable set of vertices and the triangular faces that connect them.
type Mesh struct {
	vertices []r3.Vector
	faces    []Face
}

// NewMesh returns a mesh of the given vertices and faces, validating that every face
// references existing vertices.
func NewMesh(vertices []r3.Vector, faces []Face) (*Mesh, error) {
	for i, f := range faces {
		for _, idx := range f.Indices {
			if idx < 0 || idx >= len(vertices) {
				return nil, errors.Errorf("face %d references vertex %d but mesh has %d vertices", i, idx, len(vertices))
			}
		}
	}
	return &Mesh{vertices: vertices, faces: faces}, nil
}

// NewMeshFromTriangles returns a mesh with one face per triangle. Shared corners are
// deduplicated by exact position.
func NewMeshFromTriangles(triangles []*Triangle) *Mesh {
	b := newMeshBuilder()
	for _, t := range triangles {
		b.addFace(t.p0, t.p1, t.p2, nil)
	}
	return b.mesh()
}

// Vertices returns the vertices of the mesh. The slice must not be modified.
func (m *Mesh) Vertices() []r3.Vector {
	return m.vertices
}

// Faces returns the faces of the mesh. The slice must not be modified.
func (m *Mesh) Faces() []Face {
	return m.faces
}

// NumFaces returns the number of faces.
func (m *Mesh) NumFaces() int {
	return len(m.faces)
}

// Triangle returns face i as a Triangle.
func (m *Mesh) Triangle(i int) *Triangle {
	idx := m.faces[i].Indices
	return NewTriangle(m.vertices[idx[0]], m.vertices[idx[1]], m.vertices[idx[2]])
}

// Triangles returns every face of the mesh as a Triangle.
func (m *Mesh) Triangles() []*Triangle {
	triangles := make([]*Triangle, 0, len(m.faces))
	for i := range m.faces {
		triangles = append(triangles, m.Triangle(i))
	}
	return triangles
}

// FaceAreas returns the area of every face, in face order.
func (m *Mesh) FaceAreas() []float64 {
	return lo.Map(m.Triangles(), func(t *Triangle, _ int) float64 { return t.Area() })
}

// SurfaceArea returns the total area of all faces.
func (m *Mesh) SurfaceArea() float64 {
	return lo.Sum(m.FaceAreas())
}

// HasFaceColors reports whether any face carries a color.
func (m *Mesh) HasFaceColors() bool {
	return lo.ContainsBy(m.faces, func(f Face) bool { return f.Color != nil })
}

// BoundingBox returns the axis-aligned box containing every vertex. A mesh without
// vertices has an empty box.
func (m *Mesh) BoundingBox() Box {
	box := EmptyBox()
	for _, v := range m.vertices {
		box = box.Expand(v)
	}
	return box
}

// Transform returns a new mesh with (v + offset) * scale applied to every vertex. Faces are
// shared with the receiver.
func (m *Mesh) Transform(offset r3.Vector, scale float64) *Mesh {
	vertices := make([]r3.Vector, 0, len(m.vertices))
	for _, v := range m.vertices {
		vertices = append(vertices, v.Add(offset).Mul(scale))
	}
	return &Mesh{vertices: vertices, faces: m.faces}
}

// meshBuilder accumulates faces, deduplicating vertices by exact position.
type meshBuilder struct {
	vertices []r3.Vector
	faces    []Face
	index    map[r3.Vector]int
}

func newMeshBuilder() *meshBuilder {
	return &meshBuilder{index: map[r3.Vector]int{}}
}

func (b *meshBuilder) vertex(v r3.Vector) int {
	if idx, ok := b.index[v]; ok {
		return idx
	}
	idx := len(b.vertices)
	b.vertices = append(b.vertices, v)
	b.index[v] = idx
	return idx
}

func (b *meshBuilder) addFace(p0, p1, p2 r3.Vector, c *color.NRGBA) {
	b.faces = append(b.faces, Face{Indices: [3]int{b.vertex(p0), b.vertex(p1), b.vertex(p2)}, Color: c})
}

func (b *meshBuilder) mesh() *Mesh {
	return &Mesh{vertices: b.vertices, faces: b.faces}
}
