package spatialmath

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chenzhekl/goply"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"go.viam.com/utils"
)

const (
	stlHeaderSize = 80
	stlRecordSize = 50
	stlColorValid = 1 << 15
)

// ErrUnsupportedMeshFormat is returned when a mesh file extension is not recognized.
var ErrUnsupportedMeshFormat = errors.New("unsupported mesh format")

// MeshExtensions lists the file extensions NewMeshFromFile understands.
var MeshExtensions = []string{".stl", ".obj", ".ply"}

// NewMeshFromFile reads a mesh from an STL, OBJ or PLY file, chosen by extension.
func NewMeshFromFile(path string) (*Mesh, error) {
	var read func(io.Reader) (*Mesh, error)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".stl":
		read = ReadSTL
	case ".obj":
		read = ReadOBJ
	case ".ply":
		read = ReadPLY
	default:
		return nil, errors.Wrapf(ErrUnsupportedMeshFormat, "%q (expected one of %s)", path, strings.Join(MeshExtensions, ", "))
	}

	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)

	m, err := read(bufio.NewReader(f))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot parse mesh %q", path)
	}
	return m, nil
}

// ReadSTL reads a binary or ASCII STL mesh. Binary files whose per-triangle attribute word has
// bit 15 set carry a 15-bit RGB face color which is preserved on the face.
func ReadSTL(r io.Reader) (*Mesh, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	// Binary exporters often start the header with "solid" too, so a file that fits the binary
	// layout is only read as ASCII when it is all text.
	solid := bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("solid"))
	fits := fitsBinarySTL(data)
	switch {
	case fits && (!solid || !isText(data[stlHeaderSize:])):
		return readBinarySTL(data)
	case solid && isText(data):
		return readASCIISTL(data)
	case solid:
		return nil, errors.New("binary STL is shorter than its triangle count")
	}
	return nil, errors.New("not an STL file: no 'solid' keyword and too short for its binary triangle count")
}

// fitsBinarySTL reports whether data holds every record its triangle count claims. Trailing bytes
// are ignored.
func fitsBinarySTL(data []byte) bool {
	if len(data) < stlHeaderSize+4 {
		return false
	}
	n := binary.LittleEndian.Uint32(data[stlHeaderSize:])
	return uint64(len(data)) >= stlHeaderSize+4+uint64(n)*stlRecordSize
}

// isText reports whether data has no control bytes other than whitespace.
func isText(data []byte) bool {
	for _, c := range data {
		if (c < ' ' || c == 0x7f) && c != '\t' && c != '\n' && c != '\r' {
			return false
		}
	}
	return true
}

func readBinarySTL(data []byte) (*Mesh, error) {
	n := int(binary.LittleEndian.Uint32(data[stlHeaderSize:]))
	b := newMeshBuilder()
	var corners [3]r3.Vector
	for i := 0; i < n; i++ {
		rec := data[stlHeaderSize+4+i*stlRecordSize:]
		for v := range corners {
			// skip the 12 byte normal
			off := 12 + 12*v
			corners[v] = r3.Vector{
				X: float64(math.Float32frombits(binary.LittleEndian.Uint32(rec[off:]))),
				Y: float64(math.Float32frombits(binary.LittleEndian.Uint32(rec[off+4:]))),
				Z: float64(math.Float32frombits(binary.LittleEndian.Uint32(rec[off+8:]))),
			}
		}
		b.addFace(corners[0], corners[1], corners[2], stlColor(binary.LittleEndian.Uint16(rec[48:])))
	}
	return b.mesh(), nil
}

// stlColor decodes the VisCAM/SolidView attribute color: 5 bits each of blue, green and red,
// valid when bit 15 is set.
func stlColor(attr uint16) *color.NRGBA {
	if attr&stlColorValid == 0 {
		return nil
	}
	expand := func(v uint16) uint8 {
		v &= 0x1f
		return uint8(v<<3 | v>>2)
	}
	return &color.NRGBA{R: expand(attr >> 10), G: expand(attr >> 5), B: expand(attr), A: 255}
}

func readASCIISTL(data []byte) (*Mesh, error) {
	b := newMeshBuilder()
	scanner := bufio.NewScanner(bytes.NewReader(data))
	var corners []r3.Vector
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch strings.ToLower(fields[0]) {
		case "vertex":
			v, err := parseVector(fields[1:])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNum, err)
			}
			corners = append(corners, v)
		case "endloop":
			if len(corners) < 3 {
				return nil, fmt.Errorf("line %d: facet has %d vertices", lineNum, len(corners))
			}
			for i := 1; i+1 < len(corners); i++ {
				b.addFace(corners[0], corners[i], corners[i+1], nil)
			}
			corners = corners[:0]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return b.mesh(), nil
}

// ReadOBJ reads the geometry of a Wavefront OBJ file. Only vertex positions, optional vertex
// colors and faces are used; polygons are triangulated as fans.
func ReadOBJ(r io.Reader) (*Mesh, error) {
	var vertices []r3.Vector
	var colors []*color.NRGBA
	var faces []Face

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: vertex needs 3 coordinates", lineNum)
			}
			v, err := parseVector(fields[1:4])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNum, err)
			}
			vertices = append(vertices, v)
			var c *color.NRGBA
			if len(fields) >= 7 {
				rgb, err := parseVector(fields[4:7])
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", lineNum, err)
				}
				c = &color.NRGBA{R: unitToByte(rgb.X), G: unitToByte(rgb.Y), B: unitToByte(rgb.Z), A: 255}
			}
			colors = append(colors, c)
		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: face needs at least 3 vertices", lineNum)
			}
			idxs := make([]int, 0, len(fields)-1)
			for _, f := range fields[1:] {
				idx, err := objIndex(f, len(vertices))
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", lineNum, err)
				}
				idxs = append(idxs, idx)
			}
			for i := 1; i+1 < len(idxs); i++ {
				face := Face{Indices: [3]int{idxs[0], idxs[i], idxs[i+1]}}
				face.Color = averageColor(colors[idxs[0]], colors[idxs[i]], colors[idxs[i+1]])
				faces = append(faces, face)
			}
		default:
			// o, g, vn, vt, usemtl, mtllib, s and others carry no geometry we sample.
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return NewMesh(vertices, faces)
}

// objIndex resolves a face element such as "3", "3/1", "3//2" or "-1/2/3" to a zero based
// vertex index. Negative indices are relative to the most recently parsed vertex.
func objIndex(field string, numVertices int) (int, error) {
	vfield, _, _ := strings.Cut(field, "/")
	val, err := strconv.Atoi(vfield)
	if err != nil {
		return 0, fmt.Errorf("invalid face index %q", field)
	}
	var idx int
	switch {
	case val > 0:
		idx = val - 1
	case val < 0:
		idx = numVertices + val
	default:
		return 0, errors.New("face vertex index value equal to 0")
	}
	if idx < 0 || idx >= numVertices {
		return 0, fmt.Errorf("face index %d out of range (%d vertices)", val, numVertices)
	}
	return idx, nil
}

// ReadPLY reads an ASCII PLY mesh. Polygon faces are triangulated as fans and per-vertex
// red/green/blue properties, when present, become face colors.
func ReadPLY(r io.Reader) (mesh *Mesh, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("error reading PLY file: %v", rec)
		}
	}()
	readerPLY := goply.New(r)
	elements := readerPLY.Elements("vertex")
	vertices := make([]r3.Vector, 0, len(elements))
	colors := make([]*color.NRGBA, 0, len(elements))
	for i, e := range elements {
		var v r3.Vector
		if v.X, err = cast.ToFloat64E(e["x"]); err != nil {
			return nil, errors.Wrapf(err, "vertex %d x", i)
		}
		if v.Y, err = cast.ToFloat64E(e["y"]); err != nil {
			return nil, errors.Wrapf(err, "vertex %d y", i)
		}
		if v.Z, err = cast.ToFloat64E(e["z"]); err != nil {
			return nil, errors.Wrapf(err, "vertex %d z", i)
		}
		vertices = append(vertices, v)

		var c *color.NRGBA
		if _, ok := e["red"]; ok {
			c = &color.NRGBA{
				R: cast.ToUint8(e["red"]),
				G: cast.ToUint8(e["green"]),
				B: cast.ToUint8(e["blue"]),
				A: 255,
			}
		}
		colors = append(colors, c)
	}

	var faces []Face
	for i, e := range readerPLY.Elements("face") {
		raw, ok := e["vertex_indices"]
		if !ok {
			raw = e["vertex_index"]
		}
		idxs, err := cast.ToIntSliceE(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "face %d", i)
		}
		if len(idxs) < 3 {
			return nil, errors.Errorf("face %d has %d vertices", i, len(idxs))
		}
		for _, idx := range idxs {
			if idx < 0 || idx >= len(vertices) {
				return nil, errors.Errorf("face %d references vertex %d but mesh has %d vertices", i, idx, len(vertices))
			}
		}
		for j := 1; j+1 < len(idxs); j++ {
			faces = append(faces, Face{
				Indices: [3]int{idxs[0], idxs[j], idxs[j+1]},
				Color:   averageColor(colors[idxs[0]], colors[idxs[j]], colors[idxs[j+1]]),
			})
		}
	}
	return NewMesh(vertices, faces)
}

func parseVector(fields []string) (r3.Vector, error) {
	if len(fields) < 3 {
		return r3.Vector{}, fmt.Errorf("expected 3 coordinates, got %d", len(fields))
	}
	var xyz [3]float64
	for i := range xyz {
		f, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return r3.Vector{}, fmt.Errorf("invalid coordinate %q", fields[i])
		}
		xyz[i] = f
	}
	return r3.Vector{X: xyz[0], Y: xyz[1], Z: xyz[2]}, nil
}

func unitToByte(f float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, f)) * 255))
}

// averageColor returns the mean of the given colors, or nil if any of them is nil.
func averageColor(cs ...*color.NRGBA) *color.NRGBA {
	var r, g, b int
	for _, c := range cs {
		if c == nil {
			return nil
		}
		r += int(c.R)
		g += int(c.G)
		b += int(c.B)
	}
	n := len(cs)
	return &color.NRGBA{R: uint8(r / n), G: uint8(g / n), B: uint8(b / n), A: 255}
}
