package pointcloud

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

	"github.com/edaniels/lidario"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	lzf "github.com/zhuyie/golzf"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/meshcloud/logging"
)

// PCDType is the format of a pcd file.
type PCDType int

const (
	// PCDAscii ascii format for pcd.
	PCDAscii PCDType = 0
	// PCDBinary binary format for pcd.
	PCDBinary PCDType = 1
	// PCDCompressed binary format for pcd, LZF compressed and stored column by column.
	PCDCompressed PCDType = 2
)

// String returns the name used on the DATA line of a pcd header.
func (t PCDType) String() string {
	switch t {
	case PCDAscii:
		return "ascii"
	case PCDBinary:
		return "binary"
	case PCDCompressed:
		return "binary_compressed"
	default:
		return fmt.Sprintf("PCDType(%d)", int(t))
	}
}

// PCDTypeFromString parses the name of a pcd data encoding.
func PCDTypeFromString(s string) (PCDType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ascii":
		return PCDAscii, nil
	case "binary", "":
		return PCDBinary, nil
	case "binary_compressed", "compressed":
		return PCDCompressed, nil
	default:
		return PCDBinary, errors.Errorf("unknown pcd data type %q (want ascii, binary or binary_compressed)", s)
	}
}

// CloudExtensions are the file extensions NewFromFile and WriteToFile understand.
var CloudExtensions = []string{".pcd", ".las"}

// NewFromFile returns a pointcloud read in from the given file. The format is chosen by extension.
func NewFromFile(fn string, logger logging.Logger) (PointCloud, error) {
	switch strings.ToLower(filepath.Ext(fn)) {
	case ".pcd":
		//nolint:gosec
		f, err := os.Open(fn)
		if err != nil {
			return nil, err
		}
		defer utils.UncheckedErrorFunc(f.Close)
		pc, err := ReadPCD(f)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot read point cloud %q", fn)
		}
		return pc, nil
	case ".las":
		return NewFromLASFile(fn, logger)
	default:
		return nil, errors.Errorf("do not know how to read file %q", fn)
	}
}

// WriteToFile writes the cloud to fn. The format is chosen by extension and pcdType only
// applies to .pcd files.
func WriteToFile(cloud PointCloud, fn string, pcdType PCDType) (err error) {
	switch strings.ToLower(filepath.Ext(fn)) {
	case ".pcd":
		var f *os.File
		//nolint:gosec
		f, err = os.Create(fn)
		if err != nil {
			return err
		}
		defer func() {
			err = multierr.Combine(err, f.Close())
		}()
		return ToPCD(cloud, f, pcdType)
	case ".las":
		return WriteToLASFile(cloud, fn)
	default:
		return errors.Errorf("do not know how to write file %q", fn)
	}
}

// pointValueDataTag encodes if the point has value data.
const pointValueDataTag = "rc|pv"

// maxPreciseFloat64 is the largest coordinate magnitude LAS round trips without noticeable loss.
const maxPreciseFloat64 = float64(1 << 31)

// NewFromLASFile returns a point cloud from reading a LAS file. If any
// lossiness of points could occur from reading it in, it's reported but is not
// an error.
func NewFromLASFile(fn string, logger logging.Logger) (PointCloud, error) {
	lf, err := lidario.NewLasFile(fn, "r")
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(lf.Close)

	var hasValue bool
	var valueData []byte
	for _, d := range lf.VlrData {
		if d.Description == pointValueDataTag {
			hasValue = true
			valueData = d.BinaryData
			break
		}
	}
	if hasValue && len(valueData) < lf.Header.NumberPoints*8 {
		return nil, errors.Errorf("LAS value record holds %d bytes but %d points need %d",
			len(valueData), lf.Header.NumberPoints, lf.Header.NumberPoints*8)
	}

	pc := NewWithPrealloc(max(0, min(lf.Header.NumberPoints, maxHeaderPrealloc)))
	for i := 0; i < lf.Header.NumberPoints; i++ {
		p, err := lf.LasPoint(i)
		if err != nil {
			return nil, err
		}
		data := p.PointData()

		x, y, z := data.X, data.Y, data.Z
		if math.Abs(x) > maxPreciseFloat64 || math.Abs(y) > maxPreciseFloat64 || math.Abs(z) > maxPreciseFloat64 {
			logger.Warnw("potential floating point lossiness for LAS point",
				"point", r3.Vector{X: x, Y: y, Z: z}, "limit", maxPreciseFloat64)
		}

		dd := NewBasicData()
		if lf.Header.PointFormatID == 2 && p.RgbData() != nil {
			r := uint8(p.RgbData().Red / 256)
			g := uint8(p.RgbData().Green / 256)
			b := uint8(p.RgbData().Blue / 256)
			dd.SetColor(color.NRGBA{r, g, b, 255})
		}
		if hasValue {
			dd.SetValue(int(int64(binary.LittleEndian.Uint64(valueData[i*8 : (i*8)+8]))))
		}

		if err := pc.Set(r3.Vector{X: x, Y: y, Z: z}, dd); err != nil {
			return nil, err
		}
	}
	return pc, nil
}

// WriteToLASFile writes the point cloud out to a LAS file.
func WriteToLASFile(cloud PointCloud, fn string) (err error) {
	lf, err := lidario.NewLasFile(fn, "w")
	if err != nil {
		return
	}
	defer func() {
		cerr := lf.Close()
		err = multierr.Combine(err, cerr)
	}()

	meta := cloud.MetaData()

	pointFormatID := 0
	if meta.HasColor {
		pointFormatID = 2
	}
	if err = lf.AddHeader(lidario.LasHeader{
		PointFormatID: byte(pointFormatID),
	}); err != nil {
		return
	}

	var pVals []int
	if meta.HasValue {
		pVals = make([]int, 0, cloud.Size())
	}
	var lastErr error
	cloud.Iterate(0, 0, func(pos r3.Vector, d Data) bool {
		var lp lidario.LasPointer
		pr0 := &lidario.PointRecord0{
			X: pos.X,
			Y: pos.Y,
			Z: pos.Z,
			BitField: lidario.PointBitField{
				Value: (1) | (1 << 3) | (0 << 6) | (0 << 7),
			},
			ClassBitField: lidario.ClassificationBitField{
				Value: 0,
			},
			ScanAngle:     0,
			UserData:      0,
			PointSourceID: 1,
		}
		lp = pr0

		if meta.HasColor {
			red, green, blue := 255, 255, 255
			if d != nil && d.HasColor() {
				r, g, b := d.RGB255()
				red, green, blue = int(r), int(g), int(b)
			}
			lp = &lidario.PointRecord2{
				PointRecord0: pr0,
				RGB: &lidario.RgbData{
					Red:   uint16(red * 256),
					Green: uint16(green * 256),
					Blue:  uint16(blue * 256),
				},
			}
		}
		if meta.HasValue {
			if d != nil && d.HasValue() {
				pVals = append(pVals, d.Value())
			} else {
				pVals = append(pVals, 0)
			}
		}
		if lerr := lf.AddLasPoint(lp); lerr != nil {
			lastErr = lerr
			return false
		}
		return true
	})
	if lastErr != nil {
		err = lastErr
		return
	}
	if meta.HasValue {
		var buf bytes.Buffer
		for _, v := range pVals {
			b := make([]byte, 8)
			binary.LittleEndian.PutUint64(b, uint64(int64(v)))
			buf.Write(b)
		}
		if err = lf.AddVLR(lidario.VLR{
			UserID:                  "",
			Description:             pointValueDataTag,
			BinaryData:              buf.Bytes(),
			RecordLengthAfterHeader: buf.Len(),
		}); err != nil {
			return
		}
	}

	// nolint:nakedret
	return
}

// pcdField describes one column of a pcd file.
type pcdField struct {
	name  string
	size  int
	typ   byte
	count int
}

func (f pcdField) width() int {
	return f.size * f.count
}

const pcdCommentLine = "# .PCD v0.7 - Point Cloud Data file format"

// maxHeaderPrealloc bounds how many points a reader reserves room for up front. The header is
// not trusted; larger clouds grow as their points are read.
const maxHeaderPrealloc = 1 << 16

// lzfMaxExpansion bounds how many bytes one compressed LZF byte can expand into.
const lzfMaxExpansion = 132

// pcdFieldsFor returns the columns written for a cloud: positions always, then rgb and
// intensity when any point carries them.
func pcdFieldsFor(meta MetaData) []pcdField {
	fields := []pcdField{
		{"x", 4, 'F', 1},
		{"y", 4, 'F', 1},
		{"z", 4, 'F', 1},
	}
	if meta.HasColor {
		fields = append(fields, pcdField{"rgb", 4, 'U', 1})
	}
	if meta.HasValue {
		fields = append(fields, pcdField{"intensity", 4, 'F', 1})
	}
	return fields
}

// ToPCD writes the cloud as a PCD v0.7 file. Points are written in cloud order as an
// unorganized cloud (HEIGHT 1).
func ToPCD(cloud PointCloud, out io.Writer, outputType PCDType) error {
	if outputType < PCDAscii || outputType > PCDCompressed {
		return errors.Errorf("unsupported pcd data type %v", outputType)
	}
	meta := cloud.MetaData()
	fields := pcdFieldsFor(meta)

	w := bufio.NewWriter(out)
	names := make([]string, len(fields))
	sizes := make([]string, len(fields))
	types := make([]string, len(fields))
	counts := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.name
		sizes[i] = strconv.Itoa(f.size)
		types[i] = string(f.typ)
		counts[i] = strconv.Itoa(f.count)
	}
	if _, err := fmt.Fprintf(w, "%s\n"+
		"VERSION 0.7\n"+
		"FIELDS %s\n"+
		"SIZE %s\n"+
		"TYPE %s\n"+
		"COUNT %s\n"+
		"WIDTH %d\n"+
		"HEIGHT 1\n"+
		"VIEWPOINT 0 0 0 1 0 0 0\n"+
		"POINTS %d\n"+
		"DATA %s\n",
		pcdCommentLine,
		strings.Join(names, " "),
		strings.Join(sizes, " "),
		strings.Join(types, " "),
		strings.Join(counts, " "),
		cloud.Size(),
		cloud.Size(),
		outputType,
	); err != nil {
		return err
	}

	var err error
	switch outputType {
	case PCDAscii:
		err = writePCDAscii(cloud, w, fields)
	case PCDBinary:
		err = writePCDBinary(cloud, w, fields)
	case PCDCompressed:
		err = writePCDCompressed(cloud, w, fields)
	}
	if err != nil {
		return err
	}
	return w.Flush()
}

// pcdRow returns the field values of a point in the order of fields.
func pcdRow(pos r3.Vector, d Data, fields []pcdField, row []float64) {
	for i, f := range fields {
		switch f.name {
		case "x":
			row[i] = pos.X
		case "y":
			row[i] = pos.Y
		case "z":
			row[i] = pos.Z
		case "rgb":
			row[i] = 0
			if d != nil && d.HasColor() {
				row[i] = float64(packRGB(d))
			}
		case "intensity":
			row[i] = 0
			if d != nil && d.HasValue() {
				row[i] = float64(d.Value())
			}
		}
	}
}

func putPCDValue(buf []byte, f pcdField, v float64) {
	switch f.typ {
	case 'F':
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(v)))
	default:
		binary.LittleEndian.PutUint32(buf, uint32(v))
	}
}

func writePCDAscii(cloud PointCloud, out io.Writer, fields []pcdField) error {
	var err error
	row := make([]float64, len(fields))
	tokens := make([]string, len(fields))
	cloud.Iterate(0, 0, func(pos r3.Vector, d Data) bool {
		pcdRow(pos, d, fields, row)
		for i, f := range fields {
			if f.typ == 'F' {
				tokens[i] = strconv.FormatFloat(float64(float32(row[i])), 'g', -1, 32)
			} else {
				tokens[i] = strconv.FormatUint(uint64(uint32(row[i])), 10)
			}
		}
		_, err = io.WriteString(out, strings.Join(tokens, " ")+"\n")
		return err == nil
	})
	return err
}

func writePCDBinary(cloud PointCloud, out io.Writer, fields []pcdField) error {
	var err error
	row := make([]float64, len(fields))
	buf := make([]byte, 4*len(fields))
	cloud.Iterate(0, 0, func(pos r3.Vector, d Data) bool {
		pcdRow(pos, d, fields, row)
		for i, f := range fields {
			putPCDValue(buf[4*i:], f, row[i])
		}
		_, err = out.Write(buf)
		return err == nil
	})
	return err
}

// writePCDCompressed stores every column contiguously, compresses the block with LZF and
// prefixes it with the compressed and uncompressed sizes.
func writePCDCompressed(cloud PointCloud, out io.Writer, fields []pcdField) error {
	n := cloud.Size()
	raw := make([]byte, 4*len(fields)*n)
	row := make([]float64, len(fields))
	idx := 0
	cloud.Iterate(0, 0, func(pos r3.Vector, d Data) bool {
		pcdRow(pos, d, fields, row)
		for i, f := range fields {
			putPCDValue(raw[4*(i*n+idx):], f, row[i])
		}
		idx++
		return true
	})

	var compressed []byte
	if len(raw) > 0 {
		compressed = make([]byte, len(raw)+len(raw)/16+64)
		size, err := lzf.Compress(raw, compressed)
		if err != nil {
			return errors.Wrap(err, "cannot compress pcd data")
		}
		compressed = compressed[:size]
	}

	sizes := make([]byte, 8)
	binary.LittleEndian.PutUint32(sizes, uint32(len(compressed)))
	binary.LittleEndian.PutUint32(sizes[4:], uint32(len(raw)))
	if _, err := out.Write(sizes); err != nil {
		return err
	}
	_, err := out.Write(compressed)
	return err
}

type pcdHeader struct {
	fields []pcdField
	width  int
	height int
	points int
	data   PCDType
}

func (h *pcdHeader) fieldIndex(names ...string) int {
	for i, f := range h.fields {
		for _, name := range names {
			if f.name == name {
				return i
			}
		}
	}
	return -1
}

func (h *pcdHeader) rowSize() int {
	size := 0
	for _, f := range h.fields {
		size += f.width()
	}
	return size
}

func parsePCDInts(key string, tokens []string) ([]int, error) {
	vals := make([]int, len(tokens))
	for i, token := range tokens {
		v, err := strconv.Atoi(token)
		if err != nil || v < 0 {
			return nil, errors.Errorf("invalid %s value %q", key, token)
		}
		vals[i] = v
	}
	return vals, nil
}

// parsePCDHeader reads header lines until DATA. Keys may appear in any order; SIZE, TYPE and
// COUNT default to 4, F and 1 when absent.
func parsePCDHeader(in *bufio.Reader) (*pcdHeader, error) {
	header := &pcdHeader{height: 1, width: -1, points: -1}
	var names []string
	var sizes, counts []int
	var types []string
	lineNum := 0
	for {
		line, err := in.ReadString('\n')
		lineNum++
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return nil, errors.Wrapf(err, "error reading pcd header line %d", lineNum)
		}
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		tokens := strings.Fields(line)
		if len(tokens) == 0 {
			continue
		}
		key, values := strings.ToUpper(tokens[0]), tokens[1:]
		switch key {
		case "VERSION":
			if len(values) != 1 || (values[0] != "0.7" && values[0] != ".7") {
				return nil, errors.Errorf("unsupported pcd version %q", strings.Join(values, " "))
			}
		case "FIELDS":
			names = values
		case "SIZE":
			if sizes, err = parsePCDInts(key, values); err != nil {
				return nil, err
			}
		case "TYPE":
			types = values
		case "COUNT":
			if counts, err = parsePCDInts(key, values); err != nil {
				return nil, err
			}
		case "WIDTH", "HEIGHT", "POINTS":
			vals, err := parsePCDInts(key, values)
			if err != nil {
				return nil, err
			}
			if len(vals) != 1 {
				return nil, errors.Errorf("%s takes exactly one value", key)
			}
			switch key {
			case "WIDTH":
				header.width = vals[0]
			case "HEIGHT":
				header.height = vals[0]
			default:
				header.points = vals[0]
			}
		case "VIEWPOINT":
			if len(values) != 7 {
				return nil, errors.Errorf("unexpected number of fields in VIEWPOINT line. Expected 7, got %d", len(values))
			}
		case "DATA":
			if len(values) != 1 {
				return nil, errors.New("DATA takes exactly one value")
			}
			header.data, err = PCDTypeFromString(values[0])
			if err != nil {
				return nil, err
			}
			return header, header.finish(names, sizes, types, counts)
		default:
			return nil, errors.Errorf("unknown pcd header key %q on line %d", tokens[0], lineNum)
		}
	}
}

func (h *pcdHeader) finish(names []string, sizes []int, types []string, counts []int) error {
	if len(names) == 0 {
		return errors.New("pcd header has no FIELDS")
	}
	for key, n := range map[string]int{"SIZE": len(sizes), "TYPE": len(types), "COUNT": len(counts)} {
		if n != 0 && n != len(names) {
			return errors.Errorf("%s has %d values but there are %d fields", key, n, len(names))
		}
	}
	h.fields = make([]pcdField, len(names))
	for i, name := range names {
		f := pcdField{name: name, size: 4, typ: 'F', count: 1}
		if len(sizes) > 0 {
			f.size = sizes[i]
		}
		if len(types) > 0 {
			if len(types[i]) != 1 || !strings.Contains("FIU", strings.ToUpper(types[i])) {
				return errors.Errorf("invalid TYPE %q for field %s", types[i], name)
			}
			f.typ = strings.ToUpper(types[i])[0]
		}
		if len(counts) > 0 {
			f.count = counts[i]
		}
		if !validPCDSize(f) {
			return errors.Errorf("unsupported SIZE %d for %c field %s", f.size, f.typ, name)
		}
		if f.count < 1 {
			return errors.Errorf("field %s has COUNT %d", name, f.count)
		}
		h.fields[i] = f
	}
	for _, axis := range []string{"x", "y", "z"} {
		if h.fieldIndex(axis) < 0 {
			return errors.Errorf("pcd file has no %s field", axis)
		}
	}
	if h.width >= 0 && h.height > 0 && h.width > math.MaxInt/h.height {
		return errors.Errorf("WIDTH %d * HEIGHT %d is too large", h.width, h.height)
	}
	if h.points < 0 {
		if h.width < 0 {
			return errors.New("pcd header has neither POINTS nor WIDTH")
		}
		h.points = h.width * h.height
	}
	if h.width >= 0 && h.points != h.width*h.height {
		return errors.Errorf("POINTS field %d does not match WIDTH*HEIGHT %d", h.points, h.width*h.height)
	}
	if h.points > 0 && h.rowSize() > math.MaxInt/h.points {
		return errors.Errorf("POINTS %d is too large", h.points)
	}
	return nil
}

func validPCDSize(f pcdField) bool {
	switch f.typ {
	case 'F':
		return f.size == 4 || f.size == 8
	default:
		return f.size == 1 || f.size == 2 || f.size == 4 || f.size == 8
	}
}

// decodePCDValue decodes one little endian element of a binary pcd field.
func decodePCDValue(buf []byte, f pcdField) float64 {
	switch {
	case f.typ == 'F' && f.size == 4:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(buf)))
	case f.typ == 'F':
		return math.Float64frombits(binary.LittleEndian.Uint64(buf))
	case f.typ == 'U':
		switch f.size {
		case 1:
			return float64(buf[0])
		case 2:
			return float64(binary.LittleEndian.Uint16(buf))
		case 4:
			return float64(binary.LittleEndian.Uint32(buf))
		default:
			return float64(binary.LittleEndian.Uint64(buf))
		}
	default:
		switch f.size {
		case 1:
			return float64(int8(buf[0]))
		case 2:
			return float64(int16(binary.LittleEndian.Uint16(buf)))
		case 4:
			return float64(int32(binary.LittleEndian.Uint32(buf)))
		default:
			return float64(int64(binary.LittleEndian.Uint64(buf)))
		}
	}
}

// ReadPCD reads a PCD v0.7 file in any of its data encodings. Points with a non-finite
// coordinate mark invalid entries of organized clouds and are skipped.
func ReadPCD(inRaw io.Reader) (PointCloud, error) {
	in := bufio.NewReader(inRaw)
	header, err := parsePCDHeader(in)
	if err != nil {
		return nil, err
	}
	switch header.data {
	case PCDAscii:
		return readPCDAscii(in, header)
	case PCDBinary:
		return readPCDBinary(in, header)
	case PCDCompressed:
		return readPCDCompressed(in, header)
	default:
		return nil, errors.Errorf("unsupported pcd data type %v", header.data)
	}
}

// pcdPointBuilder turns the first element of every field into a point.
type pcdPointBuilder struct {
	x, y, z, rgb, intensity int
	rgbField                pcdField
	cloud                   PointCloud
}

func newPCDPointBuilder(header *pcdHeader) *pcdPointBuilder {
	b := &pcdPointBuilder{
		x:         header.fieldIndex("x"),
		y:         header.fieldIndex("y"),
		z:         header.fieldIndex("z"),
		rgb:       header.fieldIndex("rgb", "rgba"),
		intensity: header.fieldIndex("intensity"),
		cloud:     NewWithPrealloc(min(header.points, maxHeaderPrealloc)),
	}
	if b.rgb >= 0 {
		b.rgbField = header.fields[b.rgb]
	}
	return b
}

func (b *pcdPointBuilder) add(vals []float64) error {
	pos := r3.Vector{X: vals[b.x], Y: vals[b.y], Z: vals[b.z]}
	if !isFinite(pos) {
		return nil
	}
	d := NewBasicData()
	if b.rgb >= 0 {
		var packed uint32
		if b.rgbField.typ == 'F' {
			// PCL stores rgb as the bit pattern of a float32
			packed = math.Float32bits(float32(vals[b.rgb]))
		} else {
			packed = uint32(vals[b.rgb])
		}
		d.SetColor(unpackRGB(packed))
	}
	if b.intensity >= 0 {
		d.SetValue(int(math.Round(vals[b.intensity])))
	}
	return b.cloud.Set(pos, d)
}

func isFinite(v r3.Vector) bool {
	for _, c := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

func readPCDAscii(in *bufio.Reader, header *pcdHeader) (PointCloud, error) {
	builder := newPCDPointBuilder(header)
	vals := make([]float64, len(header.fields))
	elements := 0
	for _, f := range header.fields {
		elements += f.count
	}
	for i := 0; i < header.points; {
		line, err := in.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || strings.TrimSpace(line) == "") {
			return nil, errors.Errorf("pcd data ended after %d of %d points", i, header.points)
		}
		tokens := strings.Fields(line)
		if len(tokens) == 0 {
			continue
		}
		if len(tokens) != elements {
			return nil, errors.Errorf("point %d has %d values, expected %d", i, len(tokens), elements)
		}
		col := 0
		for j, f := range header.fields {
			token := tokens[col]
			col += f.count
			if f.typ == 'F' {
				vals[j], err = strconv.ParseFloat(token, 64)
			} else {
				var v int64
				v, err = strconv.ParseInt(token, 10, 64)
				vals[j] = float64(v)
			}
			if err != nil {
				return nil, errors.Errorf("invalid value %q for field %s of point %d", token, f.name, i)
			}
		}
		if err := builder.add(vals); err != nil {
			return nil, err
		}
		i++
	}
	return builder.cloud, nil
}

func readPCDBinary(in *bufio.Reader, header *pcdHeader) (PointCloud, error) {
	builder := newPCDPointBuilder(header)
	vals := make([]float64, len(header.fields))
	buf := make([]byte, header.rowSize())
	for i := 0; i < header.points; i++ {
		if _, err := io.ReadFull(in, buf); err != nil {
			return nil, errors.Wrapf(err, "pcd data ended after %d of %d points", i, header.points)
		}
		offset := 0
		for j, f := range header.fields {
			vals[j] = decodePCDValue(buf[offset:], f)
			offset += f.width()
		}
		if err := builder.add(vals); err != nil {
			return nil, err
		}
	}
	return builder.cloud, nil
}

func readPCDCompressed(in *bufio.Reader, header *pcdHeader) (PointCloud, error) {
	sizes := make([]byte, 8)
	if _, err := io.ReadFull(in, sizes); err != nil {
		return nil, errors.Wrap(err, "cannot read compressed pcd sizes")
	}
	compressedSize := binary.LittleEndian.Uint32(sizes)
	rawSize := binary.LittleEndian.Uint32(sizes[4:])
	if want := header.rowSize() * header.points; int64(rawSize) != int64(want) {
		return nil, errors.Errorf("compressed pcd holds %d bytes but the header describes %d", rawSize, want)
	}
	// read what is actually there rather than trusting compressedSize for the allocation
	compressed, err := io.ReadAll(io.LimitReader(in, int64(compressedSize)))
	if err != nil {
		return nil, errors.Wrap(err, "cannot read compressed pcd data")
	}
	if len(compressed) != int(compressedSize) {
		return nil, errors.Errorf("compressed pcd data is truncated: %d of %d bytes", len(compressed), compressedSize)
	}
	if uint64(rawSize) > uint64(compressedSize)*lzfMaxExpansion {
		return nil, errors.Errorf("compressed pcd claims %d bytes from %d compressed bytes", rawSize, compressedSize)
	}
	raw := make([]byte, rawSize)
	if rawSize > 0 {
		n, err := lzf.Decompress(compressed, raw)
		if err != nil {
			return nil, errors.Wrap(err, "cannot decompress pcd data")
		}
		if n != int(rawSize) {
			return nil, errors.Errorf("decompressed %d bytes, expected %d", n, rawSize)
		}
	}

	builder := newPCDPointBuilder(header)
	offsets := make([]int, len(header.fields))
	offset := 0
	for j, f := range header.fields {
		offsets[j] = offset
		offset += f.width() * header.points
	}
	vals := make([]float64, len(header.fields))
	for i := 0; i < header.points; i++ {
		for j, f := range header.fields {
			vals[j] = decodePCDValue(raw[offsets[j]+i*f.width():], f)
		}
		if err := builder.add(vals); err != nil {
			return nil, err
		}
	}
	return builder.cloud, nil
}
