package sampler

import (
	"image/color"
	"os"

	"github.com/golang/geo/r3"
	"go.uber.org/multierr"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"go.viam.com/meshcloud/pointcloud"
)

// MaxPreviewPoints bounds the number of points drawn in a preview image.
const MaxPreviewPoints = 5000

// PreviewSuffix is appended to an output path to name its preview image.
const PreviewSuffix = ".preview.png"

type projection struct {
	title  string
	xLabel string
	yLabel string
	xy     func(r3.Vector) (float64, float64)
}

var previewProjections = []projection{
	{"top (XY)", "x", "y", func(p r3.Vector) (float64, float64) { return p.X, p.Y }},
	{"front (XZ)", "x", "z", func(p r3.Vector) (float64, float64) { return p.X, p.Z }},
	{"side (ZY)", "z", "y", func(p r3.Vector) (float64, float64) { return p.Z, p.Y }},
}

// previewPositions returns at most MaxPreviewPoints positions, taking every k-th point.
func previewPositions(cloud pointcloud.PointCloud) []r3.Vector {
	positions := pointcloud.Positions(cloud)
	if len(positions) <= MaxPreviewPoints {
		return positions
	}
	step := (len(positions) + MaxPreviewPoints - 1) / MaxPreviewPoints
	out := make([]r3.Vector, 0, MaxPreviewPoints)
	for i := 0; i < len(positions); i += step {
		out = append(out, positions[i])
	}
	return out
}

// WritePreview renders three orthographic projections of the cloud side by side into a PNG.
func WritePreview(cloud pointcloud.PointCloud, path string) (err error) {
	positions := previewPositions(cloud)

	plots := make([][]*plot.Plot, 1)
	for _, proj := range previewProjections {
		xys := make(plotter.XYs, len(positions))
		for i, p := range positions {
			xys[i].X, xys[i].Y = proj.xy(p)
		}
		scatter, err := plotter.NewScatter(xys)
		if err != nil {
			return err
		}
		scatter.GlyphStyle.Shape = draw.CircleGlyph{}
		scatter.GlyphStyle.Radius = vg.Points(0.8)
		scatter.GlyphStyle.Color = color.NRGBA{R: 0xe6, G: 0x7e, B: 0x22, A: 0x99}

		p := plot.New()
		p.Title.Text = proj.title
		p.X.Label.Text = proj.xLabel
		p.Y.Label.Text = proj.yLabel
		p.Add(plotter.NewGrid(), scatter)
		plots[0] = append(plots[0], p)
	}

	img := vgimg.New(15*vg.Inch, 5*vg.Inch)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows: 1,
		Cols: len(plots[0]),
		PadX: vg.Millimeter * 4,
		PadY: vg.Millimeter * 4,
	}
	canvases := plot.Align(plots, tiles, dc)
	for j, p := range plots[0] {
		p.Draw(canvases[0][j])
	}

	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	_, err = vgimg.PngCanvas{Canvas: img}.WriteTo(f)
	return err
}
