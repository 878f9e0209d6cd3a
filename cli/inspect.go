package cli

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/docker/go-units"
	"github.com/golang/geo/r3"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/meshcloud/pointcloud"
	"go.viam.com/meshcloud/sampler"
	"go.viam.com/meshcloud/spatialmath"
)

// cloudSummary holds the statistics inspect prints for a point cloud.
type cloudSummary struct {
	Points   int
	Fields   string
	Min      r3.Vector
	Max      r3.Vector
	Centroid r3.Vector
	// Spread is the standard deviation along each axis.
	Spread r3.Vector
	// Distances are the distances of each point from the centroid.
	Distances []float64
	MeanDist  float64
	P95Dist   float64
	MaxDist   float64
}

func summarizeCloud(cloud pointcloud.PointCloud) (cloudSummary, error) {
	meta := cloud.MetaData()
	fields := []string{"x", "y", "z"}
	if meta.HasColor {
		fields = append(fields, "rgb")
	}
	if meta.HasValue {
		fields = append(fields, "intensity")
	}
	summary := cloudSummary{Points: cloud.Size(), Fields: strings.Join(fields, " ")}
	if cloud.Size() == 0 {
		return summary, nil
	}
	summary.Min, summary.Max = meta.Min(), meta.Max()
	summary.Centroid = pointcloud.CloudCentroid(cloud)

	m := pointcloud.CloudMatrix(cloud)
	spread := make([]float64, 3)
	for j := range spread {
		std, err := stats.StandardDeviation(mat.Col(nil, j, m))
		if err != nil {
			return cloudSummary{}, err
		}
		spread[j] = std
	}
	summary.Spread = r3.Vector{X: spread[0], Y: spread[1], Z: spread[2]}

	summary.Distances = lo.Map(pointcloud.Positions(cloud), func(p r3.Vector, _ int) float64 {
		return p.Sub(summary.Centroid).Norm()
	})
	var err error
	if summary.MeanDist, err = stats.Mean(summary.Distances); err != nil {
		return cloudSummary{}, err
	}
	if summary.P95Dist, err = stats.Percentile(summary.Distances, 95); err != nil {
		return cloudSummary{}, err
	}
	if summary.MaxDist, err = stats.Max(summary.Distances); err != nil {
		return cloudSummary{}, err
	}
	return summary, nil
}

func renderCloudSummary(w io.Writer, path string, size int64, summary cloudSummary, bins int) error {
	t := table.NewWriter()
	t.SetTitle(filepath.Base(path))
	t.AppendRows([]table.Row{
		{"Format", "point cloud"},
		{"File size", units.HumanSize(float64(size))},
		{"Points", summary.Points},
		{"Fields", summary.Fields},
	})
	if summary.Points > 0 {
		t.AppendSeparator()
		t.AppendRows([]table.Row{
			{"Min", formatVector(summary.Min)},
			{"Max", formatVector(summary.Max)},
			{"Centroid", formatVector(summary.Centroid)},
			{"Std dev", formatVector(summary.Spread)},
			{"Mean distance", fmt.Sprintf("%.4f", summary.MeanDist)},
			{"P95 distance", fmt.Sprintf("%.4f", summary.P95Dist)},
			{"Max distance", fmt.Sprintf("%.4f", summary.MaxDist)},
		})
	}
	printf(w, "%s", t.Render())

	if summary.Points == 0 || bins <= 0 {
		return nil
	}
	printf(w, "\nDistance from centroid:")
	return histogram.Fprint(w, histogram.Hist(bins, summary.Distances), histogram.Linear(40))
}

func renderMeshSummary(w io.Writer, path string, size int64, ms sampler.MeshStats) {
	t := table.NewWriter()
	t.SetTitle(filepath.Base(path))
	t.AppendRows([]table.Row{
		{"Format", "mesh"},
		{"File size", units.HumanSize(float64(size))},
		{"Vertices", ms.Vertices},
		{"Faces", ms.Faces},
		{"Zero-area faces", ms.ZeroArea},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Surface area", fmt.Sprintf("%.6g", ms.SurfaceArea)},
		{"Mean face area", fmt.Sprintf("%.6g", ms.MeanFaceArea)},
		{"Max face area", fmt.Sprintf("%.6g", ms.MaxFaceArea)},
	})
	if !ms.Bounds.IsEmpty() {
		t.AppendRows([]table.Row{
			{"Min", formatVector(ms.Bounds.Min)},
			{"Max", formatVector(ms.Bounds.Max)},
			{"Size", formatVector(ms.Bounds.Dims())},
		})
		if largest := ms.Bounds.MaxDimension(); largest > 0 && !math.IsInf(largest, 0) {
			t.AppendRow(table.Row{"Scale to unit size", fmt.Sprintf("%.6g", sampler.DefaultReferenceSize/largest)})
		}
	}
	printf(w, "%s", t.Render())
}

// InspectAction describes a mesh or point cloud file.
func InspectAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.Errorf("inspect takes one file but got %d arguments\nusage: %s", c.NArg(), c.Command.UsageText)
	}
	path := c.Args().First()
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case lo.Contains(spatialmath.MeshExtensions, ext):
		mesh, err := spatialmath.NewMeshFromFile(path)
		if err != nil {
			return err
		}
		renderMeshSummary(c.App.Writer, path, info.Size(), sampler.DescribeMesh(mesh))
		return nil
	case lo.Contains(pointcloud.CloudExtensions, ext):
		cloud, err := pointcloud.NewFromFile(path, loggerFromContext(c))
		if err != nil {
			return err
		}
		summary, err := summarizeCloud(cloud)
		if err != nil {
			return err
		}
		return renderCloudSummary(c.App.Writer, path, info.Size(), summary, c.Int(inspectFlagBins))
	default:
		return errors.Errorf("cannot inspect %q: extension must be one of %s", path,
			strings.Join(append(append([]string{}, spatialmath.MeshExtensions...), pointcloud.CloudExtensions...), ", "))
	}
}
