package sampler

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/meshcloud/logging"
	"go.viam.com/meshcloud/pointcloud"
	"go.viam.com/meshcloud/spatialmath"
	"go.viam.com/meshcloud/utils"
)

// Stage is a step of Convert.
type Stage string

// The stages of Convert, in the order they run.
const (
	StageLoad    Stage = "load"
	StageSample  Stage = "sample"
	StagePreview Stage = "preview"
	StageWrite   Stage = "write"
)

// ConvertRequest describes one mesh to point cloud conversion.
type ConvertRequest struct {
	InputPath  string
	OutputPath string
	Config     Config
	// Format is the PCD data encoding; it is ignored for .las outputs.
	Format pointcloud.PCDType
	// Preview renders a preview image next to the output before it is written.
	Preview bool
	// OpenPreview opens the preview image with the platform viewer.
	OpenPreview bool
	// OnStage, if set, is called as each stage begins. StagePreview is skipped when no
	// preview was requested.
	OnStage func(Stage)
}

// ConvertResult summarizes a finished conversion.
type ConvertResult struct {
	Mesh          MeshStats
	Normalization Normalization
	Points        int
	// CloudMin and CloudMax bound the written points.
	CloudMin    r3.Vector
	CloudMax    r3.Vector
	OutputPath  string
	PreviewPath string
	Duration    time.Duration
}

// MeshStats describes the mesh a conversion read.
type MeshStats struct {
	Vertices     int
	Faces        int
	ZeroArea     int
	SurfaceArea  float64
	MeanFaceArea float64
	MaxFaceArea  float64
	Bounds       spatialmath.Box
}

// DescribeMesh computes MeshStats for mesh.
func DescribeMesh(mesh *spatialmath.Mesh) MeshStats {
	areas := mesh.FaceAreas()
	ms := MeshStats{
		Vertices:    len(mesh.Vertices()),
		Faces:       mesh.NumFaces(),
		ZeroArea:    lo.CountBy(areas, func(a float64) bool { return a <= 0 }),
		SurfaceArea: lo.Sum(areas),
		Bounds:      mesh.BoundingBox(),
	}
	if len(areas) > 0 {
		// errors only occur on empty input
		ms.MeanFaceArea, _ = stats.Mean(areas)
		ms.MaxFaceArea, _ = stats.Max(areas)
	}
	return ms
}

// ValidateOutputPath checks that the output extension is one a point cloud can be written to.
func ValidateOutputPath(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if !lo.Contains(pointcloud.CloudExtensions, ext) {
		return errors.Errorf("cannot write point cloud to %q: extension must be one of %s",
			path, strings.Join(pointcloud.CloudExtensions, ", "))
	}
	return nil
}

// Convert loads a mesh, samples it and writes the resulting point cloud. The output is written
// to a temporary file and moved into place, so a failed run never leaves a partial file.
// Preview failures are logged and do not fail the conversion.
func Convert(ctx context.Context, req ConvertRequest, logger logging.Logger) (*ConvertResult, error) {
	start := time.Now()
	if err := ValidateOutputPath(req.OutputPath); err != nil {
		return nil, err
	}
	s, err := NewSampler(req.Config, logger)
	if err != nil {
		return nil, err
	}

	onStage := func(stage Stage) {
		if req.OnStage != nil {
			req.OnStage(stage)
		}
	}

	onStage(StageLoad)
	mesh, err := spatialmath.NewMeshFromFile(req.InputPath)
	if err != nil {
		return nil, err
	}
	meshStats := DescribeMesh(mesh)
	logger.Infow("loaded mesh",
		"path", req.InputPath,
		"vertices", meshStats.Vertices,
		"faces", meshStats.Faces,
		"surface_area", meshStats.SurfaceArea,
		"bounds", meshStats.Bounds.String())
	if meshStats.ZeroArea > 0 {
		logger.Warnw("mesh has zero-area faces; they will receive no samples", "count", meshStats.ZeroArea)
	}

	onStage(StageSample)
	cloud, norm, err := s.sample(ctx, mesh)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot sample %q", req.InputPath)
	}

	meta := cloud.MetaData()
	result := &ConvertResult{
		Mesh:          meshStats,
		Normalization: norm,
		Points:        cloud.Size(),
		CloudMin:      meta.Min(),
		CloudMax:      meta.Max(),
		OutputPath:    req.OutputPath,
	}

	if req.Preview {
		onStage(StagePreview)
		previewPath := req.OutputPath + PreviewSuffix
		if err := WritePreview(cloud, previewPath); err != nil {
			logger.Warnw("cannot render preview", "path", previewPath, "error", err)
		} else {
			result.PreviewPath = previewPath
			logger.Infow("wrote preview", "path", previewPath)
			if req.OpenPreview {
				if err := utils.OpenFileDefault(previewPath); err != nil {
					logger.Warnw("cannot open preview", "error", err)
				}
			}
		}
	}

	onStage(StageWrite)
	if err := utils.WriteFileAtomic(req.OutputPath, func(tmpPath string) error {
		return pointcloud.WriteToFile(cloud, tmpPath, req.Format)
	}); err != nil {
		return nil, errors.Wrapf(err, "cannot write %q", req.OutputPath)
	}
	result.Duration = time.Since(start)
	logger.Infow("wrote point cloud", "path", req.OutputPath, "points", cloud.Size(), "duration", result.Duration)
	return result, nil
}
