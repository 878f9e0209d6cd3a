package cli

import (
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/meshcloud/pointcloud"
	"go.viam.com/meshcloud/sampler"
)

const stepConvert = "convert"

func formatVector(v r3.Vector) string {
	return fmt.Sprintf("[%.4f %.4f %.4f]", v.X, v.Y, v.Z)
}

// convertRequestFromFlags builds the conversion request described by the command line.
func convertRequestFromFlags(c *cli.Context) (sampler.ConvertRequest, error) {
	if c.NArg() != 2 {
		return sampler.ConvertRequest{}, errors.Errorf(
			"convert takes an input mesh path and an output cloud path but got %d arguments\nusage: %s",
			c.NArg(), c.Command.UsageText)
	}
	format, err := pointcloud.PCDTypeFromString(c.String(convertFlagFormat))
	if err != nil {
		return sampler.ConvertRequest{}, errors.Wrapf(err, "invalid --%s", convertFlagFormat)
	}
	cfg := sampler.Config{
		Points:        c.Int(convertFlagPoints),
		ReferenceSize: c.Float64(convertFlagScale),
		Color:         sampler.ColorMode(c.String(convertFlagColor)),
	}
	if c.IsSet(convertFlagSeed) {
		seed := c.Int64(convertFlagSeed)
		cfg.Seed = &seed
	}
	if err := cfg.Validate(); err != nil {
		return sampler.ConvertRequest{}, errors.Wrap(err, "invalid options")
	}
	return sampler.ConvertRequest{
		InputPath:   c.Args().Get(0),
		OutputPath:  c.Args().Get(1),
		Config:      cfg,
		Format:      format,
		Preview:     c.Bool(convertFlagVis),
		OpenPreview: c.Bool(convertFlagVis) && !c.Bool(convertFlagNoOpen),
	}, nil
}

// ConvertAction samples a mesh into a point cloud file.
func ConvertAction(c *cli.Context) error {
	req, err := convertRequestFromFlags(c)
	if err != nil {
		return err
	}
	logger := loggerFromContext(c)
	out := c.App.Writer

	pm := NewProgressManager(out, []*Step{
		{ID: stepConvert, Message: fmt.Sprintf("Converting %s", req.InputPath)},
		{ID: string(sampler.StageLoad), Message: "Loading mesh", IndentLevel: 1},
		{ID: string(sampler.StageSample), Message: fmt.Sprintf("Sampling %d points from surface", req.Config.Points), IndentLevel: 1},
		{ID: string(sampler.StagePreview), Message: "Rendering preview", IndentLevel: 1},
		{ID: string(sampler.StageWrite), Message: fmt.Sprintf("Writing %s", req.OutputPath), IndentLevel: 1},
	}, WithProgressOutput(isTerminal(out)))
	defer pm.Stop()

	//nolint:errcheck
	pm.Start(stepConvert)
	req.OnStage = func(stage sampler.Stage) {
		if current := pm.Current(); current != "" {
			//nolint:errcheck
			pm.Complete(current)
		}
		//nolint:errcheck
		pm.Start(string(stage))
	}

	result, err := sampler.Convert(c.Context, req, logger)
	if current := pm.Current(); current != "" {
		if err != nil {
			//nolint:errcheck
			pm.Fail(current, err)
		} else {
			//nolint:errcheck
			pm.Complete(current)
		}
	}
	if err != nil {
		return err
	}
	//nolint:errcheck
	pm.CompleteWithMessage(stepConvert, fmt.Sprintf("Converted %s", req.InputPath))

	printf(out, "Mesh has %d vertices, %d faces", result.Mesh.Vertices, result.Mesh.Faces)
	if result.Mesh.ZeroArea > 0 {
		warningf(out, "%d zero-area faces received no samples", result.Mesh.ZeroArea)
	}
	printf(out, "Point cloud bounds: %s to %s", formatVector(result.CloudMin), formatVector(result.CloudMax))
	if req.Preview {
		if result.PreviewPath != "" {
			printf(out, "Preview: %s", result.PreviewPath)
		} else {
			warningf(out, "the preview could not be rendered; see the log for details")
		}
	}
	printf(out, "Saved %d points to: %s", result.Points, result.OutputPath)
	successf(out, "Done! Copy the .pcd file to your repo and update the loader path.")
	return nil
}
