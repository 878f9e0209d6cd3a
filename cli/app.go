// Package cli contains the meshcloud command line application.
package cli

import (
	"context"
	"io"
	"strings"

	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"go.viam.com/meshcloud/logging"
	"go.viam.com/meshcloud/pointcloud"
	"go.viam.com/meshcloud/sampler"
	"go.viam.com/meshcloud/web"
)

const (
	flagDebug   = "debug"
	flagLogFile = "log-file"

	convertFlagPoints = "points"
	convertFlagVis    = "vis"
	convertFlagNoOpen = "no-open"
	convertFlagSeed   = "seed"
	convertFlagScale  = "scale"
	convertFlagColor  = "color"
	convertFlagFormat = "format"

	inspectFlagBins = "bins"

	serveFlagAddr   = "addr"
	serveFlagCloud  = "cloud"
	serveFlagConfig = "config"
	serveFlagPprof  = "pprof"
	serveFlagSchema = "print-schema"

	metadataLogger = "logger"
)

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	var logCloser io.Closer
	return &cli.App{
		Name:            "meshcloud",
		Usage:           "turn triangle meshes into point clouds and view them",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.PathFlag{
				Name:      flagLogFile,
				Usage:     "also write logs to a size-rotated `FILE`",
				TakesFile: true,
			},
		},
		Before: func(c *cli.Context) error {
			logger := logging.NewBlankLogger("meshcloud")
			logger.AddAppender(logging.NewWriterAppender(c.App.ErrWriter))
			if c.Bool(flagDebug) {
				logger.SetLevel(logging.DEBUG)
			} else {
				logger.SetLevel(logging.INFO)
			}
			if path := c.Path(flagLogFile); path != "" {
				appender, closer := logging.NewFileAppender(path)
				logger.AddAppender(appender)
				logCloser = closer
			}
			c.App.Metadata = map[string]interface{}{metadataLogger: logger}
			logging.ReplaceGlobal(logger)
			return nil
		},
		After: func(c *cli.Context) error {
			if logger, ok := c.App.Metadata[metadataLogger].(logging.Logger); ok {
				//nolint:errcheck
				logger.Sync()
			}
			if logCloser != nil {
				return logCloser.Close()
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "convert",
				Usage: "sample a mesh into a point cloud file",
				Description: `Samples points uniformly over the surface of an STL, OBJ or PLY mesh after centering it
on the origin and scaling its largest dimension to the reference size, then writes a .pcd or
.las point cloud. Flags may be given before or after the paths.`,
				UsageText: "meshcloud convert <input-mesh-path> <output-cloud-path> [--points N] [--vis] [other options]",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    convertFlagPoints,
						Aliases: []string{"p"},
						Value:   sampler.DefaultPoints,
						Usage:   "number of points to sample",
					},
					&cli.BoolFlag{
						Name:    convertFlagVis,
						Aliases: []string{"v"},
						Usage:   "render a preview image next to the output and open it",
					},
					&cli.BoolFlag{
						Name:  convertFlagNoOpen,
						Usage: "with --vis, write the preview without opening it",
					},
					&cli.Int64Flag{
						Name:        convertFlagSeed,
						Usage:       "seed for reproducible sampling",
						DefaultText: "random",
					},
					&cli.Float64Flag{
						Name:  convertFlagScale,
						Value: sampler.DefaultReferenceSize,
						Usage: "largest dimension of the normalized cloud",
					},
					&cli.StringFlag{
						Name:  convertFlagColor,
						Value: string(sampler.ColorNone),
						Usage: "point colors: none, face, height or #rrggbb",
					},
					&cli.StringFlag{
						Name:  convertFlagFormat,
						Value: pointcloud.PCDBinary.String(),
						Usage: "pcd data encoding: binary, ascii or binary_compressed",
					},
				},
				Action: ConvertAction,
			},
			{
				Name:      "inspect",
				Usage:     "describe a mesh or point cloud file",
				UsageText: "meshcloud inspect <file> [--bins N]",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  inspectFlagBins,
						Value: 10,
						Usage: "number of histogram bins for point distances",
					},
				},
				Action: InspectAction,
			},
			{
				Name:      "serve",
				Usage:     "serve the point cloud viewer",
				UsageText: "meshcloud serve [--addr host:port] [--cloud path] [--config viewer.json]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        serveFlagAddr,
						Usage:       "address to listen on",
						DefaultText: web.DefaultOptions().Addr,
					},
					&cli.PathFlag{
						Name:        serveFlagCloud,
						Usage:       "point cloud file to display",
						DefaultText: web.DefaultCloudPath,
						TakesFile:   true,
					},
					&cli.PathFlag{
						Name:      serveFlagConfig,
						Aliases:   []string{"c"},
						Usage:     "load viewer options from JSON `FILE`",
						TakesFile: true,
					},
					&cli.BoolFlag{
						Name:  serveFlagPprof,
						Usage: "serve /debug/pprof",
					},
					&cli.BoolFlag{
						Name:  serveFlagSchema,
						Usage: "print the JSON schema of the options file and exit",
					},
				},
				Action: ServeAction,
			},
		},
	}
}

// Run runs the app on args after moving any flags that follow a command's positional
// arguments in front of them.
func Run(ctx context.Context, app *cli.App, args []string) error {
	return app.RunContext(ctx, reorderArgs(app, args))
}

func loggerFromContext(c *cli.Context) logging.Logger {
	if logger, ok := c.App.Metadata[metadataLogger].(logging.Logger); ok {
		return logger
	}
	return logging.Global()
}

// flagTakesValue reports whether the flag called name (without dashes) consumes the next
// argument. Unknown flags are assumed to be booleans.
func flagTakesValue(flags []cli.Flag, name string) bool {
	flag, ok := lo.Find(flags, func(f cli.Flag) bool {
		return lo.Contains(f.Names(), name)
	})
	if !ok {
		return false
	}
	_, isBool := flag.(*cli.BoolFlag)
	return !isBool
}

// splitArgs separates flags (with their values) from positional arguments. Everything after a
// "--" is positional.
func splitArgs(flags []cli.Flag, args []string) (flagArgs, positional []string) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}
		if len(arg) < 2 || !strings.HasPrefix(arg, "-") {
			positional = append(positional, arg)
			continue
		}
		flagArgs = append(flagArgs, arg)
		name := strings.TrimLeft(arg, "-")
		if strings.Contains(name, "=") {
			continue
		}
		if flagTakesValue(flags, name) && i+1 < len(args) {
			i++
			flagArgs = append(flagArgs, args[i])
		}
	}
	return flagArgs, positional
}

// reorderArgs rewrites args so every flag of the invoked command comes before its
// positional arguments, which is the only order the flag parser accepts.
func reorderArgs(app *cli.App, args []string) []string {
	if len(args) < 2 {
		return args
	}
	// skip the program name and any global flags to find the command
	i := 1
	for i < len(args) && strings.HasPrefix(args[i], "-") {
		name := strings.TrimLeft(args[i], "-")
		if !strings.Contains(name, "=") && flagTakesValue(app.Flags, name) {
			i++
		}
		i++
	}
	if i >= len(args) {
		return args
	}
	cmd := app.Command(args[i])
	if cmd == nil {
		return args
	}
	flagArgs, positional := splitArgs(cmd.Flags, args[i+1:])
	out := make([]string, 0, len(args)+1)
	out = append(out, args[:i+1]...)
	out = append(out, flagArgs...)
	if len(positional) > 0 {
		out = append(out, "--")
		out = append(out, positional...)
	}
	return out
}
