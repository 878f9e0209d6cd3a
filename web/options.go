package web

import (
	"net"

	"github.com/a8m/envsubst"
	"github.com/go-viper/mapstructure/v2"
	"github.com/invopop/jsonschema"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
	"github.com/yosuke-furukawa/json5/encoding/json5"

	"go.viam.com/meshcloud/utils"
)

// DefaultCloudPath is where the viewer looks for its point cloud when none is configured.
const DefaultCloudPath = "assets/cloud.pcd"

// CloudRoute is the fixed path the page fetches its point cloud from.
const CloudRoute = "/cloud.pcd"

// Options are used for configuring the viewer server.
type Options struct {
	// Addr is the host:port the server listens on.
	Addr string `json:"addr" jsonschema:"description=host:port to listen on"`

	// CloudPath is the point cloud file served at /cloud.pcd.
	CloudPath string `json:"cloud_path" jsonschema:"description=point cloud file served to the page"`

	Title string `json:"title,omitempty"`

	// PointSize is the rendered size of a point in scene units.
	PointSize float64 `json:"point_size"`

	// RotationSpeed is the rotation applied to the cloud around its vertical axis, in radians per second.
	RotationSpeed float64 `json:"rotation_speed"`

	// PointColor is used for clouds without per-point colors.
	PointColor string `json:"point_color" jsonschema:"pattern=^#[0-9a-fA-F]{6}$"`

	// FallbackPoints is the size of the demonstration cloud served when the file is unusable.
	FallbackPoints int `json:"fallback_points" jsonschema:"minimum=1"`

	// Pprof turns on the /debug/pprof endpoints.
	Pprof bool `json:"pprof,omitempty"`

	// Listener, when set, is served on instead of listening on Addr.
	Listener net.Listener `json:"-"`
}

// DefaultOptions returns an Options struct that serves assets/cloud.pcd on localhost:8080.
func DefaultOptions() Options {
	return Options{
		Addr:           "localhost:8080",
		CloudPath:      DefaultCloudPath,
		Title:          "Point Cloud",
		PointSize:      0.005,
		RotationSpeed:  0.2,
		PointColor:     "#e67e22",
		FallbackPoints: 8000,
	}
}

// Validate ensures all parts of the options are valid.
func (o Options) Validate() error {
	if o.Addr == "" && o.Listener == nil {
		return errors.New("addr must be set")
	}
	if o.CloudPath == "" {
		return errors.New("cloud_path must be set")
	}
	if !utils.PositiveFinite(o.PointSize) {
		return errors.Errorf("point_size must be positive, got %v", o.PointSize)
	}
	if len(o.PointColor) != len("#rrggbb") {
		return errors.Errorf("point_color must look like #rrggbb, got %q", o.PointColor)
	}
	if _, err := colorful.Hex(o.PointColor); err != nil {
		return errors.Wrapf(err, "point_color must look like #rrggbb, got %q", o.PointColor)
	}
	if o.FallbackPoints <= 0 {
		return errors.Errorf("fallback_points must be positive, got %d", o.FallbackPoints)
	}
	return nil
}

// OptionsFromFile reads a JSON5 options file, so comments and trailing commas are allowed.
// Environment variables such as ${HOME} are expanded before parsing. Fields missing from the file keep their defaults and numeric fields may be
// given as strings.
func OptionsFromFile(path string) (Options, error) {
	data, err := envsubst.ReadFile(path)
	if err != nil {
		return Options{}, errors.Wrap(err, "cannot read viewer options")
	}
	var attrs map[string]interface{}
	if err := json5.Unmarshal(data, &attrs); err != nil {
		return Options{}, errors.Wrapf(err, "cannot parse viewer options %q", path)
	}
	return OptionsFromMap(attrs)
}

// OptionsFromMap decodes attributes on top of DefaultOptions and validates the result.
func OptionsFromMap(attrs map[string]interface{}) (Options, error) {
	opts := DefaultOptions()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &opts,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return Options{}, err
	}
	if err := decoder.Decode(attrs); err != nil {
		return Options{}, errors.Wrap(err, "invalid viewer options")
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// OptionsSchema returns the JSON schema of the options file.
func OptionsSchema() *jsonschema.Schema {
	return jsonschema.Reflect(&Options{})
}
