package cli

import (
	"encoding/json"

	"github.com/urfave/cli/v2"

	"go.viam.com/meshcloud/web"
)

// viewerOptionsFromFlags merges the options file, if any, with the command line flags.
func viewerOptionsFromFlags(c *cli.Context) (web.Options, error) {
	options := web.DefaultOptions()
	if path := c.Path(serveFlagConfig); path != "" {
		var err error
		if options, err = web.OptionsFromFile(path); err != nil {
			return web.Options{}, err
		}
	}
	if c.IsSet(serveFlagAddr) {
		options.Addr = c.String(serveFlagAddr)
	}
	if c.IsSet(serveFlagCloud) {
		options.CloudPath = c.Path(serveFlagCloud)
	}
	if c.Bool(serveFlagPprof) {
		options.Pprof = true
	}
	return options, options.Validate()
}

// ServeAction runs the viewer server until interrupted.
func ServeAction(c *cli.Context) error {
	if c.Bool(serveFlagSchema) {
		data, err := json.MarshalIndent(web.OptionsSchema(), "", "  ")
		if err != nil {
			return err
		}
		printf(c.App.Writer, "%s", data)
		return nil
	}
	options, err := viewerOptionsFromFlags(c)
	if err != nil {
		return err
	}
	return web.RunWeb(c.Context, options, loggerFromContext(c).Sublogger("web"))
}
