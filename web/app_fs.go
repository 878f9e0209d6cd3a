package web

import "embed"

// AppFS holds the viewer page template and its static files.
//
//go:embed runtime-shared
var AppFS embed.FS
