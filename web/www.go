// Package web serves the point cloud viewer page along with the point cloud it displays.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/cors"
	"goji.io"
	"goji.io/pat"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"go.viam.com/meshcloud/logging"
)

// SourceHeader names the response header that tells whether /cloud.pcd came from the file
// or the fallback cloud.
const SourceHeader = "X-Point-Cloud-Source"

const shutdownTimeout = 5 * time.Second

// viewerApp renders the viewer page.
type viewerApp struct {
	template *template.Template
	options  Options
	store    *CloudStore
	logger   logging.Logger
}

// pageConfig is handed to viewer.js.
type pageConfig struct {
	CloudURL       string  `json:"cloudUrl"`
	InfoURL        string  `json:"infoUrl"`
	PointSize      float64 `json:"pointSize"`
	RotationSpeed  float64 `json:"rotationSpeed"`
	PointColor     string  `json:"pointColor"`
	FallbackPoints int     `json:"fallbackPoints"`
}

// pageTemplateData is used to render the viewer page.
type pageTemplateData struct {
	Title  string
	Config pageConfig
}

// Init does template initialization work.
func (app *viewerApp) Init() error {
	t, err := template.New("viewer").ParseFS(AppFS, "runtime-shared/templates/*.html")
	if err != nil {
		return err
	}
	app.template = t.Lookup("index.html")
	if app.template == nil {
		return errors.New("index.html template is missing")
	}
	return nil
}

// ServeHTTP serves the viewer page.
func (app *viewerApp) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data := pageTemplateData{
		Title: app.options.Title,
		Config: pageConfig{
			CloudURL:       CloudRoute,
			InfoURL:        "/api/cloud",
			PointSize:      app.options.PointSize,
			RotationSpeed:  app.options.RotationSpeed,
			PointColor:     app.options.PointColor,
			FallbackPoints: app.options.FallbackPoints,
		},
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := app.template.Execute(w, data); err != nil {
		app.logger.Debugw("couldn't execute web page", "error", err)
	}
}

// cloudHandler serves the current point cloud.
type cloudHandler struct {
	store *CloudStore
}

func (h *cloudHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, info := h.store.Current()
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set(SourceHeader, string(info.Source))
	w.Header().Set("Last-Modified", info.LoadedAt.Format(http.TimeFormat))
	if r.Method == http.MethodHead {
		return
	}
	//nolint:errcheck
	w.Write(data)
}

func writeJSON(w http.ResponseWriter, logger logging.Logger, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debugw("couldn't write response", "error", err)
	}
}

// NewHandler returns the viewer's routes backed by store.
func NewHandler(options Options, store *CloudStore, logger logging.Logger) (http.Handler, error) {
	app := &viewerApp{options: options, store: store, logger: logger}
	if err := app.Init(); err != nil {
		return nil, err
	}

	staticFS, err := fs.Sub(AppFS, "runtime-shared/static")
	if err != nil {
		return nil, err
	}
	corsHandler := cors.AllowAll()

	mux := goji.NewMux()
	mux.Handle(pat.Get("/"), app)
	mux.Handle(pat.Get("/static/*"), corsHandler.Handler(http.StripPrefix("/static", http.FileServer(http.FS(staticFS)))))
	mux.Handle(pat.Get(CloudRoute), corsHandler.Handler(&cloudHandler{store}))
	mux.HandleFunc(pat.Get("/api/cloud"), func(w http.ResponseWriter, r *http.Request) {
		_, info := store.Current()
		writeJSON(w, logger, info)
	})
	mux.HandleFunc(pat.Get("/api/options/schema"), func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, OptionsSchema())
	})
	mux.HandleFunc(pat.Get("/healthz"), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		//nolint:errcheck
		w.Write([]byte("ok"))
	})

	if options.Pprof {
		mux.HandleFunc(pat.New("/debug/pprof/"), pprof.Index)
		mux.HandleFunc(pat.New("/debug/pprof/cmdline"), pprof.Cmdline)
		mux.HandleFunc(pat.New("/debug/pprof/profile"), pprof.Profile)
		mux.HandleFunc(pat.New("/debug/pprof/symbol"), pprof.Symbol)
		mux.HandleFunc(pat.New("/debug/pprof/trace"), pprof.Trace)
		mux.HandleFunc(pat.New("/debug/pprof/:profile"), pprof.Index)
	}
	return mux, nil
}

// RunWeb serves the viewer with the given options. This function will block until the
// context is done or the server fails.
func RunWeb(ctx context.Context, options Options, logger logging.Logger) error {
	if err := options.Validate(); err != nil {
		return err
	}
	store, err := NewCloudStore(options.CloudPath, options.FallbackPoints, logger)
	if err != nil {
		return err
	}
	handler, err := NewHandler(options, store, logger)
	if err != nil {
		return err
	}

	listener := options.Listener
	if listener == nil {
		listener, err = net.Listen("tcp", options.Addr)
		if err != nil {
			return err
		}
	}

	httpServer := &http.Server{
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return store.Watch(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Errorw("error shutting down", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Infow("serving point cloud viewer", "url", fmt.Sprintf("http://%s", listener.Addr().String()), "cloud", options.CloudPath)
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	return g.Wait()
}
