package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"go.viam.com/meshcloud/logging"
	"go.viam.com/meshcloud/pointcloud"
)

func newTestServer(t *testing.T, options Options) (*httptest.Server, *CloudStore) {
	t.Helper()
	logger := logging.NewTestLogger(t)
	store, err := NewCloudStore(options.CloudPath, options.FallbackPoints, logger)
	test.That(t, err, test.ShouldBeNil)
	handler, err := NewHandler(options, store, logger)
	test.That(t, err, test.ShouldBeNil)
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server, store
}

func testOptions(t *testing.T) Options {
	t.Helper()
	options := DefaultOptions()
	options.CloudPath = filepath.Join(t.TempDir(), "cloud.pcd")
	options.FallbackPoints = testFallbackPoints
	return options
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	//nolint:gosec,noctx
	resp, err := http.Get(url)
	test.That(t, err, test.ShouldBeNil)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	test.That(t, err, test.ShouldBeNil)
	return resp, body
}

func TestIndexPage(t *testing.T) {
	options := testOptions(t)
	options.Title = "Speaker <demo>"
	server, _ := newTestServer(t, options)

	resp, body := get(t, server.URL+"/")
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
	test.That(t, resp.Header.Get("Content-Type"), test.ShouldContainSubstring, "text/html")
	page := string(body)
	test.That(t, page, test.ShouldContainSubstring, "<title>Speaker &lt;demo&gt;</title>")
	test.That(t, page, test.ShouldContainSubstring, `"cloudUrl"`)
	test.That(t, page, test.ShouldContainSubstring, `"fallbackPoints":500`)
	test.That(t, page, test.ShouldContainSubstring, "/static/viewer.js")

	resp, _ = get(t, server.URL+"/nope")
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusNotFound)
}

func TestStaticFiles(t *testing.T) {
	server, _ := newTestServer(t, testOptions(t))
	for _, tc := range []struct {
		path   string
		substr string
	}{
		{"/static/viewer.js", "PCDLoader"},
		{"/static/viewer.js", "requestAnimationFrame"},
		{"/static/viewer.css", "#viewer"},
	} {
		resp, body := get(t, server.URL+tc.path)
		test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
		test.That(t, string(body), test.ShouldContainSubstring, tc.substr)
	}
}

func TestCloudRouteFallback(t *testing.T) {
	server, _ := newTestServer(t, testOptions(t))

	resp, body := get(t, server.URL+CloudRoute)
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
	test.That(t, resp.Header.Get("Content-Type"), test.ShouldEqual, "application/octet-stream")
	test.That(t, resp.Header.Get(SourceHeader), test.ShouldEqual, string(SourceFallback))

	cloud, err := pointcloud.ReadPCD(bytes.NewReader(body))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cloud.Size(), test.ShouldEqual, testFallbackPoints)

	resp, body = get(t, server.URL+"/api/cloud")
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
	var info CloudInfo
	test.That(t, json.Unmarshal(body, &info), test.ShouldBeNil)
	test.That(t, info.Source, test.ShouldEqual, SourceFallback)
	test.That(t, info.Points, test.ShouldEqual, testFallbackPoints)
	test.That(t, info.Error, test.ShouldNotBeEmpty)
}

func TestCloudRouteFile(t *testing.T) {
	options := testOptions(t)
	writeTestCloud(t, options.CloudPath, 30)
	server, store := newTestServer(t, options)

	resp, body := get(t, server.URL+CloudRoute)
	test.That(t, resp.Header.Get(SourceHeader), test.ShouldEqual, string(SourceFile))
	data, _ := store.Current()
	test.That(t, bytes.Equal(body, data), test.ShouldBeTrue)

	// CORS is open on asset routes
	req, err := http.NewRequest(http.MethodGet, server.URL+CloudRoute, nil)
	test.That(t, err, test.ShouldBeNil)
	req.Header.Set("Origin", "http://example.com")
	corsResp, err := http.DefaultClient.Do(req)
	test.That(t, err, test.ShouldBeNil)
	defer corsResp.Body.Close()
	test.That(t, corsResp.Header.Get("Access-Control-Allow-Origin"), test.ShouldEqual, "*")

	var info CloudInfo
	_, body = get(t, server.URL+"/api/cloud")
	test.That(t, json.Unmarshal(body, &info), test.ShouldBeNil)
	test.That(t, info.Source, test.ShouldEqual, SourceFile)
	test.That(t, info.Points, test.ShouldEqual, 30)
}

func TestMiscRoutes(t *testing.T) {
	server, _ := newTestServer(t, testOptions(t))

	resp, body := get(t, server.URL+"/healthz")
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
	test.That(t, string(body), test.ShouldEqual, "ok")

	resp, body = get(t, server.URL+"/api/options/schema")
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
	test.That(t, string(body), test.ShouldContainSubstring, "cloud_path")

	resp, _ = get(t, server.URL+"/debug/pprof/")
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusNotFound)

	options := testOptions(t)
	options.Pprof = true
	pprofServer, _ := newTestServer(t, options)
	resp, _ = get(t, pprofServer.URL+"/debug/pprof/")
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
}

func TestRunWeb(t *testing.T) {
	logger := logging.NewTestLogger(t)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	test.That(t, err, test.ShouldBeNil)

	options := testOptions(t)
	options.Listener = listener
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunWeb(ctx, options, logger)
	}()

	url := "http://" + listener.Addr().String()
	// the listener is already open, so requests queue until the server starts
	resp, body := get(t, url+"/healthz")
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
	test.That(t, string(body), test.ShouldEqual, "ok")

	resp, body = get(t, url+CloudRoute)
	test.That(t, resp.Header.Get(SourceHeader), test.ShouldEqual, string(SourceFallback))
	test.That(t, len(body), test.ShouldBeGreaterThan, 0)

	cancel()
	test.That(t, <-done, test.ShouldBeNil)
}

func TestRunWebInvalidOptions(t *testing.T) {
	options := testOptions(t)
	options.PointColor = "orange"
	err := RunWeb(context.Background(), options, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "point_color")
}
