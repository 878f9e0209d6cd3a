package cli

import (
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

func TestServePrintSchema(t *testing.T) {
	out, _, err := runApp("serve", "--print-schema")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "fallback_points")
}

func TestServeInvalidOptions(t *testing.T) {
	dir := t.TempDir()
	config := filepath.Join(dir, "viewer.json")
	test.That(t, os.WriteFile(config, []byte(`{"point_size": -1}`), 0o600), test.ShouldBeNil)

	_, _, err := runApp("serve", "--config", config)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "point_size")

	_, _, err = runApp("serve", "--config", filepath.Join(dir, "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)

	_, _, err = runApp("serve", "--addr", "", "--cloud", filepath.Join(dir, "cloud.pcd"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "addr")
}
