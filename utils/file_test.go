package utils

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"go.viam.com/test"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cloud.pcd")

	var seen string
	err := WriteFileAtomic(path, func(tmpPath string) error {
		seen = tmpPath
		test.That(t, filepath.Dir(tmpPath), test.ShouldEqual, dir)
		test.That(t, filepath.Ext(tmpPath), test.ShouldEqual, ".pcd")
		return os.WriteFile(tmpPath, []byte("first"), 0o600)
	})
	test.That(t, err, test.ShouldBeNil)
	data, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldEqual, "first")
	_, err = os.Stat(seen)
	test.That(t, os.IsNotExist(err), test.ShouldBeTrue)

	writeErr := errors.New("disk on fire")
	err = WriteFileAtomic(path, func(tmpPath string) error {
		seen = tmpPath
		test.That(t, os.WriteFile(tmpPath, []byte("partial"), 0o600), test.ShouldBeNil)
		return writeErr
	})
	test.That(t, err, test.ShouldEqual, writeErr)
	data, err = os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldEqual, "first")
	_, err = os.Stat(seen)
	test.That(t, os.IsNotExist(err), test.ShouldBeTrue)

	err = WriteFileAtomic(filepath.Join(dir, "missing", "cloud.pcd"), func(string) error { return nil })
	test.That(t, err, test.ShouldNotBeNil)
}

func TestOSOpenCommand(t *testing.T) {
	name, args := OSOpenCommand()
	switch runtime.GOOS {
	case "darwin":
		test.That(t, name, test.ShouldEqual, "open")
	case "windows":
		test.That(t, name, test.ShouldEqual, "rundll32")
		test.That(t, args, test.ShouldHaveLength, 1)
	default:
		test.That(t, name, test.ShouldEqual, "xdg-open")
		test.That(t, args, test.ShouldBeEmpty)
	}
}

func TestResolveFile(t *testing.T) {
	test.That(t, filepath.Base(ResolveFile("utils/file.go")), test.ShouldEqual, "file.go")
	_, err := os.Stat(ResolveFile("utils/file.go"))
	test.That(t, err, test.ShouldBeNil)
}
