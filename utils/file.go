// Package utils contains file helpers shared by the sampler, the viewer and the CLI.
package utils

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// ResolveFile returns the path of the given file relative to the root
// of the codebase. For example, if this file currently
// lives in utils/file.go and ./foo/bar/baz is given, then the result
// is foo/bar/baz.
func ResolveFile(fn string) string {
	//nolint:dogsled
	_, thisFilePath, _, _ := runtime.Caller(0)
	thisDirPath, err := filepath.Abs(filepath.Dir(thisFilePath))
	if err != nil {
		panic(err)
	}
	return filepath.Join(thisDirPath, "..", fn)
}

// RemoveFileNoError will remove the file at the given path if it exists. Any
// errors will be suppressed.
func RemoveFileNoError(path string) {
	utils.UncheckedErrorFunc(func() error {
		if _, err := os.Stat(path); err == nil {
			return os.Remove(path)
		}
		return nil
	})
}

// WriteFileAtomic calls write with a temporary path next to path, then renames the temporary
// file over path. The temporary file keeps the extension of path so extension based writers
// pick the right format. On failure path is left untouched.
func WriteFileAtomic(path string, write func(tmpPath string) error) error {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	ext := filepath.Ext(base)
	tmp, err := os.CreateTemp(dir, "."+strings.TrimSuffix(base, ext)+"-*"+ext)
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if err := tmp.Close(); err != nil {
		RemoveFileNoError(tmpPath)
		return err
	}
	if err := write(tmpPath); err != nil {
		RemoveFileNoError(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		RemoveFileNoError(tmpPath)
		return errors.Wrapf(err, "cannot move %q into place", path)
	}
	return nil
}

// OSOpenCommand returns the command and leading arguments that open a file with the
// platform's default application.
func OSOpenCommand() (string, []string) {
	switch runtime.GOOS {
	case "darwin":
		return "open", nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler"}
	default:
		return "xdg-open", nil
	}
}

// OpenFileDefault opens the file with the default application without waiting for it to exit.
func OpenFileDefault(path string) error {
	name, args := OSOpenCommand()
	//nolint:gosec
	cmd := exec.Command(name, append(args, path)...)
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "cannot open %q with %s", path, name)
	}
	utils.PanicCapturingGo(func() {
		utils.UncheckedError(cmd.Wait())
	})
	return nil
}
