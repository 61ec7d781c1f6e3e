// Package environment locates the interpreter of an isolated stage runtime
// (for example a Python virtualenv) from its logical name.
package environment

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// DefaultInterpreter is the executable looked up inside an environment when
// no interpreter is configured.
const DefaultInterpreter = "python"

// ErrNotFound matches every NotFoundError via errors.Is.
var ErrNotFound = errors.New("environment not found")

// NotFoundError reports that the computed executable for an environment is
// missing or unusable.
type NotFoundError struct {
	Name   string
	Path   string
	Reason string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("environment %q: interpreter not found at %s (%s)", e.Name, e.Path, e.Reason)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Layout is the platform subpath rule applied under <base>/<name>.
type Layout struct {
	Dir    string
	Suffix string
}

var (
	posixLayout   = Layout{Dir: "bin"}
	windowsLayout = Layout{Dir: "Scripts", Suffix: ".exe"}
)

// LayoutFor returns the layout for a GOOS value.
func LayoutFor(goos string) Layout {
	if goos == "windows" {
		return windowsLayout
	}
	return posixLayout
}

// HostLayout is the layout of the running host.
func HostLayout() Layout { return LayoutFor(runtime.GOOS) }

// Path joins the layout subpath for interpreter under envDir.
func (l Layout) Path(envDir, interpreter string) string {
	return filepath.Join(envDir, l.Dir, interpreter+l.Suffix)
}

// Resolver finds environment executables under BaseDir.
// It holds no cache; every call hits the filesystem.
type Resolver struct {
	BaseDir     string
	Interpreter string
}

// Resolve returns the absolute executable path for name.
func (r Resolver) Resolve(name string) (string, error) {
	return resolve(r.BaseDir, name, r.interpreter(), HostLayout(), runtime.GOOS != "windows")
}

func (r Resolver) interpreter() string {
	if r.Interpreter == "" {
		return DefaultInterpreter
	}
	return r.Interpreter
}

// Resolve applies the host layout with the default interpreter.
func Resolve(baseDir, name string) (string, error) {
	return Resolver{BaseDir: baseDir}.Resolve(name)
}

func resolve(baseDir, name, interpreter string, layout Layout, checkMode bool) (string, error) {
	if name == "" {
		return "", &NotFoundError{Name: name, Path: baseDir, Reason: "empty environment name"}
	}
	abs, err := filepath.Abs(layout.Path(filepath.Join(baseDir, name), interpreter))
	if err != nil {
		return "", fmt.Errorf("resolve environment %q: %w", name, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", &NotFoundError{Name: name, Path: abs, Reason: "no such file"}
		}
		return "", &NotFoundError{Name: name, Path: abs, Reason: err.Error()}
	}
	if info.IsDir() {
		return "", &NotFoundError{Name: name, Path: abs, Reason: "is a directory"}
	}
	if checkMode && info.Mode().Perm()&0o111 == 0 {
		return "", &NotFoundError{Name: name, Path: abs, Reason: "not executable"}
	}
	return abs, nil
}
