package testutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/flarebyte/geotrail/internal/environment"
)

// RequirePOSIXShell skips tests that drive stages through sh.
func RequirePOSIXShell(t testing.TB) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stage tests require POSIX shell")
	}
}

// WriteFile writes content to p, creating parent directories.
func WriteFile(t testing.TB, p, content string, mode os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(p), err)
	}
	if err := os.WriteFile(p, []byte(content), mode); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
}

// FakeEnvironment creates <base>/<name> with an interpreter that runs its
// first argument through sh, so stage entry scripts can be shell scripts.
// It returns the interpreter path.
func FakeEnvironment(t testing.TB, base, name string) string {
	t.Helper()
	exe := environment.HostLayout().Path(filepath.Join(base, name), environment.DefaultInterpreter)
	WriteFile(t, exe, "#!/bin/sh\nexec /bin/sh \"$@\"\n", 0o755)
	return exe
}

// StageScript writes a shell entry script into dir and returns its name.
func StageScript(t testing.TB, dir, name, body string) string {
	t.Helper()
	WriteFile(t, filepath.Join(dir, name), "#!/bin/sh\n"+body+"\n", 0o755)
	return name
}
