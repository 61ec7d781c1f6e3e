package e2e

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/flarebyte/geotrail/internal/testutil"
)

type runResult struct {
	code   int
	stdout []byte
	stderr []byte
}

var (
	buildOnce sync.Once
	builtBin  string
	buildErr  error
	buildOut  []byte
)

func repoRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("go.mod not found above working directory")
		}
		dir = parent
	}
}

// buildGeotrail compiles the CLI once per test binary.
func buildGeotrail(t *testing.T) string {
	t.Helper()
	testutil.RequirePOSIXShell(t)
	root := repoRoot(t)
	buildOnce.Do(func() {
		binDir, err := os.MkdirTemp("", "geotrail-e2e-")
		if err != nil {
			buildErr = err
			return
		}
		builtBin = filepath.Join(binDir, "geotrail")
		if runtime.GOOS == "windows" {
			builtBin += ".exe"
		}
		cmd := exec.Command("go", "build", "-o", builtBin, "./cmd/geotrail")
		cmd.Dir = root
		cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
		buildOut, buildErr = cmd.CombinedOutput()
	})
	if buildErr != nil {
		t.Fatalf("build failed: %v\n%s", buildErr, buildOut)
	}
	return builtBin
}

func runCmd(t *testing.T, bin string, env []string, args ...string) runResult {
	t.Helper()
	cmd := exec.Command(bin, args...)
	cmd.Env = append(os.Environ(), env...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	code := 0
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			code = ee.ExitCode()
		} else {
			code = -1
		}
	}
	return runResult{code: code, stdout: stdout.Bytes(), stderr: stderr.Bytes()}
}

// trailRoot lays out a pipeline root with the three default stage
// directories, their environments and an export of two posts. The stage
// entry scripts drive the geotrail stage tools through $GEOTRAIL.
func trailRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	testutil.FakeEnvironment(t, root, "venv")
	testutil.FakeEnvironment(t, root, "geoclip-env")

	testutil.StageScript(t, filepath.Join(root, "instascraper"), "instascraper.py",
		`exec "$GEOTRAIL" harvest --from ../export "$@"`)
	testutil.StageScript(t, filepath.Join(root, "geoclip-env"), "geoclip_pipeline.py",
		`exec "$GEOTRAIL" backfill -- sh ../predict.sh`)
	testutil.StageScript(t, filepath.Join(root, "geovisualise"), "geovisualise.py",
		`exec "$GEOTRAIL" render --out map.html`)
	testutil.WriteFile(t, filepath.Join(root, "predict.sh"), "#!/bin/sh\necho \"48.85,2.35\"\n", 0o755)

	export := filepath.Join(root, "export")
	testutil.WriteFile(t, filepath.Join(export, "p1.json"),
		`{"shortcode": "AAA", "date": "2025-01-02 10:00:00", "caption": "Harbour walk", "location": {"lat": 10, "lon": 20}}`, 0o644)
	testutil.WriteFile(t, filepath.Join(export, "p1.jpg"), "jpeg-1", 0o644)
	testutil.WriteFile(t, filepath.Join(export, "p2.json"),
		`{"shortcode": "BBB", "date": "2025-01-03 09:00:00", "caption": "Cafe"}`, 0o644)
	testutil.WriteFile(t, filepath.Join(export, "p2.jpg"), "jpeg-2", 0o644)
	return root
}
