package version

import (
	"encoding/json"
	"io"
	"os"
	"testing"

	"github.com/flarebyte/geotrail/internal/buildinfo"
)

func captureStdout(t *testing.T, fn func() error) string {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	oldStdout := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = oldStdout }()

	if err := fn(); err != nil {
		t.Fatalf("run: %v", err)
	}
	_ = w.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(got)
}

func TestVersionDefaultOutputStable(t *testing.T) {
	oldVersion, oldCommit, oldDate := buildinfo.Version, buildinfo.Commit, buildinfo.Date
	oldJSON := flagJSON
	defer func() {
		buildinfo.Version, buildinfo.Commit, buildinfo.Date = oldVersion, oldCommit, oldDate
		flagJSON = oldJSON
	}()
	buildinfo.Version, buildinfo.Commit, buildinfo.Date = "", "", ""
	flagJSON = false

	got := captureStdout(t, func() error { return VersionCmd.RunE(VersionCmd, nil) })
	if got != "geotrail dev\n" {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestVersionJSON(t *testing.T) {
	oldVersion, oldJSON := buildinfo.Version, flagJSON
	defer func() { buildinfo.Version, flagJSON = oldVersion, oldJSON }()
	buildinfo.Version = "1.0.0"
	flagJSON = true

	got := captureStdout(t, func() error { return VersionCmd.RunE(VersionCmd, nil) })
	var out map[string]any
	if err := json.Unmarshal([]byte(got), &out); err != nil {
		t.Fatalf("decode %q: %v", got, err)
	}
	if out["version"] != "1.0.0" || out["go"] == "" {
		t.Fatalf("unexpected JSON: %v", out)
	}
}
