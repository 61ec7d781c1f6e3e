// Package buildinfo exposes version metadata for the CLI. Values are set at
// build time via -ldflags, e.g.
//
//	-ldflags "-X 'github.com/flarebyte/geotrail/internal/buildinfo.Version=1.2.3'"
package buildinfo

import (
	"runtime/debug"
	"strings"
)

var (
	// Version is the semantic version or custom string.
	Version = "dev"
	// Commit is the VCS commit hash. Falls back to the vcs.revision build setting.
	Commit = ""
	// Date is the build time.
	Date = ""
	// BuiltBy is an optional builder identifier.
	BuiltBy = ""
)

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return ""
}

// Summary returns a concise single-line version string.
func Summary() string {
	v := Version
	if v == "" {
		v = "dev"
	}
	c := Commit
	if c == "" && v != "dev" {
		c = vcsRevision()
	}
	parts := make([]string, 0, 2)
	if c != "" {
		if len(c) > 7 {
			c = c[:7]
		}
		parts = append(parts, "commit="+c)
	}
	if Date != "" {
		parts = append(parts, "date="+Date)
	}
	if len(parts) > 0 {
		v += " (" + strings.Join(parts, ", ") + ")"
	}
	return v
}
