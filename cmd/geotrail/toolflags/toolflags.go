// Package toolflags resolves the pipeline context of the stage tools
// (harvest, backfill, render). A stage tool runs inside its stage directory,
// so without --config or --root the pipeline root is the parent directory.
package toolflags

import (
	"log/slog"
	"path/filepath"

	"github.com/flarebyte/geotrail/internal/config"
	"github.com/flarebyte/geotrail/internal/harvest"
	"github.com/flarebyte/geotrail/internal/logging"
	"github.com/flarebyte/geotrail/internal/pipeline"
	"github.com/spf13/cobra"
)

// Pipeline opens the pipeline selected by the global flags.
func Pipeline(cmd *cobra.Command) (config.Pipeline, error) {
	cfg, _ := cmd.Flags().GetString("config")
	root, _ := cmd.Flags().GetString("root")
	if cfg == "" && root == "" {
		root = ".."
	}
	if root != "" {
		abs, err := filepath.Abs(root)
		if err != nil {
			return config.Pipeline{}, pipeline.Usagef("root %s: %v", root, err)
		}
		root = abs
	}
	p, err := config.Open(cfg, root)
	if err != nil {
		return config.Pipeline{}, pipeline.Usagef("%v", err)
	}
	return p, nil
}

// Layout returns the harvest layout of p.
func Layout(p config.Pipeline) harvest.Layout {
	return harvest.Layout{Dir: p.HarvestPath(), Sentinel: p.HarvestDir}
}

// Logger returns the command logger tagged with a run id.
func Logger(cmd *cobra.Command) *slog.Logger {
	l, _ := logging.WithRun(logging.FromContext(cmd.Context()))
	return l
}
