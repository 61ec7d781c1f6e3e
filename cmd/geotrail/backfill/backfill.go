package backfill

import (
	"fmt"
	"os"
	"time"

	"github.com/flarebyte/geotrail/cmd/geotrail/toolflags"
	"github.com/flarebyte/geotrail/internal/backfill"
	"github.com/flarebyte/geotrail/internal/pipeline"
	"github.com/flarebyte/geotrail/internal/record"
	"github.com/spf13/cobra"
)

var (
	flagStore   string
	flagOut     string
	flagTimeout time.Duration
)

// Cmd implements `geotrail backfill [flags] -- <predictor> [args...]`, the
// backfill stage tool. The predictor is called once per post as
// `<predictor> [args...] <image>` and must print "lat,lon" or
// {"lat": ..., "lon": ...}.
var Cmd = &cobra.Command{
	Use:           "backfill [--store FILE] [--out FILE] -- <predictor> [args...]",
	Short:         "Fill missing post locations from image predictions",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := toolflags.Pipeline(cmd)
		if err != nil {
			return err
		}
		predictor := args
		if len(predictor) == 0 {
			predictor = p.Backfill.Predictor
		}
		if len(predictor) == 0 {
			return pipeline.Usagef("missing predictor command (pass it after --)")
		}
		timeout := time.Duration(p.Backfill.TimeoutMs) * time.Millisecond
		if cmd.Flags().Changed("timeout") || timeout <= 0 {
			timeout = flagTimeout
		}
		store := flagStore
		if store == "" {
			store = toolflags.Layout(p).StorePath()
		}
		b := backfill.Backfiller{
			Predictor: backfill.CommandPredictor{Program: predictor[0], Args: predictor[1:], Timeout: timeout},
			Paths:     record.PathResolver{Root: p.Root, HarvestDir: p.HarvestDir},
			Logger:    toolflags.Logger(cmd),
		}
		s, err := b.File(cmd.Context(), store, flagOut)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(os.Stdout, "considered %d posts: %d filled, %d failed, %d without images\n", s.Considered, s.Filled, s.Failed, s.Skipped)
		return err
	},
}

func init() {
	Cmd.Flags().StringVar(&flagStore, "store", "", "Record Store to patch (default <root>/<harvestDir>/output/json/posts.json)")
	Cmd.Flags().StringVar(&flagOut, "out", "", "Write the patched store here instead of in place")
	Cmd.Flags().DurationVar(&flagTimeout, "timeout", 2*time.Minute, "Per-image predictor timeout")
}
