package harvest

import (
	"fmt"
	"os"
	"strings"

	"github.com/flarebyte/geotrail/cmd/geotrail/toolflags"
	"github.com/flarebyte/geotrail/internal/harvest"
	"github.com/flarebyte/geotrail/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	flagTarget string
	flagFrom   string
	flagLimit  int
	flagMedia  []string
)

// Cmd implements `geotrail harvest`, the harvest stage tool. It commits the
// posts of an export directory into the Record Store one post at a time.
var Cmd = &cobra.Command{
	Use:           "harvest --target <account> --from <export-dir>",
	Short:         "Build the Record Store from downloaded posts",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(flagTarget) == "" {
			return pipeline.Usagef("missing required flag: --target")
		}
		if flagFrom == "" {
			return pipeline.Usagef("missing required flag: --from")
		}
		p, err := toolflags.Pipeline(cmd)
		if err != nil {
			return err
		}
		h := harvest.Harvester{
			Layout:   toolflags.Layout(p),
			Patterns: p.Harvest.Media,
			Limit:    p.Harvest.Limit,
			Logger:   toolflags.Logger(cmd),
		}
		if cmd.Flags().Changed("limit") {
			h.Limit = flagLimit
		}
		if cmd.Flags().Changed("media") {
			h.Patterns = flagMedia
		}
		s, err := h.Run(cmd.Context(), flagTarget, harvest.DirSource{Dir: flagFrom})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(os.Stdout, "harvested %d of %d posts into %s (%d skipped, %d failed)\n", s.Committed, s.Listed, s.StorePath, s.Skipped, s.Failed)
		return err
	},
}

func init() {
	Cmd.Flags().StringVarP(&flagTarget, "target", "t", "", "Account to harvest")
	Cmd.Flags().StringVar(&flagFrom, "from", "", "Export directory holding <stem>.json metadata and media")
	Cmd.Flags().IntVar(&flagLimit, "limit", harvest.DefaultLimit, "Maximum number of posts; negative for no limit")
	Cmd.Flags().StringSliceVar(&flagMedia, "media", nil, "Media include patterns in gitignore syntax (default *.jpg,*.jpeg,*.png)")
}
