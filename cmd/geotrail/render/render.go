package render

import (
	"fmt"
	"os"

	"github.com/flarebyte/geotrail/cmd/geotrail/toolflags"
	"github.com/flarebyte/geotrail/internal/record"
	"github.com/flarebyte/geotrail/internal/render"
	"github.com/spf13/cobra"
)

var (
	flagStore     string
	flagOut       string
	flagWhere     string
	flagMaxImages int
	flagTitle     string
)

// Cmd implements `geotrail render`, the map stage tool.
var Cmd = &cobra.Command{
	Use:           "render [--store FILE] [--out FILE] [--where LUA]",
	Short:         "Render the Record Store as an interactive HTML map",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := toolflags.Pipeline(cmd)
		if err != nil {
			return err
		}
		r := render.Renderer{
			Paths:     record.PathResolver{Root: p.Root, HarvestDir: p.HarvestDir},
			MaxImages: p.Render.MaxImages,
			Title:     p.Render.Title,
			Logger:    toolflags.Logger(cmd),
		}
		if cmd.Flags().Changed("max-images") {
			r.MaxImages = flagMaxImages
		}
		if cmd.Flags().Changed("title") {
			r.Title = flagTitle
		}
		where := p.Render.Where
		if cmd.Flags().Changed("where") {
			where = flagWhere
		}
		if where != "" {
			if r.Where, err = render.CompileWhere(where); err != nil {
				return err
			}
		}
		store := flagStore
		if store == "" {
			store = toolflags.Layout(p).StorePath()
		}
		s, err := r.File(cmd.Context(), store, flagOut)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(os.Stdout, "mapped %d of %d posts into %s\n", s.Rendered, s.Total, flagOut)
		return err
	},
}

func init() {
	Cmd.Flags().StringVar(&flagStore, "store", "", "Record Store to read (default <root>/<harvestDir>/output/json/posts.json)")
	Cmd.Flags().StringVar(&flagOut, "out", "social_media_map.html", "HTML file to write")
	Cmd.Flags().StringVar(&flagWhere, "where", "", "Lua predicate selecting posts, e.g. \"lat > 0\"")
	Cmd.Flags().IntVar(&flagMaxImages, "max-images", render.DefaultMaxImages, "Images embedded per post")
	Cmd.Flags().StringVar(&flagTitle, "title", "", "Page title")
}
