package validate

import (
	"fmt"
	"io"
	"os"

	"github.com/flarebyte/geotrail/cmd/geotrail/toolflags"
	"github.com/flarebyte/geotrail/internal/record"
	"github.com/spf13/cobra"
)

var (
	flagStore       string
	flagPrintSchema bool
)

type invalidStoreError struct {
	path       string
	violations int
}

func (e *invalidStoreError) Error() string {
	return fmt.Sprintf("%s: %d schema violations", e.path, e.violations)
}
func (e *invalidStoreError) ExitCode() int { return 1 }

// Cmd implements `geotrail validate`.
var Cmd = &cobra.Command{
	Use:           "validate [--store FILE]",
	Short:         "Check a Record Store against the post schema",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagPrintSchema {
			_, err := os.Stdout.Write(record.Schema())
			return err
		}
		store := flagStore
		if store == "" {
			p, err := toolflags.Pipeline(cmd)
			if err != nil {
				return err
			}
			store = toolflags.Layout(p).StorePath()
		}
		return check(os.Stdout, store)
	},
}

func init() {
	Cmd.Flags().StringVar(&flagStore, "store", "", "Record Store to check (default <root>/<harvestDir>/output/json/posts.json)")
	Cmd.Flags().BoolVar(&flagPrintSchema, "print-schema", false, "Print the Record Store JSON Schema and exit")
}

func check(w io.Writer, store string) error {
	data, err := os.ReadFile(store)
	if err != nil {
		return fmt.Errorf("read record store: %w", err)
	}
	violations, err := record.Validate(data)
	if err != nil {
		return fmt.Errorf("%s: %w", store, err)
	}
	for _, v := range violations {
		_, _ = fmt.Fprintln(w, v)
	}
	if len(violations) > 0 {
		return &invalidStoreError{path: store, violations: len(violations)}
	}
	posts, err := record.Decode(data)
	if err != nil {
		return fmt.Errorf("%s: %w", store, err)
	}
	missing := 0
	for _, p := range posts {
		if p.MissingLocation() {
			missing++
		}
	}
	_, err = fmt.Fprintf(w, "%s: %d posts, %d without location\n", store, len(posts), missing)
	return err
}
