package stages

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/flarebyte/geotrail/internal/config"
	"github.com/flarebyte/geotrail/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	flagYAML  bool
	flagJSON  bool
	flagCheck bool
)

// Cmd implements `geotrail stages`.
var Cmd = &cobra.Command{
	Use:           "stages",
	Short:         "Print the stage table and the status of each environment",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		root, _ := cmd.Flags().GetString("root")
		p, err := config.Open(cfgPath, root)
		if err != nil {
			return pipeline.Usagef("%v", err)
		}
		if flagYAML {
			b, err := config.EncodeYAML(p)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(b)
			return err
		}
		entries := Inspect(p)
		if flagJSON {
			if err := encodeJSON(os.Stdout, entries); err != nil {
				return err
			}
		} else if err := writeTable(os.Stdout, entries); err != nil {
			return err
		}
		if flagCheck {
			return firstMissing(entries)
		}
		return nil
	},
}

func init() {
	Cmd.Flags().BoolVar(&flagYAML, "yaml", false, "Print the effective pipeline definition as YAML")
	Cmd.Flags().BoolVar(&flagJSON, "json", false, "Print the stage table as JSON")
	Cmd.Flags().BoolVar(&flagCheck, "check", false, "Fail when an environment cannot be resolved")
}

// Entry is one resolved stage.
type Entry struct {
	Index       int      `json:"index"`
	Name        string   `json:"name"`
	Dir         string   `json:"dir"`
	Script      string   `json:"script"`
	Args        []string `json:"args,omitempty"`
	Env         string   `json:"env"`
	Interpreter string   `json:"interpreter,omitempty"`
	Error       string   `json:"error,omitempty"`
	err         error
}

// Inspect resolves every environment of p without running anything.
func Inspect(p config.Pipeline) []Entry {
	r := p.Resolver()
	var out []Entry
	for i, d := range p.Table() {
		e := Entry{Index: i + 1, Name: d.DisplayName(), Dir: d.WorkingDirectory, Script: d.EntryScript, Args: d.ExtraArgs, Env: d.EnvironmentName}
		exe, err := r.Resolve(d.EnvironmentName)
		if err != nil {
			e.err = &pipeline.EnvironmentNotFoundError{Stage: e.Name, Err: err}
			e.Error = err.Error()
		} else {
			e.Interpreter = exe
		}
		out = append(out, e)
	}
	return out
}

func firstMissing(entries []Entry) error {
	for _, e := range entries {
		if e.err != nil {
			return e.err
		}
	}
	return nil
}

func writeTable(w io.Writer, entries []Entry) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("#", "STAGE", "DIR", "SCRIPT", "ENV", "STATUS")
	for _, e := range entries {
		status := e.Interpreter
		if e.err != nil {
			status = "missing"
		}
		t.Row(strconv.Itoa(e.Index), e.Name, e.Dir, e.Script, e.Env, status)
	}
	_, err := fmt.Fprintln(w, t.String())
	return err
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
