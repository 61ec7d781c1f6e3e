package root

import (
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/flarebyte/geotrail/cmd/geotrail/backfill"
	"github.com/flarebyte/geotrail/cmd/geotrail/harvest"
	"github.com/flarebyte/geotrail/cmd/geotrail/render"
	"github.com/flarebyte/geotrail/cmd/geotrail/stages"
	"github.com/flarebyte/geotrail/cmd/geotrail/validate"
	"github.com/flarebyte/geotrail/cmd/geotrail/version"
	"github.com/flarebyte/geotrail/internal/config"
	"github.com/flarebyte/geotrail/internal/console"
	"github.com/flarebyte/geotrail/internal/logging"
	"github.com/flarebyte/geotrail/internal/pipeline"
	"github.com/flarebyte/geotrail/internal/stage"
	"github.com/spf13/cobra"
)

var (
	flagTarget    string
	flagConfig    string
	flagRoot      string
	flagLogLevel  string
	flagLogFormat string
)

// NewRootCmd creates the root command for geotrail. Without a subcommand it
// runs the whole pipeline for --target.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "geotrail --target <account>",
		Short: "Harvest posts, backfill their locations and render them on a map",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return pipeline.Usagef("unexpected argument: %s", args[0])
			}
			return nil
		},
		PersistentPreRunE: setupLogging,
		RunE:              runPipeline,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return pipeline.Usagef("%v", err)
	})

	cmd.Flags().StringVarP(&flagTarget, "target", "t", "", "Account passed to the first stage")
	pf := cmd.PersistentFlags()
	pf.StringVarP(&flagConfig, "config", "c", "", "Pipeline definition (.cue, .yaml or .yml); built-in table when empty")
	pf.StringVar(&flagRoot, "root", "", "Directory holding the stage directories and environments")
	pf.StringVar(&flagLogLevel, "log-level", "info", "Log level: debug, info, warn or error")
	pf.StringVar(&flagLogFormat, "log-format", "text", "Log format: text or json")

	cmd.AddCommand(version.VersionCmd)
	cmd.AddCommand(stages.Cmd)
	cmd.AddCommand(harvest.Cmd)
	cmd.AddCommand(backfill.Cmd)
	cmd.AddCommand(render.Cmd)
	cmd.AddCommand(validate.Cmd)

	return cmd
}

func setupLogging(cmd *cobra.Command, _ []string) error {
	logger, err := logging.New(os.Stderr, flagLogLevel, flagLogFormat)
	if err != nil {
		return pipeline.Usagef("%v", err)
	}
	cmd.SetContext(logging.WithContext(cmd.Context(), logger))
	return nil
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	if strings.TrimSpace(flagTarget) == "" {
		return pipeline.Usagef("missing required flag: --target")
	}
	p, err := config.Open(flagConfig, flagRoot)
	if err != nil {
		return pipeline.Usagef("%v", err)
	}
	logger, _ := logging.WithRun(logging.FromContext(cmd.Context()))
	logger.Debug("pipeline loaded",
		slog.String("config", flagConfig),
		slog.String("root", p.Root),
		slog.String("env_base", p.EnvBase()),
		slog.String("interpreter", p.Interpreter))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	o := pipeline.Orchestrator{
		Resolver: p.Resolver(),
		Runner:   stage.Runner{},
		Logger:   logger,
		Console:  console.New(os.Stderr),
	}
	_, err = o.Run(ctx, flagTarget, p.Table())
	return err
}

// Execute runs the root command with provided args.
func Execute(args []string) error {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	return cmd.Execute()
}
