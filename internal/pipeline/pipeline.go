// Package pipeline runs the stage table in order and stops at the first
// stage that cannot be resolved, launched or completed.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/flarebyte/geotrail/internal/console"
	"github.com/flarebyte/geotrail/internal/stage"
)

// TargetFlag is the argument passed, with its value, to the first stage.
const TargetFlag = "--target"

// EnvironmentResolver maps an environment name to its interpreter.
type EnvironmentResolver interface {
	Resolve(name string) (string, error)
}

// StageRunner executes one stage to completion.
type StageRunner interface {
	Run(ctx context.Context, d stage.Descriptor, exe string) stage.Result
}

// StageReport is the outcome of one table entry. Ran is false for stages
// that were never reached.
type StageReport struct {
	Name       string
	Executable string
	Args       []string
	Ran        bool
	Result     stage.Result
	Duration   time.Duration
	Err        error
}

// Report collects the outcome of a run in table order.
type Report struct {
	Target string
	Stages []StageReport
}

// OK reports whether every stage ran and succeeded.
func (r Report) OK() bool {
	for _, s := range r.Stages {
		if !s.Ran || !s.Result.OK() {
			return false
		}
	}
	return len(r.Stages) > 0
}

// Rows renders the report for the console summary.
func (r Report) Rows() []console.Row {
	rows := make([]console.Row, 0, len(r.Stages))
	for _, s := range r.Stages {
		row := console.Row{Name: s.Name}
		switch {
		case s.Err != nil:
			row.Outcome = s.Err.Error()
		case s.Ran && s.Result.OK():
			row.OK = true
			row.Outcome = fmt.Sprintf("%s in %s", s.Result, s.Duration.Round(time.Millisecond))
		case s.Ran:
			row.Outcome = s.Result.String()
		}
		rows = append(rows, row)
	}
	return rows
}

// Orchestrator drives a stage table. Stages run strictly one after another;
// nothing is retried or rolled back.
type Orchestrator struct {
	Resolver EnvironmentResolver
	Runner   StageRunner
	Logger   *slog.Logger
	Console  *console.Console
}

func (o Orchestrator) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

func (o Orchestrator) console() *console.Console {
	if o.Console == nil {
		return console.Discard()
	}
	return o.Console
}

// Run executes table for target. The first stage receives
// "--target <target>" after its configured arguments. Each environment is
// resolved right before its stage runs, so a missing environment late in
// the table only surfaces once the earlier stages have completed.
func (o Orchestrator) Run(ctx context.Context, target string, table stage.Table) (Report, error) {
	report := Report{Target: target}
	if strings.TrimSpace(target) == "" {
		return report, Usagef("missing required flag: %s", TargetFlag)
	}
	if err := table.Validate(); err != nil {
		return report, Usagef("invalid stage table: %v", err)
	}
	log := o.logger()
	con := o.console()

	for _, d := range table {
		report.Stages = append(report.Stages, StageReport{Name: d.DisplayName()})
	}
	con.Banner("geotrail", fmt.Sprintf("target %s, %d stages", target, len(table)))
	log.Info("pipeline started", slog.String("target", target), slog.Int("stages", len(table)))

	for i, d := range table {
		if i == 0 {
			d = d.WithArgs(TargetFlag, target)
		}
		sr := &report.Stages[i]
		sr.Args = d.Argv()
		con.Step(i+1, len(table), sr.Name)

		exe, err := o.Resolver.Resolve(d.EnvironmentName)
		if err != nil {
			ferr := &EnvironmentNotFoundError{Stage: sr.Name, Err: err}
			sr.Err = ferr
			log.Error("environment not found", slog.String("stage", sr.Name), slog.String("env", d.EnvironmentName), slog.String("error", err.Error()))
			return report, o.halt(report, ferr)
		}
		sr.Executable = exe
		con.Detail("interpreter", exe)
		con.Detail("directory", d.WorkingDirectory)
		con.Detail("command", strings.Join(sr.Args, " "))
		log.Info("stage started",
			slog.String("stage", sr.Name),
			slog.String("exe", exe),
			slog.String("cwd", d.WorkingDirectory),
			slog.Any("args", sr.Args))

		start := time.Now()
		res := o.Runner.Run(ctx, d, exe)
		sr.Ran = true
		sr.Result = res
		sr.Duration = time.Since(start)
		if !res.OK() {
			ferr := &StageFailedError{Stage: sr.Name, Result: res}
			log.Error("stage failed",
				slog.String("stage", sr.Name),
				slog.String("kind", res.Kind.String()),
				slog.Int("exit_code", res.ExitCode),
				slog.String("reason", res.Reason))
			return report, o.halt(report, ferr)
		}
		con.Success(fmt.Sprintf("%s finished in %s", sr.Name, sr.Duration.Round(time.Millisecond)))
		log.Info("stage finished", slog.String("stage", sr.Name), slog.Duration("duration", sr.Duration))
	}

	con.Summary("pipeline finished", report.Rows())
	log.Info("pipeline finished", slog.String("target", target))
	return report, nil
}

func (o Orchestrator) halt(report Report, err error) error {
	con := o.console()
	con.Failure(err.Error())
	con.Summary("pipeline halted", report.Rows())
	return err
}
