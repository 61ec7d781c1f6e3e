package pipeline

import (
	"fmt"

	"github.com/flarebyte/geotrail/internal/stage"
)

// Process exit statuses.
const (
	ExitSuccess             = 0
	ExitStageFailed         = 1
	ExitUsage               = 2
	ExitEnvironmentNotFound = 3
)

// UsageError is a bad invocation or an unusable pipeline definition,
// detected before any stage runs.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string { return e.Msg }
func (e *UsageError) ExitCode() int { return ExitUsage }

// Usagef returns a UsageError.
func Usagef(format string, args ...any) error {
	return &UsageError{Msg: fmt.Sprintf(format, args...)}
}

// EnvironmentNotFoundError stops the pipeline when a stage's environment
// cannot be resolved. The stage did not run.
type EnvironmentNotFoundError struct {
	Stage string
	Err   error
}

func (e *EnvironmentNotFoundError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}
func (e *EnvironmentNotFoundError) Unwrap() error { return e.Err }
func (e *EnvironmentNotFoundError) ExitCode() int { return ExitEnvironmentNotFound }

// StageFailedError stops the pipeline when a stage could not be launched or
// exited non-zero.
type StageFailedError struct {
	Stage  string
	Result stage.Result
}

func (e *StageFailedError) Error() string {
	return fmt.Sprintf("stage %s %s", e.Stage, e.Result)
}
func (e *StageFailedError) ExitCode() int { return ExitStageFailed }
