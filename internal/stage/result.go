package stage

import "fmt"

// Kind classifies how a stage execution ended.
type Kind int

const (
	Succeeded Kind = iota
	LaunchFailed
	ExitedNonZero
)

func (k Kind) String() string {
	switch k {
	case Succeeded:
		return "succeeded"
	case LaunchFailed:
		return "launch-failed"
	case ExitedNonZero:
		return "exited-non-zero"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is the outcome of one stage execution.
// Reason is set for LaunchFailed, ExitCode (and Signal, when the child was
// killed) for ExitedNonZero.
type Result struct {
	Kind     Kind
	Reason   string
	ExitCode int
	Signal   string
}

func success() Result { return Result{Kind: Succeeded} }

func launchFailed(format string, args ...any) Result {
	return Result{Kind: LaunchFailed, ExitCode: -1, Reason: fmt.Sprintf(format, args...)}
}

func exitedNonZero(code int, signal string) Result {
	return Result{Kind: ExitedNonZero, ExitCode: code, Signal: signal}
}

// OK reports whether the stage succeeded.
func (r Result) OK() bool { return r.Kind == Succeeded }

func (r Result) String() string {
	switch r.Kind {
	case Succeeded:
		return "succeeded"
	case LaunchFailed:
		return "launch failed: " + r.Reason
	case ExitedNonZero:
		if r.Signal != "" {
			return fmt.Sprintf("exited with code %d (%s)", r.ExitCode, r.Signal)
		}
		return fmt.Sprintf("exited with code %d", r.ExitCode)
	default:
		return r.Kind.String()
	}
}
