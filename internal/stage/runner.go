package stage

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// DefaultTermGrace is how long a cancelled stage gets between SIGTERM and
// SIGKILL.
const DefaultTermGrace = 5 * time.Second

// Runner launches one stage as a child process and waits for it.
// Stdio is passed through without buffering; nil streams default to the
// parent's own.
type Runner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// TermGrace bounds the wait after SIGTERM once ctx is cancelled; zero
	// means DefaultTermGrace.
	TermGrace time.Duration
}

// Run spawns `exe d.EntryScript d.ExtraArgs...` rooted at d.WorkingDirectory
// and blocks until it exits. No timeout is applied. Cancelling ctx while the
// stage runs sends it SIGTERM, then SIGKILL after TermGrace; the stage is
// reported as ExitedNonZero with 128+signal.
func (r Runner) Run(ctx context.Context, d Descriptor, exe string) Result {
	if err := ctx.Err(); err != nil {
		return launchFailed("cancelled before launch: %v", err)
	}
	if res, ok := checkLaunchPaths(d, exe); !ok {
		return res
	}

	cmd := exec.CommandContext(ctx, exe, d.Argv()...)
	cmd.Cancel = func() error { return terminate(cmd.Process) }
	cmd.WaitDelay = r.termGrace()
	cmd.Dir = d.WorkingDirectory
	cmd.Stdin = orDefault(r.Stdin, os.Stdin)
	cmd.Stdout = orDefaultW(r.Stdout, os.Stdout)
	cmd.Stderr = orDefaultW(r.Stderr, os.Stderr)

	if err := cmd.Start(); err != nil {
		var ee *exec.Error
		if errors.As(err, &ee) {
			return launchFailed("program %s not found", exe)
		}
		return launchFailed("program %s start failed: %v", exe, err)
	}
	err := cmd.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		// Stopped by SIGTERM but exited with status 0.
		return exitedNonZero(128+int(syscall.SIGTERM), syscall.SIGTERM.String())
	}
	return classifyWait(err)
}

func (r Runner) termGrace() time.Duration {
	if r.TermGrace <= 0 {
		return DefaultTermGrace
	}
	return r.TermGrace
}

// terminate asks p to stop. Hosts without SIGTERM kill it outright.
func terminate(p *os.Process) error {
	if err := p.Signal(syscall.SIGTERM); err != nil {
		return p.Kill()
	}
	return nil
}

func checkLaunchPaths(d Descriptor, exe string) (Result, bool) {
	info, err := os.Stat(d.WorkingDirectory)
	if err != nil {
		return launchFailed("working directory %s: %v", d.WorkingDirectory, unwrapPathErr(err)), false
	}
	if !info.IsDir() {
		return launchFailed("working directory %s is not a directory", d.WorkingDirectory), false
	}
	if _, err := os.Stat(exe); err != nil {
		return launchFailed("executable %s: %v", exe, unwrapPathErr(err)), false
	}
	if _, err := os.Stat(d.ScriptPath()); err != nil {
		return launchFailed("entry script %s: %v", d.ScriptPath(), unwrapPathErr(err)), false
	}
	return Result{}, true
}

func classifyWait(err error) Result {
	if err == nil || errors.Is(err, exec.ErrWaitDelay) {
		return success()
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return launchFailed("wait failed: %v", err)
	}
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		sig := status.Signal()
		return exitedNonZero(128+int(sig), sig.String())
	}
	return exitedNonZero(exitErr.ExitCode(), "")
}

func unwrapPathErr(err error) error {
	var pe *os.PathError
	if errors.As(err, &pe) {
		return pe.Err
	}
	return err
}

func orDefault(r io.Reader, def io.Reader) io.Reader {
	if r == nil {
		return def
	}
	return r
}

func orDefaultW(w io.Writer, def io.Writer) io.Writer {
	if w == nil {
		return def
	}
	return w
}
