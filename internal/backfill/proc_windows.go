//go:build windows

package backfill

import "os/exec"

func setProcessGroup(cmd *exec.Cmd) {}

// Windows has no SIGTERM; both steps kill the process.
func signalTerm(cmd *exec.Cmd) { signalKill(cmd) }

func signalKill(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}
