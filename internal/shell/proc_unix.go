//go:build !windows

package shell

import (
	"os/exec"
	"syscall"
)

// setProcessGroup places the child in its own process group so that
// signals reach the shell and everything it spawned.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalGroup sends sig to the child's process group, falling back to
// the single process if the group signal fails.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) {
	if cmd.Process == nil {
		return
	}
	if err := syscall.Kill(-cmd.Process.Pid, sig); err != nil {
		_ = cmd.Process.Signal(sig)
	}
}

// terminate asks the process group to exit.
func terminate(cmd *exec.Cmd) {
	signalGroup(cmd, syscall.SIGTERM)
}

// forceKill kills the process group without further ceremony.
func forceKill(cmd *exec.Cmd) {
	signalGroup(cmd, syscall.SIGKILL)
}
