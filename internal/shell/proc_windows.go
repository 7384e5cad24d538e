//go:build windows

package shell

import "os/exec"

func setProcessGroup(cmd *exec.Cmd) {}

// terminate has no graceful equivalent on Windows; Kill is the only
// portable option.
func terminate(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

func forceKill(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}
