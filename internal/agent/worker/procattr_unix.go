//go:build unix && !linux

package worker

import (
	"os/exec"
	"syscall"
)

// setProcGroup puts the worker in its own process group. Pdeathsig does not
// exist here, so orphan cleanup relies on controller shutdown.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killProcessGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}
