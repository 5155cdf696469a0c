//go:build linux

package worker

import (
	"os/exec"
	"syscall"
)

// setProcGroup puts the worker in its own process group. Pdeathsig makes the
// kernel terminate the worker if the controller dies without shutting down.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGTERM,
	}
}

func killProcessGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}
