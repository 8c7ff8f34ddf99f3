//go:build !windows

package supervisor

import (
	"os"
	"os/exec"
	"syscall"
)

// setSysProcAttr puts the child in its own process group so that wrapper
// scripts and their children are signalled together.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func signalTerm(p *os.Process) error {
	return syscall.Kill(-p.Pid, syscall.SIGTERM)
}

func forceKill(p *os.Process) error {
	return syscall.Kill(-p.Pid, syscall.SIGKILL)
}
