//go:build !windows

package executor

import (
	"os/exec"
	"syscall"
)

// run the command in its own process group so a timeout kills the children too
func setProcAttr(c *exec.Cmd) {
	c.SysProcAttr = &syscall.SysProcAttr{}
	setDeathsig(c.SysProcAttr)
	c.Cancel = func() error {
		return syscall.Kill(-c.Process.Pid, syscall.SIGKILL)
	}
}
