//go:build linux

package executor

import (
	"syscall"
)

// the command is killed when the panel dies
func setDeathsig(sysProcAttr *syscall.SysProcAttr) {
	sysProcAttr.Setpgid = true
	sysProcAttr.Pdeathsig = syscall.SIGKILL
}
