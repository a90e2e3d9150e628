//go:build windows

package executor

import (
	"os/exec"
)

func setProcAttr(c *exec.Cmd) {
}
