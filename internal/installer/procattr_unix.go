//go:build !windows

package installer

import (
	"os/exec"
	"syscall"
)

// setDetachedProcAttr starts the child in a new session so it survives the
// launcher exiting.
func setDetachedProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}
}
