//go:build !windows

package updatehelper

import (
	"errors"

	"golang.org/x/sys/unix"
)

func processRunning(pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}
	err := unix.Kill(pid, 0)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, unix.ESRCH):
		return false, nil
	case errors.Is(err, unix.EPERM):
		// The process exists but belongs to someone else.
		return true, nil
	default:
		return false, err
	}
}
