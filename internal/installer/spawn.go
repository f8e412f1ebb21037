package installer

import (
	"log/slog"
	"os/exec"
)

// Spawner starts a process that outlives the caller. Start returns once the
// process is running; it never waits for it to finish.
type Spawner interface {
	Start(name string, args ...string) error
}

// ExecSpawner starts processes in their own session or process group and
// releases them immediately.
type ExecSpawner struct{}

func (ExecSpawner) Start(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	setDetachedProcAttr(cmd)
	if err := cmd.Start(); err != nil {
		return err
	}
	slog.Info("detached process started", "command", name, "pid", cmd.Process.Pid)
	if err := cmd.Process.Release(); err != nil {
		slog.Warn("release detached process", "pid", cmd.Process.Pid, "error", err)
	}
	return nil
}
