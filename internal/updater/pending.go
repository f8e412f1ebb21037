package updater

import (
	"errors"
	"log/slog"
	"os"

	"github.com/xenolauncher/xenoupdate/internal/updatehelper"
)

// settlePending resolves a marker left pending by a strict-commit run: it is
// promoted when the helper reported success and dropped otherwise. Without a
// helper result the marker stays pending. With nothing pending, a result left
// by an optimistic run is logged and removed.
func (u *Updater) settlePending() {
	rh := updatehelper.NewResultHandler(u.launcher.ResultPath())
	pending, ok, err := u.store.PendingMarker()
	if err != nil {
		slog.Warn("read pending update marker", "error", err)
		return
	}
	if !ok {
		u.discardResult(rh)
		return
	}

	result, err := rh.Read()
	switch {
	case errors.Is(err, os.ErrNotExist):
		slog.Warn("pending update marker has no helper result yet", "marker", pending, "result", rh.Path())
		return
	case err != nil:
		slog.Warn("unreadable helper result, dropping pending marker", "marker", pending, "error", err)
		if err := u.store.ClearPendingMarker(); err != nil {
			slog.Error("clear pending update marker", "error", err)
		}
	case result.Success:
		promoted, err := u.store.PromotePendingMarker()
		if err != nil {
			slog.Error("promote pending update marker", "marker", pending, "error", err)
			return
		}
		slog.Info("helper confirmed update", "marker", promoted, "attempts", result.Attempts, "restarted", result.Restarted)
	default:
		slog.Warn("helper reported failed update", "marker", pending, "error", result.Error, "attempts", result.Attempts)
		if err := u.store.ClearPendingMarker(); err != nil {
			slog.Error("clear pending update marker", "error", err)
		}
	}

	if err := rh.Cleanup(); err != nil {
		slog.Warn("remove helper result", "path", rh.Path(), "error", err)
	}
}

func (u *Updater) discardResult(rh *updatehelper.ResultHandler) {
	result, err := rh.Read()
	switch {
	case errors.Is(err, os.ErrNotExist):
		return
	case err != nil:
		slog.Warn("unreadable helper result", "path", rh.Path(), "error", err)
	case result.Success:
		slog.Info("previous helper run succeeded", "kind", result.Kind, "attempts", result.Attempts, "restarted", result.Restarted)
	default:
		slog.Warn("previous helper run failed", "kind", result.Kind, "target", result.Target, "error", result.Error, "attempts", result.Attempts)
	}
	if err := rh.Cleanup(); err != nil {
		slog.Warn("remove helper result", "path", rh.Path(), "error", err)
	}
}
