package updater

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/xenolauncher/xenoupdate/internal/download"
	"github.com/xenolauncher/xenoupdate/internal/installer"
	"github.com/xenolauncher/xenoupdate/internal/release"
	"github.com/xenolauncher/xenoupdate/internal/status"
	"github.com/xenolauncher/xenoupdate/internal/updateutil"
)

// artifactTexts are the user-facing messages of one install path.
type artifactTexts struct {
	downloading    string
	downloadFailed string
	invalid        string
	installing     string
	launchFailed   string
	done           string
}

var (
	bundleTexts = artifactTexts{
		downloading:    "Downloading launcher patch... %d%%",
		downloadFailed: "Launcher patch download failed. Continuing...",
		invalid:        "The launcher patch is not valid. Continuing...",
		installing:     "Applying launcher patch...",
		launchFailed:   "Could not apply the launcher patch.",
		done:           "Patch applied. Restarting launcher...",
	}
	setupTexts = artifactTexts{
		downloading:    "Downloading launcher update... %d%%",
		downloadFailed: "Launcher update download failed. Continuing...",
		invalid:        "The downloaded update is not valid. Continuing...",
		installing:     "Installing launcher update...",
		launchFailed:   "Could not start the installer.",
		done:           "Launcher update ready. Restarting...",
	}
	portableTexts = artifactTexts{
		downloading:    "Downloading launcher update... %d%%",
		downloadFailed: "Launcher update download failed. Continuing...",
		invalid:        "The downloaded update is not valid. Continuing...",
		installing:     "Applying portable update...",
		launchFailed:   "Could not start the installer.",
		done:           "Portable update ready. Restarting...",
	}
)

func (p *pass) install() Outcome {
	u := p.u
	rt := u.runtime
	bundle, hasBundle := u.selector.Bundle(p.info.Assets)
	mode := rt.Mode(hasBundle)
	if mode == installer.ModeUnsupported {
		slog.Info("in-place update not supported, manual install required", "os", rt.GOOS, "release_url", p.info.HTMLURL)
		return p.manual("Launcher update available. Install it manually.", mode, installer.ErrUnsupportedPlatform)
	}
	if rt.Executable == "" {
		slog.Warn("launcher executable unknown, manual install required", "release_url", p.info.HTMLURL)
		return p.manual("Launcher update available. Install it manually.", mode, installer.ErrNoTarget)
	}

	if mode == installer.ModeBundle {
		slog.Info("bundle patch selected", "asset", bundle.Name, "size", bundle.Size)
		return p.installArtifact(mode, bundle, download.ClassBundle, bundleTexts, func(path string) error {
			return u.launcher.LaunchBundle(path, rt.BundlePath, rt.Executable)
		})
	}
	if hasBundle && !u.cfg.AllowBinaryFallback {
		slog.Warn("bundle patch found but bundle is not writable", "bundle", rt.BundlePath, "asset", bundle.Name)
		return p.manual("No permission to patch the launcher in this install.", installer.ModeBundle, installer.ErrNoWriteAccess)
	}
	if !hasBundle && !u.cfg.AllowBinaryFallback {
		slog.Warn("release has no bundle patch and binary fallback is disabled", "version", p.dec.Version)
		return p.manual("Release has no launcher patch. Update paused until one is published.", installer.ModeBundle, installer.ErrNoArtifact)
	}

	slog.Info("binary update mode", "mode", mode)
	var (
		asset release.Asset
		found bool
		class download.Class
		texts artifactTexts
	)
	if mode == installer.ModePortable {
		asset, found = u.selector.Portable(p.info.Assets)
		class, texts = download.ClassPortable, portableTexts
	} else {
		asset, found = u.selector.Setup(p.info.Assets)
		class, texts = download.ClassSetup, setupTexts
	}
	if !found {
		slog.Warn("no installable asset for mode", "mode", mode, "assets", len(p.info.Assets))
		if mode == installer.ModePortable {
			return p.manual("Release has no portable build. Update manually.", mode, installer.ErrNoArtifact)
		}
		return p.manual("Launcher update available. Install it manually.", mode, installer.ErrNoArtifact)
	}
	if !extensionAllowed(mode, asset.Name) {
		slog.Warn("selected asset does not fit mode", "mode", mode, "asset", asset.Name)
		return p.manual("Release has no compatible update file.", mode, installer.ErrNoArtifact)
	}
	if mode == installer.ModePortable && !installer.CanReplace(rt.Executable) {
		slog.Warn("portable build without write access to its folder", "exe", rt.Executable)
		return p.manual("No permission to update the portable build in this folder. Update manually.", mode, installer.ErrNoWriteAccess)
	}

	slog.Info("asset selected", "mode", mode, "asset", asset.Name, "size", asset.Size)
	return p.installArtifact(mode, asset, class, texts, func(path string) error {
		if mode == installer.ModePortable {
			return u.launcher.LaunchPortable(path, rt.Executable)
		}
		return u.launcher.LaunchSetup(path)
	})
}

func extensionAllowed(mode installer.Mode, name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if mode == installer.ModePortable {
		return ext == ".exe"
	}
	return ext == ".exe" || ext == ".msi"
}

// installArtifact downloads and validates asset, then launches it. The marker
// is committed only after a successful launch.
func (p *pass) installArtifact(mode installer.Mode, asset release.Asset, class download.Class, texts artifactTexts, launch func(path string) error) Outcome {
	u := p.u
	dest := filepath.Join(u.cfg.UpdatesDir, updateutil.SanitizeFileName(asset.Name))

	p.report.Report(status.Status{
		Text:         fmt.Sprintf(texts.downloading, 0),
		Phase:        status.PhaseDownloading,
		Progress:     status.Percent(0),
		ShowProgress: true,
	})
	throttle := status.NewProgressThrottle()
	onProgress := func(ratio float64) {
		pct, ok := throttle.Percent(ratio)
		if !ok {
			return
		}
		p.report.Report(status.Status{
			Text:         fmt.Sprintf(texts.downloading, pct),
			Phase:        status.PhaseDownloading,
			Progress:     status.Percent(pct),
			ShowProgress: true,
		})
	}

	written, err := download.File(p.ctx, asset.URL, dest, onProgress, u.cfg.Download)
	if err != nil {
		slog.Error("update download failed", "asset", asset.Name, "asset_url", asset.URL, "bytes", written, "error", err)
		return p.failed(texts.downloadFailed, mode, asset.Name, err)
	}
	if _, err := download.Validate(dest, class); err != nil {
		slog.Error("downloaded update failed validation", "asset", asset.Name, "path", dest, "bytes", written, "error", err)
		return p.failed(texts.invalid, mode, asset.Name, err)
	}

	p.report.Report(status.Status{
		Text:          texts.installing,
		Phase:         status.PhaseInstalling,
		Progress:      status.Percent(100),
		Indeterminate: true,
		ShowProgress:  true,
	})
	if err := launch(dest); err != nil {
		var ie *installer.InstallError
		if errors.As(err, &ie) && ie.Manual() {
			slog.Warn("update needs manual install", "asset", asset.Name, "error", err)
			out := p.manual("Launcher update available. Install it manually.", mode, err)
			out.Asset = asset.Name
			return out
		}
		slog.Error("could not launch update", "mode", mode, "path", dest, "error", err)
		return p.failed(texts.launchFailed, mode, asset.Name, err)
	}

	slog.Info("update handed over", "mode", mode, "path", dest, "version", p.dec.Version)
	u.commit(p.info.Marker, mode)
	p.report.Report(status.Status{
		Text:          texts.done,
		Phase:         status.PhaseInstalling,
		Progress:      status.Percent(100),
		Indeterminate: true,
		ShowProgress:  true,
	})
	out := p.outcome(OutcomeInstalling)
	out.Mode = mode
	out.Asset = asset.Name
	return out
}
