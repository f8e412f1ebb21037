// Package updater runs the launcher self-update pass: resolve the newest
// release, gate it, pick and download the artifact, and hand it to an
// installer.
package updater

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/xenolauncher/xenoupdate/internal/download"
	"github.com/xenolauncher/xenoupdate/internal/gate"
	"github.com/xenolauncher/xenoupdate/internal/installer"
	"github.com/xenolauncher/xenoupdate/internal/release"
	"github.com/xenolauncher/xenoupdate/internal/selector"
	"github.com/xenolauncher/xenoupdate/internal/status"
	"github.com/xenolauncher/xenoupdate/internal/updateutil"
)

var ErrAlreadyRunning = errors.New("update check already running")

type OutcomeKind string

const (
	OutcomeInstalling OutcomeKind = "installing"
	OutcomeUpToDate   OutcomeKind = "up-to-date"
	OutcomeSkipped    OutcomeKind = "skipped"
	OutcomeBlocked    OutcomeKind = "blocked"
	OutcomeManual     OutcomeKind = "manual"
	OutcomeFailed     OutcomeKind = "failed"
)

// Outcome tells the host what happened. When Kind is OutcomeInstalling the
// host should quit so the helper or installer can replace its files.
type Outcome struct {
	Kind       OutcomeKind    `json:"kind"`
	Version    string         `json:"version,omitempty"`
	ReleaseURL string         `json:"release_url,omitempty"`
	Mode       installer.Mode `json:"mode,omitempty"`
	Asset      string         `json:"asset,omitempty"`
	Err        error          `json:"-"`
}

func (o Outcome) Installing() bool {
	return o.Kind == OutcomeInstalling
}

// MarkerStore persists the applied and pending release markers.
type MarkerStore interface {
	AppliedMarker() (string, error)
	SetAppliedMarker(marker string) error
	PendingMarker() (string, bool, error)
	SetPendingMarker(marker string) error
	ClearPendingMarker() error
	PromotePendingMarker() (string, error)
}

// Launcher hands downloaded artifacts over to the process that installs them.
type Launcher interface {
	LaunchBundle(src, dst, exe string) error
	LaunchPortable(src, dst string) error
	LaunchSetup(path string) error
	Cleanup() error
	ResultPath() string
}

type Config struct {
	CurrentVersion string
	// Packaged is false for development builds, which never update.
	Packaged bool
	// Manual disables automatic updates; the run only reports.
	Manual              bool
	Resolver            release.Resolver
	Policy              gate.Policy
	AllowBinaryFallback bool
	// StrictCommit defers the marker commit of helper-based installs until
	// the helper reports success.
	StrictCommit bool
	Brand        string
	UpdatesDir   string
	Download     download.Options
}

type Updater struct {
	cfg      Config
	store    MarkerStore
	launcher Launcher
	runtime  installer.Runtime
	selector selector.Selector
	running  atomic.Bool
}

func New(cfg Config, store MarkerStore, launcher Launcher, rt installer.Runtime) *Updater {
	return &Updater{
		cfg:      cfg,
		store:    store,
		launcher: launcher,
		runtime:  rt,
		selector: selector.New(cfg.Brand),
	}
}

// Run performs one update pass and reports every state change to report. It
// never panics; failures are described by the returned Outcome. A Run started
// while another is in flight returns immediately with ErrAlreadyRunning.
func (u *Updater) Run(ctx context.Context, report status.Reporter) (out Outcome) {
	if !u.running.CompareAndSwap(false, true) {
		return Outcome{Kind: OutcomeSkipped, Err: ErrAlreadyRunning}
	}
	defer u.running.Store(false)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("update run panicked", "panic", r)
			report.Report(status.Hidden(status.PhaseError, "Launcher update failed. Continuing..."))
			out = Outcome{Kind: OutcomeFailed, Err: fmt.Errorf("update run panicked: %v", r)}
		}
	}()

	p := &pass{u: u, ctx: ctx, report: report}
	return p.run()
}

// pass holds the state of one Run.
type pass struct {
	u      *Updater
	ctx    context.Context
	report status.Reporter
	info   release.Info
	dec    gate.Decision
}

func (p *pass) run() Outcome {
	u := p.u
	if u.cfg.Manual {
		slog.Info("update check disabled in manual mode")
		p.report.Report(status.Hidden(status.PhaseManual, "Launcher updates are in manual mode."))
		return Outcome{Kind: OutcomeManual}
	}

	p.report.Report(status.Status{
		Text:          "Checking for launcher updates...",
		Phase:         status.PhaseChecking,
		Indeterminate: true,
		ShowProgress:  true,
	})

	source := u.cfg.Resolver.SourceLabel()
	if source == "" {
		slog.Info("update source not configured")
		p.report.Report(status.Status{Text: "Starting launcher..."})
		return Outcome{Kind: OutcomeSkipped}
	}
	if !u.cfg.Packaged {
		slog.Info("update skipped in development build", "source", source)
		p.report.Report(status.Status{Text: "Development build detected. Continuing..."})
		return Outcome{Kind: OutcomeSkipped}
	}

	u.settlePending()
	if err := u.launcher.Cleanup(); err != nil {
		slog.Warn("clean updates dir", "dir", u.cfg.UpdatesDir, "error", err)
	}

	info, err := u.cfg.Resolver.Resolve(p.ctx)
	if err != nil {
		if errors.Is(err, release.ErrNoSource) {
			p.report.Report(status.Status{Text: "Starting launcher..."})
			return Outcome{Kind: OutcomeSkipped}
		}
		slog.Error("update check failed", "source", source, "error", err)
		p.report.Report(status.Hidden(status.PhaseError, "Could not check for launcher updates. Continuing..."))
		return Outcome{Kind: OutcomeSkipped, Err: err}
	}
	p.info = info

	if info.Empty() {
		slog.Info("no release information", "source", source)
		p.report.Report(status.Status{Text: "No launcher updates available.", Phase: status.PhaseUpToDate, Progress: status.Percent(100), ShowProgress: true})
		return Outcome{Kind: OutcomeUpToDate}
	}

	applied, err := u.store.AppliedMarker()
	if err != nil {
		slog.Warn("read applied marker", "error", err)
		applied = ""
	}
	p.dec = gate.Evaluate(u.cfg.CurrentVersion, info.Candidate(), applied, u.cfg.Policy)
	if suffix := updateutil.PrereleaseSuffix(info.Version); suffix != "" {
		slog.Debug("prerelease suffix compared as extra version components", "version", info.Version, "suffix", suffix)
	}
	if !p.dec.HasUpdate() {
		slog.Info("launcher up to date", "current", u.cfg.CurrentVersion, "marker", info.Marker)
		p.report.Report(status.Status{Text: "Launcher is up to date.", Phase: status.PhaseUpToDate, Progress: status.Percent(100), ShowProgress: true})
		return p.outcome(OutcomeUpToDate)
	}
	if p.dec.HasVersionUpdate {
		slog.Info("new launcher version found", "version", p.dec.Version, "current", u.cfg.CurrentVersion)
	} else {
		slog.Info("launcher build marker changed", "applied", applied, "marker", info.Marker)
	}
	if p.dec.Blocked {
		slog.Info("update blocked by rollout approval", "version", p.dec.Version)
		p.report.Report(status.Hidden(status.PhaseUpToDate, "New build found but not yet approved for release."))
		return p.outcome(OutcomeBlocked)
	}
	if p.dec.Override {
		slog.Warn("unapproved update allowed by local override", "version", p.dec.Version)
	}

	text := "New launcher build found..."
	if p.dec.HasVersionUpdate {
		text = fmt.Sprintf("Launcher version %s found...", p.dec.Version)
	}
	p.report.Report(status.Status{Text: text, Phase: status.PhaseDownloading, Progress: status.Percent(0), ShowProgress: true})

	return p.install()
}

func (p *pass) outcome(kind OutcomeKind) Outcome {
	return Outcome{Kind: kind, Version: p.dec.Version, ReleaseURL: p.info.HTMLURL}
}

func (p *pass) manual(text string, mode installer.Mode, err error) Outcome {
	p.report.Report(status.Hidden(status.PhaseManual, text))
	out := p.outcome(OutcomeManual)
	out.Mode = mode
	out.Err = err
	return out
}

func (p *pass) failed(text string, mode installer.Mode, asset string, err error) Outcome {
	p.report.Report(status.Hidden(status.PhaseError, text))
	out := p.outcome(OutcomeFailed)
	out.Mode = mode
	out.Asset = asset
	out.Err = err
	return out
}

// commit records marker as applied, or as pending when the install is
// confirmed later by the helper's result file.
func (u *Updater) commit(marker string, mode installer.Mode) {
	marker = strings.TrimSpace(marker)
	if marker == "" {
		return
	}
	if u.cfg.StrictCommit && mode != installer.ModeSetup {
		if err := u.store.SetPendingMarker(marker); err != nil {
			slog.Error("store pending update marker", "marker", marker, "error", err)
		}
		return
	}
	if err := u.store.SetAppliedMarker(marker); err != nil {
		slog.Error("store applied update marker", "marker", marker, "error", err)
	}
}
