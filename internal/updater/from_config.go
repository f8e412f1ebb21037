package updater

import (
	"path/filepath"
	"strings"

	"github.com/xenolauncher/xenoupdate/internal/config"
	"github.com/xenolauncher/xenoupdate/internal/download"
	"github.com/xenolauncher/xenoupdate/internal/gate"
	"github.com/xenolauncher/xenoupdate/internal/installer"
	"github.com/xenolauncher/xenoupdate/internal/release"
	"github.com/xenolauncher/xenoupdate/internal/updateutil"
	"github.com/xenolauncher/xenoupdate/internal/version"
)

// UpdatesDir is where downloads, the helper copy and its result live.
func UpdatesDir(cfg config.File) (string, error) {
	dataDir, err := cfg.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "updates"), nil
}

// Host identifies the launcher process the update is installed for.
type Host struct {
	// PID is the launcher the helper waits for. Zero means this process.
	PID int
	// RestartArgs are passed to the launcher when the helper restarts it.
	RestartArgs []string
}

// NewFromConfig wires an Updater for the launcher described by cfg.Paths.
// Without a configured executable the install location is unknown and every
// update ends in manual.
func NewFromConfig(cfg config.File, store MarkerStore, host Host) (*Updater, error) {
	updatesDir, err := UpdatesDir(cfg)
	if err != nil {
		return nil, err
	}

	current := strings.TrimSpace(cfg.Product.CurrentVersion)
	packaged := cfg.Product.Packaged
	if current == "" {
		current = version.Current()
		if version.IsDev() {
			packaged = false
		}
	}
	if updateutil.InGoBuildCache(cfg.Paths.Executable) {
		packaged = false
	}

	token := strings.TrimSpace(cfg.Update.ApprovalToken)
	if !cfg.Update.RequireApproval {
		token = ""
	}

	c := Config{
		CurrentVersion: current,
		Packaged:       packaged,
		Manual:         cfg.Manual(),
		Resolver: release.Resolver{
			ManifestURL:       cfg.Source.ManifestURL,
			Repo:              cfg.Repo(),
			APIBase:           cfg.Source.APIBase,
			IncludePrerelease: cfg.Update.IncludePrerelease,
			Options: release.Options{
				Timeout:       cfg.CheckTimeout(),
				AuthToken:     cfg.Source.Token,
				ApprovalToken: token,
			},
		},
		Policy: gate.Policy{
			RequireApproval: cfg.Update.RequireApproval,
			AllowUnapproved: cfg.Update.AllowUnapproved,
		},
		AllowBinaryFallback: cfg.Update.AllowBinaryFallback,
		StrictCommit:        cfg.Update.StrictCommit,
		Brand:               cfg.Product.Name,
		UpdatesDir:          updatesDir,
		Download: download.Options{
			Timeout:   cfg.DownloadTimeout(),
			AuthToken: cfg.Source.Token,
		},
	}
	rt := installer.DetectRuntime(cfg.Paths.Executable, cfg.Paths.ResourcesDir)
	inst := installer.New(updatesDir)
	inst.PID = host.PID
	inst.RestartArgs = host.RestartArgs
	return New(c, store, inst, rt), nil
}
