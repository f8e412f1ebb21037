// Package installer hands a downloaded artifact over to a process that can
// replace the running launcher's files after the launcher exits.
package installer

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/xenolauncher/xenoupdate/internal/updateutil"
)

var (
	ErrInstall             = errors.New("install failed")
	ErrUnsupportedPlatform = errors.New("in-place updates are not supported on this platform")
	ErrNoWriteAccess       = errors.New("no write access to install location")
	ErrNoArtifact          = errors.New("release has no installable artifact")
	ErrSamePath            = errors.New("source and destination are the same file")
	ErrNoTarget            = errors.New("launcher executable not configured")
)

// InstallError wraps a failed hand-over. Manual errors mean the user has to
// install the update by hand; the rest are launch failures.
type InstallError struct {
	Mode Mode
	Path string
	Err  error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("install %s (%s): %v", e.Path, e.Mode, e.Err)
}

func (e *InstallError) Unwrap() []error {
	return []error{ErrInstall, e.Err}
}

func (e *InstallError) Manual() bool {
	return errors.Is(e.Err, ErrNoWriteAccess) || errors.Is(e.Err, ErrNoArtifact) || errors.Is(e.Err, ErrUnsupportedPlatform) ||
		errors.Is(e.Err, ErrNoTarget)
}

const (
	// HelperCommand is the subcommand the detached helper runs.
	HelperCommand = "update-helper"
	ResultFile    = "result.json"
	HelperLogFile = "helper.log"
)

// Installer launches helpers and installers out of UpdatesDir.
type Installer struct {
	UpdatesDir string
	// HelperSource is the binary that implements HelperCommand. Empty means
	// the current executable.
	HelperSource string
	Spawner      Spawner
	// PID is the process the helper waits for. Zero means the current process.
	PID         int
	RestartArgs []string
}

func New(updatesDir string) *Installer {
	return &Installer{UpdatesDir: updatesDir, Spawner: ExecSpawner{}}
}

func (i *Installer) spawner() Spawner {
	if i.Spawner == nil {
		return ExecSpawner{}
	}
	return i.Spawner
}

func (i *Installer) pid() int {
	if i.PID > 0 {
		return i.PID
	}
	return os.Getpid()
}

// ResultPath is where the helper reports its outcome.
func (i *Installer) ResultPath() string {
	return filepath.Join(i.UpdatesDir, ResultFile)
}

func (i *Installer) helperName() string {
	return "xenoupdate-helper" + updateutil.ExeExt()
}

// copyHelper puts a private copy of the helper binary into the updates dir so
// the helper never locks a file it is about to replace.
func (i *Installer) copyHelper() (string, error) {
	src := strings.TrimSpace(i.HelperSource)
	if src == "" {
		exe, err := os.Executable()
		if err != nil {
			return "", fmt.Errorf("locate helper binary: %w", err)
		}
		src = exe
	}
	if err := os.MkdirAll(i.UpdatesDir, 0o755); err != nil {
		return "", fmt.Errorf("create updates dir: %w", err)
	}
	dst := filepath.Join(i.UpdatesDir, i.helperName())
	if samePath(src, dst) {
		return dst, nil
	}
	if err := updateutil.CopyFile(src, dst, 0o755); err != nil {
		return "", fmt.Errorf("copy helper binary: %w", err)
	}
	return dst, nil
}

func (i *Installer) helperArgs(kind string, flags ...string) []string {
	args := append([]string{HelperCommand, kind}, flags...)
	args = append(args,
		"--pid", strconv.Itoa(i.pid()),
		"--result", i.ResultPath(),
		"--log", filepath.Join(i.UpdatesDir, HelperLogFile),
	)
	for _, a := range i.RestartArgs {
		args = append(args, "--arg", a)
	}
	return args
}

// LaunchBundle starts a helper that swaps the resource bundle at dst for src
// and restarts exe.
func (i *Installer) LaunchBundle(src, dst, exe string) error {
	if samePath(src, dst) {
		return &InstallError{Mode: ModeBundle, Path: src, Err: ErrSamePath}
	}
	helper, err := i.copyHelper()
	if err != nil {
		return &InstallError{Mode: ModeBundle, Path: src, Err: err}
	}
	args := i.helperArgs("bundle", "--src", abs(src), "--dst", abs(dst), "--exe", abs(exe))
	if err := i.spawner().Start(helper, args...); err != nil {
		return &InstallError{Mode: ModeBundle, Path: src, Err: fmt.Errorf("start helper: %w", err)}
	}
	slog.Info("bundle helper launched", "src", src, "dst", dst, "exe", exe)
	return nil
}

// LaunchPortable starts a helper that copies src over the locked executable
// dst and restarts it.
func (i *Installer) LaunchPortable(src, dst string) error {
	if samePath(src, dst) {
		return &InstallError{Mode: ModePortable, Path: src, Err: ErrSamePath}
	}
	helper, err := i.copyHelper()
	if err != nil {
		return &InstallError{Mode: ModePortable, Path: src, Err: err}
	}
	args := i.helperArgs("portable", "--src", abs(src), "--dst", abs(dst))
	if err := i.spawner().Start(helper, args...); err != nil {
		return &InstallError{Mode: ModePortable, Path: src, Err: fmt.Errorf("start helper: %w", err)}
	}
	slog.Info("portable helper launched", "src", src, "dst", dst)
	return nil
}

// silentExeFlags are tried in order until the installer starts.
var silentExeFlags = [][]string{{"/S"}, {"/SILENT"}, {"/silent"}, nil}

// LaunchSetup runs the platform installer without user interaction.
func (i *Installer) LaunchSetup(path string) error {
	path = abs(path)
	if strings.EqualFold(filepath.Ext(path), ".msi") {
		if err := i.spawner().Start("msiexec", "/i", path, "/passive"); err != nil {
			return &InstallError{Mode: ModeSetup, Path: path, Err: fmt.Errorf("start msiexec: %w", err)}
		}
		slog.Info("msi installer launched", "path", path)
		return nil
	}
	var merr *multierror.Error
	for _, flags := range silentExeFlags {
		err := i.spawner().Start(path, flags...)
		if err == nil {
			slog.Info("installer launched", "path", path, "args", flags)
			return nil
		}
		merr = multierror.Append(merr, fmt.Errorf("args %v: %w", flags, err))
	}
	return &InstallError{Mode: ModeSetup, Path: path, Err: fmt.Errorf("start installer: %w", merr.ErrorOrNil())}
}

// Cleanup removes leftovers of earlier runs from the updates dir: the helper
// copy and downloaded artifacts. The result file and logs are kept.
func (i *Installer) Cleanup() error {
	info, err := os.Stat(i.UpdatesDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if !info.IsDir() {
		return nil
	}
	entries, err := os.ReadDir(i.UpdatesDir)
	if err != nil {
		return err
	}

	var merr *multierror.Error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := strings.ToLower(entry.Name())
		if !isArtifactName(name) {
			continue
		}
		if err := os.Remove(filepath.Join(i.UpdatesDir, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			merr = multierror.Append(merr, fmt.Errorf("remove %s: %w", entry.Name(), err))
		}
	}
	return merr.ErrorOrNil()
}

func isArtifactName(lower string) bool {
	for _, ext := range []string{".asar", ".exe", ".msi", ".tmp"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return strings.HasPrefix(lower, "xenoupdate-helper")
}

func abs(p string) string {
	if a, err := filepath.Abs(p); err == nil {
		return a
	}
	return p
}

func samePath(a, b string) bool {
	return strings.EqualFold(filepath.Clean(abs(a)), filepath.Clean(abs(b)))
}
