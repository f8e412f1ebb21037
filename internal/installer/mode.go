package installer

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/minio/selfupdate"
)

// Mode is how the running install can be updated.
type Mode string

const (
	ModeUnsupported Mode = "unsupported-platform"
	ModeBundle      Mode = "bundle-patchable"
	ModeSetup       Mode = "setup-based"
	ModePortable    Mode = "portable"
)

// BundleName is the resource bundle file of a packaged launcher.
const BundleName = "app.asar"

// Runtime describes the running launcher install. It is recomputed on every run.
type Runtime struct {
	GOOS       string
	Executable string
	// BundlePath is the resource bundle of the install, or "" when unknown.
	BundlePath string
	Portable   bool
}

// DetectRuntime describes the launcher install at executable. An empty
// executable leaves the install unknown, which only allows a manual update.
// resourcesDir may be empty, in which case the bundle is looked up next to
// the executable.
func DetectRuntime(executable, resourcesDir string) Runtime {
	executable = strings.TrimSpace(executable)
	rt := Runtime{GOOS: runtime.GOOS, Executable: executable}
	if resourcesDir = strings.TrimSpace(resourcesDir); resourcesDir == "" && executable != "" {
		resourcesDir = filepath.Join(filepath.Dir(executable), "resources")
	}
	if resourcesDir != "" {
		rt.BundlePath = filepath.Join(resourcesDir, BundleName)
	}
	rt.Portable = rt.GOOS == "windows" && IsPortable(executable, os.Getenv)
	return rt
}

// IsPortable reports whether the launcher runs as a portable build: either the
// portable wrapper exported its location, or the executable name says so.
func IsPortable(executable string, getenv func(string) string) bool {
	hint := strings.TrimSpace(getenv("PORTABLE_EXECUTABLE_FILE"))
	if hint == "" {
		hint = strings.TrimSpace(getenv("PORTABLE_EXECUTABLE_DIR"))
	}
	if hint != "" {
		return true
	}
	return strings.Contains(strings.ToLower(filepath.Base(executable)), "portable")
}

// Supported reports whether in-place updates are possible at all.
func (rt Runtime) Supported() bool {
	return rt.GOOS == "windows"
}

// BinaryMode is the mode used when the bundle cannot be patched.
func (rt Runtime) BinaryMode() Mode {
	if !rt.Supported() {
		return ModeUnsupported
	}
	if rt.Portable {
		return ModePortable
	}
	return ModeSetup
}

// BundleWritable reports whether the resource bundle can be replaced.
func (rt Runtime) BundleWritable() bool {
	return rt.BundlePath != "" && CanReplace(rt.BundlePath)
}

// Mode picks the update mode given whether the release ships a bundle patch.
func (rt Runtime) Mode(hasBundleAsset bool) Mode {
	if !rt.Supported() {
		return ModeUnsupported
	}
	if hasBundleAsset && rt.BundleWritable() {
		return ModeBundle
	}
	return rt.BinaryMode()
}

// CanReplace probes whether a file can be created next to path, which is what
// replacing path requires.
func CanReplace(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	opts := selfupdate.Options{TargetPath: path}
	return opts.CheckPermissions() == nil
}
