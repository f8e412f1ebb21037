package updater

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/xenolauncher/xenoupdate/internal/config"
	"github.com/xenolauncher/xenoupdate/internal/installer"
)

func testConfig(t *testing.T) config.File {
	t.Helper()
	cfg := config.Default()
	cfg.Product.CurrentVersion = "1.2.0"
	cfg.Paths.DataDir = t.TempDir()
	return cfg
}

func TestNewFromConfigTargetsConfiguredLauncher(t *testing.T) {
	cfg := testConfig(t)
	cfg.Paths.Executable = filepath.Join("opt", "xeno", "Xeno.exe")

	u, err := NewFromConfig(cfg, nil, Host{PID: 4242, RestartArgs: []string{"--updated"}})
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	if u.runtime.Executable != cfg.Paths.Executable {
		t.Fatalf("runtime exe=%q want %q", u.runtime.Executable, cfg.Paths.Executable)
	}
	if want := filepath.Join("opt", "xeno", "resources", installer.BundleName); u.runtime.BundlePath != want {
		t.Fatalf("bundle path=%q want %q", u.runtime.BundlePath, want)
	}
	inst, ok := u.launcher.(*installer.Installer)
	if !ok {
		t.Fatalf("launcher is %T", u.launcher)
	}
	if inst.PID != 4242 {
		t.Fatalf("helper pid=%d want 4242", inst.PID)
	}
	if diff := cmp.Diff([]string{"--updated"}, inst.RestartArgs); diff != "" {
		t.Fatalf("restart args mismatch (-want +got):\n%s", diff)
	}
	if !u.cfg.Packaged {
		t.Fatalf("configured release build must count as packaged")
	}
}

func TestNewFromConfigWithoutExecutableNeverTargetsSelf(t *testing.T) {
	u, err := NewFromConfig(testConfig(t), nil, Host{})
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	if u.runtime.Executable != "" || u.runtime.BundlePath != "" {
		t.Fatalf("unknown launcher must stay unknown, got %+v", u.runtime)
	}
	if self, err := os.Executable(); err == nil && u.runtime.Executable == self {
		t.Fatalf("runtime targets the running binary %q", self)
	}
}

func TestNewFromConfigTreatsGoBuildCacheAsDev(t *testing.T) {
	cfg := testConfig(t)
	cfg.Paths.Executable = "/tmp/go-build1234/b001/exe/xeno"

	u, err := NewFromConfig(cfg, nil, Host{})
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	if u.cfg.Packaged {
		t.Fatalf("go run binary must skip updates")
	}
}
