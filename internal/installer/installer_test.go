package installer

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type spawnCall struct {
	Name string
	Args []string
}

type fakeSpawner struct {
	calls    []spawnCall
	failures int
}

func (f *fakeSpawner) Start(name string, args ...string) error {
	f.calls = append(f.calls, spawnCall{Name: name, Args: append([]string(nil), args...)})
	if f.failures > 0 {
		f.failures--
		return errors.New("spawn refused")
	}
	return nil
}

func newTestInstaller(t *testing.T, sp Spawner) (*Installer, string) {
	t.Helper()
	dir := t.TempDir()
	helperSrc := filepath.Join(dir, "xenoupdate-src")
	if err := os.WriteFile(helperSrc, []byte("helper-binary"), 0o755); err != nil {
		t.Fatalf("write helper: %v", err)
	}
	updates := filepath.Join(dir, "updates")
	return &Installer{UpdatesDir: updates, HelperSource: helperSrc, Spawner: sp, PID: 4242}, dir
}

func TestLaunchBundleCopiesHelperAndPassesArgs(t *testing.T) {
	sp := &fakeSpawner{}
	inst, dir := newTestInstaller(t, sp)
	inst.RestartArgs = []string{"--updated"}
	src := filepath.Join(inst.UpdatesDir, "xeno-app.asar")
	dst := filepath.Join(dir, "resources", "app.asar")
	exe := filepath.Join(dir, "Xeno.exe")

	if err := inst.LaunchBundle(src, dst, exe); err != nil {
		t.Fatalf("LaunchBundle: %v", err)
	}
	if len(sp.calls) != 1 {
		t.Fatalf("expected one spawn, got %d", len(sp.calls))
	}
	helper := filepath.Join(inst.UpdatesDir, inst.helperName())
	want := spawnCall{
		Name: helper,
		Args: []string{
			"update-helper", "bundle",
			"--src", src, "--dst", dst, "--exe", exe,
			"--pid", "4242",
			"--result", filepath.Join(inst.UpdatesDir, "result.json"),
			"--log", filepath.Join(inst.UpdatesDir, "helper.log"),
			"--arg", "--updated",
		},
	}
	if diff := cmp.Diff(want, sp.calls[0]); diff != "" {
		t.Fatalf("spawn mismatch (-want +got):\n%s", diff)
	}
	raw, err := os.ReadFile(helper)
	if err != nil || string(raw) != "helper-binary" {
		t.Fatalf("helper copy missing: %q err=%v", raw, err)
	}
}

func TestLaunchPortableRejectsSamePath(t *testing.T) {
	sp := &fakeSpawner{}
	inst, dir := newTestInstaller(t, sp)
	exe := filepath.Join(dir, "XenoPortable.exe")
	err := inst.LaunchPortable(exe, exe)
	if !errors.Is(err, ErrSamePath) || !errors.Is(err, ErrInstall) {
		t.Fatalf("expected same-path install error, got %v", err)
	}
	if len(sp.calls) != 0 {
		t.Fatalf("nothing must be spawned")
	}
}

func TestLaunchPortableSpawnFailure(t *testing.T) {
	sp := &fakeSpawner{failures: 1}
	inst, dir := newTestInstaller(t, sp)
	err := inst.LaunchPortable(filepath.Join(inst.UpdatesDir, "new.exe"), filepath.Join(dir, "XenoPortable.exe"))
	var ierr *InstallError
	if !errors.As(err, &ierr) || ierr.Manual() || ierr.Mode != ModePortable {
		t.Fatalf("expected non-manual portable install error, got %v", err)
	}
	if got := sp.calls[0].Args[:2]; got[0] != "update-helper" || got[1] != "portable" {
		t.Fatalf("unexpected helper args %v", sp.calls[0].Args)
	}
}

func TestLaunchSetupMSI(t *testing.T) {
	sp := &fakeSpawner{}
	inst, _ := newTestInstaller(t, sp)
	path := filepath.Join(inst.UpdatesDir, "XenoSetup.MSI")
	if err := inst.LaunchSetup(path); err != nil {
		t.Fatalf("LaunchSetup: %v", err)
	}
	want := []spawnCall{{Name: "msiexec", Args: []string{"/i", path, "/passive"}}}
	if diff := cmp.Diff(want, sp.calls); diff != "" {
		t.Fatalf("spawn mismatch (-want +got):\n%s", diff)
	}
}

func TestLaunchSetupExeTriesSilentFlagsInOrder(t *testing.T) {
	sp := &fakeSpawner{failures: 2}
	inst, _ := newTestInstaller(t, sp)
	path := filepath.Join(inst.UpdatesDir, "XenoSetup.exe")
	if err := inst.LaunchSetup(path); err != nil {
		t.Fatalf("LaunchSetup: %v", err)
	}
	var got [][]string
	for _, c := range sp.calls {
		if c.Name != path {
			t.Fatalf("unexpected command %q", c.Name)
		}
		got = append(got, c.Args)
	}
	want := [][]string{{"/S"}, {"/SILENT"}, {"/silent"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("flag order mismatch (-want +got):\n%s", diff)
	}

	sp = &fakeSpawner{failures: 10}
	inst.Spawner = sp
	err := inst.LaunchSetup(path)
	if !errors.Is(err, ErrInstall) {
		t.Fatalf("expected install error when every attempt fails, got %v", err)
	}
	if len(sp.calls) != 4 || len(sp.calls[3].Args) != 0 {
		t.Fatalf("last attempt must run without args, calls=%+v", sp.calls)
	}
	if !strings.Contains(err.Error(), "spawn refused") {
		t.Fatalf("error must aggregate attempts: %v", err)
	}
}

func TestCleanupRemovesArtifactsOnly(t *testing.T) {
	inst, _ := newTestInstaller(t, &fakeSpawner{})
	if err := inst.Cleanup(); err != nil {
		t.Fatalf("cleanup of missing dir: %v", err)
	}
	if err := os.MkdirAll(inst.UpdatesDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range []string{"a.asar", "XenoSetup.exe", "pkg.MSI", "xenoupdate-helper", "result.json", "helper.log"} {
		if err := os.WriteFile(filepath.Join(inst.UpdatesDir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := inst.Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	entries, err := os.ReadDir(inst.UpdatesDir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	var left []string
	for _, e := range entries {
		left = append(left, e.Name())
	}
	if diff := cmp.Diff([]string{"helper.log", "result.json"}, left); diff != "" {
		t.Fatalf("unexpected leftovers (-want +got):\n%s", diff)
	}
}

func TestInstallErrorManual(t *testing.T) {
	for _, err := range []error{ErrNoWriteAccess, ErrNoArtifact, ErrUnsupportedPlatform, ErrNoTarget} {
		ie := &InstallError{Mode: ModeSetup, Err: err}
		if !ie.Manual() {
			t.Fatalf("%v must be manual", err)
		}
	}
	if (&InstallError{Err: ErrSamePath}).Manual() {
		t.Fatalf("same path is a launch failure")
	}
}
