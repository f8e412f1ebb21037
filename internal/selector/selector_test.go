package selector

import (
	"testing"

	"github.com/xenolauncher/xenoupdate/internal/release"
)

func assets(names ...string) []release.Asset {
	out := make([]release.Asset, 0, len(names))
	for _, n := range names {
		out = append(out, release.Asset{Name: n, URL: "https://dl.test/" + n, Size: 2 << 20})
	}
	return out
}

func TestPortablePrefersPortableOverSetup(t *testing.T) {
	sel := New("xeno")
	got, ok := sel.Portable(assets("XenoSetup-1.3.0.exe", "XenoPortable-1.3.0.exe"))
	if !ok || got.Name != "XenoPortable-1.3.0.exe" {
		t.Fatalf("expected portable asset, got %+v ok=%v", got, ok)
	}
}

func TestPortableFallbacks(t *testing.T) {
	sel := New("")
	cases := []struct {
		name   string
		assets []release.Asset
		want   string
	}{
		{"single non setup exe", assets("XenoSetup.exe", "Launcher.exe", "app.asar"), "Launcher.exe"},
		{"only setup like", assets("XenoSetup.exe", "Xeno-installer.exe"), ""},
		{"several non setup scored by brand", assets("tool.exe", "XenoLauncher.exe"), "XenoLauncher.exe"},
		{"no executables", assets("app.asar", "notes.txt"), ""},
		{"uppercase extension", assets("XENOPORTABLE.EXE"), "XENOPORTABLE.EXE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := sel.Portable(tc.assets)
			if tc.want == "" {
				if ok {
					t.Fatalf("expected no candidate, got %+v", got)
				}
				return
			}
			if !ok || got.Name != tc.want {
				t.Fatalf("got %+v ok=%v want %q", got, ok, tc.want)
			}
		})
	}
}

func TestBundleScoring(t *testing.T) {
	sel := New("xeno")
	list := []release.Asset{
		{Name: "setup-app.asar", Size: 9 << 20},
		{Name: "resources.asar", Size: 5 << 20},
		{Name: "xeno-app-patch.asar", Size: 1 << 20},
		{Name: "XenoLauncher.exe", Size: 90 << 20},
	}
	got, ok := sel.Bundle(list)
	if !ok || got.Name != "xeno-app-patch.asar" {
		t.Fatalf("unexpected bundle pick %+v ok=%v", got, ok)
	}

	tie := []release.Asset{
		{Name: "a.asar", Size: 1},
		{Name: "b.asar", Size: 3},
		{Name: "c.asar", Size: 3},
	}
	got, _ = sel.Bundle(tie)
	if got.Name != "b.asar" {
		t.Fatalf("ties must go to the larger file then input order, got %q", got.Name)
	}

	if _, ok := sel.Bundle(nil); ok {
		t.Fatalf("empty input must yield no candidate")
	}
}

func TestSetupScoring(t *testing.T) {
	sel := New("xeno")
	got, ok := sel.Setup(assets("XenoPortable.exe", "XenoSetup.msi", "XenoSetup.exe", "app.asar"))
	if !ok || got.Name != "XenoSetup.exe" {
		t.Fatalf("exe installer must beat msi, got %+v", got)
	}
	got, ok = sel.Setup(assets("XenoPortable.exe", "Xeno.msi"))
	if !ok || got.Name != "Xeno.msi" {
		t.Fatalf("unexpected setup pick %+v", got)
	}
	if _, ok := sel.Setup(assets("app.asar")); ok {
		t.Fatalf("no installer package must yield no candidate")
	}
}

func TestSelectionIsDeterministic(t *testing.T) {
	sel := New("xeno")
	list := assets("XenoSetup-1.3.0.exe", "XenoPortable-1.3.0.exe", "Xeno-1.3.0.msi", "xeno-app.asar")
	first, _ := sel.Setup(list)
	for i := 0; i < 10; i++ {
		again, _ := sel.Setup(list)
		if again != first {
			t.Fatalf("selection changed between calls: %+v vs %+v", first, again)
		}
	}
	if list[0].Name != "XenoSetup-1.3.0.exe" {
		t.Fatalf("input slice must not be reordered")
	}
}

func TestMatches(t *testing.T) {
	if !Matches(SetupPattern, "Xeno.MSI") || !Matches(SetupPattern, "x.exe") {
		t.Fatalf("setup pattern must match exe and msi case-insensitively")
	}
	if Matches(BundlePattern, "app.asar.unpacked") {
		t.Fatalf("bundle pattern must anchor on the extension")
	}
}
