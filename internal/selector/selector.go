// Package selector picks the release asset to install from file names alone.
// Release assets carry no structured platform metadata, so the scoring tables
// below are the contract.
package selector

import (
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/xenolauncher/xenoupdate/internal/release"
)

const (
	BundlePattern   = "*.asar"
	SetupPattern    = "*.{exe,msi}"
	PortablePattern = "*.exe"
)

// DefaultBrand is the product token that earns assets a bonus.
const DefaultBrand = "xeno"

type Selector struct {
	brand string
}

func New(brand string) Selector {
	brand = strings.ToLower(strings.TrimSpace(brand))
	if brand == "" {
		brand = DefaultBrand
	}
	return Selector{brand: brand}
}

// Matches reports whether name belongs to the extension class given by pattern.
func Matches(pattern, name string) bool {
	ok, err := doublestar.Match(pattern, strings.ToLower(strings.TrimSpace(name)))
	return err == nil && ok
}

func filter(assets []release.Asset, pattern string) []release.Asset {
	var out []release.Asset
	for _, a := range assets {
		if Matches(pattern, a.Name) {
			out = append(out, a)
		}
	}
	return out
}

func containsAny(name string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(name, w) {
			return true
		}
	}
	return false
}

// best sorts by score, then by size, keeping input order for full ties.
func best(list []release.Asset, score func(name string) int) (release.Asset, bool) {
	if len(list) == 0 {
		return release.Asset{}, false
	}
	ranked := make([]release.Asset, len(list))
	copy(ranked, list)
	sort.SliceStable(ranked, func(i, j int) bool {
		si := score(strings.ToLower(ranked[i].Name))
		sj := score(strings.ToLower(ranked[j].Name))
		if si != sj {
			return si > sj
		}
		return ranked[i].Size > ranked[j].Size
	})
	return ranked[0], true
}

// Bundle picks the resource bundle patch.
func (s Selector) Bundle(assets []release.Asset) (release.Asset, bool) {
	return best(filter(assets, BundlePattern), func(name string) int {
		v := 0
		if strings.Contains(name, s.brand) {
			v += 3
		}
		if strings.Contains(name, "app") {
			v += 2
		}
		if containsAny(name, "update", "patch") {
			v++
		}
		if containsAny(name, "portable", "setup", "installer") {
			v -= 4
		}
		return v
	})
}

// Setup picks the installer package. Executables beat MSI packages.
func (s Selector) Setup(assets []release.Asset) (release.Asset, bool) {
	return best(filter(assets, SetupPattern), func(name string) int {
		v := 0
		if containsAny(name, "setup", "installer") {
			v += 5
		}
		if strings.Contains(name, s.brand) {
			v += 2
		}
		if strings.Contains(name, "portable") {
			v -= 2
		}
		switch {
		case strings.HasSuffix(name, ".exe"):
			v += 2
		case strings.HasSuffix(name, ".msi"):
			v++
		}
		return v
	})
}

// Portable picks the standalone executable. Setup-like executables are never
// chosen when no other candidate remains.
func (s Selector) Portable(assets []release.Asset) (release.Asset, bool) {
	all := filter(assets, PortablePattern)
	if len(all) == 0 {
		return release.Asset{}, false
	}
	setupLike := func(a release.Asset) bool {
		return containsAny(strings.ToLower(a.Name), "setup", "installer")
	}

	var list []release.Asset
	for _, a := range all {
		if strings.Contains(strings.ToLower(a.Name), "portable") {
			list = append(list, a)
		}
	}
	if len(list) == 0 {
		for _, a := range all {
			if !setupLike(a) {
				list = append(list, a)
			}
		}
		if len(list) == 1 {
			return list[0], true
		}
	}

	return best(list, func(name string) int {
		v := 0
		if strings.Contains(name, "portable") {
			v += 8
		}
		if strings.Contains(name, s.brand) {
			v += 2
		}
		if containsAny(name, "setup", "installer") {
			v -= 5
		}
		if strings.HasSuffix(name, ".exe") {
			v++
		}
		return v
	})
}
