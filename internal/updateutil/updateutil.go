package updateutil

import (
	"encoding/hex"
	"io"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/mod/semver"
)

// NoAssetsMarker is the digest reported for a release without usable assets.
const NoAssetsMarker = "no-assets"

// MarkerAsset is the subset of a release asset that feeds the assets digest.
type MarkerAsset struct {
	Name string
	URL  string
	Size int64
}

// NormalizeVersion trims whitespace and a single leading "v". Empty input
// normalizes to "0.0.0".
func NormalizeVersion(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "0.0.0"
	}
	if v[0] == 'v' || v[0] == 'V' {
		v = strings.TrimSpace(v[1:])
	}
	if v == "" {
		return "0.0.0"
	}
	return v
}

// CompareVersions compares the integer runs of two version strings and
// returns -1, 0 or 1. Non-digit characters only separate runs, so the digits
// of a suffix count as further components: "1.2.0-rc1" sorts after "1.2.0".
func CompareVersions(a, b string) int {
	left := integerRuns(NormalizeVersion(a))
	right := integerRuns(NormalizeVersion(b))
	n := max(len(left), len(right), 3)
	for i := 0; i < n; i++ {
		lv := runAt(left, i)
		rv := runAt(right, i)
		switch {
		case lv > rv:
			return 1
		case lv < rv:
			return -1
		}
	}
	return 0
}

// IsVersionNewer reports whether latest sorts after current.
func IsVersionNewer(latest, current string) bool {
	return CompareVersions(latest, current) > 0
}

// PrereleaseSuffix returns the prerelease/build suffix of a semver-shaped
// version. CompareVersions treats its digits as extra components rather than
// applying semver precedence.
func PrereleaseSuffix(v string) string {
	canonical := "v" + NormalizeVersion(v)
	if !semver.IsValid(canonical) {
		return ""
	}
	return semver.Prerelease(canonical) + semver.Build(canonical)
}

// MarkerChanged reports whether candidate is a non-empty marker different
// from the applied one.
func MarkerChanged(candidate, applied string) bool {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return false
	}
	return candidate != strings.TrimSpace(applied)
}

// AssetsMarker digests name, size and URL of every asset. Lines are sorted
// before hashing so the digest does not depend on asset order.
func AssetsMarker(assets []MarkerAsset) string {
	if len(assets) == 0 {
		return NoAssetsMarker
	}
	lines := make([]string, 0, len(assets))
	for _, a := range assets {
		lines = append(lines, a.Name+"|"+strconv.FormatInt(a.Size, 10)+"|"+a.URL)
	}
	sort.Strings(lines)
	sum := blake3.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}

// SanitizeFileName replaces characters that are not allowed in file names on
// any of the supported platforms.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "update.exe"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r < 0x20:
			b.WriteRune('_')
		case strings.ContainsRune(`<>:"/\|?*`, r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func ExeExt() string {
	if runtime.GOOS == "windows" {
		return ".exe"
	}
	return ""
}

func CopyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// InGoBuildCache reports whether path lives in a go run/go test build
// directory (a "go-build" path segment), which marks a development binary.
func InGoBuildCache(path string) bool {
	segs := strings.FieldsFunc(strings.ToLower(path), func(r rune) bool { return r == '/' || r == '\\' })
	for _, seg := range segs {
		if strings.HasPrefix(seg, "go-build") {
			return true
		}
	}
	return false
}

func integerRuns(s string) []int64 {
	var out []int64
	start := -1
	for i := 0; i <= len(s); i++ {
		digit := i < len(s) && s[i] >= '0' && s[i] <= '9'
		if digit && start < 0 {
			start = i
			continue
		}
		if !digit && start >= 0 {
			n, err := strconv.ParseInt(s[start:i], 10, 64)
			if err != nil {
				// Overlong runs saturate instead of being dropped.
				n = 1<<63 - 1
			}
			out = append(out, n)
			start = -1
		}
	}
	return out
}

func runAt(runs []int64, i int) int64 {
	if i < len(runs) {
		return runs[i]
	}
	return 0
}
