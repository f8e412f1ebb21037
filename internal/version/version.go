package version

import "strings"

// Version is set at build time with:
// -ldflags "-X github.com/xenolauncher/xenoupdate/internal/version.Version=vX.Y.Z"
var Version = "dev"

func Current() string {
	v := strings.TrimSpace(Version)
	if v == "" {
		return "dev"
	}
	return v
}

// IsDev reports whether the binary was built without a release version.
func IsDev() bool {
	return Current() == "dev"
}
