package release

import (
	"context"
	"strings"
)

// Resolver chooses between manifest and repository mode.
type Resolver struct {
	ManifestURL       string
	Repo              string
	APIBase           string
	IncludePrerelease bool
	Options           Options
}

// SourceLabel names where updates come from, or "" when nothing is configured.
func (r Resolver) SourceLabel() string {
	if u := strings.TrimSpace(r.ManifestURL); u != "" {
		return u
	}
	if repo := strings.TrimSpace(r.Repo); repo != "" {
		return "github:" + repo
	}
	return ""
}

// Resolve fetches the newest release descriptor.
func (r Resolver) Resolve(ctx context.Context) (Info, error) {
	if u := strings.TrimSpace(r.ManifestURL); u != "" {
		return FetchManifest(ctx, u, r.Options)
	}
	repo := strings.TrimSpace(r.Repo)
	if repo == "" {
		return Info{}, ErrNoSource
	}
	return FetchGitHub(ctx, repo, GitHubOptions{
		Options:           r.Options,
		APIBase:           r.APIBase,
		IncludePrerelease: r.IncludePrerelease,
	})
}
