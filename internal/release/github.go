package release

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
)

const DefaultAPIBase = "https://api.github.com"

// PublishTarget mirrors one entry of a packager's publish configuration.
type PublishTarget struct {
	Provider string `yaml:"provider" json:"provider"`
	Owner    string `yaml:"owner" json:"owner"`
	Repo     string `yaml:"repo" json:"repo"`
}

var (
	shortRepoPattern = regexp.MustCompile(`^([A-Za-z0-9_.-]+)/([A-Za-z0-9_.-]+)$`)
	githubURLPattern = regexp.MustCompile(`(?i)github\.com[/:]([^/]+)/([^/]+?)(?:\.git)?(?:/|$)`)
)

// ExtractGitHubRepo turns "owner/repo" or any GitHub URL into "owner/repo".
func ExtractGitHubRepo(text string) string {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return ""
	}
	if m := shortRepoPattern.FindStringSubmatch(raw); m != nil {
		return m[1] + "/" + m[2]
	}
	if m := githubURLPattern.FindStringSubmatch(raw); m != nil {
		return m[1] + "/" + m[2]
	}
	return ""
}

// ResolveRepo picks the repository to query: an explicit override first, then
// the first complete GitHub publish target, then the source repository URL.
func ResolveRepo(override string, publish []PublishTarget, repository string) string {
	if repo := ExtractGitHubRepo(override); repo != "" {
		return repo
	}
	for _, p := range publish {
		if !strings.EqualFold(strings.TrimSpace(p.Provider), "github") {
			continue
		}
		owner := strings.TrimSpace(p.Owner)
		name := strings.TrimSpace(p.Repo)
		if owner != "" && name != "" {
			return owner + "/" + name
		}
	}
	return ExtractGitHubRepo(repository)
}

type githubRelease struct {
	approvalFields

	ID      flexString `json:"id"`
	HTMLURL flexString `json:"html_url"`
	Draft   bool       `json:"draft"`
	Assets  []rawAsset `json:"assets"`
}

// GitHubOptions selects which release of a repository is considered.
type GitHubOptions struct {
	Options
	APIBase           string
	IncludePrerelease bool
}

// FetchGitHub returns the newest release of repo. With prereleases enabled the
// first non-draft entry of the release list wins.
func FetchGitHub(ctx context.Context, repo string, opts GitHubOptions) (Info, error) {
	apiBase := strings.TrimRight(strings.TrimSpace(opts.APIBase), "/")
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	repo = strings.TrimSpace(repo)
	const accept = "application/vnd.github+json"

	var rel *githubRelease
	if opts.IncludePrerelease {
		var list []json.RawMessage
		if err := getJSON(ctx, apiBase+"/repos/"+repo+"/releases?per_page=20", accept, opts.Options, &list); err != nil {
			return Info{}, err
		}
		for _, raw := range list {
			var candidate githubRelease
			if err := json.Unmarshal(raw, &candidate); err != nil {
				continue
			}
			if !candidate.Draft {
				rel = &candidate
				break
			}
		}
	} else {
		var latest githubRelease
		if err := getJSON(ctx, apiBase+"/repos/"+repo+"/releases/latest", accept, opts.Options, &latest); err != nil {
			return Info{}, err
		}
		rel = &latest
	}
	if rel == nil {
		return Info{Source: "github:" + repo}, nil
	}
	return rel.info(repo, opts.ApprovalToken), nil
}

func (r githubRelease) info(repo, approvalToken string) Info {
	version := versionOrEmpty(firstNonEmpty(r.TagName, r.Name))
	assets := normalizeAssets(r.Assets)
	id := firstNonEmpty(r.ID, r.TagName)
	if id == "" {
		id = version
	}
	if id == "" {
		id = "latest"
	}
	return Info{
		Version:  version,
		Assets:   assets,
		Marker:   "github:" + id + ":" + assetsMarker(assets),
		Approved: r.approvalFields.approved(approvalToken),
		HTMLURL:  strings.TrimSpace(r.HTMLURL.String()),
		Source:   "github:" + repo,
	}
}
