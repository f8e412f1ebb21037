// Package release discovers the newest published build of the launcher, either
// from a static JSON manifest or from a GitHub repository's releases.
package release

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/xenolauncher/xenoupdate/internal/gate"
	"github.com/xenolauncher/xenoupdate/internal/updateutil"
)

const (
	SourceManifest = "manifest"
	// MaxRedirects bounds how many redirects a metadata request follows.
	MaxRedirects = 3
)

var (
	ErrResolution = errors.New("release resolution failed")
	// ErrNoSource means neither a manifest URL nor a repository is configured.
	ErrNoSource = errors.New("no update source configured")
)

// ResolutionError describes a failed metadata request.
type ResolutionError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *ResolutionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("resolve release from %s: status=%d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("resolve release from %s: %v", e.URL, e.Err)
}

func (e *ResolutionError) Unwrap() []error {
	return []error{ErrResolution, e.Err}
}

type Asset struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// Info is the normalized description of the newest release.
type Info struct {
	Version  string  `json:"version"`
	Assets   []Asset `json:"assets"`
	Marker   string  `json:"marker"`
	Approved bool    `json:"approved"`
	HTMLURL  string  `json:"html_url,omitempty"`
	Source   string  `json:"source"`
}

// Empty reports whether the descriptor carried neither a version nor a marker.
func (i Info) Empty() bool {
	return strings.TrimSpace(i.Version) == "" && strings.TrimSpace(i.Marker) == ""
}

func (i Info) Candidate() gate.Candidate {
	return gate.Candidate{Version: i.Version, Marker: i.Marker, Approved: i.Approved}
}

// flexString accepts JSON strings, numbers and booleans. Anything else decodes
// to the empty string.
type flexString string

func (f *flexString) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		*f = ""
		return nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
	case '{', '[':
		*f = ""
	default:
		*f = flexString(string(raw))
	}
	return nil
}

func (f flexString) String() string { return string(f) }

// flexSize accepts a byte count encoded as a number or a numeric string.
// Unparseable and negative values count as zero; values beyond int64 clamp to
// math.MaxInt64.
type flexSize int64

func (f *flexSize) UnmarshalJSON(raw []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(raw); err != nil {
		return err
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s.String()), 64)
	if err != nil || n < 0 || n != n {
		*f = 0
		return nil
	}
	if n >= math.MaxInt64 {
		*f = flexSize(math.MaxInt64)
		return nil
	}
	*f = flexSize(int64(n))
	return nil
}

type rawAsset struct {
	Name               flexString `json:"name"`
	URL                flexString `json:"url"`
	BrowserDownloadURL flexString `json:"browser_download_url"`
	Size               flexSize   `json:"size"`
}

// approvalFields are the descriptor fields scanned for the rollout token.
type approvalFields struct {
	ApprovalToken  flexString `json:"approvalToken"`
	UpdateApproval flexString `json:"updateApproval"`
	RolloutToken   flexString `json:"rolloutToken"`
	Rollout        flexString `json:"rollout"`
	ReleaseChannel flexString `json:"releaseChannel"`
	Name           flexString `json:"name"`
	Tag            flexString `json:"tag"`
	TagName        flexString `json:"tag_name"`
	Body           flexString `json:"body"`
}

func (a approvalFields) approved(token string) bool {
	return gate.IsApproved(token,
		a.ApprovalToken.String(),
		a.UpdateApproval.String(),
		a.RolloutToken.String(),
		a.Rollout.String(),
		a.ReleaseChannel.String(),
		a.Name.String(),
		a.Tag.String(),
		a.TagName.String(),
		a.Body.String(),
	)
}

func firstNonEmpty(values ...flexString) string {
	for _, v := range values {
		if s := strings.TrimSpace(v.String()); s != "" {
			return s
		}
	}
	return ""
}

// normalizeAssets drops entries without a name or download URL. The browser
// download URL wins over the API URL.
func normalizeAssets(in []rawAsset) []Asset {
	out := make([]Asset, 0, len(in))
	for _, a := range in {
		name := strings.TrimSpace(a.Name.String())
		url := firstNonEmpty(a.BrowserDownloadURL, a.URL)
		if name == "" || url == "" {
			continue
		}
		out = append(out, Asset{Name: name, URL: url, Size: int64(a.Size)})
	}
	return out
}

func assetsMarker(assets []Asset) string {
	in := make([]updateutil.MarkerAsset, 0, len(assets))
	for _, a := range assets {
		in = append(in, updateutil.MarkerAsset{Name: a.Name, URL: a.URL, Size: a.Size})
	}
	return updateutil.AssetsMarker(in)
}

// versionOrEmpty normalizes v unless it is blank.
func versionOrEmpty(v string) string {
	if strings.TrimSpace(v) == "" {
		return ""
	}
	return updateutil.NormalizeVersion(v)
}
