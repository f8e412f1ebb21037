package release

import (
	"bytes"
	"context"
	"encoding/json"
)

type manifestDoc struct {
	approvalFields

	Version       flexString      `json:"version"`
	LatestVersion flexString      `json:"latestVersion"`
	TagNameAlt    flexString      `json:"tagName"`
	Assets        []rawAsset      `json:"assets"`
	UpdateMarker  flexString      `json:"updateMarker"`
	BuildID       flexString      `json:"buildId"`
	ReleaseID     flexString      `json:"releaseId"`
	Marker        flexString      `json:"marker"`
	Approved      json.RawMessage `json:"approved"`
	URL           flexString      `json:"url"`
	ReleaseURL    flexString      `json:"releaseUrl"`
}

// FetchManifest reads a static update manifest.
func FetchManifest(ctx context.Context, url string, opts Options) (Info, error) {
	var doc manifestDoc
	if err := getJSON(ctx, url, "application/json,*/*", opts, &doc); err != nil {
		return Info{}, err
	}
	return doc.info(opts.ApprovalToken), nil
}

func (m manifestDoc) info(approvalToken string) Info {
	version := versionOrEmpty(firstNonEmpty(m.Version, m.LatestVersion, m.Tag, m.TagNameAlt))
	assets := normalizeAssets(m.Assets)

	marker := firstNonEmpty(m.UpdateMarker, m.BuildID, m.ReleaseID, m.Marker)
	if marker == "" {
		v := version
		if v == "" {
			v = "0.0.0"
		}
		marker = "manifest:" + v + ":" + assetsMarker(assets)
	}

	approved := bytes.Equal(bytes.TrimSpace(m.Approved), []byte("true")) || m.approvalFields.approved(approvalToken)

	return Info{
		Version:  version,
		Assets:   assets,
		Marker:   marker,
		Approved: approved,
		HTMLURL:  firstNonEmpty(m.URL, m.ReleaseURL),
		Source:   SourceManifest,
	}
}
