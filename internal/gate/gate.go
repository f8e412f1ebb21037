// Package gate decides whether a resolved release should be installed.
package gate

import (
	"strings"

	"github.com/xenolauncher/xenoupdate/internal/updateutil"
)

// DefaultApprovalToken is the rollout token releases must carry when approval
// is required and no other token was configured.
const DefaultApprovalToken = "XENO_PUBLIC_UPDATE"

// Candidate is what the gate needs to know about a resolved release.
type Candidate struct {
	Version  string
	Marker   string
	Approved bool
}

// Policy holds the rollout settings.
type Policy struct {
	RequireApproval bool
	AllowUnapproved bool
}

type Decision struct {
	Version           string
	HasVersionUpdate  bool
	HasMarkerUpdate   bool
	ApprovedForPublic bool

	// Proceed is set when there is an update and the rollout policy lets it through.
	Proceed bool
	// Blocked is set when there is an update that the policy holds back.
	Blocked bool
	// Override is set when an unapproved update proceeds because of AllowUnapproved.
	Override bool
}

func (d Decision) HasUpdate() bool {
	return d.HasVersionUpdate || d.HasMarkerUpdate
}

// Evaluate compares a candidate against the running version and the applied
// marker. It has no side effects.
func Evaluate(current string, c Candidate, applied string, p Policy) Decision {
	cur := updateutil.NormalizeVersion(current)
	latest := cur
	if strings.TrimSpace(c.Version) != "" {
		latest = updateutil.NormalizeVersion(c.Version)
	}
	d := Decision{
		Version:           latest,
		HasVersionUpdate:  updateutil.IsVersionNewer(latest, cur),
		HasMarkerUpdate:   updateutil.MarkerChanged(c.Marker, applied),
		ApprovedForPublic: c.Approved,
	}
	if !d.HasUpdate() {
		return d
	}
	switch {
	case !p.RequireApproval || d.ApprovedForPublic:
		d.Proceed = true
	case p.AllowUnapproved:
		d.Proceed = true
		d.Override = true
	default:
		d.Blocked = true
	}
	return d
}

// IsApproved reports whether token appears, case-insensitively, in any of the
// given release fields. An empty token approves everything.
func IsApproved(token string, fields ...string) bool {
	token = strings.ToLower(strings.TrimSpace(token))
	if token == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), token) {
			return true
		}
	}
	return false
}
