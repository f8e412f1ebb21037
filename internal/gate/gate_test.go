package gate

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEvaluate(t *testing.T) {
	strict := Policy{RequireApproval: true}
	cases := []struct {
		name    string
		current string
		c       Candidate
		applied string
		policy  Policy
		want    Decision
	}{
		{
			name:    "newer approved version proceeds",
			current: "1.2.0",
			c:       Candidate{Version: "v1.3.0", Marker: "m2", Approved: true},
			applied: "m1",
			policy:  strict,
			want:    Decision{Version: "1.3.0", HasVersionUpdate: true, HasMarkerUpdate: true, ApprovedForPublic: true, Proceed: true},
		},
		{
			name:    "same version and marker is up to date",
			current: "1.3.0",
			c:       Candidate{Version: "1.3.0", Marker: "m2", Approved: true},
			applied: "m2",
			policy:  strict,
			want:    Decision{Version: "1.3.0", ApprovedForPublic: true},
		},
		{
			name:    "same version rebuilt is a marker update",
			current: "1.3.0",
			c:       Candidate{Version: "1.3", Marker: "m3"},
			applied: "m2",
			policy:  Policy{},
			want:    Decision{Version: "1.3", HasMarkerUpdate: true, Proceed: true},
		},
		{
			name:    "unapproved is blocked",
			current: "1.2.0",
			c:       Candidate{Version: "1.4.0", Marker: "m4"},
			applied: "",
			policy:  strict,
			want:    Decision{Version: "1.4.0", HasVersionUpdate: true, HasMarkerUpdate: true, Blocked: true},
		},
		{
			name:    "local override lets unapproved through",
			current: "1.2.0",
			c:       Candidate{Version: "1.4.0", Marker: "m4"},
			policy:  Policy{RequireApproval: true, AllowUnapproved: true},
			want:    Decision{Version: "1.4.0", HasVersionUpdate: true, HasMarkerUpdate: true, Proceed: true, Override: true},
		},
		{
			name:    "missing version falls back to current",
			current: "2.0.0",
			c:       Candidate{Marker: ""},
			policy:  strict,
			want:    Decision{Version: "2.0.0"},
		},
		{
			name:    "older version with same marker is not an update",
			current: "2.0.0",
			c:       Candidate{Version: "1.9.9", Marker: "m", Approved: true},
			applied: "m",
			policy:  strict,
			want:    Decision{Version: "1.9.9", ApprovedForPublic: true},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Evaluate(tc.current, tc.c, tc.applied, tc.policy)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("decision mismatch (-want +got):\n%s", diff)
			}
			if again := Evaluate(tc.current, tc.c, tc.applied, tc.policy); again != got {
				t.Fatalf("Evaluate is not idempotent: %+v vs %+v", got, again)
			}
		})
	}
}

func TestIsApproved(t *testing.T) {
	if !IsApproved("", "anything") {
		t.Fatalf("empty token must approve")
	}
	if !IsApproved("XENO_PUBLIC_UPDATE", "", "Release notes\n\nxeno_public_update") {
		t.Fatalf("token in body must approve case-insensitively")
	}
	if IsApproved("XENO_PUBLIC_UPDATE", "v1.3.0", "nightly build") {
		t.Fatalf("missing token must not approve")
	}
	if IsApproved(DefaultApprovalToken) {
		t.Fatalf("no fields must not approve a non-empty token")
	}
}
