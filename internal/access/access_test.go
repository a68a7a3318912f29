package access

import (
	"testing"

	"syncly/api/internal/identity"
)

func TestEvaluate(t *testing.T) {
	cases := []struct {
		name string
		caps []Capability
		want Role
	}{
		{"read and write", []Capability{CapRead, CapWrite}, RoleEditor},
		{"write only", []Capability{CapWrite}, RoleEditor},
		{"read only", []Capability{CapRead}, RoleViewer},
		{"empty", nil, RoleViewer},
		{"unknown tokens ignored", []Capability{"admin", "share"}, RoleViewer},
		{"write among unknown tokens", []Capability{"admin", CapWrite}, RoleEditor},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Evaluate(tc.caps); got != tc.want {
				t.Fatalf("Evaluate(%v) = %q, want %q", tc.caps, got, tc.want)
			}
		})
	}
}

func TestCanWriteDefaultsToDeny(t *testing.T) {
	if CanWrite(nil) {
		t.Fatal("nil capability set must not grant write")
	}
	if CanWrite([]Capability{CapRead}) {
		t.Fatal("read-only set must not grant write")
	}
	if !CanWrite([]Capability{CapRead, CapWrite}) {
		t.Fatal("expected write grant")
	}
}

func TestCapabilitiesForRoundTrip(t *testing.T) {
	for _, role := range []Role{RoleEditor, RoleViewer} {
		if got := Evaluate(CapabilitiesFor(role)); got != role {
			t.Fatalf("Evaluate(CapabilitiesFor(%q)) = %q", role, got)
		}
	}
}

func TestParseRole(t *testing.T) {
	if _, ok := ParseRole("editor"); !ok {
		t.Fatal("editor should parse")
	}
	if _, ok := ParseRole("viewer"); !ok {
		t.Fatal("viewer should parse")
	}
	for _, raw := range []string{"", "owner", "Editor", "admin"} {
		if _, ok := ParseRole(raw); ok {
			t.Fatalf("ParseRole(%q) should fail", raw)
		}
	}
}

func TestGhostUsesLocalPart(t *testing.T) {
	g := Ghost("dana@example.com")
	if g.ID != "dana@example.com" || g.Email != "dana@example.com" {
		t.Fatalf("ghost id/email = %q/%q", g.ID, g.Email)
	}
	if g.Name != "dana" {
		t.Fatalf("ghost name = %q, want %q", g.Name, "dana")
	}
	if g.AvatarURL != "" {
		t.Fatalf("ghost must not carry an avatar, got %q", g.AvatarURL)
	}
}

func TestGhostWithoutAtSign(t *testing.T) {
	g := Ghost("dana")
	if g.Name != "dana" || g.ID != "dana" {
		t.Fatalf("got name=%q id=%q", g.Name, g.ID)
	}
}

func TestResolveOrdersRegisteredThenGhosts(t *testing.T) {
	entries := []Entry{
		{Email: "ghost-a@example.com", Capabilities: []Capability{CapRead}},
		{Email: "bo@example.com", Capabilities: []Capability{CapRead, CapWrite}},
		{Email: "ghost-b@example.com", Capabilities: []Capability{CapRead, CapWrite}},
		{Email: "ana@example.com", Capabilities: []Capability{CapRead}},
	}
	known := []identity.Identity{
		{ID: "user_1", Email: "ana@example.com", Name: "Ana", AvatarURL: "https://cdn.example.com/ana.png"},
		{ID: "user_2", Email: "bo@example.com", Name: "Bo"},
	}

	got := Resolve(entries, known)
	if len(got) != 4 {
		t.Fatalf("resolved %d collaborators, want 4", len(got))
	}

	wantOrder := []string{"ana@example.com", "bo@example.com", "ghost-a@example.com", "ghost-b@example.com"}
	for i, email := range wantOrder {
		if got[i].Identity.Email != email {
			t.Fatalf("position %d: got %q, want %q", i, got[i].Identity.Email, email)
		}
	}

	if got[0].IsGhost || got[1].IsGhost {
		t.Fatal("registered collaborators flagged as ghosts")
	}
	if !got[2].IsGhost || !got[3].IsGhost {
		t.Fatal("unmatched entries must be ghosts")
	}
	if got[0].Identity.AvatarURL != "https://cdn.example.com/ana.png" {
		t.Fatal("registered collaborator lost directory profile")
	}
	if got[1].Role != RoleEditor || got[0].Role != RoleViewer {
		t.Fatalf("roles = %q/%q", got[0].Role, got[1].Role)
	}
	if got[3].Role != RoleEditor {
		t.Fatal("ghost role must come from its capability set")
	}
}

func TestResolveSkipsUnmatchedAndEmptyIdentities(t *testing.T) {
	entries := []Entry{
		{Email: "ana@example.com", Capabilities: []Capability{CapRead}},
	}
	known := []identity.Identity{
		{ID: "user_9", Email: "", Name: "No Email"},
		{ID: "user_8", Email: "stranger@example.com", Name: "Not Invited"},
		{ID: "user_1", Email: "ana@example.com", Name: "Ana"},
	}

	got := Resolve(entries, known)
	if len(got) != 1 {
		t.Fatalf("resolved %d collaborators, want 1", len(got))
	}
	if got[0].Identity.ID != "user_1" || got[0].IsGhost {
		t.Fatalf("unexpected collaborator: %+v", got[0])
	}
}

func TestResolveIsCaseSensitive(t *testing.T) {
	entries := []Entry{{Email: "Ana@Example.com", Capabilities: []Capability{CapRead}}}
	known := []identity.Identity{{ID: "user_1", Email: "ana@example.com", Name: "Ana"}}

	got := Resolve(entries, known)
	if len(got) != 1 || !got[0].IsGhost {
		t.Fatalf("case-mismatched email must resolve as ghost, got %+v", got)
	}
}

func TestResolveEmptyEntries(t *testing.T) {
	if got := Resolve(nil, nil); len(got) != 0 {
		t.Fatalf("expected empty resolution, got %d", len(got))
	}
}
