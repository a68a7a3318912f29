// Package access holds the pure room-access model: capability sets, role
// evaluation, and collaborator resolution. Nothing here does I/O; the same
// functions back both the collaborator list and the permission gates so the
// two can never disagree.
package access

import (
	"strings"

	"syncly/api/internal/identity"
)

type Capability string
type Role string

const (
	CapRead  Capability = "read"
	CapWrite Capability = "write"
)

const (
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// CanWrite reports whether the capability set carries the write token.
// An absent or empty set defaults to no write access.
func CanWrite(caps []Capability) bool {
	for _, c := range caps {
		if c == CapWrite {
			return true
		}
	}
	return false
}

// CanRead reports whether the capability set grants read access. Write
// implies read for evaluation purposes.
func CanRead(caps []Capability) bool {
	for _, c := range caps {
		if c == CapRead || c == CapWrite {
			return true
		}
	}
	return false
}

// Evaluate maps a capability set to a role: editor iff write is present,
// viewer otherwise (including the empty set).
func Evaluate(caps []Capability) Role {
	if CanWrite(caps) {
		return RoleEditor
	}
	return RoleViewer
}

// CapabilitiesFor returns the capability set stored for a role grant.
func CapabilitiesFor(role Role) []Capability {
	if role == RoleEditor {
		return []Capability{CapRead, CapWrite}
	}
	return []Capability{CapRead}
}

// ParseRole validates a caller-supplied role string.
func ParseRole(raw string) (Role, bool) {
	switch Role(raw) {
	case RoleEditor, RoleViewer:
		return Role(raw), true
	default:
		return "", false
	}
}

// Entry is one access-map row: an invited email and its capability set.
// Entries arrive in store order, which fixes the ghost ordering below.
type Entry struct {
	Email        string
	Capabilities []Capability
}

// Collaborator is the resolved view of one access-map entry. Built fresh on
// every resolution, never persisted.
type Collaborator struct {
	Identity identity.Identity `json:"identity"`
	Role     Role              `json:"role"`
	IsGhost  bool              `json:"isGhost"`
}

// Ghost synthesizes an identity for an invited address the directory does
// not know: id and email are the address, the name is its local part.
func Ghost(email string) identity.Identity {
	name := email
	if at := strings.Index(email, "@"); at >= 0 {
		name = email[:at]
	}
	return identity.Identity{
		ID:    email,
		Email: email,
		Name:  name,
	}
}

// Resolve merges a room's access entries with the directory's known
// identities into a collaborator list. Registered collaborators come first,
// in the order the identities were supplied, then ghosts in entry order.
// Identities without an email cannot be matched and are dropped; emails are
// compared case-sensitively and never deduplicated.
func Resolve(entries []Entry, known []identity.Identity) []Collaborator {
	capsByEmail := make(map[string][]Capability, len(entries))
	for _, entry := range entries {
		capsByEmail[entry.Email] = entry.Capabilities
	}

	matched := make(map[string]struct{}, len(known))
	collaborators := make([]Collaborator, 0, len(entries))
	for _, ident := range known {
		if ident.Email == "" {
			continue
		}
		caps, invited := capsByEmail[ident.Email]
		if !invited {
			continue
		}
		matched[ident.Email] = struct{}{}
		collaborators = append(collaborators, Collaborator{
			Identity: ident,
			Role:     Evaluate(caps),
		})
	}

	for _, entry := range entries {
		if _, ok := matched[entry.Email]; ok {
			continue
		}
		collaborators = append(collaborators, Collaborator{
			Identity: Ghost(entry.Email),
			Role:     Evaluate(entry.Capabilities),
			IsGhost:  true,
		})
	}

	return collaborators
}
