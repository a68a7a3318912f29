// Package identity talks to the external identity directory.
package identity

import "context"

// Identity is a registered user as the directory knows it. Immutable from
// this service's perspective.
type Identity struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Directory resolves opaque identity keys to known identities. Unknown keys
// are omitted from the result, never treated as errors.
type Directory interface {
	Lookup(ctx context.Context, ids []string) ([]Identity, error)
}
