package gate

import (
	"fmt"
	"strings"
)

// Role is the closed set of account roles that govern navigation.
// RoleUnknown stands for any stored value outside the set and is never
// granted access by a policy.
type Role int

const (
	RoleUnknown Role = iota
	RoleClient
	RoleCollaborator
	RoleAdmin
)

var roleNames = [...]string{
	RoleUnknown:      "unknown",
	RoleClient:       "client",
	RoleCollaborator: "collaborator",
	RoleAdmin:        "admin",
}

// Roles returns every recognized role, least privileged first.
func Roles() []Role {
	return []Role{RoleClient, RoleCollaborator, RoleAdmin}
}

// ParseRole maps a stored role string to a Role. Matching ignores case and
// surrounding whitespace; anything else yields RoleUnknown.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "client":
		return RoleClient
	case "collaborator":
		return RoleCollaborator
	case "admin":
		return RoleAdmin
	default:
		return RoleUnknown
	}
}

func (r Role) String() string {
	if r < 0 || int(r) >= len(roleNames) {
		return roleNames[RoleUnknown]
	}
	return roleNames[r]
}

// Valid reports whether r belongs to the closed role set.
func (r Role) Valid() bool {
	return r == RoleClient || r == RoleCollaborator || r == RoleAdmin
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText rejects values outside the closed set so that bad input never
// silently becomes RoleUnknown.
func (r *Role) UnmarshalText(text []byte) error {
	parsed := ParseRole(string(text))
	if !parsed.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownRole, string(text))
	}
	*r = parsed
	return nil
}
