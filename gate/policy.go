package gate

import "slices"

// Default redirect targets shared by every route of the console.
const (
	DefaultLoginPath    = "/login"
	DefaultFallbackPath = "/dashboard"
)

// AccessPolicy is the static access rule of one navigable target.
type AccessPolicy struct {
	// AllowedRoles lists the roles that may view the target.
	AllowedRoles []Role
	// FallbackPath receives authenticated users whose role is not allowed.
	FallbackPath string
	// LoginPath receives unauthenticated users.
	LoginPath string
}

// Allow builds a policy for the given roles with the default redirect targets.
func Allow(roles ...Role) AccessPolicy {
	return AccessPolicy{
		AllowedRoles: roles,
		FallbackPath: DefaultFallbackPath,
		LoginPath:    DefaultLoginPath,
	}
}

// AllowAll is Allow for every recognized role.
func AllowAll() AccessPolicy {
	return Allow(Roles()...)
}

// Allows reports whether role may view the target. RoleUnknown is refused even
// when listed.
func (p AccessPolicy) Allows(role Role) bool {
	if !role.Valid() {
		return false
	}
	return slices.Contains(p.AllowedRoles, role)
}

func (p AccessPolicy) loginPath() string {
	if p.LoginPath == "" {
		return DefaultLoginPath
	}
	return p.LoginPath
}

func (p AccessPolicy) fallbackPath() string {
	if p.FallbackPath == "" {
		return DefaultFallbackPath
	}
	return p.FallbackPath
}
