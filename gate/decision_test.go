package gate_test

import (
	"testing"

	"github.com/diewo77/studio-console/gate"
)

// viewer is a fixed session view for tests.
type viewer struct {
	ready bool
	authn bool
	role  gate.Role
}

func (v viewer) Ready() bool         { return v.ready }
func (v viewer) Authenticated() bool { return v.authn }
func (v viewer) Role() gate.Role     { return v.role }

var (
	initializing = viewer{}
	anonymous    = viewer{ready: true}
)

func signedIn(role gate.Role) viewer { return viewer{ready: true, authn: true, role: role} }

func TestDecide_Initializing(t *testing.T) {
	d := gate.Decide(initializing, gate.AllowAll())
	if d.Outcome != gate.ShowLoading {
		t.Errorf("expected loading, got %s", d)
	}
	if d := gate.Decide(nil, gate.AllowAll()); d.Outcome != gate.ShowLoading {
		t.Errorf("nil viewer: expected loading, got %s", d)
	}
}

func TestDecide_Unauthenticated(t *testing.T) {
	d := gate.Decide(anonymous, gate.AllowAll())
	if d.Outcome != gate.Redirect || d.Path != gate.DefaultLoginPath {
		t.Fatalf("expected redirect to login, got %s", d)
	}
	if !d.RememberOrigin {
		t.Error("login redirect must remember origin")
	}
}

func TestDecide_RoleNotAllowed(t *testing.T) {
	d := gate.Decide(signedIn(gate.RoleClient), gate.Allow(gate.RoleAdmin))
	if d.Outcome != gate.Redirect || d.Path != gate.DefaultFallbackPath {
		t.Fatalf("expected redirect to fallback, got %s", d)
	}
	if d.RememberOrigin {
		t.Error("fallback redirect must not remember origin")
	}
}

func TestDecide_CustomRedirects(t *testing.T) {
	p := gate.AccessPolicy{
		AllowedRoles: []gate.Role{gate.RoleAdmin},
		FallbackPath: "/home",
		LoginPath:    "/signin",
	}
	if d := gate.Decide(anonymous, p); d.Path != "/signin" {
		t.Errorf("expected /signin, got %s", d)
	}
	if d := gate.Decide(signedIn(gate.RoleClient), p); d.Path != "/home" {
		t.Errorf("expected /home, got %s", d)
	}
	// Zero-valued redirect targets fall back to the defaults.
	bare := gate.AccessPolicy{AllowedRoles: []gate.Role{gate.RoleAdmin}}
	if d := gate.Decide(anonymous, bare); d.Path != gate.DefaultLoginPath {
		t.Errorf("expected default login path, got %s", d)
	}
}

func TestDecide_UnknownRoleNeverRenders(t *testing.T) {
	p := gate.Allow(gate.RoleUnknown, gate.RoleClient, gate.RoleCollaborator, gate.RoleAdmin)
	d := gate.Decide(signedIn(gate.RoleUnknown), p)
	if d.Outcome != gate.Redirect || d.Path != gate.DefaultFallbackPath {
		t.Errorf("unknown role should go to fallback, got %s", d)
	}
	if d := gate.Decide(signedIn(gate.Role(42)), p); d.Outcome == gate.Render {
		t.Error("out-of-range role rendered")
	}
}

// Render iff the role is allowed; otherwise fallback when authenticated and
// login when not.
func TestDecide_RoleGatingExhaustive(t *testing.T) {
	all := append([]gate.Role{gate.RoleUnknown}, gate.Roles()...)
	var policies [][]gate.Role
	for mask := 0; mask < 1<<len(gate.Roles()); mask++ {
		var allowed []gate.Role
		for i, r := range gate.Roles() {
			if mask&(1<<i) != 0 {
				allowed = append(allowed, r)
			}
		}
		policies = append(policies, allowed)
	}

	for _, allowed := range policies {
		p := gate.Allow(allowed...)
		for _, r := range all {
			got := gate.Decide(signedIn(r), p)
			if p.Allows(r) {
				if got.Outcome != gate.Render {
					t.Errorf("role %s policy %v: expected render, got %s", r, allowed, got)
				}
			} else if got.Outcome != gate.Redirect || got.Path != gate.DefaultFallbackPath {
				t.Errorf("role %s policy %v: expected fallback, got %s", r, allowed, got)
			}

			anon := gate.Decide(viewer{ready: true, role: r}, p)
			if anon.Outcome != gate.Redirect || anon.Path != gate.DefaultLoginPath {
				t.Errorf("anonymous with role %s: expected login, got %s", r, anon)
			}
		}
	}
}
