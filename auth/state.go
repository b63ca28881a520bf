package auth

import "github.com/diewo77/studio-console/gate"

// State is the session manager's lifecycle state.
type State int

const (
	StateInitializing State = iota
	StateUnauthenticated
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "invalid"
	}
}

// Snapshot is an immutable copy of the manager's observable state.
// User is non-nil exactly when State is StateAuthenticated.
type Snapshot struct {
	State   State
	User    *UserProfile
	Loading bool
	// Err is the last error that shaped this state, e.g. ErrProfileMissing
	// after a fail-closed transition or ErrTransport after a failed refresh.
	Err error
}

// Ready implements gate.Viewer.
func (s Snapshot) Ready() bool { return s.State != StateInitializing }

// Authenticated implements gate.Viewer.
func (s Snapshot) Authenticated() bool { return s.State == StateAuthenticated && s.User != nil }

// Role implements gate.Viewer.
func (s Snapshot) Role() gate.Role {
	if s.User == nil {
		return gate.RoleUnknown
	}
	return s.User.Role
}

func (s Snapshot) clone() Snapshot {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

func (s Snapshot) equal(o Snapshot) bool {
	if s.State != o.State || s.Loading != o.Loading || !sameError(s.Err, o.Err) {
		return false
	}
	if (s.User == nil) != (o.User == nil) {
		return false
	}
	return s.User == nil || *s.User == *o.User
}

func sameError(a, b error) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Error() == b.Error()
}

var _ gate.Viewer = Snapshot{}
