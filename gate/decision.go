package gate

import "fmt"

// Viewer is the read-only view of the session that a decision depends on.
// The session manager's snapshot implements it; so does the server's
// per-request principal.
type Viewer interface {
	// Ready is false until the first session check has completed.
	Ready() bool
	// Authenticated reports a valid session with a resolved profile.
	Authenticated() bool
	// Role of the resolved profile. Only meaningful when Authenticated.
	Role() Role
}

// Outcome is what the shell should do with a navigation request.
type Outcome int

const (
	ShowLoading Outcome = iota
	Redirect
	Render
)

func (o Outcome) String() string {
	switch o {
	case ShowLoading:
		return "loading"
	case Redirect:
		return "redirect"
	case Render:
		return "render"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Decision is the result of Decide.
type Decision struct {
	Outcome Outcome
	// Path is the redirect target; empty unless Outcome is Redirect.
	Path string
	// RememberOrigin asks the router to stash the requested location so a
	// later login can return to it.
	RememberOrigin bool
	// From is the requested location when RememberOrigin is set and the
	// decision came from Gate.Check.
	From string
}

func (d Decision) String() string {
	switch {
	case d.Outcome != Redirect:
		return d.Outcome.String()
	case d.From != "":
		return fmt.Sprintf("redirect %s (from %s)", d.Path, d.From)
	default:
		return "redirect " + d.Path
	}
}

// Decide maps a viewer and a policy to a decision. It never renders for a
// viewer that is not authenticated with an allowed role.
func Decide(v Viewer, p AccessPolicy) Decision {
	switch {
	case v == nil || !v.Ready():
		return Decision{Outcome: ShowLoading}
	case !v.Authenticated():
		return Decision{Outcome: Redirect, Path: p.loginPath(), RememberOrigin: true}
	case !p.Allows(v.Role()):
		return Decision{Outcome: Redirect, Path: p.fallbackPath()}
	default:
		return Decision{Outcome: Render}
	}
}
