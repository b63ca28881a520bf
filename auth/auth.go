// Package auth is the client-side session manager of the console.
//
// A Manager owns the current session state, listens to the identity
// provider's session-change stream, resolves each session into a UserProfile
// and exposes login, signup and logout. Consumers read Snapshots, which
// implement gate.Viewer and can be handed straight to the access guard.
package auth

import (
	"context"
	"time"

	"github.com/diewo77/studio-console/gate"
)

// Session is the identity provider's proof of authentication. Tokens are
// opaque to this package.
type Session struct {
	UserID       string    `json:"user_id" yaml:"user_id"`
	AccessToken  string    `json:"access_token" yaml:"access_token"`
	RefreshToken string    `json:"refresh_token" yaml:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at" yaml:"expires_at"`
}

// UserProfile is the application-level view of the signed-in user.
type UserProfile struct {
	ID          string
	DisplayName string
	Email       string
	Role        gate.Role
	AvatarURL   string
}

// ProfileRow is a profile as stored. Role is kept raw so that unrecognized
// values survive until they are mapped to gate.RoleUnknown.
type ProfileRow struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Profile converts a stored row.
func (r ProfileRow) Profile() UserProfile {
	return UserProfile{
		ID:          r.ID,
		DisplayName: r.DisplayName,
		Email:       r.Email,
		Role:        gate.ParseRole(r.Role),
		AvatarURL:   r.AvatarURL,
	}
}

// SignupMetadata travels with a signup so the backend can create the
// profile row for the new identity.
type SignupMetadata struct {
	DisplayName string    `json:"display_name"`
	Role        gate.Role `json:"role"`
}

// SignupRequest is the input of Manager.Signup. A zero Role means client.
type SignupRequest struct {
	Email       string
	Password    string
	DisplayName string
	Role        gate.Role
}

// EventKind enumerates the provider's session-change notifications.
type EventKind int

const (
	EventInitialSession EventKind = iota
	EventSignedIn
	EventSignedOut
	EventTokenRefreshed
	EventUserUpdated
)

func (k EventKind) String() string {
	switch k {
	case EventInitialSession:
		return "initial_session"
	case EventSignedIn:
		return "signed_in"
	case EventSignedOut:
		return "signed_out"
	case EventTokenRefreshed:
		return "token_refreshed"
	case EventUserUpdated:
		return "user_updated"
	default:
		return "unknown"
	}
}

// explicit events are direct results of a user action; they supersede any
// resolution issued before them.
func (k EventKind) explicit() bool {
	return k == EventSignedIn || k == EventSignedOut
}

// Event is one session-change notification. Session is nil for SignedOut.
type Event struct {
	Kind    EventKind
	Session *Session
}

// IdentityProvider is the backend identity SDK.
type IdentityProvider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string, meta SignupMetadata) (*Session, error)
	SignOut(ctx context.Context) error
	// GetSession returns the stored session, or nil when there is none.
	GetSession(ctx context.Context) (*Session, error)
	// OnSessionChange subscribes to session changes. The returned function
	// releases the subscription.
	OnSessionChange() (<-chan Event, func())
}

// ProfileStore looks profiles up by identity id.
type ProfileStore interface {
	// FindUserByID returns nil, nil when no row exists.
	FindUserByID(ctx context.Context, id string) (*ProfileRow, error)
}
