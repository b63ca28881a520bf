package auth

import "errors"

// Sentinel errors. Provider and store implementations return (or wrap)
// these so callers can use errors.Is.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailAlreadyInUse  = errors.New("email already in use")
	ErrWeakPassword       = errors.New("password too weak")
	ErrSignupFailed       = errors.New("signup failed")
	ErrLogoutFailed       = errors.New("logout failed")
	ErrProfileMissing     = errors.New("account not fully set up")
	ErrTransport          = errors.New("identity backend unreachable")

	ErrAlreadyStarted = errors.New("session manager already started")
	ErrClosed         = errors.New("session manager closed")
)

// Kind groups errors by how the UI should react to them.
type Kind int

const (
	KindUnknown Kind = iota
	// KindAuthRejected: bad credentials or signup conflict; show the message.
	KindAuthRejected
	// KindProfileMissing: valid credential but no profile row; do not retry.
	KindProfileMissing
	// KindTransport: backend unreachable; the user may retry.
	KindTransport
	// KindLogout: sign-out failed; the session is still active.
	KindLogout
)

func (k Kind) String() string {
	switch k {
	case KindAuthRejected:
		return "auth_rejected"
	case KindProfileMissing:
		return "profile_missing"
	case KindTransport:
		return "transport_failure"
	case KindLogout:
		return "logout_failure"
	default:
		return "unknown"
	}
}

// Classify maps err onto the error taxonomy.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrProfileMissing):
		return KindProfileMissing
	case errors.Is(err, ErrLogoutFailed):
		return KindLogout
	case errors.Is(err, ErrTransport):
		return KindTransport
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrEmailAlreadyInUse),
		errors.Is(err, ErrWeakPassword),
		errors.Is(err, ErrSignupFailed):
		return KindAuthRejected
	default:
		return KindUnknown
	}
}

// Code is a stable machine-readable name for err, used on the wire and as
// an i18n message key.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrProfileMissing):
		return "profile_missing"
	case errors.Is(err, ErrLogoutFailed):
		return "logout_failed"
	case errors.Is(err, ErrTransport):
		return "transport_failure"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrEmailAlreadyInUse):
		return "email_in_use"
	case errors.Is(err, ErrWeakPassword):
		return "weak_password"
	case errors.Is(err, ErrSignupFailed):
		return "signup_failed"
	default:
		return "unknown_error"
	}
}
