package gate

import "errors"

// Sentinel errors returned by Gate and the route loader.
var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrNotReady         = errors.New("session not ready")
	ErrNoPolicyDefined  = errors.New("no policy defined for route")
	ErrUnknownRole      = errors.New("unknown role")
	ErrInvalidRoutePath = errors.New("route path must start with /")
)
