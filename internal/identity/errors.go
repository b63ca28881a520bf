package identity

import "errors"

// Sign-in and signup failures reuse the auth sentinels (auth.ErrInvalidCredentials,
// auth.ErrEmailAlreadyInUse, auth.ErrWeakPassword) so both sides of the wire
// agree on codes.
var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionInactive = errors.New("session revoked or expired")
	ErrRefreshReused   = errors.New("refresh token already rotated")
	ErrRoleNotAllowed  = errors.New("role cannot be self-assigned")
)
