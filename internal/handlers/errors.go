package handlers

import (
	"errors"
	"net/http"

	"github.com/diewo77/studio-console/auth"
	"github.com/diewo77/studio-console/httpx"
	"github.com/diewo77/studio-console/internal/identity"
	"github.com/diewo77/studio-console/internal/prefs"
)

// errorStatus maps a service error to its status and wire code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, httpx.ErrInvalidBody):
		return http.StatusBadRequest, "invalid_body"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, auth.Code(err)
	case errors.Is(err, auth.ErrEmailAlreadyInUse):
		return http.StatusConflict, auth.Code(err)
	case errors.Is(err, auth.ErrWeakPassword):
		return http.StatusUnprocessableEntity, auth.Code(err)
	case errors.Is(err, identity.ErrRoleNotAllowed):
		return http.StatusUnprocessableEntity, "role_not_allowed"
	case errors.Is(err, identity.ErrInvalidToken):
		return http.StatusUnauthorized, "invalid_token"
	case errors.Is(err, identity.ErrSessionInactive):
		return http.StatusUnauthorized, "session_inactive"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError writes err as {"error": code, "message": text} in the
// caller's language.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	writeCode(w, r, status, code, nil)
}

func writeCode(w http.ResponseWriter, r *http.Request, status int, code string, details any) {
	prefs.Error(w, r, status, code, details)
}
