package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/diewo77/studio-console/gate"
	"github.com/diewo77/studio-console/httpx"
	"github.com/diewo77/studio-console/i18n"
	"github.com/diewo77/studio-console/internal/identity"
	"github.com/diewo77/studio-console/internal/metrics"
	"github.com/diewo77/studio-console/internal/prefs"
	"github.com/diewo77/studio-console/validation"
)

// AuthHandler serves the /auth/v1 endpoints.
type AuthHandler struct {
	svc     *identity.Service
	metrics *metrics.Metrics
	log     *slog.Logger
}

func NewAuthHandler(svc *identity.Service, m *metrics.Metrics, log *slog.Logger) *AuthHandler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &AuthHandler{svc: svc, metrics: m, log: log}
}

type signupRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type sessionResponse struct {
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *AuthHandler) record(op string, err error) {
	outcome := "success"
	if err != nil {
		_, outcome = errorStatus(err)
	}
	h.metrics.RecordAuth(op, outcome)
}

// Signup creates an account and its profile. It does not sign in.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	v := validation.Violations{}
	validation.Required("email", req.Email, v)
	validation.Email("email", req.Email, v)
	validation.Required("password", req.Password, v)
	validation.MinLength("password", req.Password, h.svc.MinPasswordLength(), v)
	validation.OneOf("role", req.Role, []string{"client", "collaborator", "admin"}, v)
	if !v.Empty() {
		lang := prefs.LangFrom(r)
		code := "validation_failed"
		if len(v) == 1 && v["password"] == "too_short" {
			code = "weak_password"
		}
		h.metrics.RecordAuth("signup", code)
		writeCode(w, r, http.StatusUnprocessableEntity, code, i18n.Violations(lang, v))
		return
	}

	profile, err := h.svc.SignUp(r.Context(), identity.SignupInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Role:        gate.ParseRole(req.Role),
	})
	h.record("signup", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, profile.Row())
}

// Token signs in with email and password and returns a session.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	session, err := h.svc.SignIn(r.Context(), req.Email, req.Password)
	h.record("token", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, session)
}

// Refresh rotates the refresh token.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	session, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	h.record("refresh", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, session)
}

// Logout revokes the caller's session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		writeCode(w, r, http.StatusUnauthorized, "unauthenticated", nil)
		return
	}
	err := h.svc.SignOut(r.Context(), p.SessionID)
	h.record("logout", err)
	if err != nil {
		h.log.Error("logout failed", "session_id", p.SessionID, "error", err)
		writeCode(w, r, http.StatusInternalServerError, "logout_failed", nil)
		return
	}
	httpx.NoContent(w)
}

// Session reports the caller's session. 401 when it was revoked or expired.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		writeCode(w, r, http.StatusUnauthorized, "unauthenticated", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, sessionResponse{
		UserID:    p.UserID,
		SessionID: p.SessionID,
		ExpiresAt: p.ExpiresAt,
	})
}
