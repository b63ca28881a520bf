package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/diewo77/studio-console/auth"
	"github.com/diewo77/studio-console/gate"
	"github.com/diewo77/studio-console/httpx"
	"github.com/diewo77/studio-console/internal/identity"
	"github.com/diewo77/studio-console/internal/models"
	"github.com/diewo77/studio-console/internal/policy"
)

// ProfileHandler serves the profiles table and the navigation menu.
type ProfileHandler struct {
	DB     *gorm.DB
	Gate   *policy.AuthGate // To invalidate cache on changes
	Routes *gate.Gate
	log    *slog.Logger
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(db *gorm.DB, ag *policy.AuthGate, routes *gate.Gate, log *slog.Logger) *ProfileHandler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &ProfileHandler{DB: db, Gate: ag, Routes: routes, log: log}
}

// Get returns one profile row. Callers may read their own row; admins may
// read any. 404 when the row does not exist.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	uid, ok := identity.UserIDFromContext(r.Context())
	if !ok {
		writeCode(w, r, http.StatusUnauthorized, "unauthenticated", nil)
		return
	}
	id := chi.URLParam(r, "id")
	if id != uid {
		v, err := h.Gate.Viewer(r.Context())
		if err != nil {
			writeCode(w, r, http.StatusServiceUnavailable, "transport_failure", nil)
			return
		}
		if !gate.Allow(gate.RoleAdmin).Allows(v.Role()) {
			writeCode(w, r, http.StatusForbidden, "forbidden", nil)
			return
		}
	}

	var profile models.Profile
	err := h.DB.WithContext(r.Context()).First(&profile, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeCode(w, r, http.StatusNotFound, "not_found", nil)
		return
	}
	if err != nil {
		h.log.Error("profile lookup failed", "id", id, "error", err)
		writeCode(w, r, http.StatusInternalServerError, "db_error", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, profile.Row())
}

// List returns every profile. Admin only.
func (h *ProfileHandler) List(w http.ResponseWriter, r *http.Request) {
	var profiles []models.Profile
	if err := h.DB.WithContext(r.Context()).Order("email").Find(&profiles).Error; err != nil {
		writeCode(w, r, http.StatusInternalServerError, "db_error", nil)
		return
	}
	rows := make([]auth.ProfileRow, len(profiles))
	for i, p := range profiles {
		rows[i] = p.Row()
	}
	httpx.JSON(w, http.StatusOK, rows)
}

type roleRequest struct {
	Role string `json:"role"`
}

// UpdateRole changes a profile's role. Admin only.
func (h *ProfileHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	role := gate.ParseRole(req.Role)
	if !role.Valid() {
		writeCode(w, r, http.StatusUnprocessableEntity, "invalid_role", nil)
		return
	}

	id := chi.URLParam(r, "id")
	res := h.DB.WithContext(r.Context()).Model(&models.Profile{}).Where("id = ?", id).Update("role", role.String())
	if res.Error != nil {
		writeCode(w, r, http.StatusInternalServerError, "db_error", nil)
		return
	}
	if res.RowsAffected == 0 {
		writeCode(w, r, http.StatusNotFound, "not_found", nil)
		return
	}

	// Invalidate cache for this specific user
	if h.Gate != nil {
		h.Gate.InvalidateUser(id)
	}
	uid, _ := identity.UserIDFromContext(r.Context())
	h.log.Info("role changed", "user_id", id, "role", role.String(), "by", uid)

	var profile models.Profile
	if err := h.DB.WithContext(r.Context()).First(&profile, "id = ?", id).Error; err != nil {
		writeCode(w, r, http.StatusInternalServerError, "db_error", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, profile.Row())
}

// Navigation returns the menu entries the caller may open.
func (h *ProfileHandler) Navigation(w http.ResponseWriter, r *http.Request) {
	v, err := h.Gate.Viewer(r.Context())
	if err != nil {
		writeCode(w, r, http.StatusServiceUnavailable, "transport_failure", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, h.Routes.Visible(v, policy.NavItems()))
}
