// Package server assembles the identity backend's HTTP handler.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"gorm.io/gorm"

	"github.com/diewo77/studio-console/gate"
	"github.com/diewo77/studio-console/httpx"
	"github.com/diewo77/studio-console/internal/handlers"
	"github.com/diewo77/studio-console/internal/identity"
	"github.com/diewo77/studio-console/internal/metrics"
	"github.com/diewo77/studio-console/internal/policy"
	"github.com/diewo77/studio-console/internal/prefs"
)

// Deps are the collaborators of the router.
type Deps struct {
	DB             *gorm.DB
	Identity       *identity.Service
	Gate           *policy.AuthGate
	Routes         *gate.Gate
	Metrics        *metrics.Metrics
	Log            *slog.Logger
	AllowedOrigins []string
}

// New constructs the root http.Handler with all routes and middlewares applied.
func New(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = slog.New(slog.DiscardHandler)
	}
	if d.Routes == nil {
		d.Routes = policy.DefaultRoutes()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(d.Log, d.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Language", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(prefs.Lang)
	r.Use(d.Identity.Middleware)

	// --- Health endpoints ---
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if err := d.DB.Exec("SELECT 1").Error; err != nil {
			httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	ah := handlers.NewAuthHandler(d.Identity, d.Metrics, d.Log)
	r.Route("/auth/v1", func(r chi.Router) {
		r.Post("/signup", ah.Signup)
		r.Post("/token", ah.Token)
		r.Post("/refresh", ah.Refresh)
		r.Group(func(r chi.Router) {
			r.Use(identity.RequireAuth)
			r.Post("/logout", ah.Logout)
			r.Get("/session", ah.Session)
		})
	})

	ph := handlers.NewProfileHandler(d.DB, d.Gate, d.Routes, d.Log)
	r.Route("/rest/v1", func(r chi.Router) {
		r.Use(identity.RequireAuth)
		r.Get("/profiles/{id}", ph.Get)
		r.Get("/navigation", ph.Navigation)
		r.Group(func(r chi.Router) {
			r.Use(d.Gate.RequireAdmin("/rest/v1/profiles"))
			r.Get("/profiles", ph.List)
			r.Patch("/profiles/{id}/role", ph.UpdateRole)
		})
	})
	return r
}

// requestLogger emits one record per request and feeds the HTTP metrics.
func requestLogger(log *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)
			m.RecordRequest(r.Method, route, status, elapsed)
			log.Info("request",
				"method", r.Method,
				"route", route,
				"status", status,
				"duration", elapsed,
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
