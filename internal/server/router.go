// Package server assembles the HTTP surface of the auth service.
package server

import (
	"log/slog"
	"net/http"

	"github.com/iudanet/finauth/internal/rbac"
	"github.com/iudanet/finauth/internal/server/handlers"
	"github.com/iudanet/finauth/internal/server/metrics"
	"github.com/iudanet/finauth/internal/server/middleware"
	"github.com/iudanet/finauth/internal/server/service"
	"github.com/iudanet/finauth/internal/server/storage"
)

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Logger  *slog.Logger
	Auth    *service.AuthService
	DB      storage.Pinger
	Metrics *metrics.Metrics
	// Limiter throttles register/login/refresh per client IP. Nil disables it.
	Limiter     *middleware.RateLimiter
	Version     string
	CORSOrigins []string
}

// NewRouter builds the root handler with all routes and middleware.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger

	authH := handlers.NewAuthHandler(logger, d.Auth)
	usersH := handlers.NewUsersHandler(logger, d.Auth)
	healthH := handlers.NewHealthHandler(logger, d.DB, d.Version)

	limited := func(h http.HandlerFunc) http.Handler {
		if d.Limiter == nil {
			return h
		}
		return middleware.RateLimitMiddleware(d.Limiter)(h)
	}
	bearer := middleware.AuthMiddleware(logger, d.Auth, false)
	bearerOrKey := middleware.AuthMiddleware(logger, d.Auth, true)
	admin := func(h http.HandlerFunc) http.Handler {
		return bearer(middleware.RequireRole(logger, d.Auth.Roles(), rbac.RoleAdmin)(h))
	}

	mux := http.NewServeMux()

	// Служебные эндпоинты
	mux.HandleFunc("GET /{$}", healthH.Info)
	mux.HandleFunc("GET /health", healthH.Health)
	mux.Handle("GET /metrics", d.Metrics.Handler())

	// Публичные эндпоинты
	mux.Handle("POST /auth/register", limited(authH.Register))
	mux.Handle("POST /auth/login", limited(authH.Login))
	mux.Handle("POST /auth/refresh", limited(authH.Refresh))
	mux.HandleFunc("POST /auth/logout", authH.Logout)

	// Профиль текущего пользователя
	mux.Handle("GET /auth/me", bearerOrKey(http.HandlerFunc(authH.Me)))
	mux.Handle("PUT /auth/me", bearer(http.HandlerFunc(authH.UpdateMe)))
	mux.Handle("POST /auth/change-password", bearer(http.HandlerFunc(authH.ChangePassword)))
	mux.Handle("POST /auth/me/api-key", bearer(http.HandlerFunc(authH.GenerateAPIKey)))

	// Администрирование
	mux.Handle("GET /auth/users", admin(usersH.List))
	mux.Handle("PUT /auth/users/{id}/role", admin(usersH.UpdateRole))
	mux.Handle("PUT /auth/users/{id}/verify", admin(usersH.Verify))
	mux.Handle("DELETE /auth/users/{id}", admin(usersH.Deactivate))

	var h http.Handler = jsonFallback(mux, logger)
	h = middleware.RecoveryMiddleware(logger)(h)
	h = d.Metrics.Middleware(h)
	h = middleware.LoggingWithSkip(logger, []string{"/health", "/metrics"})(h)
	h = middleware.CORSMiddleware(d.CORSOrigins)(h)

	return h
}

// jsonFallback replaces the ServeMux plain-text 404 and 405 responses with
// JSON errors. Matched routes are served unchanged.
func jsonFallback(mux *http.ServeMux, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, pattern := mux.Handler(r); pattern != "" {
			mux.ServeHTTP(w, r)
			return
		}

		rec := &headerRecorder{header: http.Header{}, status: http.StatusNotFound}
		mux.ServeHTTP(rec, r)

		if allow := rec.header.Get("Allow"); allow != "" {
			w.Header().Set("Allow", allow)
		}

		message := "not found"
		if rec.status == http.StatusMethodNotAllowed {
			message = "method not allowed"
		}
		handlers.WriteError(w, logger, message, rec.status)
	})
}

// headerRecorder captures the status and headers of a fallback response
// and drops its body.
type headerRecorder struct {
	header http.Header
	status int
}

func (h *headerRecorder) Header() http.Header         { return h.header }
func (h *headerRecorder) Write(b []byte) (int, error) { return len(b), nil }
func (h *headerRecorder) WriteHeader(code int)        { h.status = code }
