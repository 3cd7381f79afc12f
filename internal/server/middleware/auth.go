package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iudanet/finauth/internal/models"
	"github.com/iudanet/finauth/internal/rbac"
	"github.com/iudanet/finauth/internal/server/handlers"
	"github.com/iudanet/finauth/pkg/api"
)

// Authenticator resolves the caller of a request.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*models.User, error)
	AuthenticateAPIKey(ctx context.Context, key string) (*models.User, error)
}

// AuthMiddleware создает middleware аутентификации.
// Принимает "Authorization: Bearer <access token>" и, если allowAPIKey,
// заголовок X-API-Key. Пользователь кладется в контекст запроса.
func AuthMiddleware(logger *slog.Logger, auth Authenticator, allowAPIKey bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			authHeader := r.Header.Get("Authorization")
			apiKey := r.Header.Get(api.APIKeyHeader)

			var (
				user   *models.User
				method string
				err    error
			)

			switch {
			case authHeader != "":
				// Ожидаем формат: "Bearer <token>"
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
					logger.WarnContext(ctx, "invalid Authorization header format")
					handlers.WriteError(w, logger, "could not validate credentials", http.StatusUnauthorized)
					return
				}
				user, err = auth.Authenticate(ctx, strings.TrimSpace(parts[1]))
				method = handlers.AuthMethodBearer
			case allowAPIKey && apiKey != "":
				user, err = auth.AuthenticateAPIKey(ctx, apiKey)
				method = handlers.AuthMethodAPIKey
			default:
				logger.DebugContext(ctx, "missing credentials", slog.String("path", r.URL.Path))
				handlers.WriteError(w, logger, "not authenticated", http.StatusUnauthorized)
				return
			}

			if err != nil {
				if handlers.StatusFor(err) == http.StatusUnauthorized {
					logger.WarnContext(ctx, "authentication failed",
						slog.String("method", method),
						slog.Any("error", err))
					// причина (неактивный пользователь, неизвестный ключ) остается в логе
					handlers.WriteError(w, logger, "could not validate credentials", http.StatusUnauthorized)
					return
				}
				handlers.WriteServiceError(w, r, logger, err)
				return
			}

			logger.DebugContext(ctx, "user authenticated",
				slog.Int64("user_id", user.ID),
				slog.String("method", method))

			next.ServeHTTP(w, r.WithContext(handlers.WithUser(ctx, user, method)))
		})
	}
}

// RequireRole пропускает только пользователей с ролью не ниже required.
// Должен стоять после AuthMiddleware.
func RequireRole(logger *slog.Logger, roles *rbac.Hierarchy, required rbac.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := handlers.UserFromContext(r.Context())
			if !ok {
				handlers.WriteError(w, logger, "not authenticated", http.StatusUnauthorized)
				return
			}

			if !roles.HasPermission(r.Context(), user.Role, required) {
				logger.WarnContext(r.Context(), "permission denied",
					slog.Int64("user_id", user.ID),
					slog.String("role", string(user.Role)),
					slog.String("required_role", string(required)))
				handlers.WriteError(w, logger, "insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
