package handlers

import (
	"context"

	"github.com/iudanet/finauth/internal/models"
)

// contextKey - тип для ключей контекста
type contextKey string

const (
	// userKey - ключ для аутентифицированного пользователя в контексте
	userKey contextKey = "user"
	// authMethodKey - ключ для способа аутентификации (bearer / api_key)
	authMethodKey contextKey = "auth_method"
)

// Способы аутентификации запроса.
const (
	AuthMethodBearer = "bearer"
	AuthMethodAPIKey = "api_key"
)

// WithUser кладет аутентифицированного пользователя и способ входа в контекст
func WithUser(ctx context.Context, user *models.User, method string) context.Context {
	ctx = context.WithValue(ctx, userKey, user)
	return context.WithValue(ctx, authMethodKey, method)
}

// UserFromContext извлекает пользователя из контекста
func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(userKey).(*models.User)
	return user, ok && user != nil
}

// AuthMethodFromContext извлекает способ аутентификации из контекста
func AuthMethodFromContext(ctx context.Context) (string, bool) {
	method, ok := ctx.Value(authMethodKey).(string)
	return method, ok
}
