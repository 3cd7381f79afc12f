package models

import (
	"time"

	"github.com/iudanet/finauth/internal/rbac"
)

// User is a stored account.
type User struct {
	CreatedAt    time.Time  `json:"created_at"`           // время создания
	LastLogin    *time.Time `json:"last_login,omitempty"` // время последнего входа
	APIKey       *string    `json:"-"`                    // ключ для неинтерактивного доступа
	Email        string     `json:"email"`                // уникальный email, используется для входа
	Username     string     `json:"username"`             // отображаемое имя
	PasswordHash string     `json:"-"`                    // bcrypt хеш пароля
	Role         rbac.Role  `json:"role"`                 // роль в иерархии
	ID           int64      `json:"id"`                   // идентификатор, назначается БД
	IsActive     bool       `json:"is_active"`            // false = soft delete
	IsVerified   bool       `json:"is_verified"`          // email подтвержден
}

// HasAPIKey reports whether the user has an API key assigned.
func (u *User) HasAPIKey() bool {
	return u.APIKey != nil && *u.APIKey != ""
}
