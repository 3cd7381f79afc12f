package api

import "time"

// TokenTypeBearer is the only token_type the server issues.
const TokenTypeBearer = "bearer"

// APIKeyHeader carries an API key for non-interactive clients.
const APIKeyHeader = "X-API-Key"

// RegisterRequest creates a new account.
type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginRequest authenticates by email and password.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest carries a refresh token for rotation or logout.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenResponse carries a freshly issued token pair.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`  // JWT access token
	RefreshToken string `json:"refresh_token"` // JWT refresh token
	TokenType    string `json:"token_type"`    // всегда "bearer"
	ExpiresIn    int64  `json:"expires_in"`    // время жизни access token в секундах
}

// UserResponse is the public profile of a user.
type UserResponse struct {
	CreatedAt  time.Time  `json:"created_at"`
	LastLogin  *time.Time `json:"last_login"`
	Email      string     `json:"email"`
	Username   string     `json:"username"`
	Role       string     `json:"role"`
	ID         int64      `json:"id"`
	IsActive   bool       `json:"is_active"`
	IsVerified bool       `json:"is_verified"`
}

// UpdateProfileRequest changes the caller's own profile. Nil fields are left as is.
type UpdateProfileRequest struct {
	Username *string `json:"username"`
}

// ChangePasswordRequest changes the caller's password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// RoleUpdateRequest sets a user's role.
type RoleUpdateRequest struct {
	Role string `json:"role"`
}

// APIKeyResponse returns a freshly generated API key. It is shown only once.
type APIKeyResponse struct {
	APIKey string `json:"api_key"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error   string   `json:"error"`             // описание ошибки
	Message string   `json:"message,omitempty"` // дополнительное сообщение
	Details []string `json:"details,omitempty"` // все нарушенные правила валидации
}

// InfoResponse describes the running service.
type InfoResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Status  string `json:"status"`
}
