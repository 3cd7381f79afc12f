// Package storage defines the client-side session store.
package storage

import (
	"context"
	"time"
)

// AuthStorage keeps the single local session of the CLI.
type AuthStorage interface {
	// SaveAuth replaces the stored session.
	SaveAuth(ctx context.Context, auth *AuthData) error

	// GetAuth returns ErrAuthNotFound if nothing is stored.
	GetAuth(ctx context.Context) (*AuthData, error)

	// DeleteAuth removes the stored session (logout).
	DeleteAuth(ctx context.Context) error

	// IsAuthenticated reports whether a session exists and its access token has not expired.
	IsAuthenticated(ctx context.Context) (bool, error)
}

// AuthData is a locally stored session.
type AuthData struct {
	Email        string `json:"email"`
	Role         string `json:"role"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	UserID       int64  `json:"user_id"`
	// ExpiresAt is the access token expiry, unix seconds.
	ExpiresAt int64 `json:"expires_at"`
}

// Expired reports whether the access token is expired at now.
func (a *AuthData) Expired(now time.Time) bool {
	return !now.Before(time.Unix(a.ExpiresAt, 0))
}
