package auth

import (
	"context"

	"github.com/iudanet/finauth/internal/client/api"
	pkgapi "github.com/iudanet/finauth/pkg/api"
)

//go:generate moq -out api_mock.go . APIClient

// APIClient is the part of the server API the session service talks to.
// *api.Client implements it.
type APIClient interface {
	Register(ctx context.Context, req pkgapi.RegisterRequest) (*pkgapi.UserResponse, error)
	Login(ctx context.Context, req pkgapi.LoginRequest) (*pkgapi.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*pkgapi.TokenResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	Me(ctx context.Context, creds api.Credentials) (*pkgapi.UserResponse, error)
}

var _ APIClient = (*api.Client)(nil)
