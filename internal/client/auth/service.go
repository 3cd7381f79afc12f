// Package auth manages the CLI session: login, token refresh and logout.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iudanet/finauth/internal/client/api"
	"github.com/iudanet/finauth/internal/client/storage"
	"github.com/iudanet/finauth/internal/crypto"
	"github.com/iudanet/finauth/internal/validation"
	pkgapi "github.com/iudanet/finauth/pkg/api"
)

var (
	// ErrNotLoggedIn means there is no local session.
	ErrNotLoggedIn = errors.New("not logged in, run 'login' first")

	// ErrSessionExpired means the refresh token was rejected and the local session was dropped.
	ErrSessionExpired = errors.New("session expired, please log in again")
)

// Service manages the local session on top of the API client.
type Service struct {
	apiClient APIClient
	authStore storage.AuthStorage
	now       func() time.Time
}

// NewService returns a Service storing sessions in authStore.
func NewService(apiClient APIClient, authStore storage.AuthStorage) *Service {
	return &Service{
		apiClient: apiClient,
		authStore: authStore,
		now:       time.Now,
	}
}

// Register validates the input locally and creates an account on the server.
// It does not log in.
func (s *Service) Register(ctx context.Context, email, username, password string) (*pkgapi.UserResponse, error) {
	if err := validation.ValidateEmail(email); err != nil {
		return nil, fmt.Errorf("invalid email: %w", err)
	}
	name, err := validation.NormalizeUsername(username)
	if err != nil {
		return nil, fmt.Errorf("invalid username: %w", err)
	}
	if err := crypto.CheckPasswordStrength(password); err != nil {
		return nil, fmt.Errorf("invalid password: %w", err)
	}

	user, err := s.apiClient.Register(ctx, pkgapi.RegisterRequest{
		Email:    email,
		Username: name,
		Password: password,
	})
	if err != nil {
		return nil, fmt.Errorf("registration failed: %w", err)
	}
	return user, nil
}

// Login authenticates against the server and stores the session locally.
func (s *Service) Login(ctx context.Context, email, password string) (*storage.AuthData, error) {
	if email == "" || password == "" {
		return nil, fmt.Errorf("email and password are required")
	}

	tokens, err := s.apiClient.Login(ctx, pkgapi.LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}

	// Роль и id берем из профиля, токен клиент не разбирает
	me, err := s.apiClient.Me(ctx, api.Bearer(tokens.AccessToken))
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	auth := &storage.AuthData{
		Email:        me.Email,
		UserID:       me.ID,
		Role:         me.Role,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    s.expiresAt(tokens.ExpiresIn),
	}
	if err := s.authStore.SaveAuth(ctx, auth); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return auth, nil
}

// Logout выполняет выход из системы
// Удаляет локальные данные авторизации и отзывает refresh токен на сервере (best effort)
func (s *Service) Logout(ctx context.Context) error {
	authData, err := s.authStore.GetAuth(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrAuthNotFound) {
			return ErrNotLoggedIn
		}
		return fmt.Errorf("failed to load session: %w", err)
	}

	if logoutErr := s.apiClient.Logout(ctx, authData.RefreshToken); logoutErr != nil {
		// Не прерываем процесс, если сервер недоступен
		slog.Warn("failed to logout on server", "error", logoutErr)
	}

	// Всегда удаляем локальные данные, даже если сервер недоступен
	if err := s.authStore.DeleteAuth(ctx); err != nil && !errors.Is(err, storage.ErrAuthNotFound) {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Refresh rotates the token pair. If the server rejects the refresh token
// the local session is removed and ErrSessionExpired is returned.
func (s *Service) Refresh(ctx context.Context) (*storage.AuthData, error) {
	authData, err := s.authStore.GetAuth(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrAuthNotFound) {
			return nil, ErrNotLoggedIn
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	tokens, err := s.apiClient.Refresh(ctx, authData.RefreshToken)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			if delErr := s.authStore.DeleteAuth(ctx); delErr != nil && !errors.Is(delErr, storage.ErrAuthNotFound) {
				slog.Warn("failed to drop expired session", "error", delErr)
			}
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}

	authData.AccessToken = tokens.AccessToken
	authData.RefreshToken = tokens.RefreshToken
	authData.ExpiresAt = s.expiresAt(tokens.ExpiresIn)

	if err := s.authStore.SaveAuth(ctx, authData); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	slog.Debug("tokens refreshed", "email", authData.Email)
	return authData, nil
}

// Session returns the stored session, refreshing the access token if it has expired.
func (s *Service) Session(ctx context.Context) (*storage.AuthData, error) {
	authData, err := s.authStore.GetAuth(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrAuthNotFound) {
			return nil, ErrNotLoggedIn
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	if authData.Expired(s.now()) {
		return s.Refresh(ctx)
	}
	return authData, nil
}

// Do calls fn with the current access token. On a 401 the token pair is
// refreshed and fn is retried once.
func (s *Service) Do(ctx context.Context, fn func(creds api.Credentials) error) error {
	authData, err := s.Session(ctx)
	if err != nil {
		return err
	}

	err = fn(api.Bearer(authData.AccessToken))
	if !errors.Is(err, api.ErrUnauthorized) {
		return err
	}

	authData, err = s.Refresh(ctx)
	if err != nil {
		return err
	}
	return fn(api.Bearer(authData.AccessToken))
}

// Status describes the local session.
type Status struct {
	ExpiresAt time.Time
	Email     string
	Role      string
	UserID    int64
	LoggedIn  bool
	Expired   bool
}

// Status reports the local session without contacting the server.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	authData, err := s.authStore.GetAuth(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrAuthNotFound) {
			return &Status{}, nil
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	return &Status{
		LoggedIn:  true,
		Email:     authData.Email,
		Role:      authData.Role,
		UserID:    authData.UserID,
		ExpiresAt: time.Unix(authData.ExpiresAt, 0),
		Expired:   authData.Expired(s.now()),
	}, nil
}

func (s *Service) expiresAt(expiresIn int64) int64 {
	return s.now().Add(time.Duration(expiresIn) * time.Second).Unix()
}
