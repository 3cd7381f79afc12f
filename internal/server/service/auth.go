// Package service implements account and token operations. Every operation
// runs in a single storage transaction.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/iudanet/finauth/internal/crypto"
	"github.com/iudanet/finauth/internal/models"
	"github.com/iudanet/finauth/internal/rbac"
	"github.com/iudanet/finauth/internal/server/storage"
	"github.com/iudanet/finauth/internal/server/token"
	"github.com/iudanet/finauth/internal/validation"
)

// Pagination limits for ListUsers.
const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

// Denylist records refresh token ids that must no longer be accepted.
// Claim atomically marks jti as used and reports false if it already was.
type Denylist interface {
	Claim(ctx context.Context, jti string, expiresAt time.Time) (bool, error)
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// EventRecorder receives authentication outcomes, e.g. for metrics.
type EventRecorder interface {
	AuthEvent(event, outcome string)
}

type nopDenylist struct{}

func (nopDenylist) Claim(context.Context, string, time.Time) (bool, error) { return true, nil }
func (nopDenylist) Revoke(context.Context, string, time.Time) error         { return nil }
func (nopDenylist) IsRevoked(context.Context, string) (bool, error)         { return false, nil }

type nopRecorder struct{}

func (nopRecorder) AuthEvent(string, string) {}

// Option configures AuthService.
type Option func(*AuthService)

// WithDenylist enables refresh token revocation.
func WithDenylist(d Denylist) Option {
	return func(s *AuthService) {
		if d != nil {
			s.denylist = d
		}
	}
}

// WithEventRecorder reports auth outcomes to r.
func WithEventRecorder(r EventRecorder) Option {
	return func(s *AuthService) {
		if r != nil {
			s.events = r
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *AuthService) {
		if now != nil {
			s.now = now
		}
	}
}

// AuthService orchestrates registration, login, token rotation and user administration.
type AuthService struct {
	logger   *slog.Logger
	uow      storage.UnitOfWork
	hasher   *crypto.Hasher
	codec    *token.Codec
	roles    *rbac.Hierarchy
	denylist Denylist
	events   EventRecorder
	now      func() time.Time

	// dummyHash is verified against when the email is unknown
	dummyHash string
}

// NewAuthService wires the service. The timing-equalizer hash is computed
// here so no login request pays for it.
func NewAuthService(
	logger *slog.Logger,
	uow storage.UnitOfWork,
	hasher *crypto.Hasher,
	codec *token.Codec,
	roles *rbac.Hierarchy,
	opts ...Option,
) *AuthService {
	s := &AuthService{
		logger:   logger,
		uow:      uow,
		hasher:   hasher,
		codec:    codec,
		roles:    roles,
		denylist: nopDenylist{},
		events:   nopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	h, err := hasher.Hash("finauth-timing-equalizer")
	if err != nil {
		logger.Error("failed to prepare dummy password hash", slog.Any("error", err))
	}
	s.dummyHash = h
	return s
}

// Roles returns the role hierarchy used for authorization.
func (s *AuthService) Roles() *rbac.Hierarchy {
	return s.roles
}

func (s *AuthService) store(users storage.UserRepository) *UserStore {
	return NewUserStore(users, s.hasher, s.now)
}

func (s *AuthService) record(event string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	s.events.AuthEvent(event, outcome)
}

// ValidateRegistration checks all registration fields and returns the
// trimmed username. Every invalid field is reported.
func ValidateRegistration(email, username, password string) (string, error) {
	verr := &ValidationError{}

	if err := validation.ValidateEmail(email); err != nil {
		verr.Add("email", err.Error())
	}

	name, err := validation.NormalizeUsername(username)
	if err != nil {
		verr.Add("username", err.Error())
	}

	for _, reason := range crypto.ValidatePasswordStrength(password) {
		verr.Add("password", reason)
	}

	return name, verr.OrNil()
}

// Register creates a viewer account that still needs email verification.
func (s *AuthService) Register(ctx context.Context, email, username, password string) (user *models.User, err error) {
	defer func() { s.record("register", err) }()

	name, err := ValidateRegistration(email, username, password)
	if err != nil {
		return nil, err
	}

	err = s.uow.WithinTx(ctx, func(ctx context.Context, users storage.UserRepository) error {
		var err error
		user, err = s.store(users).Create(ctx, email, name, password, rbac.DefaultRole, false)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			s.logger.WarnContext(ctx, "email already registered", slog.String("email", email))
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to register user: %w", err)
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.Int64("user_id", user.ID),
		slog.String("email", user.Email))

	return user, nil
}

// Login checks credentials and issues a token pair. Unknown email and wrong
// password produce the same error.
func (s *AuthService) Login(ctx context.Context, email, password string) (pair *token.Pair, err error) {
	defer func() { s.record("login", err) }()

	now := s.now()
	err = s.uow.WithinTx(ctx, func(ctx context.Context, users storage.UserRepository) error {
		store := s.store(users)

		user, err := store.FindByEmail(ctx, email)
		if errors.Is(err, storage.ErrUserNotFound) {
			// Уравниваем время ответа с веткой неверного пароля
			s.hasher.Verify(password, s.dummyHash)
			return ErrInvalidCredentials
		}
		if err != nil {
			return err
		}

		if !s.hasher.Verify(password, user.PasswordHash) {
			return ErrInvalidCredentials
		}
		if !user.IsActive {
			return ErrInactiveUser
		}

		if err := store.UpdateLastLogin(ctx, user); err != nil {
			return err
		}

		pair, err = s.codec.IssuePair(subjectOf(user), now)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrInactiveUser) {
			s.logger.WarnContext(ctx, "login rejected", slog.String("email", email), slog.Any("error", err))
			return nil, err
		}
		return nil, fmt.Errorf("failed to login: %w", err)
	}

	s.logger.InfoContext(ctx, "user logged in", slog.String("email", email))
	return pair, nil
}

// Refresh rotates a refresh token into a new pair. With a denylist the
// presented token is claimed before the pair is issued, so each refresh
// token rotates at most once even under concurrent replays.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (pair *token.Pair, err error) {
	defer func() { s.record("refresh", err) }()

	now := s.now()
	claims, err := s.codec.DecodeRefresh(refreshToken, now)
	if err != nil {
		s.logger.DebugContext(ctx, "refresh token rejected", slog.Any("error", err))
		return nil, ErrInvalidToken
	}
	userID, _ := claims.UserID()

	claimed, err := s.denylist.Claim(ctx, claims.ID, claims.ExpiresAt.Time)
	if err != nil {
		return nil, fmt.Errorf("failed to claim refresh token: %w", err)
	}
	if !claimed {
		s.logger.WarnContext(ctx, "revoked refresh token presented", slog.Int64("user_id", userID))
		return nil, ErrInvalidToken
	}

	err = s.uow.WithinTx(ctx, func(ctx context.Context, users storage.UserRepository) error {
		user, err := s.store(users).FindByID(ctx, userID)
		if err != nil {
			return err
		}
		if !user.IsActive {
			return ErrInactiveUser
		}

		pair, err = s.codec.IssuePair(subjectOf(user), now)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrInactiveUser) {
			s.logger.WarnContext(ctx, "refresh rejected", slog.Int64("user_id", userID), slog.Any("error", err))
			return nil, err
		}
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	return pair, nil
}

// Logout revokes a refresh token. Without a denylist it only validates the token.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) (err error) {
	defer func() { s.record("logout", err) }()

	claims, err := s.decodeRefresh(ctx, refreshToken, s.now())
	if err != nil {
		return err
	}

	if err := s.denylist.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

func (s *AuthService) decodeRefresh(ctx context.Context, refreshToken string, now time.Time) (*token.Claims, error) {
	claims, err := s.codec.DecodeRefresh(refreshToken, now)
	if err != nil {
		s.logger.DebugContext(ctx, "refresh token rejected", slog.Any("error", err))
		return nil, ErrInvalidToken
	}

	revoked, err := s.denylist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check refresh token: %w", err)
	}
	if revoked {
		s.logger.WarnContext(ctx, "revoked refresh token presented", slog.String("subject", claims.Subject))
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// Authenticate resolves the active user behind an access token.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*models.User, error) {
	claims, err := s.codec.DecodeAccess(accessToken, s.now())
	if err != nil {
		s.logger.DebugContext(ctx, "access token rejected", slog.Any("error", err))
		return nil, ErrInvalidToken
	}
	userID, _ := claims.UserID()

	user, err := s.loadActive(ctx, func(ctx context.Context, store *UserStore) (*models.User, error) {
		return store.FindByID(ctx, userID)
	})
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidToken
	}
	return user, err
}

// GetProfile is Authenticate under the name used by the profile endpoint.
func (s *AuthService) GetProfile(ctx context.Context, accessToken string) (*models.User, error) {
	return s.Authenticate(ctx, accessToken)
}

// AuthenticateAPIKey resolves the active user owning key.
func (s *AuthService) AuthenticateAPIKey(ctx context.Context, key string) (*models.User, error) {
	user, err := s.loadActive(ctx, func(ctx context.Context, store *UserStore) (*models.User, error) {
		return store.FindByAPIKey(ctx, key)
	})
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidAPIKey
	}
	return user, err
}

func (s *AuthService) loadActive(ctx context.Context, find func(context.Context, *UserStore) (*models.User, error)) (*models.User, error) {
	var user *models.User
	err := s.uow.WithinTx(ctx, func(ctx context.Context, users storage.UserRepository) error {
		var err error
		user, err = find(ctx, s.store(users))
		return err
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}
	return user, nil
}

// UpdateProfile changes the caller's own username. A nil username leaves the profile as is.
func (s *AuthService) UpdateProfile(ctx context.Context, user *models.User, username *string) (*models.User, error) {
	upd := UserUpdate{}
	if username != nil {
		name, err := validation.NormalizeUsername(*username)
		if err != nil {
			verr := &ValidationError{}
			verr.Add("username", err.Error())
			return nil, verr
		}
		upd.Username = &name
	}

	return s.mutate(ctx, "update profile", user.ID, func(ctx context.Context, store *UserStore, target *models.User) error {
		return store.Update(ctx, target, upd)
	})
}

// ChangePassword replaces the password after checking the current one.
func (s *AuthService) ChangePassword(ctx context.Context, user *models.User, currentPassword, newPassword string) error {
	if reasons := crypto.ValidatePasswordStrength(newPassword); len(reasons) > 0 {
		verr := &ValidationError{}
		for _, r := range reasons {
			verr.Add("new_password", r)
		}
		return verr
	}

	_, err := s.mutate(ctx, "change password", user.ID, func(ctx context.Context, store *UserStore, target *models.User) error {
		if !s.hasher.Verify(currentPassword, target.PasswordHash) {
			return ErrWrongPassword
		}
		return store.ChangePassword(ctx, target, newPassword)
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "password changed", slog.Int64("user_id", user.ID))
	return nil
}

// GenerateAPIKey issues a new API key for user, replacing any previous one.
func (s *AuthService) GenerateAPIKey(ctx context.Context, user *models.User) (string, error) {
	var key string
	_, err := s.mutate(ctx, "generate api key", user.ID, func(ctx context.Context, store *UserStore, target *models.User) error {
		var err error
		key, err = store.GenerateAPIKey(ctx, target)
		return err
	})
	if err != nil {
		return "", err
	}

	s.logger.InfoContext(ctx, "api key generated", slog.Int64("user_id", user.ID))
	return key, nil
}

// ListUsers returns a page of users. Admin only.
func (s *AuthService) ListUsers(ctx context.Context, caller *models.User, filter storage.ListFilter) ([]*models.User, error) {
	if err := s.requireAdmin(ctx, caller); err != nil {
		return nil, err
	}

	verr := &ValidationError{}
	if filter.Offset < 0 {
		verr.Add("skip", "must be greater than or equal to 0")
	}
	if filter.Limit < 0 {
		verr.Add("limit", "must be greater than or equal to 0")
	}
	if filter.Limit > MaxPageSize {
		verr.Add("limit", fmt.Sprintf("must be less than or equal to %d", MaxPageSize))
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	if filter.Limit == 0 {
		filter.Limit = DefaultPageSize
	}

	var list []*models.User
	err := s.uow.WithinTx(ctx, func(ctx context.Context, users storage.UserRepository) error {
		var err error
		list, err = s.store(users).List(ctx, filter)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return list, nil
}

// UpdateRole assigns newRole to the target user. Admin only.
func (s *AuthService) UpdateRole(ctx context.Context, caller *models.User, targetID int64, newRole string) (*models.User, error) {
	if err := s.requireAdmin(ctx, caller); err != nil {
		return nil, err
	}

	role, err := rbac.Parse(strings.TrimSpace(newRole))
	if err != nil {
		return nil, err
	}

	user, err := s.mutate(ctx, "update role", targetID, func(ctx context.Context, store *UserStore, target *models.User) error {
		return store.Update(ctx, target, UserUpdate{Role: &role})
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user role updated",
		slog.Int64("admin_id", caller.ID),
		slog.Int64("user_id", targetID),
		slog.String("role", string(role)))
	return user, nil
}

// VerifyUser marks the target user's email as verified. Admin only.
func (s *AuthService) VerifyUser(ctx context.Context, caller *models.User, targetID int64) (*models.User, error) {
	if err := s.requireAdmin(ctx, caller); err != nil {
		return nil, err
	}

	verified := true
	return s.mutate(ctx, "verify user", targetID, func(ctx context.Context, store *UserStore, target *models.User) error {
		return store.Update(ctx, target, UserUpdate{IsVerified: &verified})
	})
}

// DeactivateUser soft-deletes the target user. Admin only; admins cannot
// deactivate themselves.
func (s *AuthService) DeactivateUser(ctx context.Context, caller *models.User, targetID int64) error {
	if err := s.requireAdmin(ctx, caller); err != nil {
		return err
	}
	if targetID == caller.ID {
		return ErrSelfDeactivation
	}

	_, err := s.mutate(ctx, "deactivate user", targetID, func(ctx context.Context, store *UserStore, target *models.User) error {
		return store.Deactivate(ctx, target)
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "user deactivated",
		slog.Int64("admin_id", caller.ID),
		slog.Int64("user_id", targetID))
	return nil
}

// mutate loads the user with id inside a transaction, applies fn and returns
// the updated record.
func (s *AuthService) mutate(
	ctx context.Context,
	op string,
	id int64,
	fn func(ctx context.Context, store *UserStore, target *models.User) error,
) (*models.User, error) {
	var user *models.User
	err := s.uow.WithinTx(ctx, func(ctx context.Context, users storage.UserRepository) error {
		store := s.store(users)

		target, err := store.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(ctx, store, target); err != nil {
			return err
		}
		user = target
		return nil
	})
	if err != nil {
		if isDomainError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	return user, nil
}

func (s *AuthService) requireAdmin(ctx context.Context, caller *models.User) error {
	if caller == nil || !s.roles.CanManageUsers(ctx, caller.Role) {
		attrs := []any{slog.String("required", string(rbac.RoleAdmin))}
		if caller != nil {
			attrs = append(attrs, slog.Int64("user_id", caller.ID), slog.String("role", string(caller.Role)))
		}
		s.logger.WarnContext(ctx, "permission denied", attrs...)
		return ErrInsufficientPermission
	}
	return nil
}

func subjectOf(u *models.User) token.Subject {
	return token.Subject{UserID: u.ID, Email: u.Email, Role: u.Role}
}

func isDomainError(err error) bool {
	for _, target := range []error{
		ErrValidation,
		ErrEmailTaken,
		ErrUserNotFound,
		ErrInvalidCredentials,
		ErrInvalidToken,
		ErrInvalidAPIKey,
		ErrInactiveUser,
		ErrWrongPassword,
		ErrInsufficientPermission,
		ErrInvalidRole,
		ErrSelfDeactivation,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
