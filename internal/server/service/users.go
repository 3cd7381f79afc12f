package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/finauth/internal/crypto"
	"github.com/iudanet/finauth/internal/models"
	"github.com/iudanet/finauth/internal/rbac"
	"github.com/iudanet/finauth/internal/server/storage"
)

// UserUpdate lists the fields Update may change. Nil fields are left untouched.
type UserUpdate struct {
	Username   *string
	Role       *rbac.Role
	IsVerified *bool
}

// UserStore applies the user account rules on top of a repository.
// It is bound to the repository's transaction.
type UserStore struct {
	repo   storage.UserRepository
	hasher *crypto.Hasher
	now    func() time.Time
}

// NewUserStore binds a UserStore to repo.
func NewUserStore(repo storage.UserRepository, hasher *crypto.Hasher, now func() time.Time) *UserStore {
	if now == nil {
		now = time.Now
	}
	return &UserStore{repo: repo, hasher: hasher, now: now}
}

// Create hashes password and inserts an active user.
// The email pre-check gives a clean error on the common path; the unique
// index catches concurrent registrations.
func (s *UserStore) Create(ctx context.Context, email, username, password string, role rbac.Role, verified bool) (*models.User, error) {
	if !rbac.Valid(role) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, storage.ErrUserNotFound) {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		IsVerified:   verified,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// FindByEmail returns active and inactive users alike.
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.repo.GetByEmail(ctx, email)
}

// FindByID returns the user with id.
func (s *UserStore) FindByID(ctx context.Context, id int64) (*models.User, error) {
	return s.repo.GetByID(ctx, id)
}

// FindByAPIKey only resolves active users.
func (s *UserStore) FindByAPIKey(ctx context.Context, key string) (*models.User, error) {
	return s.repo.GetByAPIKey(ctx, key)
}

// ListActive returns active users ordered by id.
func (s *UserStore) ListActive(ctx context.Context, offset, limit int) ([]*models.User, error) {
	return s.repo.List(ctx, storage.ListFilter{Offset: offset, Limit: limit})
}

// List returns a page of users according to filter.
func (s *UserStore) List(ctx context.Context, filter storage.ListFilter) ([]*models.User, error) {
	return s.repo.List(ctx, filter)
}

// Update applies the allowed field changes to user and persists them.
// Password and id are never changed here.
func (s *UserStore) Update(ctx context.Context, user *models.User, upd UserUpdate) error {
	if upd.Username != nil {
		if err := s.repo.UpdateProfile(ctx, user.ID, *upd.Username); err != nil {
			return err
		}
		user.Username = *upd.Username
	}
	if upd.Role != nil {
		if !rbac.Valid(*upd.Role) {
			return fmt.Errorf("%w: %q", ErrInvalidRole, *upd.Role)
		}
		if err := s.repo.UpdateRole(ctx, user.ID, *upd.Role); err != nil {
			return err
		}
		user.Role = *upd.Role
	}
	if upd.IsVerified != nil {
		if err := s.repo.SetVerified(ctx, user.ID, *upd.IsVerified); err != nil {
			return err
		}
		user.IsVerified = *upd.IsVerified
	}
	return nil
}

// UpdateLastLogin stamps user with the current time.
func (s *UserStore) UpdateLastLogin(ctx context.Context, user *models.User) error {
	now := s.now().UTC()
	if err := s.repo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return err
	}
	user.LastLogin = &now
	return nil
}

// Deactivate soft-deletes user. Repeating it is harmless.
func (s *UserStore) Deactivate(ctx context.Context, user *models.User) error {
	if err := s.repo.Deactivate(ctx, user.ID); err != nil {
		return err
	}
	user.IsActive = false
	return nil
}

// ChangePassword re-hashes and stores the new password.
func (s *UserStore) ChangePassword(ctx context.Context, user *models.User, password string) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	if err := s.repo.SetPasswordHash(ctx, user.ID, hash); err != nil {
		return err
	}
	user.PasswordHash = hash
	return nil
}

// GenerateAPIKey replaces any previous key of user with a fresh one.
func (s *UserStore) GenerateAPIKey(ctx context.Context, user *models.User) (string, error) {
	key, err := crypto.GenerateAPIKey()
	if err != nil {
		return "", err
	}
	if err := s.repo.SetAPIKey(ctx, user.ID, key); err != nil {
		return "", err
	}
	user.APIKey = &key
	return key, nil
}
