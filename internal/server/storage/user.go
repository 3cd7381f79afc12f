package storage

import (
	"context"
	"time"

	"github.com/iudanet/finauth/internal/models"
	"github.com/iudanet/finauth/internal/rbac"
)

// ListFilter selects a page of users ordered by id ascending.
type ListFilter struct {
	Offset          int
	Limit           int
	IncludeInactive bool
}

// UserRepository defines user persistence operations.
// Implementations are bound to a single connection or transaction.
type UserRepository interface {
	// Create inserts user and sets user.ID.
	// Returns ErrEmailTaken if the email already exists, including inactive rows.
	Create(ctx context.Context, user *models.User) error

	// GetByEmail returns ErrUserNotFound if no row matches.
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// GetByID returns ErrUserNotFound if no row matches.
	GetByID(ctx context.Context, id int64) (*models.User, error)

	// GetByAPIKey only matches active users.
	GetByAPIKey(ctx context.Context, apiKey string) (*models.User, error)

	// List returns a page of users ordered by id.
	List(ctx context.Context, filter ListFilter) ([]*models.User, error)

	// UpdateProfile changes the display name.
	UpdateProfile(ctx context.Context, id int64, username string) error

	// UpdateRole changes the role.
	UpdateRole(ctx context.Context, id int64, role rbac.Role) error

	// SetVerified marks the email as verified.
	SetVerified(ctx context.Context, id int64, verified bool) error

	// UpdateLastLogin updates the last login timestamp.
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error

	// SetPasswordHash replaces the stored password hash.
	SetPasswordHash(ctx context.Context, id int64, hash string) error

	// SetAPIKey replaces the API key. Returns ErrAPIKeyConflict on collision.
	SetAPIKey(ctx context.Context, id int64, apiKey string) error

	// Deactivate sets is_active=false. Deactivating an inactive user is not an error.
	Deactivate(ctx context.Context, id int64) error

	// Count returns the number of users, optionally including inactive ones.
	Count(ctx context.Context, includeInactive bool) (int, error)
}

// UnitOfWork runs fn inside one transaction. The repository passed to fn is
// only valid for the duration of the call.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, users UserRepository) error) error
}

// Pinger checks storage connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}
