package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/finauth/internal/dbx"
	"github.com/iudanet/finauth/internal/models"
	"github.com/iudanet/finauth/internal/rbac"
	"github.com/iudanet/finauth/internal/server/storage"
)

const userColumns = `id, email, username, password_hash, role, is_active, is_verified, created_at, last_login, api_key`

type userRepo struct {
	db      dbx.DBTX
	dialect Dialect
}

var _ storage.UserRepository = (*userRepo)(nil)

// NewUserRepository returns a repository bound to db, which may be a pool or a transaction.
func NewUserRepository(db dbx.DBTX, d Dialect) storage.UserRepository {
	return &userRepo{db: db, dialect: d}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	var (
		role      string
		lastLogin sql.NullTime
		apiKey    sql.NullString
	)

	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.PasswordHash,
		&role,
		&user.IsActive,
		&user.IsVerified,
		&user.CreatedAt,
		&lastLogin,
		&apiKey,
	)
	if err != nil {
		return nil, err
	}

	user.Role = rbac.Role(role)
	user.CreatedAt = user.CreatedAt.UTC()
	if lastLogin.Valid {
		t := lastLogin.Time.UTC()
		user.LastLogin = &t
	}
	if apiKey.Valid {
		user.APIKey = &apiKey.String
	}

	return user, nil
}

// Create inserts a new user and sets user.ID
func (r *userRepo) Create(ctx context.Context, user *models.User) error {
	query := r.dialect.Rebind(`
		INSERT INTO users (email, username, password_hash, role, is_active, is_verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`)

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	user.CreatedAt = user.CreatedAt.UTC()

	err := r.db.QueryRowContext(ctx, query,
		user.Email,
		user.Username,
		user.PasswordHash,
		string(user.Role),
		user.IsActive,
		user.IsVerified,
		user.CreatedAt,
	).Scan(&user.ID)
	if err != nil {
		if ok, _ := uniqueViolation(err); ok {
			return storage.ErrEmailTaken
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	return nil
}

func (r *userRepo) getOne(ctx context.Context, where string, args ...any) (*models.User, error) {
	query := r.dialect.Rebind(`SELECT ` + userColumns + ` FROM users WHERE ` + where)

	user, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetByEmail retrieves user by email regardless of is_active
func (r *userRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, `email = $1`, email)
}

// GetByID retrieves user by ID
func (r *userRepo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return r.getOne(ctx, `id = $1`, id)
}

// GetByAPIKey retrieves an active user by API key
func (r *userRepo) GetByAPIKey(ctx context.Context, apiKey string) (*models.User, error) {
	if apiKey == "" {
		return nil, storage.ErrUserNotFound
	}
	return r.getOne(ctx, `api_key = $1 AND is_active = $2`, apiKey, true)
}

// List returns a page of users ordered by id ascending
func (r *userRepo) List(ctx context.Context, filter storage.ListFilter) ([]*models.User, error) {
	var (
		query string
		args  []any
	)
	if filter.IncludeInactive {
		query = `SELECT ` + userColumns + ` FROM users ORDER BY id ASC LIMIT $1 OFFSET $2`
		args = []any{filter.Limit, filter.Offset}
	} else {
		query = `SELECT ` + userColumns + ` FROM users WHERE is_active = $1 ORDER BY id ASC LIMIT $2 OFFSET $3`
		args = []any{true, filter.Limit, filter.Offset}
	}

	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]*models.User, 0, filter.Limit)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}

	return users, nil
}

// exec runs an UPDATE by id and maps zero affected rows to ErrUserNotFound
func (r *userRepo) exec(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, r.dialect.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

// UpdateProfile changes the username
func (r *userRepo) UpdateProfile(ctx context.Context, id int64, username string) error {
	return r.exec(ctx, "update profile", `UPDATE users SET username = $1 WHERE id = $2`, username, id)
}

// UpdateRole changes the role
func (r *userRepo) UpdateRole(ctx context.Context, id int64, role rbac.Role) error {
	return r.exec(ctx, "update role", `UPDATE users SET role = $1 WHERE id = $2`, string(role), id)
}

// SetVerified sets the verification flag
func (r *userRepo) SetVerified(ctx context.Context, id int64, verified bool) error {
	return r.exec(ctx, "set verified", `UPDATE users SET is_verified = $1 WHERE id = $2`, verified, id)
}

// UpdateLastLogin updates the last login timestamp
func (r *userRepo) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	return r.exec(ctx, "update last login", `UPDATE users SET last_login = $1 WHERE id = $2`, at.UTC(), id)
}

// SetPasswordHash replaces the password hash
func (r *userRepo) SetPasswordHash(ctx context.Context, id int64, hash string) error {
	return r.exec(ctx, "set password hash", `UPDATE users SET password_hash = $1 WHERE id = $2`, hash, id)
}

// SetAPIKey replaces the API key
func (r *userRepo) SetAPIKey(ctx context.Context, id int64, apiKey string) error {
	err := r.exec(ctx, "set api key", `UPDATE users SET api_key = $1 WHERE id = $2`, apiKey, id)
	if err != nil && !errors.Is(err, storage.ErrUserNotFound) {
		if ok, _ := uniqueViolation(err); ok {
			return storage.ErrAPIKeyConflict
		}
	}
	return err
}

// Deactivate performs a soft delete. The row is kept so the email stays reserved.
func (r *userRepo) Deactivate(ctx context.Context, id int64) error {
	return r.exec(ctx, "deactivate user", `UPDATE users SET is_active = $1 WHERE id = $2`, false, id)
}

// Count returns the number of users
func (r *userRepo) Count(ctx context.Context, includeInactive bool) (int, error) {
	query := `SELECT COUNT(*) FROM users`
	var args []any
	if !includeInactive {
		query += ` WHERE is_active = $1`
		args = append(args, true)
	}

	var n int
	if err := r.db.QueryRowContext(ctx, r.dialect.Rebind(query), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}
