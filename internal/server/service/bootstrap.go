package service

import (
	"context"

	"github.com/iudanet/finauth/internal/crypto"
	"github.com/iudanet/finauth/internal/models"
	"github.com/iudanet/finauth/internal/rbac"
	"github.com/iudanet/finauth/internal/server/storage"
)

// BootstrapAdmin creates a verified admin account directly in storage.
// The input passes the same checks as registration; an existing email,
// active or not, yields ErrEmailTaken.
func BootstrapAdmin(ctx context.Context, uow storage.UnitOfWork, hasher *crypto.Hasher, email, username, password string) (*models.User, error) {
	name, err := ValidateRegistration(email, username, password)
	if err != nil {
		return nil, err
	}

	var user *models.User
	err = uow.WithinTx(ctx, func(ctx context.Context, users storage.UserRepository) error {
		var err error
		user, err = NewUserStore(users, hasher, nil).Create(ctx, email, name, password, rbac.RoleAdmin, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}
