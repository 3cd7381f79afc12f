package cli

import (
	"context"
	"fmt"

	"github.com/iudanet/finauth/internal/client/api"
	pkgapi "github.com/iudanet/finauth/pkg/api"
)

func (c *Cli) runMe(ctx context.Context) error {
	var me *pkgapi.UserResponse
	err := c.session.Do(ctx, func(creds api.Credentials) error {
		var err error
		me, err = c.apiClient.Me(ctx, creds)
		return err
	})
	if err != nil {
		return err
	}

	c.printUser(me)
	return nil
}

func (c *Cli) runRename(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: finauth rename USERNAME")
	}
	username := args[0]

	var me *pkgapi.UserResponse
	err := c.session.Do(ctx, func(creds api.Credentials) error {
		var err error
		me, err = c.apiClient.UpdateMe(ctx, creds, pkgapi.UpdateProfileRequest{Username: &username})
		return err
	})
	if err != nil {
		return err
	}

	c.io.Println("✓ Profile updated")
	c.printUser(me)
	return nil
}

func (c *Cli) runPasswd(ctx context.Context) error {
	current, err := c.getPassword("Current password: ")
	if err != nil {
		return err
	}

	next, err := c.readNewPassword("New password: ")
	if err != nil {
		return err
	}

	err = c.session.Do(ctx, func(creds api.Credentials) error {
		return c.apiClient.ChangePassword(ctx, creds, pkgapi.ChangePasswordRequest{
			CurrentPassword: current,
			NewPassword:     next,
		})
	})
	if err != nil {
		return err
	}

	c.io.Println("✓ Password changed successfully")
	return nil
}

func (c *Cli) runAPIKey(ctx context.Context) error {
	var key string
	err := c.session.Do(ctx, func(creds api.Credentials) error {
		var err error
		key, err = c.apiClient.GenerateAPIKey(ctx, creds)
		return err
	})
	if err != nil {
		return err
	}

	c.io.Println("✓ API key generated")
	c.io.Println()
	c.io.Println(key)
	c.io.Println()
	c.io.Printf("⚠️  The key is shown only once. Send it in the %s header.\n", pkgapi.APIKeyHeader)
	c.io.Println("   Any previously issued key no longer works.")
	return nil
}
