package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/finauth/internal/client/auth"
)

func (c *Cli) runRegister(ctx context.Context) error {
	c.io.Println("=== Registration ===")
	c.io.Println()

	email, err := c.io.ReadInput("Email: ")
	if err != nil {
		return fmt.Errorf("failed to read email: %w", err)
	}

	username, err := c.io.ReadInput("Username: ")
	if err != nil {
		return fmt.Errorf("failed to read username: %w", err)
	}

	password, ok, err := c.passwords.lookup()
	if err != nil {
		return err
	}
	if !ok {
		if password, err = c.readNewPassword("Password: "); err != nil {
			return err
		}
	}

	c.io.Println()
	c.io.Println("Registering user...")

	user, err := c.session.Register(ctx, email, username, password)
	if err != nil {
		return err
	}

	c.io.Println()
	c.io.Println("✓ Registration successful!")
	c.io.Printf("User ID: %d\n", user.ID)
	c.io.Printf("Username: %s\n", user.Username)
	c.io.Printf("Role: %s\n", user.Role)
	c.io.Println()
	c.io.Println("Please run 'finauth login' to start a session.")

	return nil
}

func (c *Cli) runLogin(ctx context.Context, args []string) error {
	c.io.Println("=== Login ===")
	c.io.Println()

	var email string
	if len(args) > 0 {
		email = args[0]
	} else {
		var err error
		if email, err = c.io.ReadInput("Email: "); err != nil {
			return fmt.Errorf("failed to read email: %w", err)
		}
	}

	password, err := c.getPassword("Password: ")
	if err != nil {
		return err
	}

	session, err := c.session.Login(ctx, email, password)
	if err != nil {
		return err
	}

	c.io.Println()
	c.io.Println("✓ Login successful!")
	c.io.Printf("Email: %s\n", session.Email)
	c.io.Printf("Role: %s\n", session.Role)
	c.io.Printf("Access token expires: %s\n", time.Unix(session.ExpiresAt, 0).Format(time.RFC3339))

	return nil
}

func (c *Cli) runLogout(ctx context.Context) error {
	c.io.Println("=== Logout ===")

	if err := c.session.Logout(ctx); err != nil {
		if errors.Is(err, auth.ErrNotLoggedIn) {
			c.io.Println("No active session.")
			return nil
		}
		return fmt.Errorf("logout failed: %w", err)
	}

	c.io.Println("✓ Logout successful!")
	c.io.Println("Your local session has been deleted.")

	return nil
}

func (c *Cli) runStatus(ctx context.Context) error {
	c.io.Println("=== Authentication Status ===")
	c.io.Println()

	st, err := c.session.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to check authentication: %w", err)
	}

	if !st.LoggedIn {
		c.io.Println("Status: Not authenticated")
		c.io.Println()
		c.io.Println("Run 'finauth login' to authenticate.")
		return nil
	}

	c.io.Println("Status: Authenticated")
	c.io.Printf("Email: %s\n", st.Email)
	c.io.Printf("User ID: %d\n", st.UserID)
	c.io.Printf("Role: %s\n", st.Role)
	c.io.Printf("Token expires: %s\n", st.ExpiresAt.Format(time.RFC3339))

	if st.Expired {
		c.io.Println("⚠️  Access token has expired. It will be refreshed on the next request.")
	}

	return nil
}
