package cli

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/iudanet/finauth/internal/client/api"
	"github.com/iudanet/finauth/internal/rbac"
	pkgapi "github.com/iudanet/finauth/pkg/api"
)

func (c *Cli) runUsers(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("users", flag.ContinueOnError)
	fs.SetOutput(c.io)
	skip := fs.Int("skip", 0, "number of users to skip")
	limit := fs.Int("limit", 0, "page size (server default when 0)")
	all := fs.Bool("all", false, "include deactivated users")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var users []pkgapi.UserResponse
	err := c.session.Do(ctx, func(creds api.Credentials) error {
		var err error
		users, err = c.apiClient.ListUsers(ctx, creds, *skip, *limit, *all)
		return err
	})
	if err != nil {
		return err
	}

	if len(users) == 0 {
		c.io.Println("No users found.")
		return nil
	}

	tw := tabwriter.NewWriter(c.io, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEMAIL\tUSERNAME\tROLE\tACTIVE\tVERIFIED")
	for _, u := range users {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%t\t%t\n", u.ID, u.Email, u.Username, u.Role, u.IsActive, u.IsVerified)
	}
	return tw.Flush()
}

func (c *Cli) runSetRole(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: finauth set-role ID ROLE")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	role, err := rbac.Parse(args[1])
	if err != nil {
		return err
	}

	var user *pkgapi.UserResponse
	err = c.session.Do(ctx, func(creds api.Credentials) error {
		var err error
		user, err = c.apiClient.UpdateRole(ctx, creds, id, string(role))
		return err
	})
	if err != nil {
		return err
	}

	c.io.Printf("✓ User %d is now %s\n", user.ID, user.Role)
	c.io.Println("  The user must log in again for the new role to take effect.")
	return nil
}

func (c *Cli) runVerify(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: finauth verify ID")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	var user *pkgapi.UserResponse
	err = c.session.Do(ctx, func(creds api.Credentials) error {
		var err error
		user, err = c.apiClient.VerifyUser(ctx, creds, id)
		return err
	})
	if err != nil {
		return err
	}

	c.io.Printf("✓ User %d (%s) verified\n", user.ID, user.Email)
	return nil
}

func (c *Cli) runDeactivate(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: finauth deactivate ID")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	var msg string
	err = c.session.Do(ctx, func(creds api.Credentials) error {
		var err error
		msg, err = c.apiClient.DeactivateUser(ctx, creds, id)
		return err
	})
	if err != nil {
		return err
	}

	c.io.Printf("✓ %s\n", msg)
	return nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id: %q", s)
	}
	return id, nil
}

func (c *Cli) printUser(u *pkgapi.UserResponse) {
	c.io.Printf("ID:        %d\n", u.ID)
	c.io.Printf("Email:     %s\n", u.Email)
	c.io.Printf("Username:  %s\n", u.Username)
	c.io.Printf("Role:      %s\n", u.Role)
	c.io.Printf("Active:    %t\n", u.IsActive)
	c.io.Printf("Verified:  %t\n", u.IsVerified)
	c.io.Printf("Created:   %s\n", u.CreatedAt.Format("2006-01-02 15:04:05"))
	if u.LastLogin != nil {
		c.io.Printf("Last login: %s\n", u.LastLogin.Format("2006-01-02 15:04:05"))
	}
}
