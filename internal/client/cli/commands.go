package cli

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownCommand is returned by Run for an unrecognized command.
var ErrUnknownCommand = errors.New("unknown command")

// Run executes command with its arguments.
func (c *Cli) Run(ctx context.Context, command string, args []string) error {
	switch command {
	case "register":
		return c.runRegister(ctx)
	case "login":
		return c.runLogin(ctx, args)
	case "logout":
		return c.runLogout(ctx)
	case "status":
		return c.runStatus(ctx)
	case "me":
		return c.runMe(ctx)
	case "rename":
		return c.runRename(ctx, args)
	case "passwd":
		return c.runPasswd(ctx)
	case "api-key":
		return c.runAPIKey(ctx)
	case "users":
		return c.runUsers(ctx, args)
	case "set-role":
		return c.runSetRole(ctx, args)
	case "verify":
		return c.runVerify(ctx, args)
	case "deactivate":
		return c.runDeactivate(ctx, args)
	case "help":
		PrintUsage(c.io)
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
}
