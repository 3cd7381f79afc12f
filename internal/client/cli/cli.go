// Package cli implements the finauth command-line client.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/iudanet/finauth/internal/client/api"
	"github.com/iudanet/finauth/internal/client/auth"
	"github.com/iudanet/finauth/internal/client/iocli"
)

// PasswordEnv is checked before any other password source.
const PasswordEnv = "FINAUTH_PASSWORD"

// Passwords are the non-interactive password sources given on the command line.
type Passwords struct {
	FromFile string
	FromArgs string
}

// lookup returns the password from env, file or args, in that order.
// ok is false when none of them is set.
func (p Passwords) lookup() (password string, ok bool, err error) {
	// Priority 1: Environment variable
	if envPassword := os.Getenv(PasswordEnv); envPassword != "" {
		return envPassword, true, nil
	}

	// Priority 2: File
	if p.FromFile != "" {
		content, err := os.ReadFile(p.FromFile)
		if err != nil {
			return "", false, fmt.Errorf("failed to read password file: %w", err)
		}
		// Убираем trailing newline/whitespace
		password := strings.TrimSpace(string(content))
		if password == "" {
			return "", false, fmt.Errorf("password file is empty")
		}
		return password, true, nil
	}

	// Priority 3: CLI parameter
	if p.FromArgs != "" {
		return p.FromArgs, true, nil
	}

	return "", false, nil
}

// Cli runs client commands against a finauth server.
type Cli struct {
	io        iocli.IO
	apiClient *api.Client
	session   *auth.Service
	passwords Passwords
}

// New creates a Cli.
func New(console iocli.IO, apiClient *api.Client, session *auth.Service, passwords Passwords) *Cli {
	return &Cli{
		io:        console,
		apiClient: apiClient,
		session:   session,
		passwords: passwords,
	}
}

// getPassword retrieves the password with priority:
// 1. Environment variable FINAUTH_PASSWORD
// 2. Password file
// 3. Command-line parameter
// 4. Interactive prompt (fallback)
func (c *Cli) getPassword(prompt string) (string, error) {
	password, ok, err := c.passwords.lookup()
	if err != nil {
		return "", err
	}
	if ok {
		return password, nil
	}

	password, err = c.io.ReadPassword(prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	return password, nil
}

// readNewPassword prompts twice for a new password.
func (c *Cli) readNewPassword(prompt string) (string, error) {
	password, err := c.io.ReadPassword(prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	confirm, err := c.io.ReadPassword("Confirm password: ")
	if err != nil {
		return "", fmt.Errorf("failed to read confirmation: %w", err)
	}
	if password != confirm {
		return "", fmt.Errorf("passwords do not match")
	}
	return password, nil
}

// PrintUsage writes the help text to w.
func PrintUsage(w io.Writer) {
	fmt.Fprint(w, `finauth client

Usage:
  finauth [OPTIONS] COMMAND [ARGS]

Options:
  -version               Show version information
  -server URL            Server URL (default: http://localhost:8000)
  -db PATH               Path to local session database (default: finauth-client.db)
  -password PASSWORD     Password (not recommended, use env var or file)
  -password-file PATH    Path to file containing the password

Password priority (highest to lowest):
  1. FINAUTH_PASSWORD environment variable
  2. -password-file
  3. -password
  4. Interactive prompt

Commands:
  register                    Create a new account
  login [EMAIL]               Log in and save the session locally
  logout                      Revoke the session on the server and delete it locally
  status                      Show the local session
  me                          Show your profile
  rename USERNAME             Change your username
  passwd                      Change your password
  api-key                     Generate a new API key (replaces the old one)
  users [-skip N] [-limit N] [-all]
                              List users (admin)
  set-role ID ROLE            Set a user's role: viewer, analyst, cfo, admin (admin)
  verify ID                   Mark a user's email as verified (admin)
  deactivate ID               Deactivate a user (admin)

Examples:
  finauth register
  finauth login ann@example.com
  FINAUTH_PASSWORD='S3cret!pass' finauth login ann@example.com
  finauth -server https://auth.example.com users -all
  finauth set-role 12 analyst
`)
}
