// Command bootstrap creates the first admin account directly in the database.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/iudanet/finauth/internal/client/iocli"
	"github.com/iudanet/finauth/internal/config"
	"github.com/iudanet/finauth/internal/crypto"
	"github.com/iudanet/finauth/internal/logging"
	"github.com/iudanet/finauth/internal/server/service"
	"github.com/iudanet/finauth/internal/server/storage/database"
)

type options struct {
	email        string
	username     string
	password     string
	passwordFile string
	databaseURL  string
}

func main() {
	if err := run(os.Args[1:], iocli.NewStdio()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, console iocli.IO) error {
	var opts options
	flags := flag.NewFlagSet("finauth-bootstrap", flag.ContinueOnError)
	flags.StringVar(&opts.email, "email", "", "admin email")
	flags.StringVar(&opts.username, "username", "", "admin display name")
	flags.StringVar(&opts.password, "password", "", "admin password (not recommended, use -password-file)")
	flags.StringVar(&opts.passwordFile, "password-file", "", "path to file containing the admin password")
	flags.StringVar(&opts.databaseURL, "database", "", "database URL (default: DATABASE_URL)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	// Конфигурация сервера: .env, yaml и переменные окружения
	cfg, err := config.Load(nil)
	if err != nil {
		return err
	}
	if opts.databaseURL != "" {
		cfg.DatabaseURL = opts.databaseURL
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(logging.Config{Output: os.Stderr, Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if err := prompt(console, &opts); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	db, err := database.Open(ctx, database.Options{DSN: cfg.DatabaseURL, PoolSize: 1})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	admin, err := service.BootstrapAdmin(ctx, db, crypto.NewHasher(cfg.BcryptCost), opts.email, opts.username, opts.password)
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			return fmt.Errorf("invalid input:\n  %s", strings.Join(verr.Details(), "\n  "))
		}
		return err
	}

	logger.Info("admin account created",
		slog.Int64("user_id", admin.ID),
		slog.String("email", admin.Email),
		slog.String("database", cfg.MaskedDSN()))
	console.Printf("✓ Admin %s (id %d) created\n", admin.Email, admin.ID)
	return nil
}

// prompt fills in whatever was not given on the command line.
func prompt(console iocli.IO, opts *options) error {
	var err error

	if opts.email == "" {
		if opts.email, err = console.ReadInput("Admin email: "); err != nil {
			return fmt.Errorf("failed to read email: %w", err)
		}
	}

	if opts.username == "" {
		if opts.username, err = console.ReadInput("Admin username: "); err != nil {
			return fmt.Errorf("failed to read username: %w", err)
		}
	}

	if opts.passwordFile != "" {
		content, err := os.ReadFile(opts.passwordFile)
		if err != nil {
			return fmt.Errorf("failed to read password file: %w", err)
		}
		opts.password = strings.TrimSpace(string(content))
	}

	if opts.password == "" {
		if opts.password, err = console.ReadPassword("Admin password: "); err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		confirm, err := console.ReadPassword("Confirm password: ")
		if err != nil {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}
		if opts.password != confirm {
			return fmt.Errorf("passwords do not match")
		}
	}

	return nil
}
