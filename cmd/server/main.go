package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iudanet/finauth/internal/config"
	"github.com/iudanet/finauth/internal/crypto"
	"github.com/iudanet/finauth/internal/logging"
	"github.com/iudanet/finauth/internal/rbac"
	"github.com/iudanet/finauth/internal/server"
	"github.com/iudanet/finauth/internal/server/metrics"
	"github.com/iudanet/finauth/internal/server/middleware"
	"github.com/iudanet/finauth/internal/server/revocation"
	"github.com/iudanet/finauth/internal/server/service"
	"github.com/iudanet/finauth/internal/server/storage/database"
	"github.com/iudanet/finauth/internal/server/token"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load(args)
	if err != nil {
		return err
	}

	// Show version and exit if requested
	if cfg.ShowVersion {
		printVersion()
		return nil
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting finauth server",
		slog.String("version", Version),
		slog.String("env", cfg.Env),
		slog.String("database", cfg.MaskedDSN()),
		slog.String("addr", cfg.Addr()))

	if cfg.InsecureSecret() {
		logger.Warn("SECRET_KEY is the placeholder or too short; set a random secret of at least 32 characters")
	}

	// База данных + миграции
	db, err := database.Open(ctx, database.Options{
		DSN:         cfg.DatabaseURL,
		PoolSize:    cfg.DBPoolSize,
		MaxOverflow: cfg.DBMaxOverflow,
		PoolRecycle: cfg.DBPoolRecycle,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()
	logger.Info("database ready", slog.String("dialect", string(db.Dialect())))

	if n, err := db.Users().Count(ctx, true); err != nil {
		logger.Warn("failed to count users", slog.Any("error", err))
	} else if n == 0 {
		logger.Warn("no user accounts yet, create the first admin with finauth-bootstrap")
	}

	codec, err := token.NewCodec(token.Config{
		Secret:     []byte(cfg.SecretKey),
		Algorithm:  cfg.Algorithm,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	})
	if err != nil {
		return err
	}

	m := metrics.New()
	opts := []service.Option{service.WithEventRecorder(m)}

	// Redis denylist опционален: без него refresh токены не отзываются
	if cfg.RedisURL != "" {
		client, err := revocation.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()

		opts = append(opts, service.WithDenylist(revocation.NewRedisDenylist(client, revocation.DefaultKeyPrefix)))
		logger.Info("refresh token denylist enabled")
	} else {
		logger.Info("REDIS_URL not set, refresh token revocation disabled")
	}

	auth := service.NewAuthService(logger, db, crypto.NewHasher(cfg.BcryptCost), codec, rbac.NewHierarchy(logger), opts...)

	var limiter *middleware.RateLimiter
	if cfg.RateLimitPerMinute > 0 {
		// формат проверен в cfg.Validate
		proxies, _ := cfg.TrustedProxyPrefixes()
		limiter = middleware.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute, logger,
			middleware.WithTrustedProxies(proxies))
		defer limiter.Stop()
	}

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: server.NewRouter(server.Deps{
			Logger:      logger,
			Auth:        auth,
			DB:          db,
			Metrics:     m,
			Limiter:     limiter,
			Version:     Version,
			CORSOrigins: cfg.CORSOrigins,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func printVersion() {
	fmt.Printf("finauth server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
