// Package database implements the user store on top of database/sql.
// SQLite (modernc) serves development and tests, PostgreSQL (pgx) serves
// production; the schema is managed by embedded goose migrations.
package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/pressly/goose/v3"

	"github.com/iudanet/finauth/internal/dbx"
	"github.com/iudanet/finauth/internal/server/storage"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var embedMigrations embed.FS

// Defaults for the PostgreSQL connection pool.
const (
	DefaultPoolSize    = 5
	DefaultMaxOverflow = 10
	DefaultPoolRecycle = time.Hour
)

// Options configures Open.
type Options struct {
	DSN string
	// PoolSize connections are kept idle; up to PoolSize+MaxOverflow may be open.
	PoolSize    int
	MaxOverflow int
	// PoolRecycle closes connections older than this. Zero disables recycling.
	PoolRecycle time.Duration
}

// Storage represents the SQL storage implementation
type Storage struct {
	db      *sql.DB
	dialect Dialect
}

var (
	_ storage.UnitOfWork = (*Storage)(nil)
	_ storage.Pinger     = (*Storage)(nil)
)

// Open connects to the database named by opts.DSN, configures the pool and
// applies pending migrations.
func Open(ctx context.Context, opts Options) (*Storage, error) {
	dialect, dsn, err := ParseDSN(opts.DSN)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	configurePool(db, dialect, opts)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if dialect == DialectSQLite {
		if err := applyPragmas(ctx, db, dsn); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	s := &Storage{db: db, dialect: dialect}

	// Запускаем миграции
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

func configurePool(db *sql.DB, dialect Dialect, opts Options) {
	if dialect == DialectSQLite {
		// SQLite допускает только одного писателя; in-memory база живет,
		// пока жив единственный connection, поэтому без recycle.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		return
	}

	poolSize := opts.PoolSize
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	overflow := opts.MaxOverflow
	if overflow < 0 {
		overflow = 0
	}

	db.SetMaxIdleConns(poolSize)
	db.SetMaxOpenConns(poolSize + overflow)
	db.SetConnMaxLifetime(opts.PoolRecycle)
}

func applyPragmas(ctx context.Context, db *sql.DB, dsn string) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	}
	// WAL не поддерживается для in-memory баз
	if !isMemoryDSN(dsn) {
		pragmas = append(pragmas,
			"PRAGMA journal_mode = WAL;",
			"PRAGMA synchronous = NORMAL;",
		)
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}
	return nil
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
}

// migrate выполняет миграции из embedded FS для текущего диалекта
func (s *Storage) migrate(ctx context.Context) error {
	fsys, err := fs.Sub(embedMigrations, s.dialect.migrationsDir())
	if err != nil {
		return fmt.Errorf("migrations for %s: %w", s.dialect, err)
	}

	provider, err := goose.NewProvider(s.dialect.gooseDialect(), s.db, fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("goose up failed: %w", err)
	}

	return nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// Ping runs SELECT 1.
func (s *Storage) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// WithinTx runs fn in a single transaction with a transaction-bound repository.
func (s *Storage) WithinTx(ctx context.Context, fn func(ctx context.Context, users storage.UserRepository) error) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, NewUserRepository(tx, s.dialect))
	})
}

// Users returns a repository bound to the pool, outside any transaction.
func (s *Storage) Users() storage.UserRepository {
	return NewUserRepository(s.db, s.dialect)
}

// Dialect returns the backend type.
func (s *Storage) Dialect() Dialect {
	return s.dialect
}

// Stats exposes pool statistics.
func (s *Storage) Stats() sql.DBStats {
	return s.db.Stats()
}

// DB returns the underlying database connection for testing purposes
func (s *Storage) DB() *sql.DB {
	return s.db
}
