package database

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect identifies the SQL backend behind a DSN.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

var placeholderRe = regexp.MustCompile(`\$\d+`)

// Rebind converts $N placeholders to the dialect's native form.
// Queries are written once in PostgreSQL style.
func (d Dialect) Rebind(query string) string {
	if d == DialectSQLite {
		return placeholderRe.ReplaceAllString(query, "?")
	}
	return query
}

func (d Dialect) driverName() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite"
}

func (d Dialect) gooseDialect() goose.Dialect {
	if d == DialectPostgres {
		return goose.DialectPostgres
	}
	return goose.DialectSQLite3
}

func (d Dialect) migrationsDir() string {
	return "migrations/" + string(d)
}

// ParseDSN returns the dialect and the driver-level data source name.
//
//	sqlite:///./finauth.db      -> ./finauth.db
//	sqlite:////var/lib/f.db     -> /var/lib/f.db
//	sqlite://:memory:           -> :memory:
//	file:test.db?cache=shared   -> unchanged
//	postgres://u:p@h:5432/db    -> unchanged
func ParseDSN(dsn string) (Dialect, string, error) {
	switch {
	case dsn == "":
		return "", "", fmt.Errorf("database url cannot be empty")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return DialectPostgres, dsn, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		path := strings.TrimPrefix(dsn, "sqlite://")
		path = strings.TrimPrefix(path, "/")
		if path == "" {
			return "", "", fmt.Errorf("sqlite database url has no path: %q", dsn)
		}
		return DialectSQLite, path, nil
	case strings.HasPrefix(dsn, "sqlite:"):
		return DialectSQLite, strings.TrimPrefix(dsn, "sqlite:"), nil
	case strings.HasPrefix(dsn, "file:"), dsn == ":memory:":
		return DialectSQLite, dsn, nil
	default:
		return "", "", fmt.Errorf("unsupported database url scheme: %q", MaskDSN(dsn))
	}
}

// MaskDSN hides the password of a URL-style DSN for logging.
func MaskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return dsn
	}
	return u.Redacted()
}

// uniqueViolation reports whether err is a unique-constraint failure and,
// if so, which column it concerns ("email", "api_key" or "").
func uniqueViolation(err error) (bool, string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return true, columnFromConstraint(pgErr.ConstraintName + " " + pgErr.Detail)
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) && liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true, columnFromConstraint(liteErr.Error())
	}

	// Проверяем на duplicate по тексту, если драйвер завернул ошибку
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return true, columnFromConstraint(err.Error())
	}

	return false, ""
}

func columnFromConstraint(s string) string {
	switch {
	case strings.Contains(s, "api_key"):
		return "api_key"
	case strings.Contains(s, "email"):
		return "email"
	default:
		return ""
	}
}
