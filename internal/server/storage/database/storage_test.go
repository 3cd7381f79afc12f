package database

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStorage(t *testing.T) (*Storage, func()) {
	t.Helper()
	ctx := context.Background()

	// Используем in-memory database для тестов
	s, err := Open(ctx, Options{DSN: "sqlite://:memory:"})
	require.NoError(t, err)

	cleanup := func() {
		_ = s.Close()
	}

	return s, cleanup
}

func TestOpen_SQLiteMemory(t *testing.T) {
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	assert.Equal(t, DialectSQLite, s.Dialect())
	assert.Equal(t, 1, s.Stats().MaxOpenConnections)
	require.NoError(t, s.Ping(context.Background()))

	var n int
	err := s.DB().QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'users'`).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "migrations must create users table")
}

func TestOpen_FileDatabaseReopens(t *testing.T) {
	ctx := context.Background()
	dsn := fmt.Sprintf("sqlite:///%s/finauth.db", t.TempDir())

	s, err := Open(ctx, Options{DSN: dsn})
	require.NoError(t, err)

	user := newTestUser("persist@example.com")
	require.NoError(t, s.Users().Create(ctx, user))
	require.NoError(t, s.Close())

	// Повторное открытие не должно падать на уже примененных миграциях
	s, err = Open(ctx, Options{DSN: dsn})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	got, err := s.Users().GetByEmail(ctx, "persist@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
}

func TestOpen_InvalidDSN(t *testing.T) {
	_, err := Open(context.Background(), Options{DSN: "mysql://root@localhost/db"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database url scheme")
}

func TestStorage_PingAfterClose(t *testing.T) {
	s, _ := setupTestStorage(t)
	require.NoError(t, s.Close())

	err := s.Ping(context.Background())
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "database ping failed"))
}
