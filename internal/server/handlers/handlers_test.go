package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iudanet/finauth/internal/crypto"
	"github.com/iudanet/finauth/internal/models"
	"github.com/iudanet/finauth/internal/rbac"
	"github.com/iudanet/finauth/internal/server/service"
	"github.com/iudanet/finauth/internal/server/storage"
	"github.com/iudanet/finauth/internal/server/storage/database"
	"github.com/iudanet/finauth/internal/server/token"
)

const (
	testSecret = "handler-test-secret-that-is-long-enough"
	strongPass = "Str0ng!Pass"
	adminPass  = "Adm1n!Pass"
)

// setupTestLogger creates a logger for testing
func setupTestLogger() *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelError,
	}
	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler)
}

type testEnv struct {
	auth    *service.AuthService
	storage *database.Storage
	logger  *slog.Logger
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	s, err := database.Open(context.Background(), database.Options{DSN: "sqlite://:memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	codec, err := token.NewCodec(token.Config{Secret: []byte(testSecret)})
	require.NoError(t, err)

	logger := setupTestLogger()
	auth := service.NewAuthService(logger, s, crypto.NewHasher(bcrypt.MinCost), codec, rbac.NewHierarchy(logger))

	return &testEnv{auth: auth, storage: s, logger: logger}
}

// createUser inserts an active verified user directly.
func (e *testEnv) createUser(t *testing.T, email string, role rbac.Role) *models.User {
	t.Helper()
	var user *models.User
	err := e.storage.WithinTx(context.Background(), func(ctx context.Context, users storage.UserRepository) error {
		var err error
		user, err = service.NewUserStore(users, crypto.NewHasher(bcrypt.MinCost), nil).
			Create(ctx, email, "Test User", strongPass, role, true)
		return err
	})
	require.NoError(t, err)
	return user
}

// newJSONRequest builds a request with a JSON body and, optionally, a user in context.
func newJSONRequest(t *testing.T, method, target string, body any, user *models.User) *http.Request {
	t.Helper()

	var r io.Reader = http.NoBody
	if body != nil {
		if s, ok := body.(string); ok {
			r = bytes.NewBufferString(s)
		} else {
			data, err := json.Marshal(body)
			require.NoError(t, err)
			r = bytes.NewReader(data)
		}
	}

	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		req = req.WithContext(WithUser(req.Context(), user, AuthMethodBearer))
	}
	return req
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}
