package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iudanet/finauth/internal/crypto"
	"github.com/iudanet/finauth/internal/rbac"
	"github.com/iudanet/finauth/internal/server/metrics"
	"github.com/iudanet/finauth/internal/server/middleware"
	"github.com/iudanet/finauth/internal/server/service"
	"github.com/iudanet/finauth/internal/server/storage"
	"github.com/iudanet/finauth/internal/server/storage/database"
	"github.com/iudanet/finauth/internal/server/token"
	"github.com/iudanet/finauth/pkg/api"
)

const (
	testSecret = "router-test-secret-that-is-long-enough"
	strongPass = "Str0ng!Pass"
	adminPass  = "Adm1n!Pass"
)

type testServer struct {
	*httptest.Server
	storage *database.Storage
	hasher  *crypto.Hasher
}

func setupServer(t *testing.T, limiter *middleware.RateLimiter) *testServer {
	t.Helper()

	s, err := database.Open(context.Background(), database.Options{DSN: "sqlite://:memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	codec, err := token.NewCodec(token.Config{Secret: []byte(testSecret)})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	hasher := crypto.NewHasher(bcrypt.MinCost)

	auth := service.NewAuthService(logger, s, hasher, codec, rbac.NewHierarchy(logger),
		service.WithEventRecorder(m))

	srv := httptest.NewServer(NewRouter(Deps{
		Logger:      logger,
		Auth:        auth,
		DB:          s,
		Metrics:     m,
		Limiter:     limiter,
		Version:     "test",
		CORSOrigins: []string{"http://localhost:3000"},
	}))
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, storage: s, hasher: hasher}
}

func (s *testServer) createAdmin(t *testing.T) {
	t.Helper()
	err := s.storage.WithinTx(context.Background(), func(ctx context.Context, users storage.UserRepository) error {
		_, err := service.NewUserStore(users, s.hasher, nil).
			Create(ctx, "admin@example.com", "Admin", adminPass, rbac.RoleAdmin, true)
		return err
	})
	require.NoError(t, err)
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *http.Response {
	t.Helper()

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(t.Context(), method, s.URL+path, r)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func bearer(tok string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + tok}
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (s *testServer) login(t *testing.T, email, password string) api.TokenResponse {
	t.Helper()
	resp := s.do(t, http.MethodPost, "/auth/login", api.LoginRequest{Email: email, Password: password}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decode[api.TokenResponse](t, resp)
}

func TestRouter_RoleChangeRequiresRelogin(t *testing.T) {
	srv := setupServer(t, nil)
	srv.createAdmin(t)

	resp := srv.do(t, http.MethodPost, "/auth/register", api.RegisterRequest{
		Email: "alice@example.com", Username: "Alice", Password: strongPass,
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	alice := decode[api.UserResponse](t, resp)

	userTokens := srv.login(t, "alice@example.com", strongPass)

	resp = srv.do(t, http.MethodGet, "/auth/me", nil, bearer(userTokens.AccessToken))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "viewer", decode[api.UserResponse](t, resp).Role)

	adminTokens := srv.login(t, "admin@example.com", adminPass)
	resp = srv.do(t, http.MethodPut, "/auth/users/"+strconv.FormatInt(alice.ID, 10)+"/role",
		api.RoleUpdateRequest{Role: "cfo"}, bearer(adminTokens.AccessToken))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	userTokens = srv.login(t, "alice@example.com", strongPass)
	resp = srv.do(t, http.MethodGet, "/auth/me", nil, bearer(userTokens.AccessToken))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	me := decode[api.UserResponse](t, resp)
	assert.Equal(t, "cfo", me.Role)
	assert.NotNil(t, me.LastLogin)
}

func TestRouter_AdminRoutesRequireAdmin(t *testing.T) {
	srv := setupServer(t, nil)
	srv.createAdmin(t)

	resp := srv.do(t, http.MethodPost, "/auth/register", api.RegisterRequest{
		Email: "bob@example.com", Username: "Bob", Password: strongPass,
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	tokens := srv.login(t, "bob@example.com", strongPass)

	resp = srv.do(t, http.MethodGet, "/auth/users", nil, bearer(tokens.AccessToken))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = srv.do(t, http.MethodGet, "/auth/users", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Bearer", resp.Header.Get("WWW-Authenticate"))

	adminTokens := srv.login(t, "admin@example.com", adminPass)
	resp = srv.do(t, http.MethodGet, "/auth/users?limit=10", nil, bearer(adminTokens.AccessToken))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]api.UserResponse](t, resp), 2)
}

func TestRouter_APIKey(t *testing.T) {
	srv := setupServer(t, nil)
	srv.createAdmin(t)
	tokens := srv.login(t, "admin@example.com", adminPass)

	resp := srv.do(t, http.MethodPost, "/auth/me/api-key", nil, bearer(tokens.AccessToken))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	key := decode[api.APIKeyResponse](t, resp).APIKey

	resp = srv.do(t, http.MethodGet, "/auth/me", nil, map[string]string{api.APIKeyHeader: key})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "admin@example.com", decode[api.UserResponse](t, resp).Email)

	// API ключ не дает менять профиль
	name := "Renamed"
	resp = srv.do(t, http.MethodPut, "/auth/me", api.UpdateProfileRequest{Username: &name},
		map[string]string{api.APIKeyHeader: key})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = srv.do(t, http.MethodGet, "/auth/me", nil, map[string]string{api.APIKeyHeader: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRouter_RefreshIsNotAccess(t *testing.T) {
	srv := setupServer(t, nil)
	srv.createAdmin(t)
	tokens := srv.login(t, "admin@example.com", adminPass)

	resp := srv.do(t, http.MethodGet, "/auth/me", nil, bearer(tokens.RefreshToken))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = srv.do(t, http.MethodPost, "/auth/refresh", api.RefreshRequest{RefreshToken: tokens.RefreshToken}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_Fallbacks(t *testing.T) {
	srv := setupServer(t, nil)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantMsg    string
		wantAllow  string
	}{
		{name: "unknown path", method: http.MethodGet, path: "/nope", wantStatus: http.StatusNotFound, wantMsg: "not found"},
		{name: "wrong method", method: http.MethodGet, path: "/auth/login", wantStatus: http.StatusMethodNotAllowed,
			wantMsg: "method not allowed", wantAllow: "POST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := srv.do(t, tt.method, tt.path, nil, nil)
			require.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
			if tt.wantAllow != "" {
				assert.Contains(t, resp.Header.Get("Allow"), tt.wantAllow)
			}
			assert.Equal(t, tt.wantMsg, decode[api.ErrorResponse](t, resp).Message)
		})
	}
}

func TestRouter_InfoHealthMetrics(t *testing.T) {
	srv := setupServer(t, nil)

	resp := srv.do(t, http.MethodGet, "/", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "test", decode[api.InfoResponse](t, resp).Version)

	resp = srv.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = srv.do(t, http.MethodPost, "/auth/login", api.LoginRequest{Email: "x@example.com", Password: "nope"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = srv.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, `finauth_http_requests_total{method="GET",path="GET /health",status="200"} 1`)
	assert.Contains(t, text, `finauth_auth_events_total{event="login",outcome="failure"} 1`)
}

func TestRouter_CORSPreflight(t *testing.T) {
	srv := setupServer(t, nil)

	resp := srv.do(t, http.MethodOptions, "/auth/login", nil, map[string]string{
		"Origin":                        "http://localhost:3000",
		"Access-Control-Request-Method": "POST",
	})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRouter_RateLimit(t *testing.T) {
	limiter := middleware.NewRateLimiter(2, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(limiter.Stop)
	srv := setupServer(t, limiter)

	for i := 0; i < 2; i++ {
		resp := srv.do(t, http.MethodPost, "/auth/login", api.LoginRequest{Email: "x@example.com", Password: "p"}, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	resp := srv.do(t, http.MethodPost, "/auth/login", api.LoginRequest{Email: "x@example.com", Password: "p"}, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// Прочие маршруты не ограничиваются
	resp = srv.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain"))
}
