package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/finauth/pkg/api"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthHandler_Info(t *testing.T) {
	handler := NewHealthHandler(setupTestLogger(), pingFunc(func(context.Context) error { return nil }), "1.2.3")

	w := httptest.NewRecorder()
	handler.Info(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[api.InfoResponse](t, w)
	assert.Equal(t, ServiceName, resp.Name)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, "running", resp.Status)
}

func TestHealthHandler_Health(t *testing.T) {
	tests := []struct {
		name         string
		pingErr      error
		wantStatus   int
		wantHealth   string
		wantDatabase string
	}{
		{name: "database reachable", wantStatus: http.StatusOK, wantHealth: "healthy", wantDatabase: "connected"},
		{name: "database down", pingErr: errors.New("connection refused"), wantStatus: http.StatusServiceUnavailable,
			wantHealth: "unhealthy", wantDatabase: "disconnected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(setupTestLogger(), pingFunc(func(context.Context) error { return tt.pingErr }), "dev")

			w := httptest.NewRecorder()
			handler.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			require.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			resp := decodeBody[HealthResponse](t, w)
			assert.Equal(t, tt.wantHealth, resp.Status)
			assert.Equal(t, tt.wantDatabase, resp.Database)
			assert.NotContains(t, w.Body.String(), "connection refused")
		})
	}
}

func TestHealthHandler_HealthWithStorage(t *testing.T) {
	env := setupTestEnv(t)
	handler := NewHealthHandler(env.logger, env.storage, "dev")

	w := httptest.NewRecorder()
	handler.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, env.storage.Close())

	w = httptest.NewRecorder()
	handler.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
