package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORSMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name        string
		origins     []string
		method      string
		origin      string
		preflight   bool
		wantStatus  int
		wantAllowed string
	}{
		{
			name:        "allowed origin simple request",
			origins:     []string{"http://localhost:3000"},
			method:      http.MethodGet,
			origin:      "http://localhost:3000",
			wantStatus:  http.StatusOK,
			wantAllowed: "http://localhost:3000",
		},
		{
			name:       "disallowed origin simple request passes without headers",
			origins:    []string{"http://localhost:3000"},
			method:     http.MethodGet,
			origin:     "http://evil.example",
			wantStatus: http.StatusOK,
		},
		{
			name:        "allowed preflight",
			origins:     []string{"http://localhost:3000"},
			method:      http.MethodOptions,
			origin:      "http://localhost:3000",
			preflight:   true,
			wantStatus:  http.StatusNoContent,
			wantAllowed: "http://localhost:3000",
		},
		{
			name:       "disallowed preflight",
			origins:    []string{"http://localhost:3000"},
			method:     http.MethodOptions,
			origin:     "http://evil.example",
			preflight:  true,
			wantStatus: http.StatusForbidden,
		},
		{
			name:        "wildcard echoes origin",
			origins:     []string{"*"},
			method:      http.MethodPost,
			origin:      "http://any.example",
			wantStatus:  http.StatusOK,
			wantAllowed: "http://any.example",
		},
		{
			name:       "no origin header",
			origins:    []string{"*"},
			method:     http.MethodGet,
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := CORSMiddleware(tt.origins)(next)

			req := httptest.NewRequest(tt.method, "/auth/login", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantAllowed, w.Header().Get("Access-Control-Allow-Origin"))
			if tt.wantAllowed != "" {
				assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
			}
			if tt.preflight && tt.wantAllowed != "" {
				assert.Equal(t, corsAllowMethods, w.Header().Get("Access-Control-Allow-Methods"))
				assert.Equal(t, corsAllowHeaders, w.Header().Get("Access-Control-Allow-Headers"))
				assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))
			}
		})
	}
}
