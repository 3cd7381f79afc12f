// Package api is the HTTP client for the finauth server.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/iudanet/finauth/pkg/api"
)

// ErrUnauthorized совпадает через errors.Is с любым ответом 401.
var ErrUnauthorized = errors.New("unauthorized")

// Error описывает ответ сервера с кодом вне 2xx.
type Error struct {
	Message    string
	Details    []string
	StatusCode int
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
	if len(e.Details) > 0 {
		msg += " [" + strings.Join(e.Details, "; ") + "]"
	}
	return msg
}

// Is: errors.Is(err, ErrUnauthorized) истинно для ответов 401.
func (e *Error) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// Client представляет HTTP клиент для взаимодействия с сервером
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient создает новый API клиент
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: checkRedirect,
		},
	}
}

// credentialHeaders travel only with same-host redirects.
var credentialHeaders = []string{"Authorization", api.APIKeyHeader}

// checkRedirect ограничивает число редиректов и пересылает учетные данные
// только на тот же хост без понижения https до http.
func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return fmt.Errorf("stopped after 10 redirects")
	}

	orig := via[0]
	sameOrigin := req.URL.Host == orig.URL.Host &&
		!(orig.URL.Scheme == "https" && req.URL.Scheme != "https")

	for _, h := range credentialHeaders {
		if !sameOrigin {
			req.Header.Del(h)
			continue
		}
		if v := orig.Header.Get(h); v != "" {
			req.Header.Set(h, v)
		}
	}
	return nil
}

// Credentials аутентифицируют запрос: bearer access token или API ключ.
type Credentials struct {
	AccessToken string
	APIKey      string
}

// Bearer возвращает Credentials с access token.
func Bearer(accessToken string) Credentials {
	return Credentials{AccessToken: accessToken}
}

func (c Credentials) apply(req *http.Request) {
	switch {
	case c.AccessToken != "":
		req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	case c.APIKey != "":
		req.Header.Set(api.APIKeyHeader, c.APIKey)
	}
}

// Register регистрирует нового пользователя
func (c *Client) Register(ctx context.Context, req api.RegisterRequest) (*api.UserResponse, error) {
	var resp api.UserResponse
	if err := c.doRequest(ctx, http.MethodPost, "/auth/register", Credentials{}, req, &resp); err != nil {
		return nil, fmt.Errorf("register request failed: %w", err)
	}
	return &resp, nil
}

// Login выполняет аутентификацию пользователя
func (c *Client) Login(ctx context.Context, req api.LoginRequest) (*api.TokenResponse, error) {
	var resp api.TokenResponse
	if err := c.doRequest(ctx, http.MethodPost, "/auth/login", Credentials{}, req, &resp); err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	return &resp, nil
}

// Refresh обменивает refresh токен на новую пару
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*api.TokenResponse, error) {
	var resp api.TokenResponse
	req := api.RefreshRequest{RefreshToken: refreshToken}
	if err := c.doRequest(ctx, http.MethodPost, "/auth/refresh", Credentials{}, req, &resp); err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	return &resp, nil
}

// Logout отзывает refresh токен на сервере
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	req := api.RefreshRequest{RefreshToken: refreshToken}
	if err := c.doRequest(ctx, http.MethodPost, "/auth/logout", Credentials{}, req, nil); err != nil {
		return fmt.Errorf("logout request failed: %w", err)
	}
	return nil
}

// Me возвращает профиль текущего пользователя
func (c *Client) Me(ctx context.Context, creds Credentials) (*api.UserResponse, error) {
	var resp api.UserResponse
	if err := c.doRequest(ctx, http.MethodGet, "/auth/me", creds, nil, &resp); err != nil {
		return nil, fmt.Errorf("profile request failed: %w", err)
	}
	return &resp, nil
}

// UpdateMe меняет профиль текущего пользователя
func (c *Client) UpdateMe(ctx context.Context, creds Credentials, req api.UpdateProfileRequest) (*api.UserResponse, error) {
	var resp api.UserResponse
	if err := c.doRequest(ctx, http.MethodPut, "/auth/me", creds, req, &resp); err != nil {
		return nil, fmt.Errorf("profile update failed: %w", err)
	}
	return &resp, nil
}

// ChangePassword меняет пароль текущего пользователя
func (c *Client) ChangePassword(ctx context.Context, creds Credentials, req api.ChangePasswordRequest) error {
	if err := c.doRequest(ctx, http.MethodPost, "/auth/change-password", creds, req, nil); err != nil {
		return fmt.Errorf("change password failed: %w", err)
	}
	return nil
}

// GenerateAPIKey выпускает новый API ключ
func (c *Client) GenerateAPIKey(ctx context.Context, creds Credentials) (string, error) {
	var resp api.APIKeyResponse
	if err := c.doRequest(ctx, http.MethodPost, "/auth/me/api-key", creds, nil, &resp); err != nil {
		return "", fmt.Errorf("api key request failed: %w", err)
	}
	return resp.APIKey, nil
}

// ListUsers возвращает страницу пользователей (admin)
func (c *Client) ListUsers(ctx context.Context, creds Credentials, skip, limit int, includeInactive bool) ([]api.UserResponse, error) {
	q := url.Values{}
	q.Set("skip", strconv.Itoa(skip))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if includeInactive {
		q.Set("include_inactive", "true")
	}

	var resp []api.UserResponse
	if err := c.doRequest(ctx, http.MethodGet, "/auth/users?"+q.Encode(), creds, nil, &resp); err != nil {
		return nil, fmt.Errorf("list users failed: %w", err)
	}
	return resp, nil
}

// UpdateRole назначает роль пользователю (admin)
func (c *Client) UpdateRole(ctx context.Context, creds Credentials, userID int64, role string) (*api.UserResponse, error) {
	var resp api.UserResponse
	path := fmt.Sprintf("/auth/users/%d/role", userID)
	if err := c.doRequest(ctx, http.MethodPut, path, creds, api.RoleUpdateRequest{Role: role}, &resp); err != nil {
		return nil, fmt.Errorf("update role failed: %w", err)
	}
	return &resp, nil
}

// VerifyUser подтверждает email пользователя (admin)
func (c *Client) VerifyUser(ctx context.Context, creds Credentials, userID int64) (*api.UserResponse, error) {
	var resp api.UserResponse
	path := fmt.Sprintf("/auth/users/%d/verify", userID)
	if err := c.doRequest(ctx, http.MethodPut, path, creds, nil, &resp); err != nil {
		return nil, fmt.Errorf("verify user failed: %w", err)
	}
	return &resp, nil
}

// DeactivateUser деактивирует пользователя (admin)
func (c *Client) DeactivateUser(ctx context.Context, creds Credentials, userID int64) (string, error) {
	var resp api.MessageResponse
	path := fmt.Sprintf("/auth/users/%d", userID)
	if err := c.doRequest(ctx, http.MethodDelete, path, creds, nil, &resp); err != nil {
		return "", fmt.Errorf("deactivate user failed: %w", err)
	}
	return resp.Message, nil
}

// doRequest выполняет HTTP запрос
func (c *Client) doRequest(ctx context.Context, method, path string, creds Credentials, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	creds.apply(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{StatusCode: resp.StatusCode}
		var errResp api.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && (errResp.Message != "" || errResp.Error != "") {
			apiErr.Message = errResp.Message
			if apiErr.Message == "" {
				apiErr.Message = errResp.Error
			}
			apiErr.Details = errResp.Details
		} else {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		return apiErr
	}

	// Декодируем успешный ответ
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
