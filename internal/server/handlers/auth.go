package handlers

import (
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/iudanet/finauth/internal/server/service"
	"github.com/iudanet/finauth/internal/server/token"
	"github.com/iudanet/finauth/pkg/api"
)

// AuthHandler обрабатывает запросы /auth
type AuthHandler struct {
	logger *slog.Logger
	auth   *service.AuthService
}

// NewAuthHandler создает новый handler для авторизации
func NewAuthHandler(logger *slog.Logger, auth *service.AuthService) *AuthHandler {
	return &AuthHandler{
		logger: logger,
		auth:   auth,
	}
}

// Register обрабатывает POST /auth/register
// Регистрация нового пользователя с ролью viewer
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode register request", slog.Any("error", err))
		WriteError(w, h.logger, "invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.auth.Register(ctx, req.Email, req.Username, req.Password)
	if err != nil {
		WriteServiceError(w, r, h.logger, err)
		return
	}

	WriteJSON(w, h.logger, toUserResponse(user), http.StatusCreated)
}

// Login обрабатывает POST /auth/login
// Принимает JSON {email, password} или OAuth2 форму username=<email>&password=
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.LoginRequest
	if isForm(r) {
		if err := r.ParseForm(); err != nil {
			h.logger.WarnContext(ctx, "failed to parse login form", slog.Any("error", err))
			WriteError(w, h.logger, "invalid request body", http.StatusBadRequest)
			return
		}
		req.Email = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
	} else if err := decodeJSON(w, r, &req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode login request", slog.Any("error", err))
		WriteError(w, h.logger, "invalid request body", http.StatusBadRequest)
		return
	}

	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		WriteError(w, h.logger, "email and password are required", http.StatusBadRequest)
		return
	}

	pair, err := h.auth.Login(ctx, strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		WriteServiceError(w, r, h.logger, err)
		return
	}

	WriteJSON(w, h.logger, toTokenResponse(pair), http.StatusOK)
}

// Refresh обрабатывает POST /auth/refresh
// Ротация refresh токена: выдается новая пара токенов
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	refreshToken, ok := h.refreshToken(w, r)
	if !ok {
		return
	}

	pair, err := h.auth.Refresh(r.Context(), refreshToken)
	if err != nil {
		WriteServiceError(w, r, h.logger, err)
		return
	}

	WriteJSON(w, h.logger, toTokenResponse(pair), http.StatusOK)
}

// Logout обрабатывает POST /auth/logout
// Отзывает refresh токен
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	refreshToken, ok := h.refreshToken(w, r)
	if !ok {
		return
	}

	if err := h.auth.Logout(r.Context(), refreshToken); err != nil {
		WriteServiceError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Me обрабатывает GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		WriteError(w, h.logger, "not authenticated", http.StatusUnauthorized)
		return
	}

	WriteJSON(w, h.logger, toUserResponse(user), http.StatusOK)
}

// UpdateMe обрабатывает PUT /auth/me
func (h *AuthHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := UserFromContext(ctx)
	if !ok {
		WriteError(w, h.logger, "not authenticated", http.StatusUnauthorized)
		return
	}

	var req api.UpdateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode profile update", slog.Any("error", err))
		WriteError(w, h.logger, "invalid request body", http.StatusBadRequest)
		return
	}

	updated, err := h.auth.UpdateProfile(ctx, user, req.Username)
	if err != nil {
		WriteServiceError(w, r, h.logger, err)
		return
	}

	WriteJSON(w, h.logger, toUserResponse(updated), http.StatusOK)
}

// ChangePassword обрабатывает POST /auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := UserFromContext(ctx)
	if !ok {
		WriteError(w, h.logger, "not authenticated", http.StatusUnauthorized)
		return
	}

	var req api.ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode change password request", slog.Any("error", err))
		WriteError(w, h.logger, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.auth.ChangePassword(ctx, user, req.CurrentPassword, req.NewPassword); err != nil {
		WriteServiceError(w, r, h.logger, err)
		return
	}

	WriteJSON(w, h.logger, api.MessageResponse{Message: "Password changed successfully"}, http.StatusOK)
}

// GenerateAPIKey обрабатывает POST /auth/me/api-key
// Ключ возвращается только один раз
func (h *AuthHandler) GenerateAPIKey(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		WriteError(w, h.logger, "not authenticated", http.StatusUnauthorized)
		return
	}

	key, err := h.auth.GenerateAPIKey(r.Context(), user)
	if err != nil {
		WriteServiceError(w, r, h.logger, err)
		return
	}

	WriteJSON(w, h.logger, api.APIKeyResponse{APIKey: key}, http.StatusCreated)
}

// refreshToken извлекает refresh токен из query параметра или JSON тела.
// При ошибке ответ уже отправлен.
func (h *AuthHandler) refreshToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	if t := r.URL.Query().Get("refresh_token"); t != "" {
		return t, true
	}

	var req api.RefreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.WarnContext(r.Context(), "failed to decode refresh request", slog.Any("error", err))
		WriteError(w, h.logger, "invalid request body", http.StatusBadRequest)
		return "", false
	}
	if req.RefreshToken == "" {
		WriteError(w, h.logger, "refresh_token is required", http.StatusBadRequest)
		return "", false
	}

	return req.RefreshToken, true
}

func isForm(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mediaType == "application/x-www-form-urlencoded"
}

func toTokenResponse(p *token.Pair) api.TokenResponse {
	return api.TokenResponse{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    api.TokenTypeBearer,
		ExpiresIn:    p.ExpiresIn,
	}
}
