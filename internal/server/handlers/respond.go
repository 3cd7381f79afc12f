package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/iudanet/finauth/internal/models"
	"github.com/iudanet/finauth/internal/server/service"
	"github.com/iudanet/finauth/pkg/api"
)

// maxBodyBytes ограничивает размер JSON тела запроса
const maxBodyBytes = 1 << 20

// WriteJSON отправляет JSON ответ
func WriteJSON(w http.ResponseWriter, logger *slog.Logger, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

// WriteError отправляет ответ с ошибкой. 401 дополнительно несет WWW-Authenticate.
func WriteError(w http.ResponseWriter, logger *slog.Logger, message string, statusCode int, details ...string) {
	if statusCode == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}

	WriteJSON(w, logger, api.ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Details: details,
	}, statusCode)
}

// StatusFor сопоставляет ошибку сервиса HTTP статусу
func StatusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrWrongPassword),
		errors.Is(err, service.ErrInvalidRole),
		errors.Is(err, service.ErrSelfDeactivation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, service.ErrInvalidAPIKey),
		errors.Is(err, service.ErrInactiveUser):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrInsufficientPermission):
		return http.StatusForbidden
	case errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// WriteServiceError отправляет ошибку сервиса с соответствующим статусом.
// Внутренние ошибки логируются, клиенту уходит только generic сообщение.
func WriteServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := StatusFor(err)

	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		WriteError(w, logger, "internal server error", status)
		return
	}

	var verr *service.ValidationError
	if errors.As(err, &verr) {
		WriteError(w, logger, "validation failed", status, verr.Details()...)
		return
	}

	WriteError(w, logger, err.Error(), status)
}

// decodeJSON читает тело запроса в dst
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

// toUserResponse переводит пользователя в публичное представление
func toUserResponse(u *models.User) api.UserResponse {
	return api.UserResponse{
		ID:         u.ID,
		Email:      u.Email,
		Username:   u.Username,
		Role:       u.Role.String(),
		IsActive:   u.IsActive,
		IsVerified: u.IsVerified,
		CreatedAt:  u.CreatedAt,
		LastLogin:  u.LastLogin,
	}
}
