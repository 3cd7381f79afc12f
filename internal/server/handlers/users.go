package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/iudanet/finauth/internal/models"
	"github.com/iudanet/finauth/internal/server/service"
	"github.com/iudanet/finauth/internal/server/storage"
	"github.com/iudanet/finauth/pkg/api"
)

// UsersHandler обрабатывает административные запросы /auth/users
type UsersHandler struct {
	logger *slog.Logger
	auth   *service.AuthService
}

// NewUsersHandler создает handler управления пользователями
func NewUsersHandler(logger *slog.Logger, auth *service.AuthService) *UsersHandler {
	return &UsersHandler{
		logger: logger,
		auth:   auth,
	}
}

// List обрабатывает GET /auth/users?skip=&limit=&include_inactive=
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	verr := &service.ValidationError{}
	filter := storage.ListFilter{}

	var err error
	if v := q.Get("skip"); v != "" {
		if filter.Offset, err = strconv.Atoi(v); err != nil {
			verr.Add("skip", "must be an integer")
		}
	}
	if v := q.Get("limit"); v != "" {
		if filter.Limit, err = strconv.Atoi(v); err != nil {
			verr.Add("limit", "must be an integer")
		}
	}
	if v := q.Get("include_inactive"); v != "" {
		if filter.IncludeInactive, err = strconv.ParseBool(v); err != nil {
			verr.Add("include_inactive", "must be a boolean")
		}
	}
	if err := verr.OrNil(); err != nil {
		WriteServiceError(w, r, h.logger, err)
		return
	}

	users, err := h.auth.ListUsers(r.Context(), caller, filter)
	if err != nil {
		WriteServiceError(w, r, h.logger, err)
		return
	}

	resp := make([]api.UserResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, toUserResponse(u))
	}
	WriteJSON(w, h.logger, resp, http.StatusOK)
}

// UpdateRole обрабатывает PUT /auth/users/{id}/role
func (h *UsersHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req api.RoleUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.WarnContext(r.Context(), "failed to decode role update", slog.Any("error", err))
		WriteError(w, h.logger, "invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.auth.UpdateRole(r.Context(), caller, id, req.Role)
	if err != nil {
		WriteServiceError(w, r, h.logger, err)
		return
	}

	WriteJSON(w, h.logger, toUserResponse(user), http.StatusOK)
}

// Verify обрабатывает PUT /auth/users/{id}/verify
func (h *UsersHandler) Verify(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := h.userID(w, r)
	if !ok {
		return
	}

	user, err := h.auth.VerifyUser(r.Context(), caller, id)
	if err != nil {
		WriteServiceError(w, r, h.logger, err)
		return
	}

	WriteJSON(w, h.logger, toUserResponse(user), http.StatusOK)
}

// Deactivate обрабатывает DELETE /auth/users/{id}
// Мягкое удаление: пользователь помечается неактивным
func (h *UsersHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := h.userID(w, r)
	if !ok {
		return
	}

	if err := h.auth.DeactivateUser(r.Context(), caller, id); err != nil {
		WriteServiceError(w, r, h.logger, err)
		return
	}

	WriteJSON(w, h.logger, api.MessageResponse{
		Message: fmt.Sprintf("User %d deactivated successfully", id),
	}, http.StatusOK)
}

func (h *UsersHandler) caller(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		WriteError(w, h.logger, "not authenticated", http.StatusUnauthorized)
	}
	return user, ok
}

func (h *UsersHandler) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		WriteError(w, h.logger, "invalid user id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
