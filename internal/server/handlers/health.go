package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/finauth/internal/server/storage"
	"github.com/iudanet/finauth/pkg/api"
)

// ServiceName отдается в ответе GET /
const ServiceName = "finauth"

// healthCheckTimeout ограничивает время проверки БД
const healthCheckTimeout = 2 * time.Second

// HealthHandler обрабатывает health check запросы
type HealthHandler struct {
	logger  *slog.Logger
	db      storage.Pinger
	version string
}

// NewHealthHandler создает новый handler для health check
func NewHealthHandler(logger *slog.Logger, db storage.Pinger, version string) *HealthHandler {
	return &HealthHandler{
		logger:  logger,
		db:      db,
		version: version,
	}
}

// HealthResponse представляет ответ health check
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Version  string `json:"version,omitempty"`
}

// Info обрабатывает GET /
func (h *HealthHandler) Info(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, h.logger, api.InfoResponse{
		Name:    ServiceName,
		Version: h.version,
		Status:  "running",
	}, http.StatusOK)
}

// Health обрабатывает GET /health
// При недоступной БД возвращает 503
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.ErrorContext(ctx, "health check failed", slog.Any("error", err))
		WriteJSON(w, h.logger, HealthResponse{
			Status:   "unhealthy",
			Database: "disconnected",
			Version:  h.version,
		}, http.StatusServiceUnavailable)
		return
	}

	WriteJSON(w, h.logger, HealthResponse{
		Status:   "healthy",
		Database: "connected",
		Version:  h.version,
	}, http.StatusOK)
}
