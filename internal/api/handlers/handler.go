// handler.go — основной обработчик API file-vault.
// Объединяет health, auth и файловые обработчики; транслирует
// сервисные ошибки в стандартные HTTP-ответы.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/gofilevault/internal/api/errors"
	"github.com/bigkaa/gofilevault/internal/service"
)

// APIHandler — основной обработчик API file-vault.
type APIHandler struct {
	health    *HealthHandler
	auth      *service.AuthService
	hierarchy *service.HierarchyService
	content   *service.ContentService
	// maxUploadSize — предел размера тела запроса создания записи
	maxUploadSize int64
	logger        *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	auth *service.AuthService,
	hierarchy *service.HierarchyService,
	content *service.ContentService,
	maxUploadSize int64,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:        health,
		auth:          auth,
		hierarchy:     hierarchy,
		content:       content,
		maxUploadSize: maxUploadSize,
		logger:        logger.With(slog.String("component", "api_handler")),
	}
}

// --- Health endpoints (делегируются в HealthHandler) ---

// HealthLive — liveness probe.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError транслирует ошибку сервисного слоя в HTTP-ответ.
// Неожиданные ошибки логируются и возвращаются как 500 без деталей.
func (h *APIHandler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if svcErr, ok := service.AsServiceError(err); ok {
		apierrors.WriteError(w, svcErr.Status, svcErr.Message)
		return
	}

	h.logger.Error("Внутренняя ошибка обработки запроса",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	apierrors.InternalError(w, "Internal server error")
}
