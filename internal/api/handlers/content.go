// content.go — обработчик выдачи содержимого записей.
package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/gofilevault/internal/api/errors"
)

// GetContent — GET /api/v1/files/{file_id}/content?size=.
// Аутентификация опциональна: анонимные запросы допускаются
// к публичным записям.
func (h *APIHandler) GetContent(w http.ResponseWriter, r *http.Request) {
	size := 0
	if raw := r.URL.Query().Get("size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			apierrors.ValidationError(w, "Invalid size")
			return
		}
		size = parsed
	}

	content, err := h.content.Fetch(r.Context(), userID(r), chi.URLParam(r, "file_id"), size)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	defer content.Reader.Close()

	w.Header().Set("Content-Type", content.MimeType)
	if _, err := io.Copy(w, content.Reader); err != nil {
		// Заголовки уже отправлены; остаётся только залогировать обрыв
		h.logger.Warn("Обрыв передачи содержимого",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}
