// files.go — обработчики иерархии файлов.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/gofilevault/internal/api/errors"
	"github.com/bigkaa/gofilevault/internal/domain/model"
	"github.com/bigkaa/gofilevault/internal/service"
)

// createFileRequest — тело запроса создания записи.
type createFileRequest struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	ParentID string `json:"parentId"`
	IsPublic bool   `json:"isPublic"`
	Data     string `json:"data"`
}

// setVisibilityRequest — тело запроса смены видимости.
// Указатель отличает отсутствие поля от false.
type setVisibilityRequest struct {
	IsPublic *bool `json:"isPublic"`
}

// CreateFile — POST /api/v1/files.
// Тело ограничено maxUploadSize; превышение обрывает чтение JSON.
func (h *APIHandler) CreateFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)

	var req createFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			apierrors.WriteError(w, http.StatusRequestEntityTooLarge, "Payload too large")
			return
		}
		apierrors.ValidationError(w, "Invalid JSON body")
		return
	}

	entry, err := h.hierarchy.Create(r.Context(), userID(r), service.CreateParams{
		Name:     req.Name,
		Type:     req.Type,
		ParentID: req.ParentID,
		IsPublic: req.IsPublic,
		Data:     req.Data,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, entry.Projection())
}

// ListFiles — GET /api/v1/files?parentId=&page=.
func (h *APIHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	entries, err := h.hierarchy.List(r.Context(), userID(r),
		r.URL.Query().Get("parentId"),
		r.URL.Query().Get("page"),
	)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	// Пустая страница сериализуется как [], не null
	projections := make([]model.Projection, 0, len(entries))
	for _, entry := range entries {
		projections = append(projections, entry.Projection())
	}

	writeJSON(w, http.StatusOK, projections)
}

// GetFile — GET /api/v1/files/{file_id}. Только владелец.
func (h *APIHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	entry, err := h.hierarchy.FetchOne(r.Context(), userID(r), chi.URLParam(r, "file_id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, entry.Projection())
}

// SetVisibility — PUT /api/v1/files/{file_id}/visibility.
func (h *APIHandler) SetVisibility(w http.ResponseWriter, r *http.Request) {
	var req setVisibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Invalid JSON body")
		return
	}
	if req.IsPublic == nil {
		apierrors.ValidationError(w, "Missing isPublic")
		return
	}

	entry, err := h.hierarchy.SetVisibility(r.Context(), userID(r), chi.URLParam(r, "file_id"), *req.IsPublic)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, entry.Projection())
}
