package handlers

import (
	"net/http"

	"github.com/kimhsiao/notecore/internal/models"
	"github.com/kimhsiao/notecore/internal/services"
)

// CategoryHandler handles category operations.
type CategoryHandler struct {
	svc *services.NoteService
}

// NewCategoryHandler creates a new CategoryHandler.
func NewCategoryHandler(svc *services.NoteService) *CategoryHandler {
	return &CategoryHandler{svc: svc}
}

// ListCategories handles GET /api/categories
func (h *CategoryHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.svc.ListCategories(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if cats == nil {
		cats = []*models.Category{}
	}
	writeJSON(w, http.StatusOK, cats)
}

// CreateCategory handles POST /api/categories
func (h *CategoryHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var request struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Color string `json:"color"`
	}
	if !decodeBody(w, r, &request) {
		return
	}

	saved, err := h.svc.SaveCategory(r.Context(), &models.Category{
		ID:    request.ID,
		Name:  request.Name,
		Color: request.Color,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// UpdateCategory handles PUT /api/categories/{id}
func (h *CategoryHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Name  string `json:"name"`
		Color string `json:"color"`
	}
	if !decodeBody(w, r, &request) {
		return
	}

	saved, err := h.svc.SaveCategory(r.Context(), &models.Category{
		ID:    r.PathValue("id"),
		Name:  request.Name,
		Color: request.Color,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// DeleteCategory handles DELETE /api/categories/{id}
// Notes keep pointing at the deleted id and display as Uncategorized.
func (h *CategoryHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteCategory(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
