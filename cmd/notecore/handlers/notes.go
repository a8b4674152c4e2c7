package handlers

import (
	"net/http"

	"github.com/kimhsiao/notecore/internal/models"
	"github.com/kimhsiao/notecore/internal/services"
)

// NoteHandler handles note operations.
type NoteHandler struct {
	svc *services.NoteService
}

// NewNoteHandler creates a new NoteHandler.
func NewNoteHandler(svc *services.NoteService) *NoteHandler {
	return &NoteHandler{svc: svc}
}

// noteView is a note with the category it is displayed under.
type noteView struct {
	*models.Note
	DisplayCategory *models.Category `json:"displayCategory"`
}

func (h *NoteHandler) view(r *http.Request, n *models.Note) (*noteView, error) {
	cat, err := h.svc.DisplayCategory(r.Context(), n)
	if err != nil {
		return nil, err
	}
	return &noteView{Note: n, DisplayCategory: cat}, nil
}

// ListNotes handles GET /api/notes
// The optional ?category= query restricts the list to one primary category.
func (h *NoteHandler) ListNotes(w http.ResponseWriter, r *http.Request) {
	var categoryID *string
	if r.URL.Query().Has("category") {
		c := r.URL.Query().Get("category")
		categoryID = &c
	}

	notes, err := h.svc.ListNotes(r.Context(), categoryID)
	if err != nil {
		writeError(w, err)
		return
	}
	if notes == nil {
		notes = []*models.Note{}
	}
	writeJSON(w, http.StatusOK, notes)
}

// CreateNote handles POST /api/notes
func (h *NoteHandler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var note models.Note
	if !decodeBody(w, r, &note) {
		return
	}

	saved, err := h.svc.SaveNote(r.Context(), &note)
	if err != nil {
		writeError(w, err)
		return
	}
	v, err := h.view(r, saved)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// GetNote handles GET /api/notes/{id}
func (h *NoteHandler) GetNote(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.GetNote(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	v, err := h.view(r, n)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// UpdateNote handles PUT /api/notes/{id}
// The note is created when it does not exist yet.
func (h *NoteHandler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	var note models.Note
	if !decodeBody(w, r, &note) {
		return
	}
	note.ID = r.PathValue("id")

	saved, err := h.svc.SaveNote(r.Context(), &note)
	if err != nil {
		writeError(w, err)
		return
	}
	v, err := h.view(r, saved)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// DeleteNote handles DELETE /api/notes/{id}
func (h *NoteHandler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteNote(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
