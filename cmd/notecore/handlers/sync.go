package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/kimhsiao/notecore/internal/errors"
	"github.com/kimhsiao/notecore/internal/models"
	"github.com/kimhsiao/notecore/internal/services"
	"github.com/kimhsiao/notecore/internal/sync/queue"
	"github.com/kimhsiao/notecore/internal/sync/scheduler"
)

// ConflictLister returns the most recent conflict log entries.
type ConflictLister interface {
	ListConflictLogs(ctx context.Context, limit int) ([]*models.ConflictLog, error)
}

// SyncHandler handles sync operations and the peer replication endpoints.
type SyncHandler struct {
	svc       *services.NoteService
	scheduler *scheduler.Scheduler
	outbox    *queue.Outbox
	conflicts ConflictLister
	peerToken string
}

// NewSyncHandler creates a new SyncHandler. peerToken, when set, is required
// as a bearer token on the replication endpoints.
func NewSyncHandler(svc *services.NoteService, sched *scheduler.Scheduler, outbox *queue.Outbox, conflicts ConflictLister, peerToken string) *SyncHandler {
	return &SyncHandler{
		svc:       svc,
		scheduler: sched,
		outbox:    outbox,
		conflicts: conflicts,
		peerToken: peerToken,
	}
}

// SyncNow handles POST /api/sync
// Runs a pull from every adapter and waits for it.
func (h *SyncHandler) SyncNow(w http.ResponseWriter, r *http.Request) {
	result, err := h.scheduler.SyncNow(r.Context())
	if err == scheduler.ErrSyncInProgress {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error": err.Error(),
			"code":  apperrors.CodeOf(err),
		})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"applied":            result.Applied(),
		"notesInserted":      result.NotesInserted,
		"notesUpdated":       result.NotesUpdated,
		"categoriesInserted": result.CategoriesInserted,
		"categoriesUpdated":  result.CategoriesUpdated,
		"unchanged":          result.Unchanged,
		"conflicts":          len(result.Conflicts),
	})
}

// GetStatus handles GET /api/sync/status
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scheduler.GetStatus(r.Context()))
}

// ListOutbox handles GET /api/sync/outbox
// The optional ?status=pending|failed query filters entries.
func (h *SyncHandler) ListOutbox(w http.ResponseWriter, r *http.Request) {
	status := models.OutboxStatus(r.URL.Query().Get("status"))
	switch status {
	case "", models.OutboxPending, models.OutboxFailed:
	default:
		writeError(w, apperrors.Newf(apperrors.ErrInvalid, "unknown outbox status %q", status))
		return
	}

	entries, err := h.outbox.List(r.Context(), status)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []*models.OutboxEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// RetryOutbox handles POST /api/sync/outbox/retry
// Resets failed entries and drains the outbox once.
func (h *SyncHandler) RetryOutbox(w http.ResponseWriter, r *http.Request) {
	reset, err := h.outbox.RetryAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	delivered, failed := h.scheduler.ProcessOutbox(r.Context())
	writeJSON(w, http.StatusOK, map[string]int{
		"reset":     reset,
		"delivered": delivered,
		"failed":    failed,
	})
}

// RemoveOutboxEntry handles DELETE /api/sync/outbox/{id}
func (h *SyncHandler) RemoveOutboxEntry(w http.ResponseWriter, r *http.Request) {
	if err := h.outbox.Remove(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListConflicts handles GET /api/sync/conflicts
func (h *SyncHandler) ListConflicts(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, apperrors.Newf(apperrors.ErrInvalid, "invalid limit %q", v))
			return
		}
		limit = n
	}

	logs, err := h.conflicts.ListConflictLogs(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if logs == nil {
		logs = []*models.ConflictLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

// RequirePeer rejects requests without the configured peer token.
func (h *SyncHandler) RequirePeer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.peerToken != "" {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(h.peerToken)) != 1 {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
		}
		next(w, r)
	}
}

// PeerNotes handles GET /api/sync/notes
// Returns every note with its stamps, for peers pulling from this server.
func (h *SyncHandler) PeerNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.svc.ListNotes(r.Context(), nil)
	if err != nil {
		writeError(w, err)
		return
	}
	if notes == nil {
		notes = []*models.Note{}
	}
	writeJSON(w, http.StatusOK, notes)
}

// PeerPutNote handles PUT /api/sync/notes/{id}
// The note is merged by last-write-wins and keeps its stamps.
func (h *SyncHandler) PeerPutNote(w http.ResponseWriter, r *http.Request) {
	var note models.Note
	if !decodeBody(w, r, &note) {
		return
	}
	if note.ID != r.PathValue("id") {
		writeError(w, apperrors.New(apperrors.ErrInvalid, "note id does not match path"))
		return
	}
	if _, err := h.svc.ApplyRemote(r.Context(), peerSource(r), []*models.Note{&note}, nil); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PeerDeleteNote handles DELETE /api/sync/notes/{id}
func (h *SyncHandler) PeerDeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ApplyRemoteDelete(r.Context(), models.KindNote, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PeerCategories handles GET /api/sync/categories
func (h *SyncHandler) PeerCategories(w http.ResponseWriter, r *http.Request) {
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

// PeerPutCategory handles PUT /api/sync/categories/{id}
func (h *SyncHandler) PeerPutCategory(w http.ResponseWriter, r *http.Request) {
	var cat models.Category
	if !decodeBody(w, r, &cat) {
		return
	}
	if cat.ID != r.PathValue("id") {
		writeError(w, apperrors.New(apperrors.ErrInvalid, "category id does not match path"))
		return
	}
	if _, err := h.svc.ApplyRemote(r.Context(), peerSource(r), nil, []*models.Category{&cat}); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PeerDeleteCategory handles DELETE /api/sync/categories/{id}
func (h *SyncHandler) PeerDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ApplyRemoteDelete(r.Context(), models.KindCategory, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// peerSource names the pushing peer in conflict logs.
func peerSource(r *http.Request) string {
	return "peer:" + r.RemoteAddr
}
