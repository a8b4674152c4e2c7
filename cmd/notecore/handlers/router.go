package handlers

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/kimhsiao/notecore/internal/logging"
)

// Router holds the handlers mounted by NewRouter.
type Router struct {
	Notes      *NoteHandler
	Categories *CategoryHandler
	Sync       *SyncHandler
	// WebSocket serves change notifications; nil leaves /ws unmounted.
	WebSocket http.Handler
}

// NewRouter returns the server's HTTP handler.
func NewRouter(rt Router) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", Health)

	// Notes
	mux.HandleFunc("GET /api/notes", rt.Notes.ListNotes)
	mux.HandleFunc("POST /api/notes", rt.Notes.CreateNote)
	mux.HandleFunc("GET /api/notes/{id}", rt.Notes.GetNote)
	mux.HandleFunc("PUT /api/notes/{id}", rt.Notes.UpdateNote)
	mux.HandleFunc("DELETE /api/notes/{id}", rt.Notes.DeleteNote)

	// Categories
	mux.HandleFunc("GET /api/categories", rt.Categories.ListCategories)
	mux.HandleFunc("POST /api/categories", rt.Categories.CreateCategory)
	mux.HandleFunc("PUT /api/categories/{id}", rt.Categories.UpdateCategory)
	mux.HandleFunc("DELETE /api/categories/{id}", rt.Categories.DeleteCategory)

	// Sync
	s := rt.Sync
	mux.HandleFunc("POST /api/sync", s.SyncNow)
	mux.HandleFunc("GET /api/sync/status", s.GetStatus)
	mux.HandleFunc("GET /api/sync/outbox", s.ListOutbox)
	mux.HandleFunc("POST /api/sync/outbox/retry", s.RetryOutbox)
	mux.HandleFunc("DELETE /api/sync/outbox/{id}", s.RemoveOutboxEntry)
	mux.HandleFunc("GET /api/sync/conflicts", s.ListConflicts)

	// Peer replication
	mux.HandleFunc("GET /api/sync/notes", s.RequirePeer(s.PeerNotes))
	mux.HandleFunc("PUT /api/sync/notes/{id}", s.RequirePeer(s.PeerPutNote))
	mux.HandleFunc("DELETE /api/sync/notes/{id}", s.RequirePeer(s.PeerDeleteNote))
	mux.HandleFunc("GET /api/sync/categories", s.RequirePeer(s.PeerCategories))
	mux.HandleFunc("PUT /api/sync/categories/{id}", s.RequirePeer(s.PeerPutCategory))
	mux.HandleFunc("DELETE /api/sync/categories/{id}", s.RequirePeer(s.PeerDeleteCategory))

	if rt.WebSocket != nil {
		mux.Handle("GET /ws", rt.WebSocket)
	}

	return logRequests(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack hands the connection to the WebSocket upgrader.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logging.Debug("HTTP request", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	})
}
