package httppeer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/kimhsiao/notecore/internal/errors"
	"github.com/kimhsiao/notecore/internal/models"
)

// fakePeer serves the replication endpoints from maps.
type fakePeer struct {
	mu    sync.Mutex
	notes map[string]*models.Note
	cats  map[string]*models.Category
	auth  []string
}

func newFakePeer(t *testing.T) (*fakePeer, *httptest.Server) {
	p := &fakePeer{notes: map[string]*models.Note{}, cats: map[string]*models.Category{}}
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+NotesPath, func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.auth = append(p.auth, r.Header.Get("Authorization"))
		out := []*models.Note{}
		for _, n := range p.notes {
			out = append(out, n)
		}
		json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("PUT "+NotesPath+"/{id}", func(w http.ResponseWriter, r *http.Request) {
		n := &models.Note{}
		if err := json.NewDecoder(r.Body).Decode(n); err != nil || n.ID != r.PathValue("id") {
			http.Error(w, "bad note", http.StatusBadRequest)
			return
		}
		p.mu.Lock()
		p.notes[n.ID] = n
		p.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("DELETE "+NotesPath+"/{id}", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		delete(p.notes, r.PathValue("id"))
		p.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET "+CategoriesPath, func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		out := []*models.Category{}
		for _, c := range p.cats {
			out = append(out, c)
		}
		json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("PUT "+CategoriesPath+"/{id}", func(w http.ResponseWriter, r *http.Request) {
		c := &models.Category{}
		if err := json.NewDecoder(r.Body).Decode(c); err != nil {
			http.Error(w, "bad category", http.StatusBadRequest)
			return
		}
		p.mu.Lock()
		p.cats[c.ID] = c
		p.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("DELETE "+CategoriesPath+"/{id}", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		delete(p.cats, r.PathValue("id"))
		p.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return p, srv
}

func TestNew_invalidURL(t *testing.T) {
	for _, u := range []string{"", "localhost:8090", "://x"} {
		_, err := New("peer", u)
		assert.True(t, apperrors.Is(err, apperrors.ErrConfigInvalid), u)
	}
}

func TestAdapter_roundTrip(t *testing.T) {
	p, srv := newFakePeer(t)
	a, err := New("peer", srv.URL+"/", WithToken("s3cret"))
	require.NoError(t, err)
	ctx := context.Background()

	note := &models.Note{ID: "n 1", Title: "t", Format: models.FormatRichText, Categories: models.IDList{}, UpdatedAt: 7}
	require.NoError(t, a.UpsertNote(ctx, note))
	require.NoError(t, a.UpsertCategory(ctx, &models.Category{ID: "c1", Name: "Work", UpdatedAt: 3}))

	notes, err := a.PullAllNotes(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, note, notes[0])
	assert.Equal(t, []string{"Bearer s3cret"}, p.auth)

	cats, err := a.PullAllCategories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 1)

	require.NoError(t, a.DeleteNote(ctx, "n 1"))
	require.NoError(t, a.DeleteCategory(ctx, "c1"))
	notes, err = a.PullAllNotes(ctx)
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestAdapter_httpErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	a, err := New("peer", srv.URL)
	require.NoError(t, err)

	err = a.UpsertNote(context.Background(), &models.Note{ID: "n1"})
	assert.True(t, apperrors.Is(err, apperrors.ErrAdapterFailure))
	assert.Contains(t, err.Error(), "status 401")

	_, err = a.PullAllCategories(context.Background())
	assert.True(t, apperrors.Is(err, apperrors.ErrAdapterFailure))
}

func TestAdapter_badBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	a, err := New("peer", srv.URL)
	require.NoError(t, err)
	_, err = a.PullAllNotes(context.Background())
	assert.True(t, apperrors.Is(err, apperrors.ErrAdapterFailure))
}

func TestAdapter_unreachable(t *testing.T) {
	a, err := New("peer", "http://127.0.0.1:1")
	require.NoError(t, err)
	assert.True(t, apperrors.Is(a.DeleteNote(context.Background(), "x"), apperrors.ErrAdapterFailure))
}
