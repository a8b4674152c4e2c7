// Package services provides the mutation entry points used by the CLI and the
// HTTP handlers: local commit first, then best-effort propagation.
package services

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	apperrors "github.com/kimhsiao/notecore/internal/errors"
	"github.com/kimhsiao/notecore/internal/logging"
	"github.com/kimhsiao/notecore/internal/models"
	syncpkg "github.com/kimhsiao/notecore/internal/sync"
	"github.com/kimhsiao/notecore/internal/uuid"
)

// DefaultTitle is given to notes saved with a blank title.
const DefaultTitle = "Untitled"

// Store is the local record store the service commits to.
type Store interface {
	SaveNote(ctx context.Context, note *models.Note) (*models.Note, error)
	PutNoteIfNewer(ctx context.Context, note *models.Note) (bool, error)
	GetNote(ctx context.Context, id string) (*models.Note, bool, error)
	ListNotes(ctx context.Context) ([]*models.Note, error)
	ListNotesByCategory(ctx context.Context, categoryID string) ([]*models.Note, error)
	DeleteNote(ctx context.Context, id string) error

	StampCategory(ctx context.Context, category *models.Category) (*models.Category, error)
	PutCategoryIfNewer(ctx context.Context, category *models.Category) (bool, error)
	GetCategory(ctx context.Context, id string) (*models.Category, bool, error)
	ListCategories(ctx context.Context) ([]*models.Category, error)
	DeleteCategory(ctx context.Context, id string) error
	EnsureDefaultCategories(ctx context.Context) ([]*models.Category, error)
}

// NoteService commits note and category mutations locally and fans them out
// to the sync adapters. Local errors are returned; sync failures are not.
type NoteService struct {
	store   Store
	manager *syncpkg.Manager

	// Event callback for conflict notifications
	onConflicts func(conflicts []*models.ConflictLog)

	mu sync.RWMutex
}

// NewNoteService creates a NoteService. manager may be nil for a store-only service.
func NewNoteService(store Store, manager *syncpkg.Manager) *NoteService {
	if manager == nil {
		manager = syncpkg.NewManager()
	}
	return &NoteService{
		store:   store,
		manager: manager,
	}
}

// Manager returns the sync manager mutations are propagated through.
func (s *NoteService) Manager() *syncpkg.Manager {
	return s.manager
}

// SetConflictCallback registers fn to receive the conflicts of every pull
// that overwrote local records.
func (s *NoteService) SetConflictCallback(fn func(conflicts []*models.ConflictLog)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConflicts = fn
}

// NormalizeNote returns a copy of note ready to be stored: a generated id when
// blank, a trimmed NFC title defaulting to "Untitled", the default format and
// deduplicated category ids. Unknown formats are rejected.
func NormalizeNote(note *models.Note) (*models.Note, error) {
	if note == nil {
		return nil, apperrors.New(apperrors.ErrInvalid, "note is required")
	}
	n := note.Clone()
	n.ID = uuid.Ensure(n.ID)

	n.Title = norm.NFC.String(strings.TrimSpace(n.Title))
	if n.Title == "" {
		n.Title = DefaultTitle
	}

	if n.Format == "" {
		n.Format = models.FormatRichText
	}
	if !n.Format.Valid() {
		return nil, apperrors.Newf(apperrors.ErrInvalid, "unsupported note format %q", n.Format)
	}

	n.PrimaryCategoryID = strings.TrimSpace(n.PrimaryCategoryID)
	n.Categories = n.Categories.Dedupe()
	return n, nil
}

// NormalizeCategory returns a copy of category with a generated id when blank
// and a trimmed NFC name, which must not be empty.
func NormalizeCategory(category *models.Category) (*models.Category, error) {
	if category == nil {
		return nil, apperrors.New(apperrors.ErrInvalid, "category is required")
	}
	c := category.Clone()
	c.ID = uuid.Ensure(c.ID)
	c.Name = norm.NFC.String(strings.TrimSpace(c.Name))
	if c.Name == "" {
		return nil, apperrors.New(apperrors.ErrInvalid, "category name is required")
	}
	c.Color = strings.TrimSpace(c.Color)
	return c, nil
}

// SaveNote normalizes and stores note, then propagates the stored record.
func (s *NoteService) SaveNote(ctx context.Context, note *models.Note) (*models.Note, error) {
	n, err := NormalizeNote(note)
	if err != nil {
		return nil, err
	}

	saved, err := s.store.SaveNote(ctx, n)
	if err != nil {
		return nil, err
	}

	s.manager.PropagateUpsert(ctx, saved)
	return saved, nil
}

// GetNote returns the note with the given id or a NOT_FOUND error.
func (s *NoteService) GetNote(ctx context.Context, id string) (*models.Note, error) {
	n, found, err := s.store.GetNote(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "note %s not found", id)
	}
	return n, nil
}

// ListNotes returns all notes, most recently updated first. A non-nil
// categoryID restricts the list to notes with that primary category.
func (s *NoteService) ListNotes(ctx context.Context, categoryID *string) ([]*models.Note, error) {
	if categoryID != nil {
		return s.store.ListNotesByCategory(ctx, *categoryID)
	}
	return s.store.ListNotes(ctx)
}

// DeleteNote removes the note locally and propagates the delete. Deleting a
// missing note is not an error.
func (s *NoteService) DeleteNote(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperrors.New(apperrors.ErrInvalid, "note id is required")
	}
	if err := s.store.DeleteNote(ctx, id); err != nil {
		return err
	}
	s.manager.PropagateDelete(ctx, models.KindNote, id)
	return nil
}

// SaveCategory normalizes, stamps and stores category, then propagates it.
// The store stamps it strictly greater than the stored copy's UpdatedAt.
func (s *NoteService) SaveCategory(ctx context.Context, category *models.Category) (*models.Category, error) {
	c, err := NormalizeCategory(category)
	if err != nil {
		return nil, err
	}

	saved, err := s.store.StampCategory(ctx, c)
	if err != nil {
		return nil, err
	}

	s.manager.PropagateUpsert(ctx, saved)
	return saved, nil
}

// ListCategories returns all categories ordered by name.
func (s *NoteService) ListCategories(ctx context.Context) ([]*models.Category, error) {
	return s.store.ListCategories(ctx)
}

// DeleteCategory removes the category locally and propagates the delete.
// Notes referencing it keep the dangling id.
func (s *NoteService) DeleteCategory(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperrors.New(apperrors.ErrInvalid, "category id is required")
	}
	if err := s.store.DeleteCategory(ctx, id); err != nil {
		return err
	}
	s.manager.PropagateDelete(ctx, models.KindCategory, id)
	return nil
}

// EnsureDefaultCategories seeds the default categories into an empty store
// and propagates the ones it created.
func (s *NoteService) EnsureDefaultCategories(ctx context.Context) ([]*models.Category, error) {
	seeded, err := s.store.EnsureDefaultCategories(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range seeded {
		s.manager.PropagateUpsert(ctx, c)
	}
	if len(seeded) > 0 {
		logging.Info("Seeded default categories", map[string]interface{}{"count": len(seeded)})
	}
	return seeded, nil
}

// DisplayCategory returns the category a note is shown under: its primary
// category, or Uncategorized when that is empty or dangling.
func (s *NoteService) DisplayCategory(ctx context.Context, note *models.Note) (*models.Category, error) {
	if note == nil || note.PrimaryCategoryID == "" {
		u := models.Uncategorized
		return &u, nil
	}
	c, found, err := s.store.GetCategory(ctx, note.PrimaryCategoryID)
	if err != nil {
		return nil, err
	}
	if !found {
		u := models.Uncategorized
		return &u, nil
	}
	return c, nil
}

// Pull fetches every adapter's records and merges them into the local store
// by last-write-wins. Adapter failures are logged and skipped; local write
// failures are returned.
func (s *NoteService) Pull(ctx context.Context) (*syncpkg.ReconcileResult, error) {
	pulled := s.manager.SyncDown(ctx)

	result, err := s.manager.Reconcile(ctx, s.store, pulled)
	if err != nil {
		logging.ErrorWithCode("Reconcile failed", string(apperrors.CodeOf(err)), err)
		return result, err
	}

	if len(result.Conflicts) > 0 {
		s.mu.RLock()
		cb := s.onConflicts
		s.mu.RUnlock()
		if cb != nil {
			cb(result.Conflicts)
		}
	}
	return result, nil
}

// ApplyRemote merges records pushed by a peer into the local store by the
// same last-write-wins rules as Pull. Nothing is propagated back out.
func (s *NoteService) ApplyRemote(ctx context.Context, source string, notes []*models.Note, cats []*models.Category) (*syncpkg.ReconcileResult, error) {
	pulled := &syncpkg.Pulled{}
	pulled.AddNotes(source, notes...)
	pulled.AddCategories(source, cats...)

	result, err := s.manager.Reconcile(ctx, s.store, pulled)
	if err != nil {
		return result, err
	}
	if len(result.Conflicts) > 0 {
		s.mu.RLock()
		cb := s.onConflicts
		s.mu.RUnlock()
		if cb != nil {
			cb(result.Conflicts)
		}
	}
	return result, nil
}

// ApplyRemoteDelete removes a record a peer deleted. Nothing is propagated.
func (s *NoteService) ApplyRemoteDelete(ctx context.Context, kind models.Kind, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperrors.New(apperrors.ErrInvalid, "id is required")
	}
	switch kind {
	case models.KindNote:
		return s.store.DeleteNote(ctx, id)
	case models.KindCategory:
		return s.store.DeleteCategory(ctx, id)
	default:
		return apperrors.Newf(apperrors.ErrInvalid, "unknown record kind %q", kind)
	}
}
