// Package memory provides an in-process sync adapter. It backs tests and the
// "memory" adapter type in configuration.
package memory

import (
	"context"
	"sort"
	"sync"

	apperrors "github.com/kimhsiao/notecore/internal/errors"
	"github.com/kimhsiao/notecore/internal/models"
	syncpkg "github.com/kimhsiao/notecore/internal/sync"
)

// Adapter keeps notes and categories in maps.
type Adapter struct {
	name string
	caps syncpkg.Capabilities

	mu         sync.RWMutex
	notes      map[string]*models.Note
	categories map[string]*models.Category
	failing    bool
	calls      int
}

// Compile-time interface check.
var _ syncpkg.Adapter = (*Adapter)(nil)

// Option configures an Adapter.
type Option func(*Adapter)

// WithCapabilities restricts the operations the adapter reports.
func WithCapabilities(c syncpkg.Capabilities) Option {
	return func(a *Adapter) { a.caps = c }
}

// New creates an empty adapter supporting every operation.
func New(name string, opts ...Option) *Adapter {
	a := &Adapter{
		name:       name,
		caps:       syncpkg.AllCapabilities(),
		notes:      make(map[string]*models.Note),
		categories: make(map[string]*models.Category),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name implements sync.Adapter.
func (a *Adapter) Name() string { return a.name }

// Capabilities implements sync.Adapter.
func (a *Adapter) Capabilities() syncpkg.Capabilities { return a.caps }

// SetFailing makes every subsequent call fail with ADAPTER_FAILURE until reset.
func (a *Adapter) SetFailing(failing bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failing = failing
}

// Calls returns how many operations were invoked.
func (a *Adapter) Calls() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.calls
}

func (a *Adapter) begin(ctx context.Context) error {
	a.calls++
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.failing {
		return apperrors.Newf(apperrors.ErrAdapterFailure, "%s: adapter unavailable", a.name)
	}
	return nil
}

// UpsertNote implements sync.Adapter.
func (a *Adapter) UpsertNote(ctx context.Context, note *models.Note) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.begin(ctx); err != nil {
		return err
	}
	a.notes[note.ID] = note.Clone()
	return nil
}

// DeleteNote implements sync.Adapter.
func (a *Adapter) DeleteNote(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.begin(ctx); err != nil {
		return err
	}
	delete(a.notes, id)
	return nil
}

// PullAllNotes implements sync.Adapter. Notes are returned in id order.
func (a *Adapter) PullAllNotes(ctx context.Context) ([]*models.Note, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.begin(ctx); err != nil {
		return nil, err
	}
	out := make([]*models.Note, 0, len(a.notes))
	for _, n := range a.notes {
		out = append(out, n.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpsertCategory implements sync.Adapter.
func (a *Adapter) UpsertCategory(ctx context.Context, category *models.Category) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.begin(ctx); err != nil {
		return err
	}
	a.categories[category.ID] = category.Clone()
	return nil
}

// DeleteCategory implements sync.Adapter.
func (a *Adapter) DeleteCategory(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.begin(ctx); err != nil {
		return err
	}
	delete(a.categories, id)
	return nil
}

// PullAllCategories implements sync.Adapter. Categories are returned in id order.
func (a *Adapter) PullAllCategories(ctx context.Context) ([]*models.Category, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.begin(ctx); err != nil {
		return nil, err
	}
	out := make([]*models.Category, 0, len(a.categories))
	for _, c := range a.categories {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Note returns the stored copy of a note.
func (a *Adapter) Note(id string) (*models.Note, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	n, ok := a.notes[id]
	return n.Clone(), ok
}

// Category returns the stored copy of a category.
func (a *Adapter) Category(id string) (*models.Category, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	c, ok := a.categories[id]
	return c.Clone(), ok
}

// Len returns the number of stored notes and categories.
func (a *Adapter) Len() (notes, categories int) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.notes), len(a.categories)
}
