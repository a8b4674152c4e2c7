package objectstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	apperrors "github.com/kimhsiao/notecore/internal/errors"
	"github.com/kimhsiao/notecore/internal/logging"
	"github.com/kimhsiao/notecore/internal/models"
	syncpkg "github.com/kimhsiao/notecore/internal/sync"
)

const (
	notesPrefix      = "notes/"
	categoriesPrefix = "categories/"
	objectSuffix     = ".json"
)

// Store is the object storage the adapter writes through.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// Compile-time interface checks.
var _ Store = (*Client)(nil)
var _ syncpkg.Adapter = (*Adapter)(nil)

// Adapter keeps <prefix>notes/<id>.json and <prefix>categories/<id>.json.
type Adapter struct {
	name   string
	store  Store
	prefix string
}

// New creates an Adapter. prefix, when set, namespaces every key.
func New(name string, store Store, prefix string) *Adapter {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Adapter{name: name, store: store, prefix: prefix}
}

// Name implements sync.Adapter.
func (a *Adapter) Name() string { return a.name }

// Capabilities implements sync.Adapter.
func (a *Adapter) Capabilities() syncpkg.Capabilities { return syncpkg.AllCapabilities() }

// NoteKey returns the object key of a note.
func (a *Adapter) NoteKey(id string) string {
	return a.prefix + notesPrefix + id + objectSuffix
}

// CategoryKey returns the object key of a category.
func (a *Adapter) CategoryKey(id string) string {
	return a.prefix + categoriesPrefix + id + objectSuffix
}

func (a *Adapter) fail(op string, err error) error {
	return apperrors.Wrap(apperrors.ErrAdapterFailure, fmt.Sprintf("%s: %s", a.name, op), err)
}

func (a *Adapter) put(ctx context.Context, op, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return a.fail(op, err)
	}
	if err := a.store.Put(ctx, key, data); err != nil {
		return a.fail(op, err)
	}
	return nil
}

// UpsertNote implements sync.Adapter.
func (a *Adapter) UpsertNote(ctx context.Context, note *models.Note) error {
	return a.put(ctx, "upsert note", a.NoteKey(note.ID), note)
}

// DeleteNote implements sync.Adapter.
func (a *Adapter) DeleteNote(ctx context.Context, id string) error {
	if err := a.store.Delete(ctx, a.NoteKey(id)); err != nil {
		return a.fail("delete note", err)
	}
	return nil
}

// PullAllNotes implements sync.Adapter. Objects that fail to decode are
// logged and skipped.
func (a *Adapter) PullAllNotes(ctx context.Context) ([]*models.Note, error) {
	var notes []*models.Note
	err := a.pull(ctx, a.prefix+notesPrefix, func(key string, data []byte) error {
		n := &models.Note{}
		if err := json.Unmarshal(data, n); err != nil {
			return err
		}
		notes = append(notes, n)
		return nil
	})
	return notes, err
}

// UpsertCategory implements sync.Adapter.
func (a *Adapter) UpsertCategory(ctx context.Context, category *models.Category) error {
	return a.put(ctx, "upsert category", a.CategoryKey(category.ID), category)
}

// DeleteCategory implements sync.Adapter.
func (a *Adapter) DeleteCategory(ctx context.Context, id string) error {
	if err := a.store.Delete(ctx, a.CategoryKey(id)); err != nil {
		return a.fail("delete category", err)
	}
	return nil
}

// PullAllCategories implements sync.Adapter.
func (a *Adapter) PullAllCategories(ctx context.Context) ([]*models.Category, error) {
	var cats []*models.Category
	err := a.pull(ctx, a.prefix+categoriesPrefix, func(key string, data []byte) error {
		c := &models.Category{}
		if err := json.Unmarshal(data, c); err != nil {
			return err
		}
		cats = append(cats, c)
		return nil
	})
	return cats, err
}

func (a *Adapter) pull(ctx context.Context, prefix string, decode func(key string, data []byte) error) error {
	keys, err := a.store.List(ctx, prefix)
	if err != nil {
		return a.fail("list "+prefix, err)
	}

	for _, key := range keys {
		if !strings.HasSuffix(key, objectSuffix) {
			continue
		}
		data, found, err := a.store.Get(ctx, key)
		if err != nil {
			return a.fail("get "+key, err)
		}
		if !found {
			// Deleted between list and get.
			continue
		}
		if err := decode(key, data); err != nil {
			logging.Warn("Skipping undecodable object", map[string]interface{}{
				"adapter": a.name,
				"key":     key,
				"error":   err.Error(),
			})
		}
	}
	return nil
}
