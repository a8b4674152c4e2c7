// Package vault provides a sync adapter that mirrors notes into a directory
// of markdown files with YAML frontmatter, one file per note, and categories
// into YAML files. Files edited or added by hand are picked up on pull.
package vault

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	apperrors "github.com/kimhsiao/notecore/internal/errors"
	"github.com/kimhsiao/notecore/internal/logging"
	"github.com/kimhsiao/notecore/internal/models"
	syncpkg "github.com/kimhsiao/notecore/internal/sync"
)

const (
	notesDir      = "notes"
	categoriesDir = "categories"

	// NotePattern matches note files below the notes directory.
	NotePattern = "**/*.md"
	// CategoryPattern matches category files below the categories directory.
	CategoryPattern = "*.yaml"

	// TempFilePrefix is the prefix used for temporary atomic write files.
	TempFilePrefix = ".notecore-tmp-"
)

// Adapter stores records as files below a root directory.
type Adapter struct {
	name     string
	root     string
	debounce time.Duration
}

// Compile-time interface check.
var _ syncpkg.Adapter = (*Adapter)(nil)

// Option configures an Adapter.
type Option func(*Adapter)

// WithDebounce sets how long Watch waits for a burst of file events to settle.
func WithDebounce(d time.Duration) Option {
	return func(a *Adapter) { a.debounce = d }
}

// New creates the vault directories below root if needed.
func New(name, root string, opts ...Option) (*Adapter, error) {
	a := &Adapter{name: name, root: root, debounce: 250 * time.Millisecond}
	for _, opt := range opts {
		opt(a)
	}
	for _, dir := range []string{a.notesPath(), a.categoriesPath()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrAdapterFailure, "create vault directory", err)
		}
	}
	return a, nil
}

// Name implements sync.Adapter.
func (a *Adapter) Name() string { return a.name }

// Capabilities implements sync.Adapter.
func (a *Adapter) Capabilities() syncpkg.Capabilities { return syncpkg.AllCapabilities() }

// Root returns the vault directory.
func (a *Adapter) Root() string { return a.root }

func (a *Adapter) notesPath() string      { return filepath.Join(a.root, notesDir) }
func (a *Adapter) categoriesPath() string { return filepath.Join(a.root, categoriesDir) }

func fileName(id, ext string) (string, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return "", apperrors.Newf(apperrors.ErrInvalid, "id %q cannot be used as a file name", id)
	}
	return id + ext, nil
}

func (a *Adapter) notePath(id string) (string, error) {
	name, err := fileName(id, ".md")
	if err != nil {
		return "", err
	}
	return filepath.Join(a.notesPath(), name), nil
}

func (a *Adapter) categoryPath(id string) (string, error) {
	name, err := fileName(id, ".yaml")
	if err != nil {
		return "", err
	}
	return filepath.Join(a.categoriesPath(), name), nil
}

func (a *Adapter) fail(op string, err error) error {
	if apperrors.Is(err, apperrors.ErrInvalid) {
		return err
	}
	return apperrors.Wrap(apperrors.ErrAdapterFailure, fmt.Sprintf("%s: %s", a.name, op), err)
}

// UpsertNote implements sync.Adapter.
func (a *Adapter) UpsertNote(ctx context.Context, note *models.Note) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := a.notePath(note.ID)
	if err != nil {
		return err
	}
	data, err := MarshalNote(note)
	if err != nil {
		return a.fail("encode note", err)
	}
	if err := writeFileAtomic(p, data, 0o644); err != nil {
		return a.fail("write note", err)
	}
	return nil
}

// DeleteNote implements sync.Adapter. Files moved into subdirectories are
// found by their frontmatter id.
func (a *Adapter) DeleteNote(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := a.notePath(id)
	if err != nil {
		return err
	}
	if err := removeIfExists(p); err != nil {
		return a.fail("delete note", err)
	}

	files, err := a.noteFiles()
	if err != nil {
		return a.fail("list notes", err)
	}
	for _, rel := range files {
		full := filepath.Join(a.notesPath(), filepath.FromSlash(rel))
		n, err := a.readNote(full, rel)
		if err != nil || n.ID != id {
			continue
		}
		if err := removeIfExists(full); err != nil {
			return a.fail("delete note", err)
		}
	}
	return nil
}

// PullAllNotes implements sync.Adapter. Unreadable files are logged and skipped.
func (a *Adapter) PullAllNotes(ctx context.Context) ([]*models.Note, error) {
	files, err := a.noteFiles()
	if err != nil {
		return nil, a.fail("list notes", err)
	}

	notes := make([]*models.Note, 0, len(files))
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := a.readNote(filepath.Join(a.notesPath(), filepath.FromSlash(rel)), rel)
		if err != nil {
			logging.Warn("Skipping unreadable vault note", map[string]interface{}{
				"adapter": a.name,
				"file":    rel,
				"error":   err.Error(),
			})
			continue
		}
		notes = append(notes, n)
	}
	return notes, nil
}

func (a *Adapter) noteFiles() ([]string, error) {
	files, err := doublestar.Glob(os.DirFS(a.notesPath()), NotePattern)
	if err != nil {
		return nil, err
	}
	out := files[:0]
	for _, f := range files {
		if !strings.HasPrefix(path.Base(f), TempFilePrefix) {
			out = append(out, f)
		}
	}
	return out, nil
}

// readNote fills in what a hand-written file leaves out: the id from the file
// name, the title from the file name and the stamps from the modification time.
func (a *Adapter) readNote(full, rel string) (*models.Note, error) {
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, err
	}
	n, err := UnmarshalNote(data)
	if err != nil {
		return nil, err
	}

	stem := strings.TrimSuffix(path.Base(rel), path.Ext(rel))
	if n.ID == "" {
		n.ID = stem
	}
	if n.Title == "" {
		n.Title = stem
	}
	if n.Format == "" {
		n.Format = models.FormatRichText
	}
	if n.Categories == nil {
		n.Categories = models.IDList{}
	}
	if n.UpdatedAt == 0 {
		info, err := os.Stat(full)
		if err != nil {
			return nil, err
		}
		n.UpdatedAt = info.ModTime().UnixMilli()
	}
	if n.CreatedAt == 0 {
		n.CreatedAt = n.UpdatedAt
	}
	return n, nil
}

// UpsertCategory implements sync.Adapter.
func (a *Adapter) UpsertCategory(ctx context.Context, category *models.Category) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := a.categoryPath(category.ID)
	if err != nil {
		return err
	}
	data, err := MarshalCategory(category)
	if err != nil {
		return a.fail("encode category", err)
	}
	if err := writeFileAtomic(p, data, 0o644); err != nil {
		return a.fail("write category", err)
	}
	return nil
}

// DeleteCategory implements sync.Adapter.
func (a *Adapter) DeleteCategory(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := a.categoryPath(id)
	if err != nil {
		return err
	}
	if err := removeIfExists(p); err != nil {
		return a.fail("delete category", err)
	}
	return nil
}

// PullAllCategories implements sync.Adapter. Unreadable files are logged and skipped.
func (a *Adapter) PullAllCategories(ctx context.Context) ([]*models.Category, error) {
	files, err := doublestar.Glob(os.DirFS(a.categoriesPath()), CategoryPattern)
	if err != nil {
		return nil, a.fail("list categories", err)
	}

	cats := make([]*models.Category, 0, len(files))
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if strings.HasPrefix(rel, TempFilePrefix) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(a.categoriesPath(), rel))
		if err != nil {
			return nil, a.fail("read category", err)
		}
		c, err := UnmarshalCategory(data)
		if err != nil {
			logging.Warn("Skipping unreadable vault category", map[string]interface{}{
				"adapter": a.name,
				"file":    rel,
				"error":   err.Error(),
			})
			continue
		}
		if c.ID == "" {
			c.ID = strings.TrimSuffix(rel, path.Ext(rel))
		}
		cats = append(cats, c)
	}
	return cats, nil
}

func removeIfExists(p string) error {
	if err := os.Remove(p); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// writeFileAtomic writes data to a file atomically by writing to a temp file
// and then renaming it to the target filename.
func writeFileAtomic(filename string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(filename)

	tmpFile, err := os.CreateTemp(dir, TempFilePrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpFile.Name(), perm); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpFile.Name(), filename); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", filename, err)
	}
	return nil
}
