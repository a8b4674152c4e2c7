// Package db provides repository interfaces for the record store.
package db

import (
	"context"

	"github.com/kimhsiao/notecore/internal/models"
)

// NoteRepository defines operations for note persistence.
type NoteRepository interface {
	// SaveNote stamps and stores a note.
	SaveNote(ctx context.Context, note *models.Note) (*models.Note, error)

	// PutNote stores a note keeping its timestamps.
	PutNote(ctx context.Context, note *models.Note) error

	// PutNoteIfNewer stores a note keeping its timestamps when it is newer
	// than the stored copy.
	PutNoteIfNewer(ctx context.Context, note *models.Note) (bool, error)

	// GetNote retrieves a note by ID.
	GetNote(ctx context.Context, id string) (*models.Note, bool, error)

	// ListNotes returns all notes, newest first.
	ListNotes(ctx context.Context) ([]*models.Note, error)

	// ListNotesByCategory returns notes with the given primary category.
	ListNotesByCategory(ctx context.Context, categoryID string) ([]*models.Note, error)

	// DeleteNote removes a note.
	DeleteNote(ctx context.Context, id string) error
}

// CategoryRepository defines operations for category persistence.
type CategoryRepository interface {
	SaveCategory(ctx context.Context, category *models.Category) (*models.Category, error)
	StampCategory(ctx context.Context, category *models.Category) (*models.Category, error)
	PutCategoryIfNewer(ctx context.Context, category *models.Category) (bool, error)
	GetCategory(ctx context.Context, id string) (*models.Category, bool, error)
	ListCategories(ctx context.Context) ([]*models.Category, error)
	DeleteCategory(ctx context.Context, id string) error
	EnsureDefaultCategories(ctx context.Context) ([]*models.Category, error)
}

// OutboxRepository defines operations for sync outbox persistence.
type OutboxRepository interface {
	CreateOutboxEntry(ctx context.Context, entry *models.OutboxEntry) error
	GetOutboxEntry(ctx context.Context, id string) (*models.OutboxEntry, bool, error)
	UpdateOutboxEntry(ctx context.Context, entry *models.OutboxEntry) error
	DeleteOutboxEntry(ctx context.Context, id string) error
	DeleteOutboxEntriesFor(ctx context.Context, adapter string, kind models.Kind, recordID string) error
	ListOutboxEntries(ctx context.Context, status models.OutboxStatus) ([]*models.OutboxEntry, error)
	ListDueOutboxEntries(ctx context.Context, now int64, limit int) ([]*models.OutboxEntry, error)
	CountOutboxEntries(ctx context.Context) (map[models.OutboxStatus]int, error)
	ResetFailedOutboxEntries(ctx context.Context, now int64) (int, error)
}

// ConflictLogRepository defines operations for conflict log persistence.
type ConflictLogRepository interface {
	CreateConflictLog(ctx context.Context, log *models.ConflictLog) error
	ListConflictLogs(ctx context.Context, limit int) ([]*models.ConflictLog, error)
}

// SyncRepository groups the repositories the sync layer writes to.
type SyncRepository interface {
	NoteRepository
	CategoryRepository
	ConflictLogRepository
}

// Ensure *Store implements the interfaces at compile time.
var (
	_ NoteRepository        = (*Store)(nil)
	_ CategoryRepository    = (*Store)(nil)
	_ OutboxRepository      = (*Store)(nil)
	_ ConflictLogRepository = (*Store)(nil)
	_ SyncRepository        = (*Store)(nil)
)
