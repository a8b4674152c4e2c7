// Package sync provides the adapter protocol and the manager that propagates
// local mutations to remote destinations and reconciles what they hold.
package sync

import (
	"context"

	apperrors "github.com/kimhsiao/notecore/internal/errors"
	"github.com/kimhsiao/notecore/internal/models"
)

// Op names an adapter operation.
type Op string

const (
	OpUpsertNote        Op = "upsertNote"
	OpDeleteNote        Op = "deleteNote"
	OpPullAllNotes      Op = "pullAllNotes"
	OpUpsertCategory    Op = "upsertCategory"
	OpDeleteCategory    Op = "deleteCategory"
	OpPullAllCategories Op = "pullAllCategories"
)

// Capabilities is the set of operations an adapter actually supports. The
// manager checks it before invoking an operation.
type Capabilities struct {
	UpsertNote        bool
	DeleteNote        bool
	PullAllNotes      bool
	UpsertCategory    bool
	DeleteCategory    bool
	PullAllCategories bool
}

// AllCapabilities returns a capability set with every operation enabled.
func AllCapabilities() Capabilities {
	return Capabilities{true, true, true, true, true, true}
}

// Supports reports whether op is in the set.
func (c Capabilities) Supports(op Op) bool {
	switch op {
	case OpUpsertNote:
		return c.UpsertNote
	case OpDeleteNote:
		return c.DeleteNote
	case OpPullAllNotes:
		return c.PullAllNotes
	case OpUpsertCategory:
		return c.UpsertCategory
	case OpDeleteCategory:
		return c.DeleteCategory
	case OpPullAllCategories:
		return c.PullAllCategories
	default:
		return false
	}
}

// Adapter is a remote destination for notes and categories.
//
// Implementations must be safe to call from one goroutine at a time; the
// manager never calls the same adapter concurrently. Pulls return the full
// remote collection. Writes are idempotent by id.
type Adapter interface {
	// Name identifies the adapter in logs, reports and the outbox. Names
	// should be unique within a manager.
	Name() string
	Capabilities() Capabilities

	UpsertNote(ctx context.Context, note *models.Note) error
	DeleteNote(ctx context.Context, id string) error
	PullAllNotes(ctx context.Context) ([]*models.Note, error)

	UpsertCategory(ctx context.Context, category *models.Category) error
	DeleteCategory(ctx context.Context, id string) error
	PullAllCategories(ctx context.Context) ([]*models.Category, error)
}

// NotImplemented returns the error an adapter reports for an unsupported operation.
func NotImplemented(op Op) error {
	return apperrors.Newf(apperrors.ErrNotImplemented, "%s is not implemented", op)
}

// Unimplemented can be embedded by adapters that support only part of the
// protocol. Its writes report NOT_IMPLEMENTED and its pulls return nothing.
type Unimplemented struct{}

// Capabilities reports no supported operations.
func (Unimplemented) Capabilities() Capabilities { return Capabilities{} }

func (Unimplemented) UpsertNote(context.Context, *models.Note) error {
	return NotImplemented(OpUpsertNote)
}

func (Unimplemented) DeleteNote(context.Context, string) error {
	return NotImplemented(OpDeleteNote)
}

func (Unimplemented) PullAllNotes(context.Context) ([]*models.Note, error) {
	return nil, nil
}

func (Unimplemented) UpsertCategory(context.Context, *models.Category) error {
	return NotImplemented(OpUpsertCategory)
}

func (Unimplemented) DeleteCategory(context.Context, string) error {
	return NotImplemented(OpDeleteCategory)
}

func (Unimplemented) PullAllCategories(context.Context) ([]*models.Category, error) {
	return nil, nil
}
