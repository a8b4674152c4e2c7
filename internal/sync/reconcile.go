package sync

import (
	"context"

	"github.com/kimhsiao/notecore/internal/logging"
	"github.com/kimhsiao/notecore/internal/models"
	"github.com/kimhsiao/notecore/internal/sync/conflict"
)

// LocalStore is the local side of reconciliation.
type LocalStore interface {
	GetNote(ctx context.Context, id string) (*models.Note, bool, error)
	// PutNoteIfNewer writes a note keeping its UpdatedAt when no local copy
	// exists or the local copy is strictly older, checking and writing
	// atomically. It reports whether it wrote.
	PutNoteIfNewer(ctx context.Context, note *models.Note) (bool, error)
	GetCategory(ctx context.Context, id string) (*models.Category, bool, error)
	// PutCategoryIfNewer is PutNoteIfNewer for categories.
	PutCategoryIfNewer(ctx context.Context, category *models.Category) (bool, error)
}

// ConflictRecorder is implemented by stores that keep a conflict log.
type ConflictRecorder interface {
	CreateConflictLog(ctx context.Context, log *models.ConflictLog) error
}

// ReconcileResult summarizes a reconciliation pass.
type ReconcileResult struct {
	NotesInserted      int
	NotesUpdated       int
	CategoriesInserted int
	CategoriesUpdated  int
	// Unchanged counts incoming records that lost to (or tied with) the local copy.
	Unchanged int
	// Conflicts lists local records overwritten by a newer incoming copy.
	Conflicts []*models.ConflictLog
}

// Applied returns the number of local writes performed.
func (r *ReconcileResult) Applied() int {
	return r.NotesInserted + r.NotesUpdated + r.CategoriesInserted + r.CategoriesUpdated
}

// Reconcile merges pulled records into local by last-write-wins on UpdatedAt.
// Duplicates among the pulled records collapse to the newest, ties going to
// the adapter registered first. An incoming record replaces the local one only
// when strictly newer and is inserted when missing locally. The store repeats
// that comparison when writing, so a local save committed after the read is
// kept unless the incoming copy is newer than it too. Local records the
// adapters did not return are left alone; absence never deletes.
//
// The first local write failure stops the pass and is returned together with
// what was applied so far.
func (m *Manager) Reconcile(ctx context.Context, local LocalStore, pulled *Pulled) (*ReconcileResult, error) {
	result := &ReconcileResult{}
	if pulled == nil {
		return result, nil
	}

	candidates := make([]conflict.Candidate, 0, len(pulled.Notes)+len(pulled.Categories))
	for i, n := range pulled.Notes {
		candidates = append(candidates, conflict.Candidate{Record: n, Source: pulled.NoteSource(i)})
	}
	for i, c := range pulled.Categories {
		candidates = append(candidates, conflict.Candidate{Record: c, Source: pulled.CategorySource(i)})
	}

	for _, cand := range m.resolver.Collapse(candidates) {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		var err error
		switch rec := cand.Record.(type) {
		case *models.Note:
			err = m.reconcileNote(ctx, local, rec, cand, result)
		case *models.Category:
			err = m.reconcileCategory(ctx, local, rec, cand, result)
		}
		if err != nil {
			return result, err
		}
	}

	logging.Info("Reconciled pulled records", map[string]interface{}{
		"applied":   result.Applied(),
		"unchanged": result.Unchanged,
		"conflicts": len(result.Conflicts),
	})
	return result, nil
}

func (m *Manager) reconcileNote(ctx context.Context, local LocalStore, incoming *models.Note, cand conflict.Candidate, result *ReconcileResult) error {
	existing, found, err := local.GetNote(ctx, incoming.ID)
	if err != nil {
		return err
	}

	var current models.Record
	if found {
		current = existing
	}
	res, err := m.resolver.Resolve(current, cand)
	if err != nil {
		return err
	}
	if !res.Adopt {
		result.Unchanged++
		return nil
	}

	applied, err := local.PutNoteIfNewer(ctx, incoming)
	if err != nil {
		return err
	}
	if !applied {
		result.Unchanged++
		logSuperseded(incoming)
		return nil
	}
	if found {
		result.NotesUpdated++
	} else {
		result.NotesInserted++
	}
	m.recordConflict(ctx, local, res, result)
	return nil
}

func (m *Manager) reconcileCategory(ctx context.Context, local LocalStore, incoming *models.Category, cand conflict.Candidate, result *ReconcileResult) error {
	existing, found, err := local.GetCategory(ctx, incoming.ID)
	if err != nil {
		return err
	}

	var current models.Record
	if found {
		current = existing
	}
	res, err := m.resolver.Resolve(current, cand)
	if err != nil {
		return err
	}
	if !res.Adopt {
		result.Unchanged++
		return nil
	}

	applied, err := local.PutCategoryIfNewer(ctx, incoming)
	if err != nil {
		return err
	}
	if !applied {
		result.Unchanged++
		logSuperseded(incoming)
		return nil
	}
	if found {
		result.CategoriesUpdated++
	} else {
		result.CategoriesInserted++
	}
	m.recordConflict(ctx, local, res, result)
	return nil
}

// logSuperseded notes an incoming record that lost to a local write made
// while it was being reconciled.
func logSuperseded(rec models.Record) {
	logging.Debug("Incoming record superseded by a concurrent local write", map[string]interface{}{
		"kind":      rec.Kind(),
		"record_id": rec.RecordID(),
		"timestamp": rec.Stamp(),
	})
}

func (m *Manager) recordConflict(ctx context.Context, local LocalStore, res *conflict.ResolveResult, result *ReconcileResult) {
	if res.ConflictLog == nil {
		return
	}
	result.Conflicts = append(result.Conflicts, res.ConflictLog)

	recorder, ok := local.(ConflictRecorder)
	if !ok {
		return
	}
	if err := recorder.CreateConflictLog(ctx, res.ConflictLog); err != nil {
		logging.Error("Failed to record conflict", err, map[string]interface{}{
			"kind":      res.ConflictLog.Kind,
			"record_id": res.ConflictLog.RecordID,
		})
	}
}
