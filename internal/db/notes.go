package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/kimhsiao/notecore/internal/models"
)

const noteColumns = `id, title, content, format, primary_category_id, categories, created_at, updated_at`

const upsertNoteQuery = `
	INSERT INTO notes (` + noteColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		content = excluded.content,
		format = excluded.format,
		primary_category_id = excluded.primary_category_id,
		categories = excluded.categories,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at
	`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNote(row rowScanner) (*models.Note, error) {
	var n models.Note
	if err := row.Scan(&n.ID, &n.Title, &n.Content, &n.Format, &n.PrimaryCategoryID,
		&n.Categories, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	return &n, nil
}

func writeNote(ctx context.Context, tx *sql.Tx, n *models.Note) error {
	if n.Format == "" {
		n.Format = models.FormatRichText
	}
	if n.Categories == nil {
		n.Categories = models.IDList{}
	}
	_, err := tx.ExecContext(ctx, upsertNoteQuery, n.ID, n.Title, n.Content, n.Format,
		n.PrimaryCategoryID, n.Categories, n.CreatedAt, n.UpdatedAt)
	return err
}

// SaveNote inserts or replaces a note by id and returns the stored record.
// UpdatedAt is stamped with the current time, or previous+1 when the clock has
// not advanced past the stored value, so it strictly increases per record.
// A zero CreatedAt keeps the stored value, or takes the stamp for new notes.
func (s *Store) SaveNote(ctx context.Context, note *models.Note) (*models.Note, error) {
	if note == nil || note.ID == "" {
		return nil, storageErr("save note", errors.New("note id is required"))
	}
	n := note.Clone()

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var prevCreated, prevUpdated int64
		err := tx.QueryRowContext(ctx, `SELECT created_at, updated_at FROM notes WHERE id = ?`, n.ID).
			Scan(&prevCreated, &prevUpdated)
		exists := err == nil
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		stamp := s.nowMillis()
		if exists && stamp <= prevUpdated {
			stamp = prevUpdated + 1
		}
		n.UpdatedAt = stamp
		if n.CreatedAt == 0 {
			if exists {
				n.CreatedAt = prevCreated
			} else {
				n.CreatedAt = stamp
			}
		}
		return writeNote(ctx, tx, n)
	})
	if err != nil {
		return nil, storageErr("save note", err)
	}

	s.changed()
	return n, nil
}

// PutNote writes a note exactly as given, keeping its UpdatedAt. It is the
// replication path used when adopting a newer remote copy.
func (s *Store) PutNote(ctx context.Context, note *models.Note) error {
	if note == nil || note.ID == "" {
		return storageErr("put note", errors.New("note id is required"))
	}
	n := note.Clone()
	if n.CreatedAt == 0 {
		n.CreatedAt = n.UpdatedAt
	}
	if err := s.inTx(ctx, func(tx *sql.Tx) error {
		return writeNote(ctx, tx, n)
	}); err != nil {
		return storageErr("put note", err)
	}

	s.changed()
	return nil
}

// PutNoteIfNewer writes a note keeping its UpdatedAt, but only when no stored
// copy exists or the stored copy's UpdatedAt is strictly older. The comparison
// and the write share one transaction, so a local save that lands first is
// never overwritten by an equal or older copy. It reports whether it wrote.
func (s *Store) PutNoteIfNewer(ctx context.Context, note *models.Note) (bool, error) {
	if note == nil || note.ID == "" {
		return false, storageErr("put note", errors.New("note id is required"))
	}
	n := note.Clone()
	if n.CreatedAt == 0 {
		n.CreatedAt = n.UpdatedAt
	}

	var applied bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var prev int64
		err := tx.QueryRowContext(ctx, `SELECT updated_at FROM notes WHERE id = ?`, n.ID).Scan(&prev)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return err
		case n.UpdatedAt <= prev:
			return nil
		}
		applied = true
		return writeNote(ctx, tx, n)
	})
	if err != nil {
		return false, storageErr("put note", err)
	}

	if applied {
		s.changed()
	}
	return applied, nil
}

// GetNote returns the note with the given id. A missing note is reported
// through found, never as an error.
func (s *Store) GetNote(ctx context.Context, id string) (*models.Note, bool, error) {
	stmt, err := s.prepare(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`)
	if err != nil {
		return nil, false, storageErr("get note", err)
	}

	n, err := scanNote(stmt.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storageErr("get note", err)
	}
	return n, true, nil
}

// ListNotes returns every note, most recently updated first.
func (s *Store) ListNotes(ctx context.Context) ([]*models.Note, error) {
	notes, err := s.queryNotes(ctx, `SELECT `+noteColumns+` FROM notes ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, storageErr("list notes", err)
	}
	return notes, nil
}

// ListNotesByCategory returns the notes whose primary category is categoryID,
// most recently updated first. An empty categoryID lists uncategorized notes.
func (s *Store) ListNotesByCategory(ctx context.Context, categoryID string) ([]*models.Note, error) {
	notes, err := s.queryNotes(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE primary_category_id = ? ORDER BY updated_at DESC, id`,
		categoryID)
	if err != nil {
		return nil, storageErr("list notes by category", err)
	}
	return notes, nil
}

func (s *Store) queryNotes(ctx context.Context, query string, args ...interface{}) ([]*models.Note, error) {
	stmt, err := s.prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notes := []*models.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return notes, nil
}

// DeleteNote removes the note with the given id. Deleting a missing note is a no-op.
func (s *Store) DeleteNote(ctx context.Context, id string) error {
	if err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
		return err
	}); err != nil {
		return storageErr("delete note", err)
	}

	s.changed()
	return nil
}
