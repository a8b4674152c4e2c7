// Package postgres provides a sync adapter that mirrors notes and categories
// into a shared PostgreSQL database.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/kimhsiao/notecore/internal/errors"
	"github.com/kimhsiao/notecore/internal/logging"
	"github.com/kimhsiao/notecore/internal/models"
	syncpkg "github.com/kimhsiao/notecore/internal/sync"
)

const schema = `
CREATE TABLE IF NOT EXISTS notecore_notes (
	id                  TEXT PRIMARY KEY,
	title               TEXT NOT NULL,
	content             TEXT NOT NULL,
	format              TEXT NOT NULL,
	primary_category_id TEXT NOT NULL DEFAULT '',
	categories          JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at          BIGINT NOT NULL,
	updated_at          BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS notecore_categories (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	color      TEXT NOT NULL,
	updated_at BIGINT NOT NULL DEFAULT 0
);
`

const (
	upsertNoteSQL = `
INSERT INTO notecore_notes (id, title, content, format, primary_category_id, categories, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8)
ON CONFLICT (id) DO UPDATE SET
	title = EXCLUDED.title,
	content = EXCLUDED.content,
	format = EXCLUDED.format,
	primary_category_id = EXCLUDED.primary_category_id,
	categories = EXCLUDED.categories,
	created_at = EXCLUDED.created_at,
	updated_at = EXCLUDED.updated_at`

	selectNotesSQL = `
SELECT id, title, content, format, primary_category_id, categories, created_at, updated_at
FROM notecore_notes`

	upsertCategorySQL = `
INSERT INTO notecore_categories (id, name, color, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	color = EXCLUDED.color,
	updated_at = EXCLUDED.updated_at`

	selectCategoriesSQL = `SELECT id, name, color, updated_at FROM notecore_categories`
)

// Adapter stores records in the notecore_notes and notecore_categories tables.
type Adapter struct {
	name string
	pool *pgxpool.Pool
}

// Compile-time interface check.
var _ syncpkg.Adapter = (*Adapter)(nil)

// Open connects to dsn, verifies the connection and creates the tables when
// they are missing.
func Open(ctx context.Context, name, dsn string) (*Adapter, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConfigInvalid, name+": parse dsn", err)
	}
	cfg.MaxConns = 4
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrAdapterFailure, name+": connect", err)
	}
	a := &Adapter{name: name, pool: pool}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, a.fail("ping", err)
	}
	if err := a.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return a, nil
}

// Close releases the connection pool.
func (a *Adapter) Close() {
	a.pool.Close()
}

// EnsureSchema creates the adapter's tables if they do not exist.
func (a *Adapter) EnsureSchema(ctx context.Context) error {
	if _, err := a.pool.Exec(ctx, schema); err != nil {
		return a.fail("create schema", err)
	}
	return nil
}

// Name implements sync.Adapter.
func (a *Adapter) Name() string { return a.name }

// Capabilities implements sync.Adapter.
func (a *Adapter) Capabilities() syncpkg.Capabilities { return syncpkg.AllCapabilities() }

// UpsertNote implements sync.Adapter.
func (a *Adapter) UpsertNote(ctx context.Context, note *models.Note) error {
	categories, err := json.Marshal(note.Categories.Dedupe())
	if err != nil {
		return a.fail("upsert note", err)
	}
	return a.exec(ctx, "upsert note", upsertNoteSQL,
		note.ID, note.Title, note.Content, string(note.Format), note.PrimaryCategoryID,
		string(categories), note.CreatedAt, note.UpdatedAt)
}

// DeleteNote implements sync.Adapter.
func (a *Adapter) DeleteNote(ctx context.Context, id string) error {
	return a.exec(ctx, "delete note", `DELETE FROM notecore_notes WHERE id = $1`, id)
}

// PullAllNotes implements sync.Adapter.
func (a *Adapter) PullAllNotes(ctx context.Context) ([]*models.Note, error) {
	var notes []*models.Note
	err := a.query(ctx, "pull notes", selectNotesSQL, func(rows pgx.Rows) error {
		n := &models.Note{}
		var format string
		var categories []byte
		if err := rows.Scan(&n.ID, &n.Title, &n.Content, &format, &n.PrimaryCategoryID,
			&categories, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return err
		}
		n.Format = models.Format(format)
		if err := n.Categories.Scan(categories); err != nil {
			return err
		}
		notes = append(notes, n)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return notes, nil
}

// UpsertCategory implements sync.Adapter.
func (a *Adapter) UpsertCategory(ctx context.Context, category *models.Category) error {
	return a.exec(ctx, "upsert category", upsertCategorySQL,
		category.ID, category.Name, category.Color, category.UpdatedAt)
}

// DeleteCategory implements sync.Adapter.
func (a *Adapter) DeleteCategory(ctx context.Context, id string) error {
	return a.exec(ctx, "delete category", `DELETE FROM notecore_categories WHERE id = $1`, id)
}

// PullAllCategories implements sync.Adapter.
func (a *Adapter) PullAllCategories(ctx context.Context) ([]*models.Category, error) {
	var cats []*models.Category
	err := a.query(ctx, "pull categories", selectCategoriesSQL, func(rows pgx.Rows) error {
		c := &models.Category{}
		if err := rows.Scan(&c.ID, &c.Name, &c.Color, &c.UpdatedAt); err != nil {
			return err
		}
		cats = append(cats, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cats, nil
}

// exec runs a statement, recreating the schema and retrying once when a
// table has been dropped underneath the adapter.
func (a *Adapter) exec(ctx context.Context, op, sql string, args ...interface{}) error {
	_, err := a.pool.Exec(ctx, sql, args...)
	if IsUndefinedTable(err) {
		if err := a.EnsureSchema(ctx); err != nil {
			return err
		}
		_, err = a.pool.Exec(ctx, sql, args...)
	}
	if err != nil {
		return a.fail(op, err)
	}
	return nil
}

func (a *Adapter) query(ctx context.Context, op, sql string, scan func(pgx.Rows) error) error {
	rows, err := a.pool.Query(ctx, sql)
	if IsUndefinedTable(err) {
		// Nothing has been written yet.
		return nil
	}
	if err != nil {
		return a.fail(op, err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return a.fail(op, err)
		}
	}
	if err := rows.Err(); err != nil {
		if IsUndefinedTable(err) {
			return nil
		}
		return a.fail(op, err)
	}
	return nil
}

func (a *Adapter) fail(op string, err error) error {
	if IsUnavailable(err) {
		logging.Warn("Postgres unavailable", map[string]interface{}{
			"adapter": a.name,
			"op":      op,
			"error":   err.Error(),
		})
	}
	return apperrors.Wrap(apperrors.ErrAdapterFailure, fmt.Sprintf("%s: %s%s", a.name, op, describe(err)), err)
}

// IsUndefinedTable reports whether err is PostgreSQL's undefined_table error.
func IsUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable
}

// IsUnavailable reports whether err means the server could not serve the
// request at all, as opposed to rejecting it.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if pgconn.Timeout(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgerrcode.IsConnectionException(pgErr.Code) ||
			pgerrcode.IsInsufficientResources(pgErr.Code) ||
			pgerrcode.IsOperatorIntervention(pgErr.Code)
	}
	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr)
}

// describe returns " (SQLSTATE xxxxx)" for server errors.
func describe(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Sprintf(" (SQLSTATE %s)", pgErr.Code)
	}
	return ""
}
