package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/kimhsiao/notecore/internal/models"
)

const upsertCategoryQuery = `
	INSERT INTO categories (id, name, color, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		color = excluded.color,
		updated_at = excluded.updated_at
	`

// SaveCategory inserts or replaces a category by id. Categories are stored
// as given; UpdatedAt is not stamped.
func (s *Store) SaveCategory(ctx context.Context, category *models.Category) (*models.Category, error) {
	if category == nil || category.ID == "" {
		return nil, storageErr("save category", errors.New("category id is required"))
	}
	c := category.Clone()

	if err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, upsertCategoryQuery, c.ID, c.Name, c.Color, c.UpdatedAt)
		return err
	}); err != nil {
		return nil, storageErr("save category", err)
	}

	s.changed()
	return c, nil
}

// StampCategory stores a category with UpdatedAt set to the current time, or
// previous+1 when the clock has not advanced past the stored value. The read
// of the stored stamp and the write share one transaction.
func (s *Store) StampCategory(ctx context.Context, category *models.Category) (*models.Category, error) {
	if category == nil || category.ID == "" {
		return nil, storageErr("save category", errors.New("category id is required"))
	}
	c := category.Clone()

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var prev int64
		err := tx.QueryRowContext(ctx, `SELECT updated_at FROM categories WHERE id = ?`, c.ID).Scan(&prev)
		exists := err == nil
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		stamp := s.nowMillis()
		if exists && stamp <= prev {
			stamp = prev + 1
		}
		c.UpdatedAt = stamp
		_, err = tx.ExecContext(ctx, upsertCategoryQuery, c.ID, c.Name, c.Color, c.UpdatedAt)
		return err
	})
	if err != nil {
		return nil, storageErr("save category", err)
	}

	s.changed()
	return c, nil
}

// PutCategoryIfNewer stores a category as given, but only when no stored copy
// exists or the stored copy's UpdatedAt is strictly older. It reports whether
// it wrote.
func (s *Store) PutCategoryIfNewer(ctx context.Context, category *models.Category) (bool, error) {
	if category == nil || category.ID == "" {
		return false, storageErr("put category", errors.New("category id is required"))
	}
	c := category.Clone()

	var applied bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var prev int64
		err := tx.QueryRowContext(ctx, `SELECT updated_at FROM categories WHERE id = ?`, c.ID).Scan(&prev)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return err
		case c.UpdatedAt <= prev:
			return nil
		}
		applied = true
		_, err = tx.ExecContext(ctx, upsertCategoryQuery, c.ID, c.Name, c.Color, c.UpdatedAt)
		return err
	})
	if err != nil {
		return false, storageErr("put category", err)
	}

	if applied {
		s.changed()
	}
	return applied, nil
}

// GetCategory returns the category with the given id. A missing category is
// reported through found, never as an error.
func (s *Store) GetCategory(ctx context.Context, id string) (*models.Category, bool, error) {
	stmt, err := s.prepare(ctx, `SELECT id, name, color, updated_at FROM categories WHERE id = ?`)
	if err != nil {
		return nil, false, storageErr("get category", err)
	}

	var c models.Category
	err = stmt.QueryRowContext(ctx, id).Scan(&c.ID, &c.Name, &c.Color, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storageErr("get category", err)
	}
	return &c, true, nil
}

// ListCategories returns every category ordered by name.
func (s *Store) ListCategories(ctx context.Context) ([]*models.Category, error) {
	stmt, err := s.prepare(ctx, `SELECT id, name, color, updated_at FROM categories ORDER BY name, id`)
	if err != nil {
		return nil, storageErr("list categories", err)
	}
	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, storageErr("list categories", err)
	}
	defer rows.Close()

	cats := []*models.Category{}
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Color, &c.UpdatedAt); err != nil {
			return nil, storageErr("list categories", err)
		}
		cats = append(cats, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list categories", err)
	}
	return cats, nil
}

// DeleteCategory removes the category with the given id. Notes referencing it
// are left as they are. Deleting a missing category is a no-op.
func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	if err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
		return err
	}); err != nil {
		return storageErr("delete category", err)
	}

	s.changed()
	return nil
}

// EnsureDefaultCategories seeds the default category set when the category
// collection is empty and returns the seeded categories. It does nothing and
// returns nil when any category exists. The check and the inserts share one
// transaction.
func (s *Store) EnsureDefaultCategories(ctx context.Context) ([]*models.Category, error) {
	var seeded []*models.Category

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories`).Scan(&count); err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		cats := models.DefaultCategories(s.nowMillis())
		for _, c := range cats {
			if _, err := tx.ExecContext(ctx, upsertCategoryQuery, c.ID, c.Name, c.Color, c.UpdatedAt); err != nil {
				return err
			}
		}
		seeded = cats
		return nil
	})
	if err != nil {
		return nil, storageErr("seed default categories", err)
	}

	if len(seeded) > 0 {
		s.changed()
	}
	return seeded, nil
}
