package models

import "github.com/kimhsiao/notecore/internal/uuid"

// Category represents a user-defined label used to group and color notes.
type Category struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Color string `json:"color" yaml:"color"`
	// UpdatedAt is stored as given; zero means the age is unknown.
	UpdatedAt int64 `json:"updatedAt,omitempty" yaml:"updated_at,omitempty"`
}

// TableName returns the table name for Category.
func (Category) TableName() string {
	return "categories"
}

// Kind implements Record.
func (*Category) Kind() Kind { return KindCategory }

// RecordID implements Record.
func (c *Category) RecordID() string { return c.ID }

// Stamp implements Record.
func (c *Category) Stamp() int64 { return c.UpdatedAt }

// Clone returns a copy of c.
func (c *Category) Clone() *Category {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// Uncategorized is the display category for notes without a resolvable primary category.
var Uncategorized = Category{Name: "Uncategorized", Color: "#1b2030"}

var defaultPalette = []struct{ name, color string }{
	{"Ideas", "#FFE8A3"},
	{"Work", "#CDE7FF"},
	{"Personal", "#D9F2E6"},
	{"Learn", "#F2D7F9"},
}

// DefaultCategories returns the bootstrap category set with freshly generated ids.
func DefaultCategories(now int64) []*Category {
	cats := make([]*Category, 0, len(defaultPalette))
	for _, p := range defaultPalette {
		cats = append(cats, &Category{
			ID:        uuid.New(),
			Name:      p.name,
			Color:     p.color,
			UpdatedAt: now,
		})
	}
	return cats
}

// ResolveCategory returns the category with the given id, or a copy of
// Uncategorized when id is empty or dangling.
func ResolveCategory(id string, cats []*Category) *Category {
	if id != "" {
		for _, c := range cats {
			if c.ID == id {
				return c
			}
		}
	}
	u := Uncategorized
	return &u
}
