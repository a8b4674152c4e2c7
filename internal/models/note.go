package models

import "time"

// Format is the variant tag of a note's content.
type Format string

const (
	// FormatRichText content is serialized rich markup.
	FormatRichText Format = "richtext"
	// FormatCode content is plain text edited as code.
	FormatCode Format = "code"
)

// Valid reports whether f is a supported format.
func (f Format) Valid() bool {
	return f == FormatRichText || f == FormatCode
}

// DefaultTitle is used when a note is saved without a title.
const DefaultTitle = "Untitled"

// Note represents a single note.
type Note struct {
	ID                string `json:"id" yaml:"id"`
	Title             string `json:"title" yaml:"title"`
	Content           string `json:"content" yaml:"-"`
	Format            Format `json:"format" yaml:"format"`
	PrimaryCategoryID string `json:"primaryCategoryId" yaml:"primary_category_id"`
	Categories        IDList `json:"categories" yaml:"categories"`
	CreatedAt         int64  `json:"createdAt" yaml:"created_at"`
	UpdatedAt         int64  `json:"updatedAt" yaml:"updated_at"`
}

// TableName returns the table name for Note.
func (Note) TableName() string {
	return "notes"
}

// Kind implements Record.
func (*Note) Kind() Kind { return KindNote }

// RecordID implements Record.
func (n *Note) RecordID() string { return n.ID }

// Stamp implements Record.
func (n *Note) Stamp() int64 { return n.UpdatedAt }

// CreatedAtTime returns the CreatedAt as time.Time.
func (n *Note) CreatedAtTime() time.Time {
	return time.UnixMilli(n.CreatedAt)
}

// UpdatedAtTime returns the UpdatedAt as time.Time.
func (n *Note) UpdatedAtTime() time.Time {
	return time.UnixMilli(n.UpdatedAt)
}

// Clone returns a deep copy of n.
func (n *Note) Clone() *Note {
	if n == nil {
		return nil
	}
	c := *n
	if n.Categories != nil {
		c.Categories = append(IDList(nil), n.Categories...)
	}
	return &c
}
