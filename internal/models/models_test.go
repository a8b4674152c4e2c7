// Package models tests for data model definitions.
package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDList_Value(t *testing.T) {
	v, err := IDList{"a", "b"}.Value()
	require.NoError(t, err)
	assert.Equal(t, `["a","b"]`, v)

	v, err = IDList(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)
}

func TestIDList_Scan(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want IDList
	}{
		{"nil", nil, IDList{}},
		{"string", `["c1","c2"]`, IDList{"c1", "c2"}},
		{"bytes", []byte(`["c1"]`), IDList{"c1"}},
		{"empty string", "", IDList{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var l IDList
			require.NoError(t, l.Scan(tt.in))
			assert.Equal(t, tt.want, l)
		})
	}
}

func TestIDList_Scan_invalid(t *testing.T) {
	var l IDList
	assert.Error(t, l.Scan(42))
	assert.Error(t, l.Scan("not json"))
}

func TestIDList_Dedupe(t *testing.T) {
	got := IDList{"b", "a", "", "b", "c", "a"}.Dedupe()
	assert.Equal(t, IDList{"b", "a", "c"}, got)
}

func TestFormat_Valid(t *testing.T) {
	assert.True(t, FormatRichText.Valid())
	assert.True(t, FormatCode.Valid())
	assert.False(t, Format("markdown").Valid())
	assert.False(t, Format("").Valid())
}

func TestNote_Record(t *testing.T) {
	n := &Note{ID: "n1", UpdatedAt: 42}
	var r Record = n
	assert.Equal(t, KindNote, r.Kind())
	assert.Equal(t, "n1", r.RecordID())
	assert.Equal(t, int64(42), r.Stamp())
	assert.Equal(t, "notes", Note{}.TableName())
}

func TestNote_Times(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_123)
	n := &Note{CreatedAt: now.UnixMilli(), UpdatedAt: now.UnixMilli()}
	assert.True(t, n.CreatedAtTime().Equal(now))
	assert.True(t, n.UpdatedAtTime().Equal(now))
}

func TestNote_Clone(t *testing.T) {
	n := &Note{ID: "n1", Categories: IDList{"c1"}}
	c := n.Clone()
	c.Categories[0] = "changed"
	c.Title = "x"
	assert.Equal(t, "c1", n.Categories[0])
	assert.Empty(t, n.Title)

	var nilNote *Note
	assert.Nil(t, nilNote.Clone())
}

func TestNote_JSONFieldNames(t *testing.T) {
	b, err := json.Marshal(&Note{ID: "n1", PrimaryCategoryID: "c1", UpdatedAt: 5})
	require.NoError(t, err)
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "c1", m["primaryCategoryId"])
	assert.EqualValues(t, 5, m["updatedAt"])
}

func TestCategory_Record(t *testing.T) {
	c := &Category{ID: "c1", UpdatedAt: 7}
	assert.Equal(t, KindCategory, c.Kind())
	assert.Equal(t, "c1", c.RecordID())
	assert.Equal(t, int64(7), c.Stamp())
	assert.Equal(t, "categories", Category{}.TableName())
}

func TestDefaultCategories(t *testing.T) {
	cats := DefaultCategories(100)
	require.Len(t, cats, 4)

	names := []string{}
	ids := map[string]bool{}
	for _, c := range cats {
		names = append(names, c.Name)
		assert.NotEmpty(t, c.ID)
		assert.NotEmpty(t, c.Color)
		assert.Equal(t, int64(100), c.UpdatedAt)
		ids[c.ID] = true
	}
	assert.Equal(t, []string{"Ideas", "Work", "Personal", "Learn"}, names)
	assert.Len(t, ids, 4)

	again := DefaultCategories(100)
	assert.NotEqual(t, cats[0].ID, again[0].ID)
}

func TestResolveCategory(t *testing.T) {
	work := &Category{ID: "c1", Name: "Work", Color: "#CDE7FF"}
	cats := []*Category{work}

	assert.Same(t, work, ResolveCategory("c1", cats))

	dangling := ResolveCategory("gone", cats)
	assert.Equal(t, "Uncategorized", dangling.Name)
	assert.Equal(t, "#1b2030", dangling.Color)

	empty := ResolveCategory("", cats)
	assert.Equal(t, "Uncategorized", empty.Name)

	// the fallback is a copy; mutating it must not leak
	empty.Name = "x"
	assert.Equal(t, "Uncategorized", Uncategorized.Name)
}

func TestOutboxEntry_Payload(t *testing.T) {
	payload, err := json.Marshal(&Note{ID: "n1", Title: "hello"})
	require.NoError(t, err)

	e := &OutboxEntry{Kind: KindNote, Payload: payload, NextRetryAt: 1000}
	n, err := e.Note()
	require.NoError(t, err)
	assert.Equal(t, "hello", n.Title)
	assert.Equal(t, int64(1000), e.NextRetryTime().UnixMilli())
	assert.Equal(t, "sync_outbox", OutboxEntry{}.TableName())

	_, err = (&OutboxEntry{Payload: []byte("{")}).Category()
	assert.Error(t, err)
}

func TestConflictLog(t *testing.T) {
	c := &ConflictLog{DetectedAt: 1_000}
	assert.Equal(t, int64(1_000), c.DetectedAtTime().UnixMilli())
	assert.Equal(t, "conflict_log", ConflictLog{}.TableName())
}
