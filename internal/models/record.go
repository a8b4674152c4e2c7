// Package models provides data model definitions for notecore.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Kind names a record collection.
type Kind string

const (
	KindNote     Kind = "note"
	KindCategory Kind = "category"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindNote || k == KindCategory
}

// Record is implemented by every synchronized record type.
type Record interface {
	Kind() Kind
	RecordID() string
	// Stamp is the last-write-wins timestamp in milliseconds since epoch.
	Stamp() int64
}

// IDList is an ordered list of record ids persisted as a JSON array.
type IDList []string

// Value implements driver.Valuer for IDList.
func (l IDList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for IDList.
func (l *IDList) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*l = IDList{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported IDList source type %T", value)
	}
	if len(raw) == 0 {
		*l = IDList{}
		return nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return fmt.Errorf("decode id list: %w", err)
	}
	*l = ids
	return nil
}

// Dedupe returns a copy of l without blank or repeated ids, keeping first occurrences.
func (l IDList) Dedupe() IDList {
	out := make(IDList, 0, len(l))
	seen := make(map[string]bool, len(l))
	for _, id := range l {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
