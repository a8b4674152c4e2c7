// Package uuid generates record identifiers.
//
// Record ids are opaque strings: anything non-blank is accepted as an id, and
// generated ids are UUID v4.
package uuid

import (
	"strings"

	"github.com/google/uuid"
)

// New generates a new UUID v4.
func New() string {
	return uuid.New().String()
}

// Ensure returns id unchanged unless it is blank, in which case a fresh id is
// generated.
func Ensure(id string) string {
	if strings.TrimSpace(id) == "" {
		return New()
	}
	return id
}

// IsV4 reports whether s parses as a version 4 UUID.
func IsV4(s string) bool {
	id, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	return id.Version() == 4
}
