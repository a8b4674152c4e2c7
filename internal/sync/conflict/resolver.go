// Package conflict provides last-write-wins conflict resolution for
// synchronized records.
package conflict

import (
	"time"

	"github.com/kimhsiao/notecore/internal/logging"
	"github.com/kimhsiao/notecore/internal/models"
)

// Candidate is an incoming record together with the adapter it came from.
type Candidate struct {
	Record models.Record
	Source string
}

// ResolveResult represents the outcome of comparing a local record with an
// incoming one.
type ResolveResult struct {
	Winner     models.Record
	Resolution models.Resolution
	// Adopt is true when the incoming record must be written locally.
	Adopt bool
	// ConflictLog is set when an existing local record is overwritten.
	ConflictLog *models.ConflictLog
}

// Resolver decides between competing copies of a record by UpdatedAt.
type Resolver struct {
	now func() time.Time
}

// NewResolver creates a Resolver.
func NewResolver() *Resolver {
	return &Resolver{now: time.Now}
}

// WithClock returns a copy of r using now for detection timestamps.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	return &Resolver{now: now}
}

// Collapse reduces incoming candidates to one per (kind, id). A candidate
// replaces the current pick only when its stamp is strictly greater, so on a
// tie the earliest candidate wins. The result keeps first-seen order.
func (r *Resolver) Collapse(candidates []Candidate) []Candidate {
	type key struct {
		kind models.Kind
		id   string
	}
	index := make(map[key]int, len(candidates))
	out := make([]Candidate, 0, len(candidates))

	for _, c := range candidates {
		if c.Record == nil || c.Record.RecordID() == "" {
			continue
		}
		k := key{c.Record.Kind(), c.Record.RecordID()}
		i, seen := index[k]
		if !seen {
			index[k] = len(out)
			out = append(out, c)
			continue
		}
		if c.Record.Stamp() > out[i].Record.Stamp() {
			out[i] = c
		}
	}
	return out
}

// Resolve compares the local copy (nil when absent) with an incoming one.
// The incoming record wins only with a strictly greater stamp; an equal stamp
// keeps the local copy.
func (r *Resolver) Resolve(local models.Record, incoming Candidate) (*ResolveResult, error) {
	remote := incoming.Record
	if remote == nil {
		return nil, ErrInvalidConflict
	}
	if local == nil {
		return &ResolveResult{Winner: remote, Resolution: models.ResolutionRemoteWins, Adopt: true}, nil
	}
	if local.Kind() != remote.Kind() {
		return nil, ErrKindMismatch
	}
	if local.RecordID() != remote.RecordID() {
		return nil, ErrItemIDMismatch
	}

	if local.Stamp() >= remote.Stamp() {
		return &ResolveResult{Winner: local, Resolution: models.ResolutionLocalWins}, nil
	}

	conflictLog := &models.ConflictLog{
		Kind:            remote.Kind(),
		RecordID:        remote.RecordID(),
		Source:          incoming.Source,
		LocalTimestamp:  local.Stamp(),
		RemoteTimestamp: remote.Stamp(),
		Resolution:      models.ResolutionRemoteWins,
		DetectedAt:      r.now().UnixMilli(),
	}

	logging.Info("Conflict resolved using last-write-wins", map[string]interface{}{
		"kind":             remote.Kind(),
		"record_id":        remote.RecordID(),
		"source":           incoming.Source,
		"local_timestamp":  local.Stamp(),
		"remote_timestamp": remote.Stamp(),
		"resolution":       models.ResolutionRemoteWins,
	})

	return &ResolveResult{
		Winner:      remote,
		Resolution:  models.ResolutionRemoteWins,
		Adopt:       true,
		ConflictLog: conflictLog,
	}, nil
}

// Errors
var (
	ErrInvalidConflict = &ConflictError{Message: "invalid conflict: incoming record must be non-nil"}
	ErrItemIDMismatch  = &ConflictError{Message: "record ID mismatch"}
	ErrKindMismatch    = &ConflictError{Message: "record kind mismatch"}
)

// ConflictError represents a conflict resolution error.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// IsConflictError checks if an error is a ConflictError.
func IsConflictError(err error) bool {
	_, ok := err.(*ConflictError)
	return ok
}
