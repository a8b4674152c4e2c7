// Package conflict provides unit tests for conflict resolution.
package conflict

import (
	"testing"
	"time"

	"github.com/kimhsiao/notecore/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func note(id string, at int64) *models.Note {
	return &models.Note{ID: id, Title: id, UpdatedAt: at}
}

// TestResolve_remoteNewer verifies a strictly newer incoming record wins and is logged.
func TestResolve_remoteNewer(t *testing.T) {
	r := NewResolver().WithClock(func() time.Time { return time.UnixMilli(9_000) })

	res, err := r.Resolve(note("n1", 100), Candidate{Record: note("n1", 200), Source: "s3"})
	require.NoError(t, err)
	assert.True(t, res.Adopt)
	assert.Equal(t, models.ResolutionRemoteWins, res.Resolution)
	assert.Equal(t, int64(200), res.Winner.Stamp())

	require.NotNil(t, res.ConflictLog)
	assert.Equal(t, models.KindNote, res.ConflictLog.Kind)
	assert.Equal(t, "n1", res.ConflictLog.RecordID)
	assert.Equal(t, "s3", res.ConflictLog.Source)
	assert.Equal(t, int64(100), res.ConflictLog.LocalTimestamp)
	assert.Equal(t, int64(200), res.ConflictLog.RemoteTimestamp)
	assert.Equal(t, int64(9_000), res.ConflictLog.DetectedAt)
}

// TestResolve_localNewer verifies an older incoming record is ignored.
func TestResolve_localNewer(t *testing.T) {
	res, err := NewResolver().Resolve(note("n1", 300), Candidate{Record: note("n1", 200)})
	require.NoError(t, err)
	assert.False(t, res.Adopt)
	assert.Equal(t, models.ResolutionLocalWins, res.Resolution)
	assert.Nil(t, res.ConflictLog)
}

// TestResolve_tieKeepsLocal verifies equal stamps keep the local copy.
func TestResolve_tieKeepsLocal(t *testing.T) {
	local := note("n1", 200)
	res, err := NewResolver().Resolve(local, Candidate{Record: note("n1", 200)})
	require.NoError(t, err)
	assert.False(t, res.Adopt)
	assert.Same(t, local, res.Winner)
}

// TestResolve_missingLocal verifies records absent locally are adopted without a conflict.
func TestResolve_missingLocal(t *testing.T) {
	res, err := NewResolver().Resolve(nil, Candidate{Record: note("n1", 1)})
	require.NoError(t, err)
	assert.True(t, res.Adopt)
	assert.Nil(t, res.ConflictLog)
}

// TestResolve_categories verifies categories resolve the same way.
func TestResolve_categories(t *testing.T) {
	local := &models.Category{ID: "c1", Name: "Work", UpdatedAt: 0}
	remote := &models.Category{ID: "c1", Name: "Jobs", UpdatedAt: 5}
	res, err := NewResolver().Resolve(local, Candidate{Record: remote})
	require.NoError(t, err)
	assert.True(t, res.Adopt)
	assert.Equal(t, models.KindCategory, res.ConflictLog.Kind)
}

// TestResolve_errors verifies invalid inputs are rejected.
func TestResolve_errors(t *testing.T) {
	r := NewResolver()

	_, err := r.Resolve(note("n1", 1), Candidate{})
	assert.Equal(t, ErrInvalidConflict, err)

	_, err = r.Resolve(note("n1", 1), Candidate{Record: note("n2", 2)})
	assert.Equal(t, ErrItemIDMismatch, err)

	_, err = r.Resolve(note("x", 1), Candidate{Record: &models.Category{ID: "x", UpdatedAt: 2}})
	assert.Equal(t, ErrKindMismatch, err)
	assert.True(t, IsConflictError(err))
	assert.False(t, IsConflictError(assert.AnError))
}

// TestCollapse verifies duplicate incoming records reduce to the newest,
// with ties going to the earliest candidate.
func TestCollapse(t *testing.T) {
	r := NewResolver()

	out := r.Collapse([]Candidate{
		{Record: note("n1", 100), Source: "a"},
		{Record: note("n2", 50), Source: "a"},
		{Record: note("n1", 200), Source: "b"},
		{Record: note("n2", 50), Source: "b"},
		{Record: note("n1", 150), Source: "c"},
		{Record: &models.Category{ID: "n1", UpdatedAt: 1}, Source: "c"},
		{Record: note("", 999), Source: "c"},
		{Record: nil},
	})

	require.Len(t, out, 3)
	assert.Equal(t, "n1", out[0].Record.RecordID())
	assert.Equal(t, int64(200), out[0].Record.Stamp())
	assert.Equal(t, "b", out[0].Source)

	assert.Equal(t, "n2", out[1].Record.RecordID())
	assert.Equal(t, "a", out[1].Source, "tie keeps the earliest candidate")

	assert.Equal(t, models.KindCategory, out[2].Record.Kind(), "kinds are collapsed separately")
}
