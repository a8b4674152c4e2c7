// Package db tests for store lifecycle and schema versioning.
package db

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/kimhsiao/notecore/internal/errors"
	"github.com/kimhsiao/notecore/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualClock is a settable time source.
type manualClock struct {
	mu sync.Mutex
	ms int64
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.UnixMilli(c.ms)
}

func (c *manualClock) Set(ms int64) {
	c.mu.Lock()
	c.ms = ms
	c.mu.Unlock()
}

type countingNotifier struct {
	n atomic.Int32
}

func (c *countingNotifier) Notify() { c.n.Add(1) }

func (c *countingNotifier) Count() int { return int(c.n.Load()) }

// openTestStore opens a store in a temp directory and closes it on cleanup.
func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notecore.db")
	s, err := Open(context.Background(), path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func tableExists(t *testing.T, s *Store, name string) bool {
	t.Helper()
	var n int
	err := s.DB().QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&n)
	require.NoError(t, err)
	return n == 1
}

// TestOpen verifies database opening with proper configuration.
func TestOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "notecore.db")

	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	require.NoError(t, err, "database file should be created")

	var walMode string
	require.NoError(t, s.DB().QueryRow("PRAGMA journal_mode").Scan(&walMode))
	assert.Equal(t, "wal", walMode)

	for _, table := range []string{"notes", "categories", "sync_outbox", "conflict_log", "schema_migrations"} {
		assert.True(t, tableExists(t, s, table), table)
	}
	assert.Equal(t, 3, s.SchemaVersion())
}

// TestOpen_memory verifies the in-memory path keeps data across calls.
func TestOpen_memory(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, MemoryPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.SaveNote(ctx, &models.Note{ID: "n1"})
	require.NoError(t, err)

	_, found, err := s.GetNote(ctx, "n1")
	require.NoError(t, err)
	assert.True(t, found)
}

// TestOpen_indexes verifies the secondary indexes exist.
func TestOpen_indexes(t *testing.T) {
	s := openTestStore(t)
	for _, idx := range []string{"idx_notes_updated_at", "idx_notes_primary_category_id", "idx_categories_name"} {
		var n int
		require.NoError(t, s.DB().QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&n))
		assert.Equal(t, 1, n, idx)
	}
}

// TestOpen_schemaVersionGating verifies additive upgrades and that an older
// declared version never touches a newer database.
func TestOpen_schemaVersionGating(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "notecore.db")

	s, err := Open(ctx, path, WithSchemaVersion(1))
	require.NoError(t, err)
	assert.Equal(t, 1, s.SchemaVersion())
	assert.True(t, tableExists(t, s, "notes"))
	assert.False(t, tableExists(t, s, "sync_outbox"))
	_, err = s.SaveNote(ctx, &models.Note{ID: "n1", Title: "kept"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// upgrade applies only the missing migrations
	s, err = Open(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 3, s.SchemaVersion())
	assert.True(t, tableExists(t, s, "sync_outbox"))
	assert.True(t, tableExists(t, s, "conflict_log"))
	n, found, err := s.GetNote(ctx, "n1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "kept", n.Title)
	require.NoError(t, s.Close())

	// an older declared version leaves the database as is
	s, err = Open(ctx, path, WithSchemaVersion(2))
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, 3, s.SchemaVersion())
	assert.True(t, tableExists(t, s, "conflict_log"))
	_, found, err = s.GetNote(ctx, "n1")
	require.NoError(t, err)
	assert.True(t, found)
}

// TestOpen_unknownVersion verifies a version beyond the shipped migrations is rejected.
func TestOpen_unknownVersion(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "x.db"), WithSchemaVersion(99))
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrMigration))
}

// TestClose verifies operations fail with STORAGE_FAILURE after Close.
func TestClose(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "notecore.db"))
	require.NoError(t, err)

	_, _, err = s.GetNote(ctx, "warm") // populate the statement cache
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.ListNotes(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrStorageFailure))

	_, err = s.SaveNote(ctx, &models.Note{ID: "n1"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrStorageFailure))
}
