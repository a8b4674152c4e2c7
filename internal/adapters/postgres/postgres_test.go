package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/kimhsiao/notecore/internal/errors"
	"github.com/kimhsiao/notecore/internal/models"
)

// EnvTestDSN names a database the integration test may create tables in.
const EnvTestDSN = "NOTECORE_TEST_POSTGRES_DSN"

func TestIsUndefinedTable(t *testing.T) {
	assert.True(t, IsUndefinedTable(&pgconn.PgError{Code: pgerrcode.UndefinedTable}))
	assert.True(t, IsUndefinedTable(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: pgerrcode.UndefinedTable})))
	assert.False(t, IsUndefinedTable(&pgconn.PgError{Code: pgerrcode.UniqueViolation}))
	assert.False(t, IsUndefinedTable(nil))
}

func TestIsUnavailable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"connection failure", &pgconn.PgError{Code: pgerrcode.ConnectionFailure}, true},
		{"too many connections", &pgconn.PgError{Code: pgerrcode.TooManyConnections}, true},
		{"admin shutdown", &pgconn.PgError{Code: pgerrcode.AdminShutdown}, true},
		{"syntax error", &pgconn.PgError{Code: pgerrcode.SyntaxError}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"plain", fmt.Errorf("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUnavailable(tt.err))
		})
	}
}

func TestFail(t *testing.T) {
	a := &Adapter{name: "pg"}
	err := a.fail("upsert note", &pgconn.PgError{Code: pgerrcode.UniqueViolation, Message: "dup"})
	assert.True(t, apperrors.Is(err, apperrors.ErrAdapterFailure))
	assert.Contains(t, err.Error(), "SQLSTATE 23505")
}

func TestOpen_invalidDSN(t *testing.T) {
	_, err := Open(context.Background(), "pg", "postgres://%zz")
	assert.True(t, apperrors.Is(err, apperrors.ErrConfigInvalid))
}

// TestAdapter_roundTrip runs against a live database when one is configured.
func TestAdapter_roundTrip(t *testing.T) {
	dsn := os.Getenv(EnvTestDSN)
	if dsn == "" {
		t.Skipf("%s not set", EnvTestDSN)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a, err := Open(ctx, "pg", dsn)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.pool.Exec(ctx, `DROP TABLE IF EXISTS notecore_notes, notecore_categories`)
	require.NoError(t, err)

	// Pulls before any write see an empty remote.
	notes, err := a.PullAllNotes(ctx)
	require.NoError(t, err)
	assert.Empty(t, notes)

	// Writes recreate the dropped tables.
	note := &models.Note{
		ID: "n1", Title: "t", Content: "body", Format: models.FormatCode,
		PrimaryCategoryID: "c1", Categories: models.IDList{"c1", "c2"},
		CreatedAt: 10, UpdatedAt: 20,
	}
	require.NoError(t, a.UpsertNote(ctx, note))
	note.Title = "t2"
	note.UpdatedAt = 30
	require.NoError(t, a.UpsertNote(ctx, note))

	notes, err = a.PullAllNotes(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, note, notes[0])

	cat := &models.Category{ID: "c1", Name: "Work", Color: "#CDE7FF", UpdatedAt: 5}
	require.NoError(t, a.UpsertCategory(ctx, cat))
	cats, err := a.PullAllCategories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, cat, cats[0])

	require.NoError(t, a.DeleteNote(ctx, "n1"))
	require.NoError(t, a.DeleteNote(ctx, "n1"))
	require.NoError(t, a.DeleteCategory(ctx, "c1"))

	notes, err = a.PullAllNotes(ctx)
	require.NoError(t, err)
	assert.Empty(t, notes)
}
