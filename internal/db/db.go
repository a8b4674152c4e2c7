// Package db provides the local record store: durable, transactional
// persistence for notes and categories backed by SQLite.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	apperrors "github.com/kimhsiao/notecore/internal/errors"
	"github.com/kimhsiao/notecore/internal/logging"
	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Notifier receives a signal after every committed note or category mutation.
type Notifier interface {
	Notify()
}

// Store is an open record store. It is safe for concurrent use; all
// operations are serialized through a single connection.
type Store struct {
	db       *sql.DB
	notifier Notifier
	now      func() time.Time

	schemaVersion int
	migrations    fs.FS

	// prepared statement cache keyed by query text
	stmtCache sync.Map
}

// Option configures a Store.
type Option func(*Store)

// WithSchemaVersion declares the schema version the caller expects. Zero
// (the default) means the latest version shipped with the binary.
func WithSchemaVersion(version int) Option {
	return func(s *Store) {
		s.schemaVersion = version
	}
}

// WithNotifier sets the change notifier signalled after committed mutations.
func WithNotifier(n Notifier) Option {
	return func(s *Store) {
		s.notifier = n
	}
}

// WithClock overrides the time source used for stamping.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// withMigrations swaps the migration source. Used by tests.
func withMigrations(files fs.FS) Option {
	return func(s *Store) {
		s.migrations = files
	}
}

// Open opens (creating if needed) the store at path and brings its schema up to
// the declared version. A database already ahead of the declared version is
// left untouched.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	s := &Store{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.migrations == nil {
		sub, err := fs.Sub(embeddedMigrations, "migrations")
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrMigration, "load embedded migrations", err)
		}
		s.migrations = sub
	}

	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorageFailure, "create data directory", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageFailure, "open database", err)
	}

	// SQLite doesn't support multiple writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	// an in-memory database lives only as long as its connection
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if path != MemoryPath {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
			db.Close()
			return nil, apperrors.Wrap(apperrors.ErrStorageFailure, "enable WAL mode", err)
		}
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, apperrors.Wrap(apperrors.ErrStorageFailure, "set busy timeout", err)
	}

	s.db = db
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	m := NewMigrator(s.db, s.migrations)
	if err := m.Initialize(ctx); err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "initialize schema_migrations", err)
	}

	latest, err := m.LatestVersion()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "list migrations", err)
	}
	target := s.schemaVersion
	if target <= 0 {
		target = latest
	}
	if target > latest {
		return apperrors.Newf(apperrors.ErrMigration, "schema version %d is not known (latest %d)", target, latest)
	}

	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "read schema version", err)
	}
	if current > target {
		logging.Warn("Database schema is newer than declared version, leaving it untouched", map[string]interface{}{
			"on_disk_version":  current,
			"declared_version": target,
		})
		s.schemaVersion = current
		return nil
	}

	applied, err := m.UpTo(ctx, target)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "apply migrations", err)
	}
	if len(applied) > 0 {
		logging.Info("Applied schema migrations", map[string]interface{}{
			"versions": applied,
			"version":  target,
		})
	}
	s.schemaVersion = target
	return nil
}

// SchemaVersion returns the schema version in effect after Open.
func (s *Store) SchemaVersion() int {
	return s.schemaVersion
}

// DB exposes the underlying handle for diagnostics.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases cached statements and the database handle.
func (s *Store) Close() error {
	var firstErr error
	s.stmtCache.Range(func(key, value interface{}) bool {
		if err := value.(*sql.Stmt).Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.stmtCache.Delete(key)
		return true
	})
	if err := s.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// prepare gets or creates a prepared statement from the cache.
func (s *Store) prepare(ctx context.Context, query string) (*sql.Stmt, error) {
	if stmt, ok := s.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := s.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	actual, loaded := s.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}
	return stmt, nil
}

// inTx runs fn in a transaction and commits it.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) nowMillis() int64 {
	return s.now().UnixMilli()
}

func (s *Store) changed() {
	if s.notifier != nil {
		s.notifier.Notify()
	}
}

func storageErr(op string, err error) error {
	return apperrors.Wrap(apperrors.ErrStorageFailure, op, err)
}
