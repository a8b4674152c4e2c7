package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/kimhsiao/notecore/internal/models"
)

const outboxColumns = `id, adapter, operation, kind, record_id, payload, retry_count, max_retries,
	next_retry_at, status, last_error, created_at, updated_at`

func scanOutboxEntry(row rowScanner) (*models.OutboxEntry, error) {
	var e models.OutboxEntry
	var payload sql.NullString
	if err := row.Scan(&e.ID, &e.Adapter, &e.Operation, &e.Kind, &e.RecordID, &payload,
		&e.RetryCount, &e.MaxRetries, &e.NextRetryAt, &e.Status, &e.LastError,
		&e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if payload.Valid && payload.String != "" {
		e.Payload = json.RawMessage(payload.String)
	}
	return &e, nil
}

func payloadArg(p json.RawMessage) interface{} {
	if len(p) == 0 {
		return nil
	}
	return string(p)
}

// CreateOutboxEntry stores a new outbox entry, replacing any earlier entry for
// the same adapter and record so only the latest mutation is replayed.
func (s *Store) CreateOutboxEntry(ctx context.Context, entry *models.OutboxEntry) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM sync_outbox WHERE adapter = ? AND kind = ? AND record_id = ?`,
			entry.Adapter, entry.Kind, entry.RecordID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sync_outbox (`+outboxColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.ID, entry.Adapter, entry.Operation, entry.Kind, entry.RecordID,
			payloadArg(entry.Payload), entry.RetryCount, entry.MaxRetries, entry.NextRetryAt,
			entry.Status, entry.LastError, entry.CreatedAt, entry.UpdatedAt)
		return err
	})
	if err != nil {
		return storageErr("create outbox entry", err)
	}
	return nil
}

// DeleteOutboxEntriesFor removes every entry for the given adapter and record.
func (s *Store) DeleteOutboxEntriesFor(ctx context.Context, adapter string, kind models.Kind, recordID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM sync_outbox WHERE adapter = ? AND kind = ? AND record_id = ?`,
		adapter, kind, recordID)
	if err != nil {
		return storageErr("delete outbox entries", err)
	}
	return nil
}

// GetOutboxEntry returns the outbox entry with the given id.
func (s *Store) GetOutboxEntry(ctx context.Context, id string) (*models.OutboxEntry, bool, error) {
	e, err := scanOutboxEntry(s.db.QueryRowContext(ctx,
		`SELECT `+outboxColumns+` FROM sync_outbox WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storageErr("get outbox entry", err)
	}
	return e, true, nil
}

// UpdateOutboxEntry persists the retry state of an entry.
func (s *Store) UpdateOutboxEntry(ctx context.Context, entry *models.OutboxEntry) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_outbox
		SET retry_count = ?, max_retries = ?, next_retry_at = ?, status = ?, last_error = ?, updated_at = ?
		WHERE id = ?`,
		entry.RetryCount, entry.MaxRetries, entry.NextRetryAt, entry.Status, entry.LastError,
		entry.UpdatedAt, entry.ID)
	if err != nil {
		return storageErr("update outbox entry", err)
	}
	return nil
}

// DeleteOutboxEntry removes an entry. Deleting a missing entry is a no-op.
func (s *Store) DeleteOutboxEntry(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sync_outbox WHERE id = ?`, id); err != nil {
		return storageErr("delete outbox entry", err)
	}
	return nil
}

// ListOutboxEntries returns entries with the given status, oldest first.
// An empty status lists every entry.
func (s *Store) ListOutboxEntries(ctx context.Context, status models.OutboxStatus) ([]*models.OutboxEntry, error) {
	query := `SELECT ` + outboxColumns + ` FROM sync_outbox`
	var args []interface{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at, id`

	entries, err := s.queryOutbox(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list outbox entries", err)
	}
	return entries, nil
}

// ListDueOutboxEntries returns up to limit pending entries whose next retry
// time is at or before now, earliest first.
func (s *Store) ListDueOutboxEntries(ctx context.Context, now int64, limit int) ([]*models.OutboxEntry, error) {
	entries, err := s.queryOutbox(ctx, `
		SELECT `+outboxColumns+` FROM sync_outbox
		WHERE status = ? AND next_retry_at <= ?
		ORDER BY next_retry_at, created_at, id
		LIMIT ?`, models.OutboxPending, now, limit)
	if err != nil {
		return nil, storageErr("list due outbox entries", err)
	}
	return entries, nil
}

func (s *Store) queryOutbox(ctx context.Context, query string, args ...interface{}) ([]*models.OutboxEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []*models.OutboxEntry{}
	for rows.Next() {
		e, err := scanOutboxEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountOutboxEntries returns the number of entries per status.
func (s *Store) CountOutboxEntries(ctx context.Context) (map[models.OutboxStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM sync_outbox GROUP BY status`)
	if err != nil {
		return nil, storageErr("count outbox entries", err)
	}
	defer rows.Close()

	counts := map[models.OutboxStatus]int{}
	for rows.Next() {
		var status models.OutboxStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, storageErr("count outbox entries", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("count outbox entries", err)
	}
	return counts, nil
}

// ResetFailedOutboxEntries moves every failed entry back to pending, due at now.
func (s *Store) ResetFailedOutboxEntries(ctx context.Context, now int64) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_outbox
		SET status = ?, retry_count = 0, next_retry_at = ?, last_error = '', updated_at = ?
		WHERE status = ?`,
		models.OutboxPending, now, now, models.OutboxFailed)
	if err != nil {
		return 0, storageErr("reset failed outbox entries", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("reset failed outbox entries", err)
	}
	return int(n), nil
}
