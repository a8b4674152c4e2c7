package db

import (
	"context"

	"github.com/kimhsiao/notecore/internal/models"
	"github.com/kimhsiao/notecore/internal/uuid"
)

// CreateConflictLog creates a new conflict log entry. Missing id and detection
// time are filled in.
func (s *Store) CreateConflictLog(ctx context.Context, log *models.ConflictLog) error {
	if log.ID == "" {
		log.ID = uuid.New()
	}
	if log.DetectedAt == 0 {
		log.DetectedAt = s.nowMillis()
	}

	query := `
	INSERT INTO conflict_log (id, kind, record_id, source, local_timestamp, remote_timestamp, resolution, detected_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, log.ID, log.Kind, log.RecordID, log.Source,
		log.LocalTimestamp, log.RemoteTimestamp, log.Resolution, log.DetectedAt); err != nil {
		return storageErr("create conflict log", err)
	}
	return nil
}

// ListConflictLogs returns the most recent conflict log entries, newest first.
// A limit <= 0 returns all of them.
func (s *Store) ListConflictLogs(ctx context.Context, limit int) ([]*models.ConflictLog, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, record_id, source, local_timestamp, remote_timestamp, resolution, detected_at
		FROM conflict_log ORDER BY detected_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, storageErr("list conflict logs", err)
	}
	defer rows.Close()

	logs := []*models.ConflictLog{}
	for rows.Next() {
		var c models.ConflictLog
		if err := rows.Scan(&c.ID, &c.Kind, &c.RecordID, &c.Source, &c.LocalTimestamp,
			&c.RemoteTimestamp, &c.Resolution, &c.DetectedAt); err != nil {
			return nil, storageErr("list conflict logs", err)
		}
		logs = append(logs, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list conflict logs", err)
	}
	return logs, nil
}
