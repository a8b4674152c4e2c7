// Package queue provides the durable outbox of propagations that failed and
// are waiting to be retried with exponential backoff.
package queue

import (
	"context"
	"encoding/json"
	"time"

	apperrors "github.com/kimhsiao/notecore/internal/errors"
	"github.com/kimhsiao/notecore/internal/logging"
	"github.com/kimhsiao/notecore/internal/models"
	"github.com/kimhsiao/notecore/internal/uuid"
)

const (
	DefaultMaxRetries  = 3
	DefaultBaseBackoff = 60 * time.Second
	DefaultMaxBackoff  = time.Hour
	DefaultMaxSize     = 10000
)

// Repository persists outbox entries.
type Repository interface {
	CreateOutboxEntry(ctx context.Context, entry *models.OutboxEntry) error
	GetOutboxEntry(ctx context.Context, id string) (*models.OutboxEntry, bool, error)
	UpdateOutboxEntry(ctx context.Context, entry *models.OutboxEntry) error
	DeleteOutboxEntry(ctx context.Context, id string) error
	DeleteOutboxEntriesFor(ctx context.Context, adapter string, kind models.Kind, recordID string) error
	ListOutboxEntries(ctx context.Context, status models.OutboxStatus) ([]*models.OutboxEntry, error)
	ListDueOutboxEntries(ctx context.Context, now int64, limit int) ([]*models.OutboxEntry, error)
	CountOutboxEntries(ctx context.Context) (map[models.OutboxStatus]int, error)
	ResetFailedOutboxEntries(ctx context.Context, now int64) (int, error)
}

// Outbox manages pending propagations with retry logic.
type Outbox struct {
	repo Repository
	now  func() time.Time

	maxRetries  int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	maxSize     int
}

// Option configures an Outbox.
type Option func(*Outbox)

// WithMaxRetries sets how many failed attempts mark an entry as failed.
func WithMaxRetries(n int) Option {
	return func(o *Outbox) { o.maxRetries = n }
}

// WithBackoff sets the base delay and its cap.
func WithBackoff(base, max time.Duration) Option {
	return func(o *Outbox) {
		o.baseBackoff = base
		o.maxBackoff = max
	}
}

// WithMaxSize caps the number of pending entries.
func WithMaxSize(n int) Option {
	return func(o *Outbox) { o.maxSize = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Outbox) { o.now = now }
}

// New creates an Outbox over repo.
func New(repo Repository, opts ...Option) *Outbox {
	o := &Outbox{
		repo:        repo,
		now:         time.Now,
		maxRetries:  DefaultMaxRetries,
		baseBackoff: DefaultBaseBackoff,
		maxBackoff:  DefaultMaxBackoff,
		maxSize:     DefaultMaxSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Enqueue records a propagation of rec to adapter, due immediately. An earlier
// entry for the same adapter and record is replaced.
func (o *Outbox) Enqueue(ctx context.Context, adapter string, op models.OutboxOp, rec models.Record) (*models.OutboxEntry, error) {
	if o.maxSize > 0 {
		counts, err := o.repo.CountOutboxEntries(ctx)
		if err != nil {
			return nil, err
		}
		if counts[models.OutboxPending] >= o.maxSize {
			return nil, apperrors.Newf(apperrors.ErrQueueFull, "outbox is full (max size: %d)", o.maxSize)
		}
	}

	var payload json.RawMessage
	if op == models.OutboxUpsert {
		b, err := json.Marshal(rec)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInvalid, "encode outbox payload", err)
		}
		payload = b
	}

	now := o.now().UnixMilli()
	entry := &models.OutboxEntry{
		ID:          uuid.New(),
		Adapter:     adapter,
		Operation:   op,
		Kind:        rec.Kind(),
		RecordID:    rec.RecordID(),
		Payload:     payload,
		MaxRetries:  o.maxRetries,
		NextRetryAt: now,
		Status:      models.OutboxPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := o.repo.CreateOutboxEntry(ctx, entry); err != nil {
		return nil, err
	}

	logging.Info("Queued propagation for retry", map[string]interface{}{
		"entry_id":  entry.ID,
		"adapter":   adapter,
		"operation": op,
		"kind":      entry.Kind,
		"record_id": entry.RecordID,
	})
	return entry, nil
}

// Due returns up to limit pending entries whose retry time has come.
func (o *Outbox) Due(ctx context.Context, limit int) ([]*models.OutboxEntry, error) {
	return o.repo.ListDueOutboxEntries(ctx, o.now().UnixMilli(), limit)
}

// Complete removes a delivered entry.
func (o *Outbox) Complete(ctx context.Context, id string) error {
	if err := o.repo.DeleteOutboxEntry(ctx, id); err != nil {
		return err
	}
	logging.Debug("Outbox entry delivered", map[string]interface{}{"entry_id": id})
	return nil
}

// Discard drops every entry, pending or failed, for rec on adapter. It is
// called once a newer propagation of rec has reached the adapter, so the
// older queued mutation is never replayed over it.
func (o *Outbox) Discard(ctx context.Context, adapter string, rec models.Record) error {
	if err := o.repo.DeleteOutboxEntriesFor(ctx, adapter, rec.Kind(), rec.RecordID()); err != nil {
		return err
	}
	logging.Debug("Outbox entries superseded by delivery", map[string]interface{}{
		"adapter":   adapter,
		"kind":      rec.Kind(),
		"record_id": rec.RecordID(),
	})
	return nil
}

// Fail records a failed attempt. The entry is rescheduled with exponential
// backoff, or marked failed once it reaches its retry limit. The returned
// entry reflects the new state.
func (o *Outbox) Fail(ctx context.Context, id string, cause error) (*models.OutboxEntry, error) {
	entry, found, err := o.repo.GetOutboxEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "outbox entry %s not found", id)
	}

	now := o.now()
	entry.RetryCount++
	if cause != nil {
		entry.LastError = cause.Error()
	}
	entry.UpdatedAt = now.UnixMilli()

	if entry.RetryCount >= entry.MaxRetries {
		entry.Status = models.OutboxFailed
		logging.ErrorWithCode("Outbox entry failed permanently", string(apperrors.ErrAdapterFailure), cause, map[string]interface{}{
			"entry_id": id,
			"adapter":  entry.Adapter,
			"retries":  entry.RetryCount,
		})
	} else {
		delay := o.Backoff(entry.RetryCount)
		entry.Status = models.OutboxPending
		entry.NextRetryAt = now.Add(delay).UnixMilli()
		logging.Warn("Outbox entry failed, retry scheduled", map[string]interface{}{
			"entry_id":    id,
			"adapter":     entry.Adapter,
			"retry":       entry.RetryCount,
			"max_retries": entry.MaxRetries,
			"delay_ms":    delay.Milliseconds(),
			"error":       entry.LastError,
		})
	}

	if err := o.repo.UpdateOutboxEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Backoff returns the delay before retry number retryCount:
// 2^retryCount * base, capped at the configured maximum.
func (o *Outbox) Backoff(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount > 30 {
		return o.maxBackoff
	}
	backoff := o.baseBackoff * time.Duration(int64(1)<<uint(retryCount))
	if backoff > o.maxBackoff || backoff <= 0 {
		backoff = o.maxBackoff
	}
	return backoff
}

// List returns entries with the given status; empty means all.
func (o *Outbox) List(ctx context.Context, status models.OutboxStatus) ([]*models.OutboxEntry, error) {
	return o.repo.ListOutboxEntries(ctx, status)
}

// RetryAll resets every failed entry to pending and due now.
func (o *Outbox) RetryAll(ctx context.Context) (int, error) {
	n, err := o.repo.ResetFailedOutboxEntries(ctx, o.now().UnixMilli())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logging.Info("Reset failed outbox entries for retry", map[string]interface{}{"count": n})
	}
	return n, nil
}

// Remove deletes an entry without delivering it.
func (o *Outbox) Remove(ctx context.Context, id string) error {
	return o.repo.DeleteOutboxEntry(ctx, id)
}

// Stats summarizes the outbox.
type Stats struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Failed  int `json:"failed"`
}

// Stats returns entry counts.
func (o *Outbox) Stats(ctx context.Context) (Stats, error) {
	counts, err := o.repo.CountOutboxEntries(ctx)
	if err != nil {
		return Stats{}, err
	}
	s := Stats{
		Pending: counts[models.OutboxPending],
		Failed:  counts[models.OutboxFailed],
	}
	s.Total = s.Pending + s.Failed
	return s, nil
}
