package models

import (
	"encoding/json"
	"time"
)

// OutboxOp is the mutation carried by an outbox entry.
type OutboxOp string

const (
	OutboxUpsert OutboxOp = "upsert"
	OutboxDelete OutboxOp = "delete"
)

// OutboxStatus represents the delivery state of an outbox entry.
type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxFailed  OutboxStatus = "failed"
)

// OutboxEntry is a propagation that could not be delivered to one adapter and
// is waiting for a retry.
type OutboxEntry struct {
	ID          string          `json:"id"`
	Adapter     string          `json:"adapter"`
	Operation   OutboxOp        `json:"operation"`
	Kind        Kind            `json:"kind"`
	RecordID    string          `json:"recordId"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	RetryCount  int             `json:"retryCount"`
	MaxRetries  int             `json:"maxRetries"`
	NextRetryAt int64           `json:"nextRetryAt"`
	Status      OutboxStatus    `json:"status"`
	LastError   string          `json:"lastError,omitempty"`
	CreatedAt   int64           `json:"createdAt"`
	UpdatedAt   int64           `json:"updatedAt"`
}

// TableName returns the table name for OutboxEntry.
func (OutboxEntry) TableName() string {
	return "sync_outbox"
}

// NextRetryTime returns NextRetryAt as time.Time.
func (e *OutboxEntry) NextRetryTime() time.Time {
	return time.UnixMilli(e.NextRetryAt)
}

// Note decodes the payload of a note upsert.
func (e *OutboxEntry) Note() (*Note, error) {
	var n Note
	if err := json.Unmarshal(e.Payload, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// Category decodes the payload of a category upsert.
func (e *OutboxEntry) Category() (*Category, error) {
	var c Category
	if err := json.Unmarshal(e.Payload, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
