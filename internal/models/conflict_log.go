package models

import "time"

// Resolution describes which side of a conflict was kept.
type Resolution string

const (
	ResolutionLocalWins  Resolution = "local_wins"
	ResolutionRemoteWins Resolution = "remote_wins"
)

// ConflictLog records a reconciled disagreement between a local and an incoming record.
type ConflictLog struct {
	ID              string     `json:"id"`
	Kind            Kind       `json:"kind"`
	RecordID        string     `json:"recordId"`
	Source          string     `json:"source"` // adapter the incoming record came from
	LocalTimestamp  int64      `json:"localTimestamp"`
	RemoteTimestamp int64      `json:"remoteTimestamp"`
	Resolution      Resolution `json:"resolution"`
	DetectedAt      int64      `json:"detectedAt"`
}

// TableName returns the table name for ConflictLog.
func (ConflictLog) TableName() string {
	return "conflict_log"
}

// DetectedAtTime returns the DetectedAt as time.Time.
func (c *ConflictLog) DetectedAtTime() time.Time {
	return time.UnixMilli(c.DetectedAt)
}
