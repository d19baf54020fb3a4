package domain

import "time"

// Ledger event types, matched by the admin log viewer.
const (
	EventSyncSuccess = "SYNC_SUCCESS"
	EventSyncError   = "SYNC_ERROR"
	EventSyncStatus  = "SYNC_STATUS"
)

// Status codes reported by the feed bridge in STATUS_UPDATE messages.
const (
	BridgeStatusSuccess  = "SUCCESS"
	BridgeStatusRetrying = "RETRYING"
	BridgeStatusFailed   = "FAILED"
)

// HeartbeatAlive is the only status a heartbeat record carries; staleness
// is computed by the reader from the record's age.
const HeartbeatAlive = "ALIVE"

// SyncMeta carries feed-reported counters, passed through to the ledger
// unmodified. The pipeline trusts but does not re-derive them.
type SyncMeta struct {
	TotalRows      int           `json:"total_rows,omitempty"`
	SkippedCount   int           `json:"skipped_count,omitempty"`
	SkippedDetails []interface{} `json:"skipped_details,omitempty"`
	Filename       string        `json:"filename,omitempty"`
	RetryAttempt   int           `json:"retry_attempt,omitempty"`
}

// SyncStats summarizes one snapshot run. Stage failures that were recovered
// locally (sold detection, event publishing) are aggregated here so the
// ledger entry reflects them instead of them being swallowed inline.
type SyncStats struct {
	Processed     int
	Upserted      int
	Sold          int
	Skipped       int
	SoldError     string
	PublishErrors []string
	Duration      time.Duration
}

// SyncLogEntry is an immutable, append-only ledger record. Exactly one entry
// is written per request that reaches classification.
type SyncLogEntry struct {
	ID        int64     `db:"id"`
	EventType string    `db:"event_type"`
	Message   string    `db:"message"`
	Details   []byte    `db:"details"`
	CreatedAt time.Time `db:"created_at"`
}

// Heartbeat is a liveness record written for every HEARTBEAT message.
type Heartbeat struct {
	ID        int64     `db:"id"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
}
