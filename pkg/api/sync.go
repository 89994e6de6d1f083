package api

import "encoding/json"

// Operation kinds accepted by the sync endpoint.
const (
	OpCreate = "CREATE"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
)

// Failure classifications returned by the server. A transient failure may be
// retried on a later cycle; a permanent one must be dead-lettered by the
// client and never retried.
const (
	ClassTransient = "transient"
	ClassPermanent = "permanent"
)

// Client sync status values reported by GET /sync/status/{client_id}.
const (
	StatusUpToDate    = "up_to_date"
	StatusPendingSync = "pending_sync"
	StatusError       = "error"
)

// SyncOperation is one durable intent to mutate a single record.
// ID is client-generated and globally unique; the server uses it for
// idempotent delivery.
type SyncOperation struct {
	ID              string          `json:"id"`
	Kind            string          `json:"kind"`
	TableName       string          `json:"table_name"`
	RecordID        string          `json:"record_id"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	ClientTimestamp int64           `json:"client_timestamp"` // unix millis, basis of the write
	RetryCount      int             `json:"retry_count"`
}

// SyncRequest is the batch posted to POST /sync/batch.
// LastSyncTimestamp is the change-log cursor returned by the previous cycle.
type SyncRequest struct {
	ClientID          string          `json:"client_id"`
	Operations        []SyncOperation `json:"operations"`
	LastSyncTimestamp int64           `json:"last_sync_timestamp"`
}

// FailedOperation describes one operation the server could not apply.
type FailedOperation struct {
	OperationID    string `json:"operation_id"`
	Error          string `json:"error"`
	Classification string `json:"classification"`
}

// ServerChange is one entry of the change feed: a mutation applied on the
// server by some other client since the caller's last sync.
type ServerChange struct {
	TableName string          `json:"table_name"`
	Operation string          `json:"operation"`
	RecordID  string          `json:"record_id"`
	Data      json.RawMessage `json:"data,omitempty"`
	ChangedAt int64           `json:"changed_at"` // unix millis, wall clock
}

// SyncResponse is the result of a batch. SyncTimestamp is the new change-log
// cursor the client must persist; it never moves backwards.
type SyncResponse struct {
	Success             bool              `json:"success"`
	ProcessedOperations []string          `json:"processed_operations"`
	FailedOperations    []FailedOperation `json:"failed_operations"`
	ServerChanges       []ServerChange    `json:"server_changes"`
	SyncTimestamp       int64             `json:"sync_timestamp"`
}

// ChangesResponse is returned by GET /sync/changes/{client_id}?since=N.
type ChangesResponse struct {
	ClientID     string         `json:"client_id"`
	Since        int64          `json:"since"`
	Changes      []ServerChange `json:"changes"`
	ChangesCount int            `json:"changes_count"`
	Timestamp    int64          `json:"timestamp"`
}

// StatusResponse is returned by GET /sync/status/{client_id}. Pending counts
// are the ones the device itself reported on its last ping or batch.
type StatusResponse struct {
	PendingByTable map[string]int `json:"pending_operations_by_table"`
	ClientID       string         `json:"client_id"`
	Status         string         `json:"status"`
	LastError      string         `json:"last_error,omitempty"`
	LastSync       int64          `json:"last_sync"`
	TotalPending   int            `json:"total_pending"`
}

// PingRequest is the lightweight liveness probe. PendingByTable is optional:
// a device may piggyback its queue depth so the status endpoint can report it.
type PingRequest struct {
	PendingByTable map[string]int `json:"pending_by_table,omitempty"`
	ClientID       string         `json:"client_id"`
}

// PingResponse confirms connectivity without triggering a batch.
type PingResponse struct {
	ClientID      string `json:"client_id"`
	ServerTime    int64  `json:"server_time"`
	Pong          bool   `json:"pong"`
	SyncAvailable bool   `json:"sync_available"`
}

// ErrorResponse is the JSON body of any non-2xx answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
