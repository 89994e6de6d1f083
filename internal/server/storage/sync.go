package storage

import (
	"context"
	"encoding/json"

	"github.com/iudanet/fieldsync/internal/models"
)

// ApplyOutcome describes how one operation landed.
type ApplyOutcome struct {
	// Overridden lists the patch fields superseded by the server value
	Overridden []string

	// Resolved carries the authoritative record state when a conflict was
	// resolved without touching the record (the whole patch discarded): no
	// change-log entry exists, so the losing client must get the snapshot
	// in the response itself
	Resolved json.RawMessage

	// Replayed is true when the operation id was already applied and the
	// call short-circuited without touching the record
	Replayed bool

	// Conflicted is true when the operation's basis was older than the
	// record and the conflict policy was consulted
	Conflicted bool
}

// SyncStorage defines the server persistence for the sync engine: canonical
// records, the append-only change log, the idempotency ledger and per-client
// bookkeeping.
type SyncStorage interface {
	// ApplyOperation applies one operation exactly once inside a
	// transaction scoped to its record: idempotency lookup, conflict
	// resolution, record write and exactly one change-log entry per
	// applied mutation. Returns ErrRecordDeleted for writes after a
	// DELETE of the same record.
	ApplyOperation(ctx context.Context, op *models.SyncOperation) (*ApplyOutcome, error)

	// GetRecord returns the canonical record.
	// Returns ErrRecordNotFound if it does not exist or is deleted.
	GetRecord(ctx context.Context, table, recordID string) (*models.Record, error)

	// ChangesSince returns change-log entries with id > since, oldest
	// first, excluding entries written by excludeClient.
	ChangesSince(ctx context.Context, excludeClient string, since int64) ([]*models.ChangeEntry, error)

	// CurrentTimestamp returns the change-log cursor: the id of the newest
	// entry, 0 when the log is empty.
	CurrentTimestamp(ctx context.Context) (int64, error)

	// TouchClient records a device contact: cursor, self-reported queue
	// depth and the last error (empty string clears it). Nil pending map
	// keeps the previously reported counts.
	TouchClient(ctx context.Context, clientID string, cursor int64, pending map[string]int, lastError string) error

	// GetClientState returns the bookkeeping for one device.
	// Returns ErrClientNotFound if the device has never been seen.
	GetClientState(ctx context.Context, clientID string) (*models.ClientState, error)
}
