package storage

import (
	"context"

	"github.com/iudanet/fieldsync/internal/models"
)

// QueueStorage is the durable per-device queue of pending sync operations.
// Every method is a serialized read-modify-write: the UI mutation path and
// the sync cycle share this store and must never interleave partially.
type QueueStorage interface {
	// Enqueue persists the operation durably before returning. A crash
	// after return must not lose the operation. Assigns op.Seq.
	Enqueue(ctx context.Context, op *models.SyncOperation) error

	// ListPending returns a consistent snapshot of the queue in creation
	// order, usable to build one batch.
	ListPending(ctx context.Context) ([]*models.SyncOperation, error)

	// RemoveProcessed deletes the given operations atomically.
	RemoveProcessed(ctx context.Context, ids []string) error

	// BumpRetry increments retry_count. When the count exceeds
	// models.MaxRetries the operation is moved to the dead-letter list and
	// deadLettered is true.
	BumpRetry(ctx context.Context, id string) (deadLettered bool, err error)

	// MoveToDeadLetter removes the operation from the active queue and
	// records it as permanently failed with the given reason.
	MoveToDeadLetter(ctx context.Context, id, reason string) error

	// ListDeadLetters returns the abandoned operations, newest first.
	ListDeadLetters(ctx context.Context) ([]*models.DeadLetter, error)

	// CountPending returns the number of queued operations.
	CountPending(ctx context.Context) (int, error)

	// CountPendingByTable returns queued operation counts keyed by table.
	CountPendingByTable(ctx context.Context) (map[string]int, error)
}
