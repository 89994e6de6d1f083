package storage

import (
	"context"
	"encoding/json"
)

// CacheStorage is the per-device projection of server entities used for
// offline reads. It is always considered possibly stale and is overwritten
// whenever a conflicting server value is learned.
type CacheStorage interface {
	// SaveRecord stores or overwrites the projection of one record.
	SaveRecord(ctx context.Context, table, recordID string, data json.RawMessage) error

	// GetRecord returns the cached projection.
	// Returns ErrRecordNotFound if the record is not cached.
	GetRecord(ctx context.Context, table, recordID string) (json.RawMessage, error)

	// ListRecords returns all cached projections of a table keyed by record id.
	ListRecords(ctx context.Context, table string) (map[string]json.RawMessage, error)

	// DeleteRecord drops the projection. Deleting a missing record is a no-op.
	DeleteRecord(ctx context.Context, table, recordID string) error
}
