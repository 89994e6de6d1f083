package storage

import "context"

// MetadataStorage holds the device sync state: the durable client id and the
// last-sync watermark.
type MetadataStorage interface {
	// ClientID returns the durable device identifier, generating and
	// persisting one on first use.
	ClientID(ctx context.Context) (string, error)

	// GetLastSyncTimestamp returns the last-sync watermark, 0 before the
	// first successful sync.
	GetLastSyncTimestamp(ctx context.Context) (int64, error)

	// SaveLastSyncTimestamp advances the watermark. The watermark is
	// monotonically non-decreasing: saving an older value is a no-op.
	SaveLastSyncTimestamp(ctx context.Context, timestamp int64) error
}
