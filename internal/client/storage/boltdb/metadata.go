package boltdb

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/iudanet/fieldsync/internal/client/storage"
)

const (
	keyClientID          = "client_id"
	keyLastSyncTimestamp = "last_sync_timestamp"
)

// ClientID returns the durable device identifier, generating and persisting
// a new uuid on first use.
func (s *Storage) ClientID(ctx context.Context) (string, error) {
	if s.db == nil {
		return "", storage.ErrStorageClosed
	}

	var clientID string

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMetadata)

		if existing := bucket.Get([]byte(keyClientID)); existing != nil {
			clientID = string(existing)
			return nil
		}

		// Первый запуск - генерируем и сохраняем id устройства
		clientID = uuid.NewString()
		if err := bucket.Put([]byte(keyClientID), []byte(clientID)); err != nil {
			return fmt.Errorf("failed to save client id: %w", err)
		}

		return nil
	})

	if err != nil {
		return "", fmt.Errorf("failed to get client id: %w", err)
	}

	return clientID, nil
}

// SaveLastSyncTimestamp advances the last-sync watermark. The watermark is
// monotonically non-decreasing: an older value is silently ignored.
func (s *Storage) SaveLastSyncTimestamp(ctx context.Context, timestamp int64) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMetadata)

		if existing := bucket.Get([]byte(keyLastSyncTimestamp)); existing != nil {
			current := int64(binary.BigEndian.Uint64(existing))
			if timestamp <= current {
				return nil
			}
		}

		// Конвертируем int64 в bytes
		timestampBytes := make([]byte, 8)
		binary.BigEndian.PutUint64(timestampBytes, uint64(timestamp))

		if err := bucket.Put([]byte(keyLastSyncTimestamp), timestampBytes); err != nil {
			return fmt.Errorf("failed to save last sync timestamp: %w", err)
		}

		return nil
	})
}

// GetLastSyncTimestamp retrieves the last-sync watermark.
// Returns 0 if no sync has been performed yet.
func (s *Storage) GetLastSyncTimestamp(ctx context.Context) (int64, error) {
	if s.db == nil {
		return 0, storage.ErrStorageClosed
	}

	var timestamp int64

	err := s.db.View(func(tx *bbolt.Tx) error {
		timestampBytes := tx.Bucket(bucketMetadata).Get([]byte(keyLastSyncTimestamp))
		if timestampBytes == nil {
			// Первая синхронизация
			timestamp = 0
			return nil
		}

		timestamp = int64(binary.BigEndian.Uint64(timestampBytes))
		return nil
	})

	if err != nil {
		return 0, fmt.Errorf("failed to get last sync timestamp: %w", err)
	}

	return timestamp, nil
}
