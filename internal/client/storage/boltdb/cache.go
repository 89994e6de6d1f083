package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/fieldsync/internal/client/storage"
)

// Entity cache: nested buckets под bucketEntities, по одному на таблицу.
// Проекция серверных записей для offline чтения; никогда не авторитетна.

// SaveRecord stores or overwrites the cached projection of one record.
func (s *Storage) SaveRecord(ctx context.Context, table, recordID string, data json.RawMessage) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.Bucket(bucketEntities).CreateBucketIfNotExists([]byte(table))
		if err != nil {
			return fmt.Errorf("failed to create table bucket: %w", err)
		}

		if err := bucket.Put([]byte(recordID), data); err != nil {
			return fmt.Errorf("failed to save record: %w", err)
		}

		return nil
	})

	if err != nil {
		return fmt.Errorf("save record transaction failed: %w", err)
	}

	return nil
}

// GetRecord retrieves the cached projection of a record.
// Returns ErrRecordNotFound if the record is not cached.
func (s *Storage) GetRecord(ctx context.Context, table, recordID string) (json.RawMessage, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var data json.RawMessage

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketEntities).Bucket([]byte(table))
		if bucket == nil {
			return storage.ErrRecordNotFound
		}

		raw := bucket.Get([]byte(recordID))
		if raw == nil {
			return storage.ErrRecordNotFound
		}

		// Копируем: данные bbolt валидны только внутри транзакции
		data = make(json.RawMessage, len(raw))
		copy(data, raw)
		return nil
	})

	if err != nil {
		return nil, err
	}

	return data, nil
}

// ListRecords returns all cached projections of a table keyed by record id.
func (s *Storage) ListRecords(ctx context.Context, table string) (map[string]json.RawMessage, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	records := make(map[string]json.RawMessage)

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketEntities).Bucket([]byte(table))
		if bucket == nil {
			// Нет bucket - возвращаем пустую map
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			data := make(json.RawMessage, len(v))
			copy(data, v)
			records[string(k)] = data
			return nil
		})
	})

	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	return records, nil
}

// DeleteRecord drops the cached projection. Deleting a missing record is a no-op.
func (s *Storage) DeleteRecord(ctx context.Context, table, recordID string) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketEntities).Bucket([]byte(table))
		if bucket == nil {
			return nil
		}
		return bucket.Delete([]byte(recordID))
	})

	if err != nil {
		return fmt.Errorf("delete record transaction failed: %w", err)
	}

	return nil
}
