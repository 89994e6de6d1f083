package boltdb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/fieldsync/internal/client/storage"
	"github.com/iudanet/fieldsync/internal/models"
)

// seqKey кодирует порядковый номер операции в ключ bucket.
// BigEndian сохраняет порядок постановки при обходе bucket по ключам.
func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

// Enqueue persists the operation durably before returning. The bbolt Update
// commit fsyncs, so a crash after return cannot lose the operation. A failed
// commit is wrapped in ErrDegradedDurability: the caller must warn the user
// that the mutation may not survive a restart.
func (s *Storage) Enqueue(ctx context.Context, op *models.SyncOperation) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketQueue)

		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to get next sequence: %w", err)
		}
		op.Seq = seq

		data, err := json.Marshal(op)
		if err != nil {
			return fmt.Errorf("failed to marshal operation: %w", err)
		}

		if err := bucket.Put(seqKey(seq), data); err != nil {
			return fmt.Errorf("failed to save operation: %w", err)
		}

		return nil
	})

	if err != nil {
		return fmt.Errorf("%w: %w", storage.ErrDegradedDurability, err)
	}

	return nil
}

// ListPending returns a consistent snapshot of the queue in creation order.
func (s *Storage) ListPending(ctx context.Context) ([]*models.SyncOperation, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var ops []*models.SyncOperation

	err := s.db.View(func(tx *bbolt.Tx) error {
		// ForEach обходит ключи в порядке возрастания, т.е. в порядке постановки
		return tx.Bucket(bucketQueue).ForEach(func(k, v []byte) error {
			var op models.SyncOperation
			if err := json.Unmarshal(v, &op); err != nil {
				return fmt.Errorf("failed to unmarshal operation: %w", err)
			}
			ops = append(ops, &op)
			return nil
		})
	})

	if err != nil {
		return nil, fmt.Errorf("failed to list pending operations: %w", err)
	}

	return ops, nil
}

// RemoveProcessed deletes the given operations in a single transaction.
// Unknown ids are skipped: a lost response may have been retried and the
// duplicate ack must not fail the cycle.
func (s *Storage) RemoveProcessed(ctx context.Context, ids []string) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}
	if len(ids) == 0 {
		return nil
	}

	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketQueue)

		var keys [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			var op models.SyncOperation
			if err := json.Unmarshal(v, &op); err != nil {
				return fmt.Errorf("failed to unmarshal operation: %w", err)
			}
			if idSet[op.ID] {
				key := make([]byte, len(k))
				copy(key, k)
				keys = append(keys, key)
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, key := range keys {
			if err := bucket.Delete(key); err != nil {
				return fmt.Errorf("failed to delete operation: %w", err)
			}
		}

		return nil
	})

	if err != nil {
		return fmt.Errorf("remove processed transaction failed: %w", err)
	}

	return nil
}

// BumpRetry increments retry_count; past models.MaxRetries the operation is
// moved to the dead-letter list in the same transaction instead of being
// retried forever.
func (s *Storage) BumpRetry(ctx context.Context, id string) (bool, error) {
	if s.db == nil {
		return false, storage.ErrStorageClosed
	}

	deadLettered := false

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketQueue)

		key, op, err := findByID(bucket, id)
		if err != nil {
			return err
		}

		op.RetryCount++

		if op.RetryCount > models.MaxRetries {
			if err := moveToDeadLetter(tx, key, op, "retry budget exceeded"); err != nil {
				return err
			}
			deadLettered = true
			return nil
		}

		data, err := json.Marshal(op)
		if err != nil {
			return fmt.Errorf("failed to marshal operation: %w", err)
		}
		if err := bucket.Put(key, data); err != nil {
			return fmt.Errorf("failed to update operation: %w", err)
		}

		return nil
	})

	if err != nil {
		return false, err
	}

	return deadLettered, nil
}

// MoveToDeadLetter removes the operation from the active queue and records
// it as permanently failed. No operation ever vanishes silently: everything
// abandoned lands here.
func (s *Storage) MoveToDeadLetter(ctx context.Context, id, reason string) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		key, op, err := findByID(tx.Bucket(bucketQueue), id)
		if err != nil {
			return err
		}
		return moveToDeadLetter(tx, key, op, reason)
	})
}

// ListDeadLetters returns the abandoned operations.
func (s *Storage) ListDeadLetters(ctx context.Context) ([]*models.DeadLetter, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var letters []*models.DeadLetter

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDeadLetter).ForEach(func(k, v []byte) error {
			var dl models.DeadLetter
			if err := json.Unmarshal(v, &dl); err != nil {
				return fmt.Errorf("failed to unmarshal dead letter: %w", err)
			}
			letters = append(letters, &dl)
			return nil
		})
	})

	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}

	return letters, nil
}

// CountPending returns the number of queued operations.
func (s *Storage) CountPending(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, storage.ErrStorageClosed
	}

	count := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		count = tx.Bucket(bucketQueue).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count pending operations: %w", err)
	}

	return count, nil
}

// CountPendingByTable returns queued operation counts keyed by table name.
func (s *Storage) CountPendingByTable(ctx context.Context) (map[string]int, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	counts := make(map[string]int)

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketQueue).ForEach(func(k, v []byte) error {
			var op models.SyncOperation
			if err := json.Unmarshal(v, &op); err != nil {
				return fmt.Errorf("failed to unmarshal operation: %w", err)
			}
			counts[op.TableName]++
			return nil
		})
	})

	if err != nil {
		return nil, fmt.Errorf("failed to count pending by table: %w", err)
	}

	return counts, nil
}

// findByID ищет операцию в очереди по её id, возвращает ключ и операцию
func findByID(bucket *bbolt.Bucket, id string) ([]byte, *models.SyncOperation, error) {
	var foundKey []byte
	var foundOp *models.SyncOperation

	err := bucket.ForEach(func(k, v []byte) error {
		if foundOp != nil {
			return nil
		}
		var op models.SyncOperation
		if err := json.Unmarshal(v, &op); err != nil {
			return fmt.Errorf("failed to unmarshal operation: %w", err)
		}
		if op.ID == id {
			foundKey = make([]byte, len(k))
			copy(foundKey, k)
			foundOp = &op
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if foundOp == nil {
		return nil, nil, storage.ErrOperationNotFound
	}

	return foundKey, foundOp, nil
}

// moveToDeadLetter переносит операцию из очереди в dead-letter bucket
// в рамках уже открытой транзакции
func moveToDeadLetter(tx *bbolt.Tx, queueKey []byte, op *models.SyncOperation, reason string) error {
	dl := models.DeadLetter{
		Operation: *op,
		Reason:    reason,
		FailedAt:  time.Now(),
	}

	data, err := json.Marshal(&dl)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}

	if err := tx.Bucket(bucketDeadLetter).Put([]byte(op.ID), data); err != nil {
		return fmt.Errorf("failed to save dead letter: %w", err)
	}

	if err := tx.Bucket(bucketQueue).Delete(queueKey); err != nil {
		return fmt.Errorf("failed to remove operation from queue: %w", err)
	}

	return nil
}
