package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/iudanet/fieldsync/internal/models"
	"github.com/iudanet/fieldsync/internal/server/resolver"
	"github.com/iudanet/fieldsync/internal/server/storage"
	"github.com/iudanet/fieldsync/pkg/api"
)

// versionRetries bounds the optimistic-lock retry when two batches race on
// the same record.
const versionRetries = 3

// conflictAuthor is the change-log author of conflict-resolution entries.
// The losing client's feed excludes its own writes, so a merge attributed to
// that client would never reach it; the server identity is excluded by no one.
const conflictAuthor = "fieldsync-server"

// ApplyOperation applies one operation exactly once. The whole apply runs in
// a transaction; a failed optimistic version check rolls back and retries the
// transaction with a short constant backoff.
func (s *Storage) ApplyOperation(ctx context.Context, op *models.SyncOperation) (*storage.ApplyOutcome, error) {
	var outcome *storage.ApplyOutcome

	backoff := retry.WithMaxRetries(versionRetries, retry.NewConstant(25*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		out, err := s.applyOnce(ctx, op)
		if errors.Is(err, storage.ErrVersionConflict) {
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}
		outcome = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// applyOnce выполняет одну попытку применения операции в транзакции
func (s *Storage) applyOnce(ctx context.Context, op *models.SyncOperation) (*storage.ApplyOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback после commit это no-op

	outcome := &storage.ApplyOutcome{}

	// Идемпотентность: повтор уже примененной операции - no-op успех
	applied, err := s.isApplied(ctx, tx, op.ID)
	if err != nil {
		return nil, err
	}
	if applied {
		outcome.Replayed = true
		return outcome, tx.Commit()
	}

	record, err := s.getRecordTx(ctx, tx, op.TableName, op.RecordID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()

	switch op.Kind {
	case api.OpCreate:
		if err := s.applyCreate(ctx, tx, op, record, now); err != nil {
			return nil, err
		}
	case api.OpUpdate:
		if err := s.applyUpdate(ctx, tx, op, record, now, outcome); err != nil {
			return nil, err
		}
	case api.OpDelete:
		if err := s.applyDelete(ctx, tx, op, record, now); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown operation kind: %s", op.Kind)
	}

	if err := s.markApplied(ctx, tx, op, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return outcome, nil
}

// applyCreate вставляет новую запись. Повторный CREATE существующей записи -
// no-op успех, CREATE после DELETE - постоянная ошибка.
func (s *Storage) applyCreate(ctx context.Context, tx *sql.Tx, op *models.SyncOperation, record *models.Record, now int64) error {
	if record != nil {
		if record.Deleted {
			return storage.ErrRecordDeleted
		}
		// Запись уже существует - дубликат не создаем
		return nil
	}

	if err := s.insertRecord(ctx, tx, op.TableName, op.RecordID, op.Payload, op.ClientID, now); err != nil {
		return err
	}
	return s.appendChange(ctx, tx, op, nil, op.Payload, now)
}

// applyUpdate накладывает частичный патч. Отсутствующая запись создается
// (upsert), устаревший базис уходит в conflict resolver.
func (s *Storage) applyUpdate(ctx context.Context, tx *sql.Tx, op *models.SyncOperation, record *models.Record, now int64, outcome *storage.ApplyOutcome) error {
	if record == nil {
		// Записи еще нет - UPDATE становится upsert
		if err := s.insertRecord(ctx, tx, op.TableName, op.RecordID, op.Payload, op.ClientID, now); err != nil {
			return err
		}
		return s.appendChange(ctx, tx, op, nil, op.Payload, now)
	}
	if record.Deleted {
		return storage.ErrRecordDeleted
	}

	// Конфликт: базис клиента старше текущего состояния, и запись менял
	// другой клиент. Собственные последовательные записи устройства
	// конфликтом не считаются - его очередь упорядочена.
	if op.ClientTimestamp < record.UpdatedAt && record.UpdatedBy != op.ClientID {
		return s.applyConflicted(ctx, tx, op, record, now, outcome)
	}

	merged, err := overlayFields(record.Data, op.Payload)
	if err != nil {
		return err
	}
	if err := s.updateRecord(ctx, tx, op.TableName, op.RecordID, merged, op.ClientID, now, record.Version); err != nil {
		return err
	}
	return s.appendChange(ctx, tx, op, record.Data, merged, now)
}

// applyConflicted разрешает устаревший UPDATE через политику
func (s *Storage) applyConflicted(ctx context.Context, tx *sql.Tx, op *models.SyncOperation, record *models.Record, now int64, outcome *storage.ApplyOutcome) error {
	serverChanged, err := s.changedSinceBasis(ctx, tx, op)
	if err != nil {
		return err
	}

	decision, err := s.policy.Resolve(record.Data, op.Payload, serverChanged)
	if err != nil {
		return fmt.Errorf("conflict resolution failed: %w", err)
	}

	outcome.Conflicted = true
	outcome.Overridden = decision.Overridden

	if !decision.Changed {
		// Весь патч отброшен: запись не трогаем, операция все равно
		// подтверждается как processed. Change log не пишется, поэтому
		// авторитетный снимок отдаем наверх для доставки в ответе
		outcome.Resolved = record.Data
		return nil
	}

	if err := s.updateRecord(ctx, tx, op.TableName, op.RecordID, decision.Merged, op.ClientID, now, record.Version); err != nil {
		return err
	}
	return s.appendChangeAs(ctx, tx, op, conflictAuthor, record.Data, decision.Merged, now)
}

// applyDelete помечает запись удаленной. DELETE отсутствующей или уже
// удаленной записи - no-op успех.
func (s *Storage) applyDelete(ctx context.Context, tx *sql.Tx, op *models.SyncOperation, record *models.Record, now int64) error {
	if record == nil || record.Deleted {
		return nil
	}

	query := `
		UPDATE records
		SET deleted = 1, version = version + 1, updated_by = ?, updated_at = ?
		WHERE table_name = ? AND record_id = ? AND version = ?
	`
	result, err := tx.ExecContext(ctx, query, op.ClientID, now, op.TableName, op.RecordID, record.Version)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrVersionConflict
	}

	return s.appendChange(ctx, tx, op, record.Data, nil, now)
}

// changedSinceBasis возвращает поля записи, измененные на сервере другими
// клиентами после базиса операции
func (s *Storage) changedSinceBasis(ctx context.Context, tx *sql.Tx, op *models.SyncOperation) ([]string, error) {
	query := `
		SELECT before, after
		FROM change_log
		WHERE table_name = ? AND record_id = ? AND changed_at > ? AND changed_by != ?
		ORDER BY id ASC
	`
	rows, err := tx.QueryContext(ctx, query, op.TableName, op.RecordID, op.ClientTimestamp, op.ClientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query change log: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	var fields []string

	for rows.Next() {
		var before, after sql.NullString
		if err := rows.Scan(&before, &after); err != nil {
			return nil, fmt.Errorf("failed to scan change entry: %w", err)
		}

		changed, err := resolver.ChangedFields(
			json.RawMessage(before.String), json.RawMessage(after.String))
		if err != nil {
			return nil, err
		}
		for _, field := range changed {
			if !seen[field] {
				seen[field] = true
				fields = append(fields, field)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return fields, nil
}

// GetRecord retrieves the canonical record.
// Returns ErrRecordNotFound if it does not exist or is deleted.
func (s *Storage) GetRecord(ctx context.Context, table, recordID string) (*models.Record, error) {
	query := `
		SELECT table_name, record_id, data, version, deleted, updated_by, updated_at
		FROM records
		WHERE table_name = ? AND record_id = ?
	`

	record := &models.Record{}
	var data string
	var deleted int

	err := s.db.QueryRowContext(ctx, query, table, recordID).Scan(
		&record.TableName,
		&record.RecordID,
		&data,
		&record.Version,
		&deleted,
		&record.UpdatedBy,
		&record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	record.Data = json.RawMessage(data)
	record.Deleted = intToBool(deleted)

	if record.Deleted {
		return nil, storage.ErrRecordNotFound
	}
	return record, nil
}

// ChangesSince returns change-log entries with id > since, oldest first,
// excluding entries written by excludeClient.
func (s *Storage) ChangesSince(ctx context.Context, excludeClient string, since int64) ([]*models.ChangeEntry, error) {
	query := `
		SELECT id, table_name, record_id, operation, changed_by, changed_at, before, after
		FROM change_log
		WHERE id > ? AND changed_by != ?
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, since, excludeClient)
	if err != nil {
		return nil, fmt.Errorf("failed to query change log: %w", err)
	}
	defer rows.Close()

	var entries []*models.ChangeEntry
	for rows.Next() {
		entry := &models.ChangeEntry{}
		var before, after sql.NullString

		err := rows.Scan(
			&entry.ID,
			&entry.TableName,
			&entry.RecordID,
			&entry.Operation,
			&entry.ChangedBy,
			&entry.ChangedAt,
			&before,
			&after,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan change entry: %w", err)
		}

		if before.Valid {
			entry.Before = json.RawMessage(before.String)
		}
		if after.Valid {
			entry.After = json.RawMessage(after.String)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return entries, nil
}

// CurrentTimestamp returns the change-log cursor, 0 when the log is empty.
func (s *Storage) CurrentTimestamp(ctx context.Context) (int64, error) {
	var cursor sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(id) FROM change_log`).Scan(&cursor)
	if err != nil {
		return 0, fmt.Errorf("failed to get change log cursor: %w", err)
	}
	return cursor.Int64, nil
}

// getRecordTx читает запись внутри транзакции, включая удаленные.
// Возвращает nil без ошибки если записи нет.
func (s *Storage) getRecordTx(ctx context.Context, tx *sql.Tx, table, recordID string) (*models.Record, error) {
	query := `
		SELECT table_name, record_id, data, version, deleted, updated_by, updated_at
		FROM records
		WHERE table_name = ? AND record_id = ?
	`

	record := &models.Record{}
	var data string
	var deleted int

	err := tx.QueryRowContext(ctx, query, table, recordID).Scan(
		&record.TableName,
		&record.RecordID,
		&data,
		&record.Version,
		&deleted,
		&record.UpdatedBy,
		&record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	record.Data = json.RawMessage(data)
	record.Deleted = intToBool(deleted)
	return record, nil
}

func (s *Storage) insertRecord(ctx context.Context, tx *sql.Tx, table, recordID string, data json.RawMessage, clientID string, now int64) error {
	query := `
		INSERT INTO records (table_name, record_id, data, version, deleted, updated_by, updated_at)
		VALUES (?, ?, ?, 1, 0, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, query, table, recordID, string(data), clientID, now); err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

func (s *Storage) updateRecord(ctx context.Context, tx *sql.Tx, table, recordID string, data json.RawMessage, clientID string, now, version int64) error {
	query := `
		UPDATE records
		SET data = ?, version = version + 1, updated_by = ?, updated_at = ?
		WHERE table_name = ? AND record_id = ? AND version = ?
	`
	result, err := tx.ExecContext(ctx, query, string(data), clientID, now, table, recordID, version)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrVersionConflict
	}
	return nil
}

// appendChange пишет ровно одну запись change log для примененной мутации
func (s *Storage) appendChange(ctx context.Context, tx *sql.Tx, op *models.SyncOperation, before, after json.RawMessage, now int64) error {
	return s.appendChangeAs(ctx, tx, op, op.ClientID, before, after, now)
}

func (s *Storage) appendChangeAs(ctx context.Context, tx *sql.Tx, op *models.SyncOperation, changedBy string, before, after json.RawMessage, now int64) error {
	query := `
		INSERT INTO change_log (table_name, record_id, operation, changed_by, changed_at, before, after)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := tx.ExecContext(ctx, query,
		op.TableName,
		op.RecordID,
		op.Kind,
		changedBy,
		now,
		nullableJSON(before),
		nullableJSON(after),
	)
	if err != nil {
		return fmt.Errorf("failed to append change log entry: %w", err)
	}
	return nil
}

func (s *Storage) isApplied(ctx context.Context, tx *sql.Tx, opID string) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM applied_operations WHERE operation_id = ?`, opID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check applied operations: %w", err)
	}
	return true, nil
}

func (s *Storage) markApplied(ctx context.Context, tx *sql.Tx, op *models.SyncOperation, now int64) error {
	query := `INSERT INTO applied_operations (operation_id, client_id, applied_at) VALUES (?, ?, ?)`
	if _, err := tx.ExecContext(ctx, query, op.ID, op.ClientID, now); err != nil {
		return fmt.Errorf("failed to mark operation applied: %w", err)
	}
	return nil
}

// overlayFields накладывает поля патча поверх текущих данных записи
func overlayFields(base, patch json.RawMessage) (json.RawMessage, error) {
	var baseMap, patchMap map[string]json.RawMessage

	if err := json.Unmarshal(base, &baseMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record data: %w", err)
	}
	if err := json.Unmarshal(patch, &patchMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal patch: %w", err)
	}

	for field, value := range patchMap {
		baseMap[field] = value
	}

	return json.Marshal(baseMap)
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func intToBool(i int) bool {
	return i != 0
}
