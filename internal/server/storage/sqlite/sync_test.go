package sqlite

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/fieldsync/internal/models"
	"github.com/iudanet/fieldsync/internal/server/resolver"
	"github.com/iudanet/fieldsync/internal/server/storage"
	"github.com/iudanet/fieldsync/pkg/api"
)

func createTestStorage(t *testing.T, policy resolver.Policy) *Storage {
	t.Helper()

	s, err := New(context.Background(), ":memory:", policy)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})
	return s
}

// freshTS возвращает client_timestamp заведомо новее серверных часов
func freshTS() int64 {
	return time.Now().Add(time.Hour).UnixMilli()
}

func testOp(id, kind, recordID, clientID string, payload string, ts int64) *models.SyncOperation {
	op := &models.SyncOperation{
		ID:              id,
		Kind:            kind,
		TableName:       "work_orders",
		RecordID:        recordID,
		ClientID:        clientID,
		ClientTimestamp: ts,
	}
	if payload != "" {
		op.Payload = json.RawMessage(payload)
	}
	return op
}

func changeLogCount(t *testing.T, s *Storage) int {
	t.Helper()
	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM change_log`).Scan(&count))
	return count
}

func TestApplyOperation_Create(t *testing.T) {
	s := createTestStorage(t, nil)
	ctx := context.Background()

	outcome, err := s.ApplyOperation(ctx,
		testOp("op-1", api.OpCreate, "wo-1", "device-a", `{"id":"wo-1","status":"OPEN"}`, freshTS()))
	require.NoError(t, err)
	assert.False(t, outcome.Replayed)
	assert.False(t, outcome.Conflicted)

	record, err := s.GetRecord(ctx, "work_orders", "wo-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"wo-1","status":"OPEN"}`, string(record.Data))
	assert.Equal(t, int64(1), record.Version)
	assert.Equal(t, "device-a", record.UpdatedBy)

	assert.Equal(t, 1, changeLogCount(t, s))

	cursor, err := s.CurrentTimestamp(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cursor)
}

func TestApplyOperation_IdempotentReplay(t *testing.T) {
	s := createTestStorage(t, nil)
	ctx := context.Background()

	op := testOp("op-1", api.OpCreate, "wo-1", "device-a", `{"id":"wo-1","status":"OPEN"}`, freshTS())

	_, err := s.ApplyOperation(ctx, op)
	require.NoError(t, err)

	// Повтор того же operation id - как при потерянном ответе на батч
	outcome, err := s.ApplyOperation(ctx, op)
	require.NoError(t, err)
	assert.True(t, outcome.Replayed)

	// Эффект применен ровно один раз
	assert.Equal(t, 1, changeLogCount(t, s))

	record, err := s.GetRecord(ctx, "work_orders", "wo-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), record.Version)
}

func TestApplyOperation_CreateExistingRecord(t *testing.T) {
	s := createTestStorage(t, nil)
	ctx := context.Background()

	_, err := s.ApplyOperation(ctx,
		testOp("op-1", api.OpCreate, "wo-1", "device-a", `{"id":"wo-1","status":"OPEN"}`, freshTS()))
	require.NoError(t, err)

	// CREATE с другим op id на существующую запись - no-op успех, не дубликат
	outcome, err := s.ApplyOperation(ctx,
		testOp("op-2", api.OpCreate, "wo-1", "device-b", `{"id":"wo-1","status":"NEW"}`, freshTS()))
	require.NoError(t, err)
	assert.False(t, outcome.Replayed)

	record, err := s.GetRecord(ctx, "work_orders", "wo-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"wo-1","status":"OPEN"}`, string(record.Data))
	assert.Equal(t, 1, changeLogCount(t, s), "no-op create must not append a change entry")
}

func TestApplyOperation_CreateAfterDelete(t *testing.T) {
	s := createTestStorage(t, nil)
	ctx := context.Background()

	_, err := s.ApplyOperation(ctx,
		testOp("op-1", api.OpCreate, "wo-1", "device-a", `{"id":"wo-1"}`, freshTS()))
	require.NoError(t, err)
	_, err = s.ApplyOperation(ctx,
		testOp("op-2", api.OpDelete, "wo-1", "device-a", "", freshTS()))
	require.NoError(t, err)

	// DELETE терминален
	_, err = s.ApplyOperation(ctx,
		testOp("op-3", api.OpCreate, "wo-1", "device-b", `{"id":"wo-1"}`, freshTS()))
	assert.ErrorIs(t, err, storage.ErrRecordDeleted)
}

func TestApplyOperation_UpdateMissingUpserts(t *testing.T) {
	s := createTestStorage(t, nil)
	ctx := context.Background()

	_, err := s.ApplyOperation(ctx,
		testOp("op-1", api.OpUpdate, "wo-1", "device-a", `{"status":"IN_PROGRESS"}`, freshTS()))
	require.NoError(t, err)

	record, err := s.GetRecord(ctx, "work_orders", "wo-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"IN_PROGRESS"}`, string(record.Data))
}

func TestApplyOperation_UpdateAfterDelete(t *testing.T) {
	s := createTestStorage(t, nil)
	ctx := context.Background()

	_, err := s.ApplyOperation(ctx,
		testOp("op-1", api.OpCreate, "wo-1", "device-a", `{"id":"wo-1"}`, freshTS()))
	require.NoError(t, err)
	_, err = s.ApplyOperation(ctx,
		testOp("op-2", api.OpDelete, "wo-1", "device-a", "", freshTS()))
	require.NoError(t, err)

	_, err = s.ApplyOperation(ctx,
		testOp("op-3", api.OpUpdate, "wo-1", "device-b", `{"status":"DONE"}`, freshTS()))
	assert.ErrorIs(t, err, storage.ErrRecordDeleted)
}

func TestApplyOperation_DeleteIsIdempotent(t *testing.T) {
	s := createTestStorage(t, nil)
	ctx := context.Background()

	// DELETE несуществующей записи - no-op успех
	_, err := s.ApplyOperation(ctx,
		testOp("op-1", api.OpDelete, "ghost", "device-a", "", freshTS()))
	require.NoError(t, err)
	assert.Equal(t, 0, changeLogCount(t, s))

	_, err = s.ApplyOperation(ctx,
		testOp("op-2", api.OpCreate, "wo-1", "device-a", `{"id":"wo-1"}`, freshTS()))
	require.NoError(t, err)
	_, err = s.ApplyOperation(ctx,
		testOp("op-3", api.OpDelete, "wo-1", "device-a", "", freshTS()))
	require.NoError(t, err)

	// Повторный DELETE другим op id - no-op
	_, err = s.ApplyOperation(ctx,
		testOp("op-4", api.OpDelete, "wo-1", "device-b", "", freshTS()))
	require.NoError(t, err)
	assert.Equal(t, 2, changeLogCount(t, s))
}

func TestApplyOperation_UpdateMergesFields(t *testing.T) {
	s := createTestStorage(t, nil)
	ctx := context.Background()

	_, err := s.ApplyOperation(ctx,
		testOp("op-1", api.OpCreate, "wo-1", "device-a", `{"id":"wo-1","status":"OPEN","title":"Replace bearing"}`, freshTS()))
	require.NoError(t, err)

	_, err = s.ApplyOperation(ctx,
		testOp("op-2", api.OpUpdate, "wo-1", "device-a", `{"status":"COMPLETED"}`, freshTS()))
	require.NoError(t, err)

	record, err := s.GetRecord(ctx, "work_orders", "wo-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"wo-1","status":"COMPLETED","title":"Replace bearing"}`, string(record.Data))
	assert.Equal(t, int64(2), record.Version)
}

func TestApplyOperation_StaleUpdateServerWins(t *testing.T) {
	s := createTestStorage(t, nil)
	ctx := context.Background()

	_, err := s.ApplyOperation(ctx,
		testOp("op-1", api.OpCreate, "wo-1", "device-b", `{"id":"wo-1","status":"OPEN"}`, freshTS()))
	require.NoError(t, err)
	_, err = s.ApplyOperation(ctx,
		testOp("op-2", api.OpUpdate, "wo-1", "device-b", `{"status":"COMPLETED"}`, freshTS()))
	require.NoError(t, err)

	// Устаревший UPDATE устройства A на основе старого снимка
	outcome, err := s.ApplyOperation(ctx,
		testOp("op-3", api.OpUpdate, "wo-1", "device-a", `{"status":"IN_PROGRESS"}`, 1000))
	require.NoError(t, err, "stale update is processed, not an error")
	assert.True(t, outcome.Conflicted)
	assert.Contains(t, outcome.Overridden, "status")

	// Серверное значение сохранилось
	record, err := s.GetRecord(ctx, "work_orders", "wo-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"wo-1","status":"COMPLETED"}`, string(record.Data))

	// Отброшенный патч не пишет change log, но возвращает авторитетный
	// снимок - единственный способ донести исход до проигравшего клиента
	assert.Equal(t, 2, changeLogCount(t, s))
	assert.JSONEq(t, `{"id":"wo-1","status":"COMPLETED"}`, string(outcome.Resolved))
}

func TestApplyOperation_StaleUpdateDeterministic(t *testing.T) {
	// Два устаревших UPDATE с пересекающимся полем: итог всегда серверное
	// значение, независимо от порядка прибытия
	for name, order := range map[string][2]string{
		"a_then_c": {"device-a", "device-c"},
		"c_then_a": {"device-c", "device-a"},
	} {
		t.Run(name, func(t *testing.T) {
			s := createTestStorage(t, nil)
			ctx := context.Background()

			_, err := s.ApplyOperation(ctx,
				testOp("op-1", api.OpCreate, "wo-1", "device-b", `{"id":"wo-1","status":"COMPLETED"}`, freshTS()))
			require.NoError(t, err)

			_, err = s.ApplyOperation(ctx,
				testOp("op-"+order[0], api.OpUpdate, "wo-1", order[0], `{"status":"IN_PROGRESS"}`, 1000))
			require.NoError(t, err)
			_, err = s.ApplyOperation(ctx,
				testOp("op-"+order[1], api.OpUpdate, "wo-1", order[1], `{"status":"ON_HOLD"}`, 1001))
			require.NoError(t, err)

			record, err := s.GetRecord(ctx, "work_orders", "wo-1")
			require.NoError(t, err)
			assert.JSONEq(t, `{"id":"wo-1","status":"COMPLETED"}`, string(record.Data))
		})
	}
}

func TestApplyOperation_StaleUpdateFieldMerge(t *testing.T) {
	s := createTestStorage(t, resolver.FieldMerge{})
	ctx := context.Background()

	_, err := s.ApplyOperation(ctx,
		testOp("op-1", api.OpCreate, "wo-1", "device-b", `{"id":"wo-1","status":"OPEN"}`, freshTS()))
	require.NoError(t, err)

	// Базис A: после create, до обновления статуса устройством B
	time.Sleep(5 * time.Millisecond)
	basis := time.Now().UnixMilli()
	time.Sleep(5 * time.Millisecond)

	_, err = s.ApplyOperation(ctx,
		testOp("op-2", api.OpUpdate, "wo-1", "device-b", `{"status":"COMPLETED"}`, freshTS()))
	require.NoError(t, err)

	// Устаревший патч A: пересекающийся status + непересекающийся note
	outcome, err := s.ApplyOperation(ctx,
		testOp("op-3", api.OpUpdate, "wo-1", "device-a", `{"status":"IN_PROGRESS","note":"pump was leaking"}`, basis))
	require.NoError(t, err)
	assert.True(t, outcome.Conflicted)
	assert.Equal(t, []string{"status"}, outcome.Overridden)

	record, err := s.GetRecord(ctx, "work_orders", "wo-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"wo-1","status":"COMPLETED","note":"pump was leaking"}`, string(record.Data))

	// Запись о слиянии атрибутирована серверу: фильтр собственных изменений
	// устройства A не скрывает ее, слитое состояние дойдет через фид
	changes, err := s.ChangesSince(ctx, "device-a", 0)
	require.NoError(t, err)
	require.NotEmpty(t, changes)
	merged := changes[len(changes)-1]
	assert.Equal(t, conflictAuthor, merged.ChangedBy)
	assert.JSONEq(t, `{"id":"wo-1","status":"COMPLETED","note":"pump was leaking"}`, string(merged.After))
}

func TestApplyOperation_OwnSequenceNeverConflicts(t *testing.T) {
	s := createTestStorage(t, nil)
	ctx := context.Background()

	_, err := s.ApplyOperation(ctx,
		testOp("op-1", api.OpCreate, "wo-1", "device-a", `{"id":"wo-1","status":"OPEN"}`, freshTS()))
	require.NoError(t, err)

	// Собственная очередь устройства упорядочена: wall clock операции может
	// отставать от серверного updated_at, конфликтом это не считается
	outcome, err := s.ApplyOperation(ctx,
		testOp("op-2", api.OpUpdate, "wo-1", "device-a", `{"status":"COMPLETED"}`, 1000))
	require.NoError(t, err)
	assert.False(t, outcome.Conflicted)

	record, err := s.GetRecord(ctx, "work_orders", "wo-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"wo-1","status":"COMPLETED"}`, string(record.Data))
}

func TestApplyOperation_OrderIndependenceAcrossRecords(t *testing.T) {
	ops := []*models.SyncOperation{
		testOp("op-1", api.OpCreate, "wo-1", "device-a", `{"id":"wo-1","status":"OPEN"}`, freshTS()),
		testOp("op-2", api.OpCreate, "wo-2", "device-b", `{"id":"wo-2","status":"OPEN"}`, freshTS()),
		testOp("op-3", api.OpUpdate, "wo-1", "device-a", `{"status":"COMPLETED"}`, freshTS()),
		testOp("op-4", api.OpUpdate, "wo-2", "device-b", `{"status":"ON_HOLD"}`, freshTS()),
	}
	// Перестановка, сохраняющая порядок операций каждой записи
	reversed := []*models.SyncOperation{ops[1], ops[0], ops[3], ops[2]}

	finalState := func(order []*models.SyncOperation) (string, string) {
		s := createTestStorage(t, nil)
		ctx := context.Background()
		for _, op := range order {
			_, err := s.ApplyOperation(ctx, op)
			require.NoError(t, err)
		}
		r1, err := s.GetRecord(ctx, "work_orders", "wo-1")
		require.NoError(t, err)
		r2, err := s.GetRecord(ctx, "work_orders", "wo-2")
		require.NoError(t, err)
		return string(r1.Data), string(r2.Data)
	}

	a1, a2 := finalState(ops)
	b1, b2 := finalState(reversed)
	assert.JSONEq(t, a1, b1)
	assert.JSONEq(t, a2, b2)
}

func TestChangesSince_ExcludesOwnWrites(t *testing.T) {
	s := createTestStorage(t, nil)
	ctx := context.Background()

	_, err := s.ApplyOperation(ctx,
		testOp("op-1", api.OpCreate, "wo-1", "device-a", `{"id":"wo-1"}`, freshTS()))
	require.NoError(t, err)
	_, err = s.ApplyOperation(ctx,
		testOp("op-2", api.OpCreate, "wo-2", "device-b", `{"id":"wo-2"}`, freshTS()))
	require.NoError(t, err)

	// Устройство A не должно получать эхо собственных записей
	changes, err := s.ChangesSince(ctx, "device-a", 0)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "wo-2", changes[0].RecordID)
	assert.Equal(t, "device-b", changes[0].ChangedBy)

	// Курсор отсекает уже виденные изменения
	changes, err = s.ChangesSince(ctx, "device-a", changes[0].ID)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestGetRecord_NotFound(t *testing.T) {
	s := createTestStorage(t, nil)

	_, err := s.GetRecord(context.Background(), "work_orders", "ghost")
	assert.ErrorIs(t, err, storage.ErrRecordNotFound)
}

func TestCurrentTimestamp_EmptyLog(t *testing.T) {
	s := createTestStorage(t, nil)

	cursor, err := s.CurrentTimestamp(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), cursor)
}
