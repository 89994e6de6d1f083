package data

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpclient "github.com/iudanet/fieldsync/internal/client/api"
	"github.com/iudanet/fieldsync/internal/client/intercept"
	"github.com/iudanet/fieldsync/internal/client/storage"
	"github.com/iudanet/fieldsync/internal/client/storage/boltdb"
	"github.com/iudanet/fieldsync/pkg/api"
)

func setupService(t *testing.T, mock *httpclient.ClientAPIMock) (Service, *boltdb.Storage) {
	t.Helper()

	store, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	interceptor := intercept.New(mock, store, store, store, logger)

	return NewService(interceptor, store, store), store
}

func onlineMock() *httpclient.ClientAPIMock {
	return &httpclient.ClientAPIMock{
		SyncBatchFunc: func(ctx context.Context, req api.SyncRequest) (*api.SyncResponse, error) {
			ids := make([]string, 0, len(req.Operations))
			for _, op := range req.Operations {
				ids = append(ids, op.ID)
			}
			return &api.SyncResponse{Success: true, ProcessedOperations: ids, SyncTimestamp: 1}, nil
		},
	}
}

func offlineMock() *httpclient.ClientAPIMock {
	return &httpclient.ClientAPIMock{
		SyncBatchFunc: func(ctx context.Context, req api.SyncRequest) (*api.SyncResponse, error) {
			return nil, errors.New("request failed: connection refused")
		},
	}
}

func TestService_CreateGeneratesRecordID(t *testing.T) {
	svc, _ := setupService(t, onlineMock())
	ctx := context.Background()

	receipt, err := svc.Create(ctx, "work_orders", json.RawMessage(`{"status":"OPEN","title":"Replace bearing"}`))
	require.NoError(t, err)

	assert.Equal(t, intercept.StatusApplied, receipt.Status)
	assert.NotEmpty(t, receipt.RecordID)
	assert.NotEmpty(t, receipt.OperationID)

	// Сгенерированный id дописан в саму запись
	record, err := svc.Get(ctx, "work_orders", receipt.RecordID)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(record, &fields))
	assert.Equal(t, receipt.RecordID, fields["id"])
	assert.Equal(t, "OPEN", fields["status"])
}

func TestService_CreateKeepsCallerID(t *testing.T) {
	svc, _ := setupService(t, onlineMock())

	receipt, err := svc.Create(context.Background(), "work_orders", json.RawMessage(`{"id":"WO-1001","status":"OPEN"}`))
	require.NoError(t, err)
	assert.Equal(t, "WO-1001", receipt.RecordID)
}

func TestService_CreateRejectsBadTable(t *testing.T) {
	svc, _ := setupService(t, onlineMock())

	_, err := svc.Create(context.Background(), "Work Orders!", json.RawMessage(`{}`))
	assert.Error(t, err)
}

func TestService_OfflineCreateIsReadable(t *testing.T) {
	svc, store := setupService(t, offlineMock())
	ctx := context.Background()

	receipt, err := svc.Create(ctx, "pm_tasks", json.RawMessage(`{"name":"Monthly inspection"}`))
	require.NoError(t, err)
	assert.Equal(t, intercept.StatusQueued, receipt.Status)

	// Устройство видит собственную запись до синхронизации
	record, err := svc.Get(ctx, "pm_tasks", receipt.RecordID)
	require.NoError(t, err)
	assert.Contains(t, string(record), "Monthly inspection")

	pending, err := store.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, receipt.OperationID, pending[0].ID)
	assert.Equal(t, api.OpCreate, pending[0].Kind)
	assert.Positive(t, pending[0].ClientTimestamp)
}

func TestService_UpdateRejectedByServer(t *testing.T) {
	mock := &httpclient.ClientAPIMock{
		SyncBatchFunc: func(ctx context.Context, req api.SyncRequest) (*api.SyncResponse, error) {
			return nil, &httpclient.ServerError{
				StatusCode: http.StatusBadRequest,
				Message:    "unknown table: bad_table",
			}
		},
	}
	svc, store := setupService(t, mock)
	ctx := context.Background()

	receipt, err := svc.Update(ctx, "work_orders", "wo-1", json.RawMessage(`{"status":"COMPLETED"}`))
	require.Error(t, err)
	assert.Equal(t, intercept.StatusRejected, receipt.Status)
	assert.Contains(t, receipt.Reason, "unknown table")

	pending, listErr := store.ListPending(ctx)
	require.NoError(t, listErr)
	assert.Empty(t, pending)
}

func TestService_UpdateEmptyPatch(t *testing.T) {
	svc, _ := setupService(t, onlineMock())

	_, err := svc.Update(context.Background(), "work_orders", "wo-1", nil)
	assert.Error(t, err)
}

func TestService_DeleteRemovesLocalProjection(t *testing.T) {
	svc, store := setupService(t, offlineMock())
	ctx := context.Background()

	require.NoError(t, store.SaveRecord(ctx, "cost_entries", "ce-1", json.RawMessage(`{"id":"ce-1","amount":120}`)))

	receipt, err := svc.Delete(ctx, "cost_entries", "ce-1")
	require.NoError(t, err)
	assert.Equal(t, intercept.StatusQueued, receipt.Status)

	_, err = svc.Get(ctx, "cost_entries", "ce-1")
	assert.ErrorIs(t, err, storage.ErrRecordNotFound)
}

func TestService_ListReturnsTableProjections(t *testing.T) {
	svc, store := setupService(t, onlineMock())
	ctx := context.Background()

	require.NoError(t, store.SaveRecord(ctx, "assets", "a-1", json.RawMessage(`{"id":"a-1"}`)))
	require.NoError(t, store.SaveRecord(ctx, "assets", "a-2", json.RawMessage(`{"id":"a-2"}`)))
	require.NoError(t, store.SaveRecord(ctx, "work_orders", "wo-1", json.RawMessage(`{"id":"wo-1"}`)))

	records, err := svc.List(ctx, "assets")
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Contains(t, records, "a-1")
	assert.Contains(t, records, "a-2")
}
