// Package intercept wraps outbound entity writes. A write is first attempted
// directly against the sync endpoint; on a transport failure it is converted
// into a queued operation with an optimistic cache update, so the caller can
// proceed without blocking the user.
package intercept

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	httpclient "github.com/iudanet/fieldsync/internal/client/api"
	"github.com/iudanet/fieldsync/internal/client/storage"
	"github.com/iudanet/fieldsync/internal/models"
	"github.com/iudanet/fieldsync/pkg/api"
)

// Status is the tagged outcome of an intercepted write.
type Status int

const (
	// StatusApplied - запись применена сервером напрямую
	StatusApplied Status = iota
	// StatusQueued - транспортная ошибка, операция поставлена в очередь
	StatusQueued
	// StatusRejected - сервер отклонил запись (ошибка приложения)
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusApplied:
		return "applied"
	case StatusQueued:
		return "queued"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// WriteResult is returned synchronously from every intercepted write.
// Warning carries a degraded-durability condition: the operation was queued
// in memory but the durable write failed, so it may not survive a restart.
type WriteResult struct {
	Warning error
	Reason  string
	Status  Status
}

// Interceptor sits between the record service and the transport.
type Interceptor struct {
	apiClient httpclient.ClientAPI
	queue     storage.QueueStorage
	cache     storage.CacheStorage
	metadata  storage.MetadataStorage
	logger    *slog.Logger
	resume    func()
	now       func() time.Time
}

// New creates an interceptor. resume is the coordinator's wakeup entry point,
// called after every enqueue so queued writes are flushed without user action;
// it may be nil.
func New(
	apiClient httpclient.ClientAPI,
	queue storage.QueueStorage,
	cache storage.CacheStorage,
	metadata storage.MetadataStorage,
	logger *slog.Logger,
) *Interceptor {
	return &Interceptor{
		apiClient: apiClient,
		queue:     queue,
		cache:     cache,
		metadata:  metadata,
		logger:    logger,
		now:       time.Now,
	}
}

// SetResumeHook registers the coordinator wakeup called after an enqueue.
func (i *Interceptor) SetResumeHook(resume func()) {
	i.resume = resume
}

// Write attempts the mutation directly; on transport failure it enqueues an
// equivalent sync operation and optimistically updates the local cache.
func (i *Interceptor) Write(ctx context.Context, op *models.SyncOperation) WriteResult {
	req := api.SyncRequest{
		ClientID:   op.ClientID,
		Operations: []api.SyncOperation{op.ToAPI()},
	}

	// Передаем текущий курсор, чтобы сервер не возвращал всю историю изменений
	if ts, err := i.metadata.GetLastSyncTimestamp(ctx); err == nil {
		req.LastSyncTimestamp = ts
	}

	resp, err := i.apiClient.SyncBatch(ctx, req)
	if err != nil {
		var serverErr *httpclient.ServerError
		if errors.As(err, &serverErr) {
			// Сервер получил запрос и отклонил его - очередь не поможет
			i.logger.Warn("Write rejected by server",
				"operation_id", op.ID,
				"table", op.TableName,
				"record_id", op.RecordID,
				"error", serverErr.Message)
			return WriteResult{Status: StatusRejected, Reason: serverErr.Message}
		}

		// Транспортная ошибка: сервер не видел запрос, уходим в offline режим
		i.logger.Info("Write failed at transport level, queueing",
			"operation_id", op.ID,
			"table", op.TableName,
			"record_id", op.RecordID,
			"error", err)
		return i.queueWrite(ctx, op)
	}

	for _, failed := range resp.FailedOperations {
		if failed.OperationID != op.ID {
			continue
		}
		if failed.Classification == api.ClassTransient {
			// Временная ошибка лечится повтором - операция уходит в очередь
			// под бюджет ретраев координатора, как на фоновом пути
			i.logger.Info("Write failed transiently, queueing for retry",
				"operation_id", op.ID,
				"table", op.TableName,
				"record_id", op.RecordID,
				"error", failed.Error)
			return i.queueWrite(ctx, op)
		}
		return WriteResult{Status: StatusRejected, Reason: failed.Error}
	}

	// Применено сервером - обновляем локальную проекцию
	if err := i.applyToCache(ctx, op); err != nil {
		i.logger.Warn("Failed to update local cache after direct write",
			"operation_id", op.ID, "error", err)
	}

	return WriteResult{Status: StatusApplied}
}

// queueWrite enqueues the operation and applies it optimistically to the
// cache so offline reads see the device's own writes.
func (i *Interceptor) queueWrite(ctx context.Context, op *models.SyncOperation) WriteResult {
	result := WriteResult{Status: StatusQueued}

	if err := i.applyToCache(ctx, op); err != nil {
		i.logger.Warn("Optimistic cache update failed",
			"operation_id", op.ID, "error", err)
	}

	if err := i.queue.Enqueue(ctx, op); err != nil {
		if errors.Is(err, storage.ErrDegradedDurability) {
			// Не глотаем: вызывающий обязан предупредить пользователя
			result.Warning = err
		} else {
			return WriteResult{
				Status: StatusRejected,
				Reason: fmt.Sprintf("failed to queue operation: %v", err),
			}
		}
	}

	if i.resume != nil {
		i.resume()
	}

	return result
}

// applyToCache обновляет локальную проекцию по виду операции
func (i *Interceptor) applyToCache(ctx context.Context, op *models.SyncOperation) error {
	switch op.Kind {
	case api.OpCreate:
		return i.cache.SaveRecord(ctx, op.TableName, op.RecordID, op.Payload)
	case api.OpUpdate:
		merged, err := i.mergedProjection(ctx, op)
		if err != nil {
			return err
		}
		return i.cache.SaveRecord(ctx, op.TableName, op.RecordID, merged)
	case api.OpDelete:
		return i.cache.DeleteRecord(ctx, op.TableName, op.RecordID)
	default:
		return fmt.Errorf("unknown operation kind: %s", op.Kind)
	}
}

// mergedProjection накладывает частичный payload UPDATE на кэшированную запись
func (i *Interceptor) mergedProjection(ctx context.Context, op *models.SyncOperation) (json.RawMessage, error) {
	current, err := i.cache.GetRecord(ctx, op.TableName, op.RecordID)
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			return op.Payload, nil
		}
		return nil, err
	}

	merged, err := mergeFields(current, op.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to merge projection: %w", err)
	}
	return merged, nil
}

// mergeFields overlays the top-level fields of patch onto base.
func mergeFields(base, patch json.RawMessage) (json.RawMessage, error) {
	var baseMap, patchMap map[string]json.RawMessage

	if err := json.Unmarshal(base, &baseMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal base: %w", err)
	}
	if err := json.Unmarshal(patch, &patchMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal patch: %w", err)
	}

	for field, value := range patchMap {
		baseMap[field] = value
	}

	return json.Marshal(baseMap)
}
