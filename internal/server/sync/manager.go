// Package sync contains the server-side batch manager: validation, exactly
// once application through the storage layer, failure classification and the
// change feed assembly.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iudanet/fieldsync/internal/models"
	"github.com/iudanet/fieldsync/internal/server/storage"
	"github.com/iudanet/fieldsync/internal/validation"
	"github.com/iudanet/fieldsync/pkg/api"
)

// Manager applies sync batches against the storage layer.
type Manager struct {
	storage storage.SyncStorage
	logger  *slog.Logger
}

// NewManager creates a new sync manager.
func NewManager(store storage.SyncStorage, logger *slog.Logger) *Manager {
	return &Manager{
		storage: store,
		logger:  logger,
	}
}

// ProcessBatch applies every operation of one batch and assembles the
// response: processed ids, classified failures, the change feed since the
// caller's cursor and the new cursor. A failed operation never aborts the
// rest of the batch.
func (m *Manager) ProcessBatch(ctx context.Context, req *api.SyncRequest) (*api.SyncResponse, error) {
	if req.ClientID == "" {
		return nil, fmt.Errorf("client_id is required")
	}

	resp := &api.SyncResponse{
		ProcessedOperations: []string{},
		FailedOperations:    []api.FailedOperation{},
		ServerChanges:       []api.ServerChange{},
	}

	var resolved []api.ServerChange

	for _, apiOp := range req.Operations {
		op := &models.SyncOperation{
			ID:              apiOp.ID,
			Kind:            apiOp.Kind,
			TableName:       apiOp.TableName,
			RecordID:        apiOp.RecordID,
			ClientID:        req.ClientID,
			Payload:         apiOp.Payload,
			ClientTimestamp: apiOp.ClientTimestamp,
		}

		if err := validateOperation(op); err != nil {
			// Невалидная операция никогда не сможет примениться
			resp.FailedOperations = append(resp.FailedOperations, api.FailedOperation{
				OperationID:    op.ID,
				Error:          err.Error(),
				Classification: api.ClassPermanent,
			})
			continue
		}

		outcome, err := m.storage.ApplyOperation(ctx, op)
		if err != nil {
			resp.FailedOperations = append(resp.FailedOperations, api.FailedOperation{
				OperationID:    op.ID,
				Error:          err.Error(),
				Classification: classify(err),
			})
			continue
		}

		if outcome.Conflicted {
			// Конфликт - не ошибка: операция подтверждена, клиент узнает
			// актуальное значение из change feed
			m.logger.Info("Stale update resolved",
				"client_id", req.ClientID,
				"operation_id", op.ID,
				"table", op.TableName,
				"record_id", op.RecordID,
				"overridden_fields", outcome.Overridden)
			if len(outcome.Resolved) > 0 {
				// Отброшенный патч не оставил записи в change log: снимок
				// уходит проигравшему клиенту прямо в этом ответе, иначе
				// его оптимистичная проекция не сойдется никогда
				resolved = append(resolved, api.ServerChange{
					TableName: op.TableName,
					Operation: api.OpUpdate,
					RecordID:  op.RecordID,
					Data:      outcome.Resolved,
					ChangedAt: time.Now().UnixMilli(),
				})
			}
		}

		resp.ProcessedOperations = append(resp.ProcessedOperations, op.ID)
	}

	// Курсор фиксируется ДО чтения фида: чужой батч, закоммитивший между
	// этими двумя запросами, получит id выше курсора и придет следующим
	// циклом. Повторная доставка безопасна, пропуск - потеря сходимости
	cursor, err := m.storage.CurrentTimestamp(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read change log cursor: %w", err)
	}

	// Чужие изменения с курсора клиента: свои записи не возвращаем
	changes, err := m.storage.ChangesSince(ctx, req.ClientID, req.LastSyncTimestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to read change feed: %w", err)
	}
	for _, change := range changes {
		resp.ServerChanges = append(resp.ServerChanges, toServerChange(change))
	}

	// Конфликтные снимки в хвосте фида, чтобы перекрыть более ранние записи
	resp.ServerChanges = append(resp.ServerChanges, resolved...)
	resp.SyncTimestamp = cursor
	resp.Success = len(resp.FailedOperations) == 0

	lastError := ""
	if !resp.Success {
		lastError = resp.FailedOperations[0].Error
	}
	if err := m.storage.TouchClient(ctx, req.ClientID, cursor, nil, lastError); err != nil {
		m.logger.Warn("Failed to update client state", "client_id", req.ClientID, "error", err)
	}

	m.logger.Info("Batch processed",
		"client_id", req.ClientID,
		"operations", len(req.Operations),
		"processed", len(resp.ProcessedOperations),
		"failed", len(resp.FailedOperations),
		"changes", len(resp.ServerChanges),
		"cursor", cursor)

	return resp, nil
}

// Changes returns the change feed for one client without applying anything.
func (m *Manager) Changes(ctx context.Context, clientID string, since int64) (*api.ChangesResponse, error) {
	// Как и в ProcessBatch: курсор до фида, чтобы гонка с чужим коммитом
	// давала повтор, а не пропуск
	cursor, err := m.storage.CurrentTimestamp(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read change log cursor: %w", err)
	}

	changes, err := m.storage.ChangesSince(ctx, clientID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to read change feed: %w", err)
	}

	apiChanges := make([]api.ServerChange, 0, len(changes))
	for _, change := range changes {
		apiChanges = append(apiChanges, toServerChange(change))
	}

	return &api.ChangesResponse{
		ClientID:     clientID,
		Since:        since,
		Changes:      apiChanges,
		ChangesCount: len(apiChanges),
		Timestamp:    cursor,
	}, nil
}

// Status summarizes one device's sync state from the bookkeeping the device
// itself reported. A never-seen device is up to date by definition.
func (m *Manager) Status(ctx context.Context, clientID string) (*api.StatusResponse, error) {
	state, err := m.storage.GetClientState(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			return &api.StatusResponse{
				ClientID:       clientID,
				Status:         api.StatusUpToDate,
				PendingByTable: map[string]int{},
			}, nil
		}
		return nil, fmt.Errorf("failed to get client state: %w", err)
	}

	status := api.StatusUpToDate
	switch {
	case state.LastError != "":
		status = api.StatusError
	case state.TotalPending() > 0:
		status = api.StatusPendingSync
	}

	return &api.StatusResponse{
		ClientID:       clientID,
		Status:         status,
		LastError:      state.LastError,
		LastSync:       state.LastSync,
		PendingByTable: state.PendingByTable,
		TotalPending:   state.TotalPending(),
	}, nil
}

// Ping confirms connectivity and records the device's self-reported queue
// depth without triggering a batch.
func (m *Manager) Ping(ctx context.Context, req *api.PingRequest) (*api.PingResponse, error) {
	if req.ClientID == "" {
		return nil, fmt.Errorf("client_id is required")
	}

	// Ping не меняет курсор и не трогает последнюю ошибку
	lastError := ""
	if state, err := m.storage.GetClientState(ctx, req.ClientID); err == nil {
		lastError = state.LastError
	}

	if err := m.storage.TouchClient(ctx, req.ClientID, 0, req.PendingByTable, lastError); err != nil {
		return nil, fmt.Errorf("failed to record ping: %w", err)
	}

	return &api.PingResponse{
		ClientID:      req.ClientID,
		ServerTime:    time.Now().UnixMilli(),
		Pong:          true,
		SyncAvailable: true,
	}, nil
}

// classify решает, имеет ли смысл клиенту повторять операцию
func classify(err error) string {
	if errors.Is(err, storage.ErrRecordDeleted) {
		return api.ClassPermanent
	}
	// Гонка версий и ошибки хранилища лечатся повтором
	return api.ClassTransient
}

// validateOperation проверяет форму операции до обращения к хранилищу
func validateOperation(op *models.SyncOperation) error {
	if op.ID == "" {
		return fmt.Errorf("operation id is required")
	}
	if !models.ValidKind(op.Kind) {
		return fmt.Errorf("unknown operation kind: %q", op.Kind)
	}
	if err := validation.ValidateTableName(op.TableName); err != nil {
		return err
	}
	if err := validation.ValidateRecordID(op.RecordID); err != nil {
		return err
	}
	if op.Kind != api.OpDelete {
		if len(op.Payload) == 0 {
			return fmt.Errorf("payload is required for %s", op.Kind)
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(op.Payload, &fields); err != nil {
			return fmt.Errorf("payload is not a JSON object: %w", err)
		}
	}
	return nil
}

func toServerChange(change *models.ChangeEntry) api.ServerChange {
	return api.ServerChange{
		TableName: change.TableName,
		Operation: change.Operation,
		RecordID:  change.RecordID,
		Data:      change.After,
		ChangedAt: change.ChangedAt,
	}
}
