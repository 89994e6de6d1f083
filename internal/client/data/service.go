// Package data is the record service the CLI talks to: offline-first CRUD
// over opaque JSON records. Reads are served from the local cache; writes go
// through the interceptor, which either applies them directly or queues them.
package data

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/fieldsync/internal/client/intercept"
	"github.com/iudanet/fieldsync/internal/client/storage"
	"github.com/iudanet/fieldsync/internal/models"
	"github.com/iudanet/fieldsync/internal/validation"
	"github.com/iudanet/fieldsync/pkg/api"
)

// Writer is the outbound write path (implemented by intercept.Interceptor).
type Writer interface {
	Write(ctx context.Context, op *models.SyncOperation) intercept.WriteResult
}

// WriteReceipt описывает результат одной мутации: куда попала запись и под
// каким id. Warning не nil при деградированной durability - операция в
// очереди, но может не пережить рестарт.
type WriteReceipt struct {
	Warning     error
	RecordID    string
	OperationID string
	Reason      string
	Status      intercept.Status
}

// Service определяет интерфейс клиентского record сервиса
type Service interface {
	Create(ctx context.Context, table string, payload json.RawMessage) (*WriteReceipt, error)
	Update(ctx context.Context, table, recordID string, patch json.RawMessage) (*WriteReceipt, error)
	Delete(ctx context.Context, table, recordID string) (*WriteReceipt, error)
	Get(ctx context.Context, table, recordID string) (json.RawMessage, error)
	List(ctx context.Context, table string) (map[string]json.RawMessage, error)
}

type service struct {
	writer   Writer
	cache    storage.CacheStorage
	metadata storage.MetadataStorage
	now      func() time.Time
}

// NewService creates a new record service.
func NewService(writer Writer, cache storage.CacheStorage, metadata storage.MetadataStorage) Service {
	return &service{
		writer:   writer,
		cache:    cache,
		metadata: metadata,
		now:      time.Now,
	}
}

// Create registers a new record. When the payload carries no "id" field a
// client-generated uuid is injected, so the record is addressable before the
// server has ever seen it.
func (s *service) Create(ctx context.Context, table string, payload json.RawMessage) (*WriteReceipt, error) {
	if err := validation.ValidateTableName(table); err != nil {
		return nil, err
	}

	recordID, payload, err := ensureRecordID(payload)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateRecordID(recordID); err != nil {
		return nil, err
	}

	return s.write(ctx, api.OpCreate, table, recordID, payload)
}

// Update applies a partial patch to an existing record.
func (s *service) Update(ctx context.Context, table, recordID string, patch json.RawMessage) (*WriteReceipt, error) {
	if err := validation.ValidateTableName(table); err != nil {
		return nil, err
	}
	if err := validation.ValidateRecordID(recordID); err != nil {
		return nil, err
	}
	if len(patch) == 0 {
		return nil, fmt.Errorf("empty update patch for %s/%s", table, recordID)
	}

	return s.write(ctx, api.OpUpdate, table, recordID, patch)
}

// Delete removes a record.
func (s *service) Delete(ctx context.Context, table, recordID string) (*WriteReceipt, error) {
	if err := validation.ValidateTableName(table); err != nil {
		return nil, err
	}
	if err := validation.ValidateRecordID(recordID); err != nil {
		return nil, err
	}

	return s.write(ctx, api.OpDelete, table, recordID, nil)
}

// Get returns the local projection of a record. Offline reads are served
// entirely from the cache; staleness is expected and acceptable.
func (s *service) Get(ctx context.Context, table, recordID string) (json.RawMessage, error) {
	if err := validation.ValidateTableName(table); err != nil {
		return nil, err
	}
	if err := validation.ValidateRecordID(recordID); err != nil {
		return nil, err
	}

	record, err := s.cache.GetRecord(ctx, table, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to get record %s/%s: %w", table, recordID, err)
	}
	return record, nil
}

// List returns all cached projections of a table keyed by record id.
func (s *service) List(ctx context.Context, table string) (map[string]json.RawMessage, error) {
	if err := validation.ValidateTableName(table); err != nil {
		return nil, err
	}

	records, err := s.cache.ListRecords(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("failed to list records of %s: %w", table, err)
	}
	return records, nil
}

// write собирает операцию и отдаёт её интерцептору
func (s *service) write(ctx context.Context, kind, table, recordID string, payload json.RawMessage) (*WriteReceipt, error) {
	clientID, err := s.metadata.ClientID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get client id: %w", err)
	}

	op := &models.SyncOperation{
		ID:              uuid.NewString(),
		Kind:            kind,
		TableName:       table,
		RecordID:        recordID,
		ClientID:        clientID,
		Payload:         payload,
		ClientTimestamp: s.now().UnixMilli(),
	}

	result := s.writer.Write(ctx, op)

	receipt := &WriteReceipt{
		Warning:     result.Warning,
		RecordID:    recordID,
		OperationID: op.ID,
		Reason:      result.Reason,
		Status:      result.Status,
	}

	if result.Status == intercept.StatusRejected {
		return receipt, fmt.Errorf("write rejected: %s", result.Reason)
	}
	return receipt, nil
}

// ensureRecordID извлекает "id" из payload, либо генерирует временный uuid
// и дописывает его в payload.
func ensureRecordID(payload json.RawMessage) (string, json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if len(payload) == 0 {
		fields = make(map[string]json.RawMessage)
	} else if err := json.Unmarshal(payload, &fields); err != nil {
		return "", nil, fmt.Errorf("payload is not a JSON object: %w", err)
	}

	if raw, ok := fields["id"]; ok {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return "", nil, fmt.Errorf("record id must be a string: %w", err)
		}
		if id != "" {
			return id, payload, nil
		}
	}

	id := uuid.NewString()
	idJSON, err := json.Marshal(id)
	if err != nil {
		return "", nil, err
	}
	fields["id"] = idJSON

	withID, err := json.Marshal(fields)
	if err != nil {
		return "", nil, err
	}
	return id, withID, nil
}
