package models

import (
	"encoding/json"
	"time"

	"github.com/iudanet/fieldsync/pkg/api"
)

// SyncOperation представляет одну отложенную мутацию в локальной очереди
// устройства. Создаётся когда прямая запись не удалась или выполнена offline;
// удаляется когда сервер подтвердил обработку, либо перемещается в
// dead-letter при постоянной ошибке или исчерпании retry-бюджета.
type SyncOperation struct {
	ID              string          `json:"id"`         // ID клиентский uuid, ключ идемпотентности
	Kind            string          `json:"kind"`       // Kind CREATE | UPDATE | DELETE
	TableName       string          `json:"table_name"` // TableName имя таблицы сущности
	RecordID        string          `json:"record_id"`
	ClientID        string          `json:"client_id"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	ClientTimestamp int64           `json:"client_timestamp"` // unix millis, базис записи
	RetryCount      int             `json:"retry_count"`      // мутируется только координатором
	Seq             uint64          `json:"seq"`              // порядок постановки в очередь
}

// MaxRetries is the retry budget for one operation. After the third failed
// transient attempt the operation is moved to the dead-letter list.
const MaxRetries = 3

// ValidKind reports whether kind is one of the three supported mutations.
func ValidKind(kind string) bool {
	switch kind {
	case api.OpCreate, api.OpUpdate, api.OpDelete:
		return true
	}
	return false
}

// ToAPI converts the stored operation to its wire representation.
func (op *SyncOperation) ToAPI() api.SyncOperation {
	return api.SyncOperation{
		ID:              op.ID,
		Kind:            op.Kind,
		TableName:       op.TableName,
		RecordID:        op.RecordID,
		Payload:         op.Payload,
		ClientTimestamp: op.ClientTimestamp,
		RetryCount:      op.RetryCount,
	}
}

// DeadLetter is an abandoned operation kept for the user-visible failure
// surface. No operation is ever discarded without appearing here.
type DeadLetter struct {
	Operation SyncOperation `json:"operation"`
	Reason    string        `json:"reason"`
	FailedAt  time.Time     `json:"failed_at"`
}
