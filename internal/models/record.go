package models

import "encoding/json"

// Record is the canonical entity snapshot owned by the server: one row of a
// synced table (work order, PM task, cost entry, ...). The client cache holds
// a projection of it that is never authoritative.
type Record struct {
	TableName string          `json:"table_name"`
	RecordID  string          `json:"record_id"`
	Data      json.RawMessage `json:"data"`
	UpdatedBy string          `json:"updated_by"` // client_id последней записи
	Version   int64           `json:"version"`    // монотонная версия для optimistic locking
	UpdatedAt int64           `json:"updated_at"` // unix millis
	Deleted   bool            `json:"deleted"`    // DELETE терминален: запись не воскресает
}

// ChangeEntry is one row of the append-only server change log. Immutable
// once written; the sole mechanism for answering "what changed since T".
// ID is the change-log sequence and doubles as the sync cursor.
type ChangeEntry struct {
	TableName string          `json:"table_name"`
	RecordID  string          `json:"record_id"`
	Operation string          `json:"operation"`
	ChangedBy string          `json:"changed_by"`
	Before    json.RawMessage `json:"before,omitempty"`
	After     json.RawMessage `json:"after,omitempty"`
	ID        int64           `json:"id"`
	ChangedAt int64           `json:"changed_at"` // unix millis
}
