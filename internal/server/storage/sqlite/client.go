package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/fieldsync/internal/models"
	"github.com/iudanet/fieldsync/internal/server/storage"
)

// TouchClient records a device contact. A nil pending map keeps the counts
// the device reported last time; cursor never moves backwards.
func (s *Storage) TouchClient(ctx context.Context, clientID string, cursor int64, pending map[string]int, lastError string) error {
	now := time.Now().UnixMilli()

	var pendingJSON *string
	if pending != nil {
		raw, err := json.Marshal(pending)
		if err != nil {
			return fmt.Errorf("failed to marshal pending counts: %w", err)
		}
		str := string(raw)
		pendingJSON = &str
	}

	query := `
		INSERT INTO clients (client_id, last_sync, last_seen_at, last_error, pending_by_table)
		VALUES (?, ?, ?, ?, COALESCE(?, '{}'))
		ON CONFLICT (client_id) DO UPDATE SET
			last_sync = MAX(last_sync, excluded.last_sync),
			last_seen_at = excluded.last_seen_at,
			last_error = excluded.last_error,
			pending_by_table = COALESCE(?, pending_by_table)
	`
	_, err := s.db.ExecContext(ctx, query, clientID, cursor, now, lastError, pendingJSON, pendingJSON)
	if err != nil {
		return fmt.Errorf("failed to touch client: %w", err)
	}
	return nil
}

// GetClientState returns the bookkeeping for one device.
// Returns ErrClientNotFound if the device has never been seen.
func (s *Storage) GetClientState(ctx context.Context, clientID string) (*models.ClientState, error) {
	query := `
		SELECT client_id, last_sync, last_seen_at, last_error, pending_by_table
		FROM clients
		WHERE client_id = ?
	`

	state := &models.ClientState{}
	var pendingJSON string

	err := s.db.QueryRowContext(ctx, query, clientID).Scan(
		&state.ClientID,
		&state.LastSync,
		&state.LastSeenAt,
		&state.LastError,
		&pendingJSON,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to get client state: %w", err)
	}

	if err := json.Unmarshal([]byte(pendingJSON), &state.PendingByTable); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending counts: %w", err)
	}

	return state, nil
}
