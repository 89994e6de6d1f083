package storage

import "errors"

// Common storage errors
var (
	// ErrRecordNotFound indicates that the record does not exist
	ErrRecordNotFound = errors.New("record not found")

	// ErrRecordDeleted indicates that the record was deleted; DELETE is
	// terminal, later CREATE/UPDATE for the same id are permanent failures
	ErrRecordDeleted = errors.New("record deleted")

	// ErrVersionConflict indicates that the optimistic version check failed
	// because a concurrent batch modified the record first
	ErrVersionConflict = errors.New("record version conflict")

	// ErrClientNotFound indicates that the device has never synced or pinged
	ErrClientNotFound = errors.New("client not found")
)
