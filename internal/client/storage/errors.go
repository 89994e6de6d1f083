package storage

import "errors"

var (
	// ErrOperationNotFound возвращается когда операция не найдена в очереди
	ErrOperationNotFound = errors.New("operation not found")

	// ErrRecordNotFound возвращается когда записи нет в локальном кэше
	ErrRecordNotFound = errors.New("record not found")

	// ErrStorageClosed возвращается при обращении к закрытому хранилищу
	ErrStorageClosed = errors.New("storage is closed")

	// ErrDegradedDurability signals that the durable write itself failed:
	// the mutation is NOT guaranteed to survive a process restart. Callers
	// must surface this to the user instead of swallowing it.
	ErrDegradedDurability = errors.New("durable write failed, operation may not survive restart")
)
