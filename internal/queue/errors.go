package queue

import "fmt"

// ValidationError rejects an enqueue request before anything is persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// StorageExhaustedError rejects an enqueue whose payload does not fit the
// storage budget. Carries the byte counts for display.
type StorageExhaustedError struct {
	Available int64
	Needed    int64
}

func (e *StorageExhaustedError) Error() string {
	return fmt.Sprintf("storage exhausted: need %d bytes, %d available", e.Needed, e.Available)
}
