package domain

import "errors"

var (
	// ErrNotFound indicates no task with the given id is owned by the caller.
	ErrNotFound = errors.New("record not found")
	// ErrConcurrencyConflict indicates the stored entity changed between read and write.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)
