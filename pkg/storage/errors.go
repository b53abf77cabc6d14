package storage

import "errors"

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when a record does not exist or is not
	// visible to the requesting tenant.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned on a uniqueness violation.
	ErrConflict = errors.New("record already exists")
)
