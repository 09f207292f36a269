package stores

import "errors"

var (
	// ErrNotFound is returned when updating a record that does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrNegativeReserve is returned when releasing more than is reserved.
	ErrNegativeReserve = errors.New("reserved balance would become negative")

	// ErrNotInitialized is returned when the database has not been opened.
	ErrNotInitialized = errors.New("database not initialized")
)
