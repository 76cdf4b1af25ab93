package store

import "github.com/oneconcern/datasync/pkg/errors"

var (
	// ErrKeyNotFound is returned when reading a missing key
	ErrKeyNotFound = errors.New("key not found")

	// ErrConflict is returned when an update transaction conflicts with a concurrent one
	ErrConflict = errors.New("transaction conflict")

	// ErrTooLarge is returned when an update transaction exceeds the capacity of the backend
	ErrTooLarge = errors.New("transaction too large for the local store")

	// ErrVersionTooNew is returned when the existing database has a newer structural version than requested
	ErrVersionTooNew = errors.New("local store has a newer structural version")

	// ErrBlocked is returned when a structural upgrade could not proceed because other connections remained open
	ErrBlocked = errors.New("local store upgrade blocked by open connections")

	// ErrClosed is returned when using a closed connection
	ErrClosed = errors.New("local store connection closed")

	// ErrInvalidVersion is returned when requesting a structural version lower than 1
	ErrInvalidVersion = errors.New("invalid structural version")
)
