package storage

import "errors"

// Storage errors shared by all backends.
var (
	// ErrDuplicateKey is returned when a (block, pool) observation is recorded twice.
	// Result tables are append-only and never hold two rows for the same key.
	ErrDuplicateKey = errors.New("duplicate key: observation already recorded")

	// ErrRowsRemoved is returned by append-only backends when a save would
	// drop rows that are already stored.
	ErrRowsRemoved = errors.New("save would remove stored rows")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
