package storage

import "errors"

// Common storage errors.
var (
	// ErrNotFound is returned when a key has no value.
	ErrNotFound = errors.New("key not found")

	// ErrConflict is returned when a compare-and-set write loses to a
	// concurrent writer.
	ErrConflict = errors.New("revision conflict")

	// ErrSchemaMismatch is returned when a stored envelope names a different schema.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrUnsupportedVersion is returned when a stored envelope is newer than the reader.
	ErrUnsupportedVersion = errors.New("unsupported schema version")
)
