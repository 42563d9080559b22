package types

import "errors"

// Sentinel errors for the failure classes that abort an operation. Per-record
// and per-line validation problems are not errors; they are returned as data
// (RecordError, LineError) inside result structs.
var (
	// ErrConfiguration marks an unusable setup: bad database path,
	// missing migrations directory, incompatible engine version. Fatal,
	// never retried.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrBusy marks a transient SQLite "database is locked" condition.
	// The batch-insert path retries it with backoff; everywhere else it
	// surfaces as-is.
	ErrBusy = errors.New("database is locked")

	// ErrIntegrity marks detected corruption: full-text index out of sync
	// with its content table, or a checksum mismatch during migration
	// verification. The surrounding transaction is already rolled back
	// when this surfaces.
	ErrIntegrity = errors.New("integrity violation")

	// ErrDatabaseUnavailable is returned when no pooled connection could
	// be acquired within the configured timeout.
	ErrDatabaseUnavailable = errors.New("no database connection available")

	// ErrNotFound is returned when a requested entity doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrMigrationLocked is returned when another process holds the
	// migration lock marker.
	ErrMigrationLocked = errors.New("migration lock held")
)
