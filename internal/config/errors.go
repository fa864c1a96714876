package config

import "errors"

// ErrInvalidRecoveryMode indicates an unrecognized recovery_mode value.
var ErrInvalidRecoveryMode = errors.New("invalid recovery mode")

// ErrUnknownDatabaseType indicates a database_type with no matching dialect.
var ErrUnknownDatabaseType = errors.New("unknown database type")

// ErrDatabaseURLRequired indicates no connection string was configured.
var ErrDatabaseURLRequired = errors.New(
	"database URL is required (set --database-url, SCHEMAKICK_DATABASE_URL, or database_url in config)",
)
