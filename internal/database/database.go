// Package database defines the capability every migration target provides:
// connection management, database-level administration and the audit
// trail.
package database

import (
	"context"

	"github.com/aqasim81/schemakick/internal/config"
	"github.com/aqasim81/schemakick/internal/tracker"
)

// ConnectionType routes a statement to the target database or to the
// server-level administrative connection.
type ConnectionType int

// Connection types.
const (
	Default ConnectionType = iota
	Admin
)

func (c ConnectionType) String() string {
	if c == Admin {
		return "admin"
	}

	return "default"
}

// Connector manages the default and admin connections.
type Connector interface {
	InitializeConnections(ctx context.Context, cfg *config.Config) error
	OpenConnection(ctx context.Context, withTransaction bool) error
	// CloseConnection commits an open transaction before closing.
	CloseConnection(ctx context.Context) error
	OpenAdminConnection(ctx context.Context) error
	CloseAdminConnection(ctx context.Context) error
	RunSQL(ctx context.Context, sql string, ct ConnectionType) error
	Rollback(ctx context.Context) error
}

// Administrator performs database-level operations. Every *Script method
// returns the SQL (or a description of the file operation) its sibling
// would execute, so dry runs can still report it.
type Administrator interface {
	CreateDatabaseIfItDoesntExist(ctx context.Context, customScript string) (bool, error)
	CreateDatabaseScript(customScript string) string
	RestoreDatabase(ctx context.Context, path, options string) error
	RestoreDatabaseScript(path, options string) string
	BackupDatabase(ctx context.Context, outputPath string) error
	DeleteDatabaseIfItExists(ctx context.Context) error
	DeleteDatabaseScript() string
	SetRecoveryMode(ctx context.Context, simple bool) error
	RecoveryModeScript(simple bool) string
	RunDatabaseSpecificTasks(ctx context.Context) error
	DatabaseSpecificTasksScript() string
}

// Auditor reads and writes the audit tables.
type Auditor interface {
	CreateOrUpdateSupportTables(ctx context.Context) error
	SupportTablesScript() string
	HasSupportTables(ctx context.Context) (bool, error)
	GetVersion(ctx context.Context, repositoryPath string) (string, error)
	InsertVersion(ctx context.Context, repositoryPath, version string) (int64, error)
	InsertScriptRun(ctx context.Context, r tracker.ScriptRun) error
	InsertScriptRunError(ctx context.Context, r tracker.ScriptRunError) error
	HasRunScriptAlready(ctx context.Context, name string) (bool, error)
	GetCurrentScriptHash(ctx context.Context, name string) (string, error)
	ListScriptsRun(ctx context.Context) ([]tracker.ScriptRun, error)
}

// Database is the full capability of a migration target.
type Database interface {
	Connector
	Administrator
	Auditor

	ServerName() string
	DatabaseName() string
	Tables() tracker.TableNames
	SupportsDDLTransactions() bool
	// SplitBatchStatements reports whether scripts must be cut into
	// statements before execution.
	SplitBatchStatements() bool
	StatementSeparatorPattern() string

	// Close rolls back any open transaction and releases every handle.
	Close(ctx context.Context) error
}

// StatementSplitter is implemented by dialects that split scripts with
// their own grammar instead of a separator pattern.
type StatementSplitter interface {
	SplitStatements(sql string) ([]string, error)
}
