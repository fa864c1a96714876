// Package sqlite implements the migration target capability for SQLite
// files using the pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/aqasim81/schemakick/internal/config"
	"github.com/aqasim81/schemakick/internal/database"
	"github.com/aqasim81/schemakick/internal/splitter"
	"github.com/aqasim81/schemakick/internal/tracker"
)

const (
	driverName = "sqlite"
	memoryPath = ":memory:"
	serverName = "localhost"
)

// Database is a SQLite migration target. SQLite has no server scope, so
// the admin connection is the default handle and database-level operations
// act on the file itself.
type Database struct {
	path    string
	name    string
	dryRun  bool
	pattern string

	db    *sql.DB
	tx    *sql.Tx
	store *tracker.Store
	log   logrus.FieldLogger
	fs    afero.Fs
}

var _ database.Database = (*Database)(nil)

// Option configures a Database.
type Option func(*Database)

// WithLogger sets the logger used for file lifecycle messages.
func WithLogger(l logrus.FieldLogger) Option {
	return func(d *Database) { d.log = l }
}

// WithFs sets the file system restore sources are read from. The database
// file itself is always opened by the driver on the host file system.
func WithFs(fs afero.Fs) Option {
	return func(d *Database) { d.fs = fs }
}

// New creates an unconnected SQLite target.
func New(opts ...Option) *Database {
	d := &Database{}

	for _, opt := range opts {
		opt(d)
	}

	if d.log == nil {
		d.log = logrus.New()
	}

	if d.fs == nil {
		d.fs = afero.NewOsFs()
	}

	return d
}

// InitializeConnections resolves the database file from the configured URL.
// Accepted forms: "sqlite://path", "sqlite:path", "file:path" and a bare path.
func (d *Database) InitializeConnections(_ context.Context, cfg *config.Config) error {
	path := filePath(cfg.DatabaseURL)
	if path == "" {
		return fmt.Errorf("%w: empty SQLite path", database.ErrInvalidDatabaseURL)
	}

	d.path = path
	d.name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	d.dryRun = cfg.DryRun

	d.pattern = splitter.SemicolonPattern
	if cfg.StatementSeparator != "" {
		d.pattern = splitter.PatternFor(cfg.StatementSeparator)
	}

	tables := tracker.NewTableNames(tracker.SQLite, cfg.SchemaName,
		cfg.VersionTable, cfg.ScriptsRunTable, cfg.ScriptsErrorsTable)
	d.store = tracker.New(querier{d}, tracker.SQLite, tables)

	return nil
}

func filePath(raw string) string {
	p := strings.TrimSpace(raw)

	for _, prefix := range []string{"sqlite://", "sqlite:", "file:"} {
		if strings.HasPrefix(p, prefix) {
			p = strings.TrimPrefix(p, prefix)
			break
		}
	}

	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}

	return p
}

// ServerName is constant; a SQLite target is a local file.
func (d *Database) ServerName() string { return serverName }

// DatabaseName is the file name without extension.
func (d *Database) DatabaseName() string { return d.name }

// Tables returns the prefixed audit table names.
func (d *Database) Tables() tracker.TableNames { return d.store.Tables() }

// SupportsDDLTransactions is true: SQLite DDL is transactional.
func (d *Database) SupportsDDLTransactions() bool { return true }

// SplitBatchStatements is true so failures point at a single statement.
func (d *Database) SplitBatchStatements() bool { return true }

// StatementSeparatorPattern splits on semicolons unless overridden.
func (d *Database) StatementSeparatorPattern() string { return d.pattern }

func (d *Database) isMemory() bool { return d.path == memoryPath }

func (d *Database) exists() bool {
	if d.isMemory() {
		return true
	}

	_, err := os.Stat(d.path)

	return err == nil
}

// dsn builds the driver connection string. Dry runs never write: an
// existing file opens read-only and a missing one is stood in for by an
// empty in-memory database.
func (d *Database) dsn(readOnly bool) string {
	if d.isMemory() || (readOnly && !d.exists()) {
		return "file::memory:"
	}

	dsn := "file:" + d.path + "?_pragma=busy_timeout(5000)"
	if readOnly {
		dsn += "&mode=ro"
	}

	return dsn
}

func open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", database.ErrConnectionFailed, err)
	}

	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("%w: %w", database.ErrConnectionFailed, err)
	}

	return db, nil
}

// OpenConnection opens the default handle, beginning a transaction when
// asked. An in-memory target keeps its handle between connections, since
// closing it would discard the database.
func (d *Database) OpenConnection(ctx context.Context, withTransaction bool) error {
	if d.dryRun && !d.exists() {
		d.log.Debugf("%s does not exist yet, reading from an empty in-memory database", d.path)
	}

	db := d.db
	if db == nil {
		var err error
		if db, err = open(ctx, d.dsn(d.dryRun)); err != nil {
			return err
		}
	}

	if withTransaction {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			if d.db == nil {
				_ = db.Close()
			}

			return fmt.Errorf("beginning transaction: %w", err)
		}

		d.tx = tx
	}

	d.db = db

	return nil
}

// CloseConnection commits any open transaction and closes the handle. An
// in-memory handle stays open until Close.
func (d *Database) CloseConnection(_ context.Context) error {
	var firstErr error

	if d.tx != nil {
		if err := d.tx.Commit(); err != nil {
			firstErr = fmt.Errorf("committing transaction: %w", err)
		}

		d.tx = nil
	}

	if d.db != nil && !d.isMemory() {
		if err := d.db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing connection: %w", err)
		}

		d.db = nil
	}

	return firstErr
}

// OpenAdminConnection is a no-op; admin statements share the default handle.
func (d *Database) OpenAdminConnection(_ context.Context) error { return nil }

// CloseAdminConnection is a no-op.
func (d *Database) CloseAdminConnection(_ context.Context) error { return nil }

// RunSQL executes sql on the default handle regardless of ct.
func (d *Database) RunSQL(ctx context.Context, query string, _ database.ConnectionType) error {
	ex, err := d.current()
	if err != nil {
		return err
	}

	_, err = ex.ExecContext(ctx, query)

	return err
}

// Rollback aborts the open transaction, if any.
func (d *Database) Rollback(_ context.Context) error {
	if d.tx == nil {
		return nil
	}

	err := d.tx.Rollback()
	d.tx = nil

	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rolling back transaction: %w", err)
	}

	return nil
}

// Close rolls back any dangling transaction and closes the handle.
func (d *Database) Close(ctx context.Context) error {
	errs := []error{d.Rollback(ctx)}

	if d.db != nil {
		errs = append(errs, d.db.Close())
		d.db = nil
	}

	return errors.Join(errs...)
}

// sqlExecer is satisfied by *sql.DB and *sql.Tx.
type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (d *Database) current() (sqlExecer, error) {
	if d.tx != nil {
		return d.tx, nil
	}

	if d.db != nil {
		return d.db, nil
	}

	return nil, database.ErrConnectionClosed
}
