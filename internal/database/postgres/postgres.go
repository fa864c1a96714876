// Package postgres implements the migration target capability for
// PostgreSQL on top of pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/aqasim81/schemakick/internal/config"
	"github.com/aqasim81/schemakick/internal/database"
	"github.com/aqasim81/schemakick/internal/parser"
	"github.com/aqasim81/schemakick/internal/splitter"
	"github.com/aqasim81/schemakick/internal/tracker"
)

// maintenanceDatabase is the database admin connections attach to when no
// admin URL is configured.
const maintenanceDatabase = "postgres"

// invalidCatalogName is the SQLSTATE returned when connecting to a database
// that does not exist.
const invalidCatalogName = "3D000"

// Database is a PostgreSQL migration target. The default connection is a
// single session so SET commands and transactions apply to every script;
// the admin connection is a small pool on the maintenance database.
type Database struct {
	url      string
	adminURL string
	server   string
	name     string
	schema   string
	pattern  string
	dryRun   bool

	// missing is set when a dry run found no target database. The session
	// stays closed and the target reads as empty.
	missing bool
	connect func(ctx context.Context, url string) (*pgx.Conn, error)

	lockTimeout      time.Duration
	statementTimeout time.Duration

	conn  *pgx.Conn
	tx    pgx.Tx
	admin *pgxpool.Pool
	store *tracker.Store
	log   logrus.FieldLogger
	fs    afero.Fs
}

var (
	_ database.Database          = (*Database)(nil)
	_ database.StatementSplitter = (*Database)(nil)
)

// Option configures a Database.
type Option func(*Database)

// WithLogger sets the logger used for connection lifecycle messages.
func WithLogger(l logrus.FieldLogger) Option {
	return func(d *Database) { d.log = l }
}

// WithFs sets the file system restore dumps are read from.
func WithFs(fs afero.Fs) Option {
	return func(d *Database) { d.fs = fs }
}

// New creates an unconnected PostgreSQL target.
func New(opts ...Option) *Database {
	d := &Database{connect: pgx.Connect}

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

// InitializeConnections resolves connection settings without connecting.
func (d *Database) InitializeConnections(_ context.Context, cfg *config.Config) error {
	cc, err := pgx.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("%w: %w", database.ErrInvalidDatabaseURL, err)
	}

	if cc.Database == "" {
		return fmt.Errorf("%w: no database name in connection string", database.ErrInvalidDatabaseURL)
	}

	adminURL := cfg.AdminDatabaseURL
	if adminURL == "" {
		if adminURL, err = deriveAdminURL(cfg.DatabaseURL); err != nil {
			return err
		}
	}

	d.url = cfg.DatabaseURL
	d.adminURL = adminURL
	d.server = cc.Host
	d.name = cc.Database
	d.schema = cfg.SchemaName
	d.dryRun = cfg.DryRun
	d.lockTimeout = cfg.LockTimeout
	d.statementTimeout = cfg.StatementTimeout

	if cfg.StatementSeparator != "" {
		d.pattern = splitter.PatternFor(cfg.StatementSeparator)
	}

	tables := tracker.NewTableNames(tracker.Postgres, cfg.SchemaName,
		cfg.VersionTable, cfg.ScriptsRunTable, cfg.ScriptsErrorsTable)
	d.store = tracker.New(querier{d}, tracker.Postgres, tables)

	return nil
}

// deriveAdminURL points a URL-form connection string at the maintenance
// database. Keyword/value strings need an explicit admin URL.
func deriveAdminURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
		return "", fmt.Errorf("%w: admin_database_url is required for non-URL connection strings",
			database.ErrInvalidDatabaseURL)
	}

	u.Path = "/" + maintenanceDatabase
	u.RawPath = ""

	return u.String(), nil
}

// ServerName returns the host of the target.
func (d *Database) ServerName() string { return d.server }

// DatabaseName returns the target database name.
func (d *Database) DatabaseName() string { return d.name }

// Tables returns the qualified audit table names.
func (d *Database) Tables() tracker.TableNames { return d.store.Tables() }

// SupportsDDLTransactions is true: PostgreSQL DDL is transactional.
func (d *Database) SupportsDDLTransactions() bool { return true }

// SplitBatchStatements is true so failures point at a single statement.
func (d *Database) SplitBatchStatements() bool { return true }

// StatementSeparatorPattern returns the configured override, or "" to
// split with the PostgreSQL scanner.
func (d *Database) StatementSeparatorPattern() string { return d.pattern }

// SplitStatements cuts sql with the PostgreSQL scanner. Input the scanner
// rejects is sent whole so the server reports the error.
func (d *Database) SplitStatements(sql string) ([]string, error) {
	stmts, err := parser.Split(sql)
	if err != nil {
		d.log.WithError(err).Debug("scanner could not split script, sending it whole")

		return []string{sql}, nil
	}

	return stmts, nil
}

// OpenConnection opens the default session, beginning a transaction when
// asked. A dry run against a database that does not exist yet leaves the
// session closed instead of failing.
func (d *Database) OpenConnection(ctx context.Context, withTransaction bool) error {
	d.missing = false

	conn, err := d.connect(ctx, d.url)
	if err != nil {
		if d.dryRun && isMissingDatabase(err) {
			d.log.WithError(err).Debugf("database %s does not exist yet, treating it as empty", d.name)
			d.missing = true

			return nil
		}

		return fmt.Errorf("%w: %w", database.ErrConnectionFailed, err)
	}

	if err := applyTimeouts(ctx, conn, d.lockTimeout, d.statementTimeout); err != nil {
		_ = conn.Close(ctx)

		return err
	}

	if withTransaction {
		tx, err := conn.Begin(ctx)
		if err != nil {
			_ = conn.Close(ctx)

			return fmt.Errorf("beginning transaction: %w", err)
		}

		d.tx = tx
	}

	d.conn = conn

	return nil
}

func isMissingDatabase(err error) bool {
	var pgErr *pgconn.PgError

	return errors.As(err, &pgErr) && pgErr.Code == invalidCatalogName
}

// CloseConnection commits any open transaction and closes the session.
func (d *Database) CloseConnection(ctx context.Context) error {
	var commitErr error

	if d.tx != nil {
		if err := d.tx.Commit(ctx); err != nil {
			commitErr = fmt.Errorf("committing transaction: %w", err)
		}

		d.tx = nil
	}

	if d.conn != nil {
		if err := d.conn.Close(ctx); err != nil && commitErr == nil {
			commitErr = fmt.Errorf("closing connection: %w", err)
		}

		d.conn = nil
	}

	return commitErr
}

// OpenAdminConnection connects to the maintenance database.
func (d *Database) OpenAdminConnection(ctx context.Context) error {
	pool, err := newPool(ctx, d.adminURL)
	if err != nil {
		return err
	}

	d.admin = pool

	return nil
}

// CloseAdminConnection releases the admin pool.
func (d *Database) CloseAdminConnection(_ context.Context) error {
	if d.admin != nil {
		d.admin.Close()
		d.admin = nil
	}

	return nil
}

// RunSQL executes sql on the chosen connection.
func (d *Database) RunSQL(ctx context.Context, sql string, ct database.ConnectionType) error {
	if ct == database.Admin {
		if d.admin == nil {
			return fmt.Errorf("admin: %w", database.ErrConnectionClosed)
		}

		_, err := d.admin.Exec(ctx, sql)

		return err
	}

	ex, err := d.current()
	if err != nil {
		return err
	}

	if d.tx != nil {
		if concurrent, _ := parser.ContainsConcurrentIndex(sql); concurrent {
			return ErrConcurrentIndexInTransaction
		}
	}

	_, err = ex.Exec(ctx, sql)

	return err
}

// Rollback aborts the open transaction, if any. The session stays open in
// autocommit mode.
func (d *Database) Rollback(ctx context.Context) error {
	if d.tx == nil {
		return nil
	}

	err := d.tx.Rollback(ctx)
	d.tx = nil

	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rolling back transaction: %w", err)
	}

	return nil
}

// Close rolls back any dangling transaction and releases every handle.
func (d *Database) Close(ctx context.Context) error {
	errs := []error{d.Rollback(ctx)}

	if d.conn != nil {
		errs = append(errs, d.conn.Close(ctx))
		d.conn = nil
	}

	errs = append(errs, d.CloseAdminConnection(ctx))

	return errors.Join(errs...)
}

// sessionExecer is the subset of *pgx.Conn and pgx.Tx used on the default
// connection.
type sessionExecer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (d *Database) current() (sessionExecer, error) {
	if d.tx != nil {
		return d.tx, nil
	}

	if d.conn != nil {
		return d.conn, nil
	}

	return nil, database.ErrConnectionClosed
}

// withAdmin runs fn on the open admin pool, or on a temporary one.
func (d *Database) withAdmin(ctx context.Context, fn func(pool *pgxpool.Pool) error) error {
	if d.admin != nil {
		return fn(d.admin)
	}

	pool, err := newPool(ctx, d.adminURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(pool)
}
