package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/afero"

	"github.com/aqasim81/schemakick/internal/database"
)

const terminateBackendsSQL = `SELECT pg_terminate_backend(pid) FROM pg_stat_activity
WHERE datname = $1 AND pid <> pg_backend_pid()`

func (d *Database) quotedName() string {
	return pgx.Identifier{d.name}.Sanitize()
}

func literal(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// CreateDatabaseIfItDoesntExist creates the target through the admin
// connection and reports whether it had to.
func (d *Database) CreateDatabaseIfItDoesntExist(ctx context.Context, customScript string) (bool, error) {
	var created bool

	err := d.withAdmin(ctx, func(pool *pgxpool.Pool) error {
		exists, err := databaseExists(ctx, pool, d.name)
		if err != nil {
			return err
		}

		if exists {
			return nil
		}

		if _, err := pool.Exec(ctx, d.CreateDatabaseScript(customScript)); err != nil {
			return fmt.Errorf("creating database %s: %w", d.name, err)
		}

		created = true

		return nil
	})

	return created, err
}

// CreateDatabaseScript returns customScript, or the default CREATE DATABASE.
func (d *Database) CreateDatabaseScript(customScript string) string {
	if strings.TrimSpace(customScript) != "" {
		return customScript
	}

	return "CREATE DATABASE " + d.quotedName()
}

func databaseExists(ctx context.Context, pool *pgxpool.Pool, name string) (bool, error) {
	var exists bool

	err := pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking whether database %s exists: %w", name, err)
	}

	return exists, nil
}

// DeleteDatabaseIfItExists disconnects other sessions and drops the target.
func (d *Database) DeleteDatabaseIfItExists(ctx context.Context) error {
	return d.withAdmin(ctx, func(pool *pgxpool.Pool) error {
		return d.dropDatabase(ctx, pool)
	})
}

func (d *Database) dropDatabase(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, terminateBackendsSQL, d.name); err != nil {
		return fmt.Errorf("disconnecting sessions from %s: %w", d.name, err)
	}

	if _, err := pool.Exec(ctx, "DROP DATABASE IF EXISTS "+d.quotedName()); err != nil {
		return fmt.Errorf("dropping database %s: %w", d.name, err)
	}

	return nil
}

// DeleteDatabaseScript returns the statements DeleteDatabaseIfItExists runs.
func (d *Database) DeleteDatabaseScript() string {
	return strings.Replace(terminateBackendsSQL, "$1", literal(d.name), 1) + ";\n" +
		"DROP DATABASE IF EXISTS " + d.quotedName() + ";\n"
}

// RestoreDatabase recreates the target from a plain SQL dump at path.
// options are appended to CREATE DATABASE, e.g. "TEMPLATE template0".
func (d *Database) RestoreDatabase(ctx context.Context, path, options string) error {
	dump, err := afero.ReadFile(d.fs, path)
	if err != nil {
		return fmt.Errorf("reading restore file %s: %w", path, err)
	}

	err = d.withAdmin(ctx, func(pool *pgxpool.Pool) error {
		if err := d.dropDatabase(ctx, pool); err != nil {
			return err
		}

		if _, err := pool.Exec(ctx, d.createWithOptions(options)); err != nil {
			return fmt.Errorf("recreating database %s: %w", d.name, err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	conn, err := pgx.Connect(ctx, d.url)
	if err != nil {
		return fmt.Errorf("%w: %w", database.ErrConnectionFailed, err)
	}
	defer conn.Close(ctx) //nolint:errcheck // read-only cleanup after the load

	if _, err := conn.Exec(ctx, string(dump)); err != nil {
		return fmt.Errorf("loading %s into %s: %w", path, d.name, err)
	}

	return nil
}

func (d *Database) createWithOptions(options string) string {
	stmt := "CREATE DATABASE " + d.quotedName()
	if o := strings.TrimSpace(options); o != "" {
		stmt += " " + o
	}

	return stmt
}

// RestoreDatabaseScript describes what RestoreDatabase runs.
func (d *Database) RestoreDatabaseScript(path, options string) string {
	return d.DeleteDatabaseScript() +
		d.createWithOptions(options) + ";\n" +
		"-- load plain SQL dump " + path + "\n"
}

// BackupDatabase is not available; PostgreSQL backups are taken with
// pg_dump outside this tool.
func (d *Database) BackupDatabase(_ context.Context, _ string) error {
	return fmt.Errorf("backup: %w", database.ErrUnsupported)
}

// SetRecoveryMode maps simple/full onto synchronous_commit, PostgreSQL's
// per-database durability knob.
func (d *Database) SetRecoveryMode(ctx context.Context, simple bool) error {
	return d.withAdmin(ctx, func(pool *pgxpool.Pool) error {
		if _, err := pool.Exec(ctx, d.RecoveryModeScript(simple)); err != nil {
			return fmt.Errorf("setting recovery mode on %s: %w", d.name, err)
		}

		return nil
	})
}

// RecoveryModeScript returns the ALTER DATABASE SetRecoveryMode runs.
func (d *Database) RecoveryModeScript(simple bool) string {
	value := "on"
	if simple {
		value = "off"
	}

	return fmt.Sprintf("ALTER DATABASE %s SET synchronous_commit = %s", d.quotedName(), value)
}

// RunDatabaseSpecificTasks creates the audit schema.
func (d *Database) RunDatabaseSpecificTasks(ctx context.Context) error {
	script := d.DatabaseSpecificTasksScript()
	if script == "" {
		return nil
	}

	if err := d.RunSQL(ctx, script, database.Default); err != nil {
		return fmt.Errorf("creating schema %s: %w", d.schema, err)
	}

	return nil
}

// DatabaseSpecificTasksScript returns the CREATE SCHEMA for the audit
// tables, or "" when they live in the search path.
func (d *Database) DatabaseSpecificTasksScript() string {
	if d.schema == "" {
		return ""
	}

	return "CREATE SCHEMA IF NOT EXISTS " + pgx.Identifier{d.schema}.Sanitize()
}
