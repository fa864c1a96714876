package postgres

import (
	"context"
	"fmt"

	"github.com/aqasim81/schemakick/internal/tracker"
)

// querier routes tracker statements to whatever the default connection
// currently is, so audit rows share the scripts' transaction.
type querier struct {
	d *Database
}

func (q querier) Exec(ctx context.Context, sql string, args ...any) error {
	ex, err := q.d.current()
	if err != nil {
		return err
	}

	_, err = ex.Exec(ctx, sql, args...)

	return err
}

func (q querier) QueryRow(ctx context.Context, sql string, args ...any) tracker.Row {
	ex, err := q.d.current()
	if err != nil {
		return errRow{err}
	}

	return ex.QueryRow(ctx, sql, args...)
}

func (q querier) Query(ctx context.Context, sql string, args ...any) (tracker.Rows, error) {
	ex, err := q.d.current()
	if err != nil {
		return nil, err
	}

	return ex.Query(ctx, sql, args...)
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

// CreateOrUpdateSupportTables creates the audit tables.
func (d *Database) CreateOrUpdateSupportTables(ctx context.Context) error {
	return d.store.EnsureTables(ctx)
}

// SupportTablesScript returns the audit table DDL.
func (d *Database) SupportTablesScript() string {
	return d.store.CreateScript()
}

// HasSupportTables reports whether all three audit tables exist.
func (d *Database) HasSupportTables(ctx context.Context) (bool, error) {
	if d.missing {
		return false, nil
	}

	t := d.store.Tables()

	var exists bool

	err := querier{d}.QueryRow(ctx,
		`SELECT to_regclass($1) IS NOT NULL AND to_regclass($2) IS NOT NULL AND to_regclass($3) IS NOT NULL`,
		t.Version, t.ScriptsRun, t.ScriptsRunErrors,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking audit tables: %w", err)
	}

	return exists, nil
}

// GetVersion returns the newest version recorded for repositoryPath.
func (d *Database) GetVersion(ctx context.Context, repositoryPath string) (string, error) {
	return d.store.GetVersion(ctx, repositoryPath)
}

// InsertVersion records a new version row.
func (d *Database) InsertVersion(ctx context.Context, repositoryPath, version string) (int64, error) {
	return d.store.InsertVersion(ctx, repositoryPath, version)
}

// InsertScriptRun records a successful script run.
func (d *Database) InsertScriptRun(ctx context.Context, r tracker.ScriptRun) error {
	return d.store.InsertScriptRun(ctx, r)
}

// InsertScriptRunError records a failed script run.
func (d *Database) InsertScriptRunError(ctx context.Context, r tracker.ScriptRunError) error {
	return d.store.InsertScriptRunError(ctx, r)
}

// HasRunScriptAlready reports whether name was ever recorded as run.
func (d *Database) HasRunScriptAlready(ctx context.Context, name string) (bool, error) {
	return d.store.HasRunScript(ctx, name)
}

// GetCurrentScriptHash returns the hash of the latest run of name.
func (d *Database) GetCurrentScriptHash(ctx context.Context, name string) (string, error) {
	return d.store.GetCurrentScriptHash(ctx, name)
}

// ListScriptsRun returns the ScriptsRun history.
func (d *Database) ListScriptsRun(ctx context.Context) ([]tracker.ScriptRun, error) {
	return d.store.ListScriptsRun(ctx)
}
