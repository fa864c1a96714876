package sqlite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// sidecarSuffixes are the journal files SQLite keeps next to a database.
var sidecarSuffixes = []string{"-wal", "-shm", "-journal"} //nolint:gochecknoglobals // fixed list

// CreateDatabaseIfItDoesntExist creates the database file and reports
// whether it had to. customScript, when set, runs against the new file.
func (d *Database) CreateDatabaseIfItDoesntExist(ctx context.Context, customScript string) (bool, error) {
	if d.exists() {
		return false, nil
	}

	if dir := filepath.Dir(d.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("creating directory for %s: %w", d.path, err)
		}
	}

	f, err := os.OpenFile(d.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return false, fmt.Errorf("creating database file %s: %w", d.path, err)
	}

	if err := f.Close(); err != nil {
		return false, fmt.Errorf("creating database file %s: %w", d.path, err)
	}

	if strings.TrimSpace(customScript) == "" {
		return true, nil
	}

	db, err := open(ctx, d.dsn(false))
	if err != nil {
		return true, err
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, customScript); err != nil {
		return true, fmt.Errorf("running create script on %s: %w", d.path, err)
	}

	return true, nil
}

// CreateDatabaseScript describes the file creation, followed by customScript.
func (d *Database) CreateDatabaseScript(customScript string) string {
	script := "-- create SQLite database file " + d.path + "\n"
	if strings.TrimSpace(customScript) != "" {
		script += customScript + "\n"
	}

	return script
}

// DeleteDatabaseIfItExists removes the database file and its journals.
func (d *Database) DeleteDatabaseIfItExists(ctx context.Context) error {
	if err := d.Close(ctx); err != nil {
		return err
	}

	if d.isMemory() {
		return nil
	}

	for _, p := range append([]string{d.path}, sidecars(d.path)...) {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", p, err)
		}
	}

	return nil
}

// DeleteDatabaseScript describes the file removal.
func (d *Database) DeleteDatabaseScript() string {
	return "-- remove SQLite database file " + d.path + " and its journals\n"
}

func sidecars(path string) []string {
	out := make([]string, 0, len(sidecarSuffixes))
	for _, s := range sidecarSuffixes {
		out = append(out, path+s)
	}

	return out
}

// RestoreDatabase replaces the database file with a copy of path. SQLite
// has no restore options, so options are only logged.
func (d *Database) RestoreDatabase(ctx context.Context, path, options string) error {
	if strings.TrimSpace(options) != "" {
		d.log.Debugf("ignoring restore options %q: SQLite restores are file copies", options)
	}

	if err := d.DeleteDatabaseIfItExists(ctx); err != nil {
		return err
	}

	if err := copyFile(d.fs, path, d.path); err != nil {
		return fmt.Errorf("restoring %s from %s: %w", d.path, path, err)
	}

	return nil
}

// RestoreDatabaseScript describes the file copy.
func (d *Database) RestoreDatabaseScript(path, _ string) string {
	return "-- replace SQLite database file " + d.path + " with a copy of " + path + "\n"
}

// copyFile copies src from fsys onto the host file dst.
func copyFile(fsys afero.Fs, src, dst string) error {
	in, err := fsys.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()

		return err
	}

	return out.Close()
}

// BackupDatabase writes a consistent copy into outputPath with VACUUM INTO.
// A missing database file is not an error; there is nothing to back up.
func (d *Database) BackupDatabase(ctx context.Context, outputPath string) error {
	if d.isMemory() || !d.exists() {
		return nil
	}

	if err := os.MkdirAll(outputPath, 0o755); err != nil {
		return fmt.Errorf("creating backup directory %s: %w", outputPath, err)
	}

	target := filepath.Join(outputPath, fmt.Sprintf("%s_%s.bak", d.name, time.Now().UTC().Format("20060102150405")))

	db, err := open(ctx, d.dsn(false))
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, "VACUUM INTO "+quote(target)); err != nil {
		return fmt.Errorf("backing up %s: %w", d.path, err)
	}

	return nil
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// SetRecoveryMode switches the journal mode on a dedicated connection;
// journal_mode cannot change inside a transaction.
func (d *Database) SetRecoveryMode(ctx context.Context, simple bool) error {
	db, err := open(ctx, d.dsn(false))
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, d.RecoveryModeScript(simple)); err != nil {
		return fmt.Errorf("setting journal mode on %s: %w", d.path, err)
	}

	return nil
}

// RecoveryModeScript maps simple onto the rollback journal and full onto
// write-ahead logging.
func (d *Database) RecoveryModeScript(simple bool) string {
	if simple {
		return "PRAGMA journal_mode = DELETE"
	}

	return "PRAGMA journal_mode = WAL"
}

// RunDatabaseSpecificTasks is a no-op; SQLite has no schemas to prepare.
func (d *Database) RunDatabaseSpecificTasks(_ context.Context) error { return nil }

// DatabaseSpecificTasksScript returns "".
func (d *Database) DatabaseSpecificTasksScript() string { return "" }
