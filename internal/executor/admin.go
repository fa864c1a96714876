package executor

import (
	"context"
	"fmt"
)

// Audit script names written to the change-drop folder.
const (
	ScriptCreateDatabase  = "create_database"
	ScriptRestoreDatabase = "restore_database"
	ScriptRecoveryMode    = "recovery_mode"
	ScriptSupportTables   = "support_tables"
	ScriptDeleteDatabase  = "delete_database"
)

func recoveryModeName(simple bool) string {
	if simple {
		return "Simple"
	}

	return "Full"
}

// CreateOrRestoreDatabase creates the target when it is missing, then
// restores it when a restore is configured. A restore always reports
// created as false so after-create scripts do not run on restored data.
func (m *Migrator) CreateOrRestoreDatabase(ctx context.Context, customScript string) (bool, error) {
	name, server := m.db.DatabaseName(), m.db.ServerName()

	switch {
	case m.cfg.DryRun && customScript == "":
		m.log.Infof("-DryRun-Would have created %s database on %s server (if it didn't exist).", name, server)
	case m.cfg.DryRun:
		m.log.Infof("-DryRun-Would have created %s database on %s server with custom script.", name, server)
	case customScript == "":
		m.log.Infof("Creating %s database on %s server if it doesn't exist.", name, server)
	default:
		m.log.Infof("Creating %s database on %s server with custom script.", name, server)
	}

	m.emit(ScriptCreateDatabase, m.db.CreateDatabaseScript(customScript), PhaseBefore)

	created := false

	if !m.cfg.DryRun {
		var err error

		created, err = m.db.CreateDatabaseIfItDoesntExist(ctx, customScript)
		if err != nil {
			return false, fmt.Errorf("creating database %s: %w", name, err)
		}
	}

	if m.cfg.Restore {
		options := m.cfg.RestoreCustomOptions
		if !m.cfg.DisableTokenReplacement {
			options = m.replacer.Replace(options)
		}

		if err := m.RestoreDatabase(ctx, m.cfg.RestoreFromPath, options); err != nil {
			return false, err
		}

		created = false
	}

	return created, nil
}

// BackupDatabaseIfItExists backs the target up into the output path.
func (m *Migrator) BackupDatabaseIfItExists(ctx context.Context) error {
	name, server := m.db.DatabaseName(), m.db.ServerName()

	if m.cfg.DryRun {
		m.log.Infof("-DryRun-Would have attempted a backup on %s database on %s server.", name, server)

		return nil
	}

	m.log.Infof("Backing up %s database on %s server.", name, server)

	if err := m.db.BackupDatabase(ctx, m.cfg.OutputPath); err != nil {
		return fmt.Errorf("backing up database %s: %w", name, err)
	}

	return nil
}

// RestoreDatabase replaces the target with the backup at path.
func (m *Migrator) RestoreDatabase(ctx context.Context, path, options string) error {
	name, server := m.db.DatabaseName(), m.db.ServerName()

	m.emit(ScriptRestoreDatabase, m.db.RestoreDatabaseScript(path, options), PhaseBefore)

	if m.cfg.DryRun {
		m.log.Infof("-DryRun-Would have restored %s database on %s server from path %s.", name, server, path)

		return nil
	}

	m.log.Infof("Restoring %s database on %s server from path %s.", name, server, path)

	if err := m.db.RestoreDatabase(ctx, path, options); err != nil {
		return fmt.Errorf("restoring database %s: %w", name, err)
	}

	return nil
}

// SetRecoveryMode switches the target's durability mode and returns the
// script that does it, in dry run too.
func (m *Migrator) SetRecoveryMode(ctx context.Context, simple bool) (string, error) {
	name := m.db.DatabaseName()
	sql := m.db.RecoveryModeScript(simple)

	m.emit(ScriptRecoveryMode, sql, PhaseBefore)

	if m.cfg.DryRun {
		m.log.Infof("-DryRun-Would have set recovery mode to '%s' for database %s.", recoveryModeName(simple), name)

		return sql, nil
	}

	m.log.Infof("Setting recovery mode to '%s' for database %s.", recoveryModeName(simple), name)

	if err := m.db.SetRecoveryMode(ctx, simple); err != nil {
		return sql, fmt.Errorf("setting recovery mode on %s: %w", name, err)
	}

	return sql, nil
}

// RunSupportTasks runs the dialect's housekeeping and creates the audit
// tables, outside any transaction.
func (m *Migrator) RunSupportTasks(ctx context.Context) error {
	tables := m.db.Tables()

	m.emit(ScriptSupportTables, joinScripts(m.db.DatabaseSpecificTasksScript(), m.db.SupportTablesScript()), PhaseDuring)

	return m.outsideTransaction(ctx, func() error {
		if m.cfg.DryRun {
			m.log.Info("-DryRun-Would run database type specific tasks.")

			for _, t := range []string{tables.Version, tables.ScriptsRun, tables.ScriptsRunErrors} {
				m.log.Infof(" -> Would create [%s] table if it didn't exist.", t)
			}

			return nil
		}

		m.log.Info("Running database type specific tasks.")

		if err := m.db.RunDatabaseSpecificTasks(ctx); err != nil {
			return fmt.Errorf("running database specific tasks: %w", err)
		}

		for _, t := range []string{tables.Version, tables.ScriptsRun, tables.ScriptsRunErrors} {
			m.log.Infof(" -> Creating [%s] table if it doesn't exist.", t)
		}

		if err := m.db.CreateOrUpdateSupportTables(ctx); err != nil {
			return fmt.Errorf("creating support tables: %w", err)
		}

		return nil
	})
}

// requireSupportTables guards dry-run reads of the audit tables, which do
// not exist on a fresh target because dry run never creates them.
func (m *Migrator) requireSupportTables(ctx context.Context) error {
	if !m.cfg.DryRun {
		return nil
	}

	ok, err := m.db.HasSupportTables(ctx)
	if err != nil {
		return fmt.Errorf("checking support tables: %w", err)
	}

	if !ok {
		return ErrSupportTablesMissing
	}

	return nil
}

// GetCurrentVersion returns the last version recorded for repositoryPath,
// or "0".
func (m *Migrator) GetCurrentVersion(ctx context.Context, repositoryPath string) (string, error) {
	if err := m.requireSupportTables(ctx); err != nil {
		return "", err
	}

	v, err := m.db.GetVersion(ctx, repositoryPath)
	if err != nil {
		return "", fmt.Errorf("reading current version: %w", err)
	}

	if v == "" {
		return "0", nil
	}

	return v, nil
}

// VersionTheDatabase records a new version row and returns its id. Dry
// run records nothing and returns 0, or ErrSupportTablesMissing when the
// audit tables are absent.
func (m *Migrator) VersionTheDatabase(ctx context.Context, repositoryPath, version string) (int64, error) {
	name := m.db.DatabaseName()

	if m.cfg.DryRun {
		m.log.Infof(" -> Would version %s database with version %s based on path \"%s\".", name, version, repositoryPath)

		if err := m.requireSupportTables(ctx); err != nil {
			return 0, err
		}

		return 0, nil
	}

	m.log.Infof(" -> Versioning %s database with version %s based on path \"%s\".", name, version, repositoryPath)

	id, err := m.db.InsertVersion(ctx, repositoryPath, version)
	if err != nil {
		return 0, fmt.Errorf("versioning database: %w", err)
	}

	return id, nil
}

// DeleteDatabase drops the target and returns the script that does it.
func (m *Migrator) DeleteDatabase(ctx context.Context) (string, error) {
	name, server := m.db.DatabaseName(), m.db.ServerName()
	sql := m.db.DeleteDatabaseScript()

	m.emit(ScriptDeleteDatabase, sql, PhaseAfter)

	if m.cfg.DryRun {
		m.log.Infof(" -> Would have deleted %s database on %s server if it existed.", name, server)

		return sql, nil
	}

	m.log.Infof(" -> Deleting %s database on %s server if it exists.", name, server)

	if err := m.db.DeleteDatabaseIfItExists(ctx); err != nil {
		return sql, fmt.Errorf("deleting database %s: %w", name, err)
	}

	return sql, nil
}

func joinScripts(parts ...string) string {
	var out string

	for _, p := range parts {
		if p == "" {
			continue
		}

		if out != "" {
			out += "\n"
		}

		out += p
	}

	return out
}
