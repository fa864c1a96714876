// Package runner sequences a whole migration: stage folders in a fixed
// order, transaction boundaries, versioning and the change-drop output.
package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/aqasim81/schemakick/internal/config"
	"github.com/aqasim81/schemakick/internal/database"
	"github.com/aqasim81/schemakick/internal/executor"
	"github.com/aqasim81/schemakick/internal/logging"
	"github.com/aqasim81/schemakick/internal/migration"
	"github.com/aqasim81/schemakick/internal/tokens"
	"github.com/aqasim81/schemakick/internal/version"
)

// AppName prefixes the run's summary lines.
const AppName = "schemakick"

// Outcome is how a run ended.
type Outcome int

// Outcomes.
const (
	// OutcomeFailed is the outcome of any run that returned an error.
	OutcomeFailed Outcome = iota
	OutcomeMigrated
	OutcomeDropped
	// OutcomeAbortedMissingSupportTables ends a dry run against a target
	// without audit tables. It is not a failure.
	OutcomeAbortedMissingSupportTables
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMigrated:
		return "migrated"
	case OutcomeDropped:
		return "dropped"
	case OutcomeAbortedMissingSupportTables:
		return "aborted: support tables missing"
	default:
		return "failed"
	}
}

// Result summarizes a run.
type Result struct {
	Outcome        Outcome
	Version        string
	VersionID      int64
	ChangeDropPath string
	ScriptsRan     []string
}

// ConfirmFunc is called at the interactive confirmation points of a run
// that is not silent. Returning an error aborts the run.
type ConfirmFunc func(ctx context.Context, prompt string) error

// Runner drives one migration. A Runner is single use.
type Runner struct {
	cfg        config.Config
	m          *executor.Migrator
	folders    migration.KnownFolders
	fs         afero.Fs
	log        logrus.FieldLogger
	resolver   version.Resolver
	replacer   *tokens.Replacer
	confirm    ConfirmFunc
	appVersion string

	useTransaction bool
	result         Result
}

// Option configures a Runner.
type Option func(*Runner)

// WithFs sets the file system scripts are read from and output written to.
func WithFs(fs afero.Fs) Option {
	return func(r *Runner) { r.fs = fs }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Runner) { r.log = l }
}

// WithVersionResolver sets how the new version is determined.
func WithVersionResolver(v version.Resolver) Option {
	return func(r *Runner) { r.resolver = v }
}

// WithTokenReplacer sets the replacer applied to script text.
func WithTokenReplacer(t *tokens.Replacer) Option {
	return func(r *Runner) { r.replacer = t }
}

// WithConfirm sets the confirmation hook.
func WithConfirm(fn ConfirmFunc) Option {
	return func(r *Runner) { r.confirm = fn }
}

// WithAppVersion sets the version reported in the run's summary lines.
func WithAppVersion(v string) Option {
	return func(r *Runner) { r.appVersion = v }
}

// New creates a Runner. cfg is copied; later changes to it are not seen.
func New(cfg *config.Config, m *executor.Migrator, folders migration.KnownFolders, opts ...Option) *Runner {
	r := &Runner{
		cfg:        *cfg.Clone(),
		m:          m,
		folders:    folders,
		appVersion: "dev",
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.fs == nil {
		r.fs = afero.NewOsFs()
	}

	if r.log == nil {
		r.log = logging.Discard()
	}

	if r.replacer == nil {
		r.replacer = tokens.New(&r.cfg)
	}

	if r.resolver == nil {
		r.resolver = version.Chain{
			version.Literal(r.cfg.Version),
			version.File{Fs: r.fs, Path: r.cfg.VersionFile},
			version.ScriptNumber{Fs: r.fs, Dir: folders.Up.Path, Recursive: r.cfg.SearchAllSubdirectories},
		}
	}

	if r.confirm == nil {
		r.confirm = func(context.Context, string) error { return nil }
	}

	m.AddScriptCallback(r.writeAuditScript)

	return r
}

// Run performs the migration. The target is always released before Run
// returns.
func (r *Runner) Run(ctx context.Context) (res Result, err error) {
	r.result = Result{ChangeDropPath: r.folders.ChangeDrop}

	defer func() {
		if closeErr := r.m.Close(ctx); closeErr != nil {
			r.log.WithError(closeErr).Warn("releasing database")

			if err == nil {
				err = fmt.Errorf("releasing database: %w", closeErr)
				res.Outcome = OutcomeFailed
			}
		}
	}()

	if err := r.m.InitializeConnections(ctx); err != nil {
		return r.result, err
	}

	db := r.m.Database()
	r.replacer.Set(tokens.DatabaseName, db.DatabaseName())
	r.replacer.Set(tokens.ServerName, db.ServerName())

	if err := r.logInitialEvents(ctx, db); err != nil {
		return r.result, err
	}

	r.useTransaction = r.cfg.WithTransaction
	if r.useTransaction && !db.SupportsDDLTransactions() {
		r.log.Warn("You asked to run in a transaction, but this database type doesn't support DDL transactions. " +
			"Continuing without a transaction.")
		r.useTransaction = false
	}

	if err := r.fs.MkdirAll(r.folders.ChangeDrop, 0o755); err != nil {
		return r.result, fmt.Errorf("creating change drop folder: %w", err)
	}

	r.log.Debugf("The change_drop (output) folder is: %s", r.folders.ChangeDrop)

	if r.cfg.Drop {
		err = r.drop(ctx, db)
	} else {
		err = r.migrate(ctx, db)
	}

	if errors.Is(err, executor.ErrSupportTablesMissing) {
		r.log.Info("The database has no audit tables yet, so the rest of this dry run cannot be simulated.")
		r.result.Outcome = OutcomeAbortedMissingSupportTables

		return r.result, nil
	}

	if err != nil {
		note := ""
		if r.useTransaction {
			note = " You were running in a transaction though, so the database should be in the state it was in " +
				"prior to this piece running. This does not include a drop/create or any creation of a database, " +
				"as those items can not run in a transaction."
		}

		r.log.WithError(err).Errorf("%s encountered an error.%s", AppName, note)
		r.result.Outcome = OutcomeFailed

		return r.result, err
	}

	return r.result, nil
}

func (r *Runner) logInitialEvents(ctx context.Context, db database.Database) error {
	r.log.Infof("Running %s v%s against %s - %s.", AppName, r.appVersion, db.ServerName(), db.DatabaseName())
	r.log.Infof("Looking in %s for scripts to run.", r.folders.Root)

	if r.cfg.DryRun {
		r.log.Info("This is a dry run, nothing will be done to the database.")
	}

	if r.cfg.Silent {
		return nil
	}

	prompt := "Please press enter when ready to kick..."
	if r.cfg.DryRun {
		prompt = "Please press enter to continue the dry run..."
	}

	if err := r.confirm(ctx, prompt); err != nil {
		return fmt.Errorf("waiting for confirmation: %w", err)
	}

	return nil
}

func (r *Runner) drop(ctx context.Context, db database.Database) error {
	r.log.Info("Setup, Backup, Create/Restore/Drop")

	if r.cfg.DryRun {
		if _, err := r.m.DeleteDatabase(ctx); err != nil {
			return err
		}

		if err := r.m.CloseConnection(ctx); err != nil {
			return err
		}

		r.log.Infof("-DryRun-%s would have removed database (%s). All changes and backups can be found at \"%s\".",
			AppName, db.DatabaseName(), r.folders.ChangeDrop)
	} else {
		if err := r.m.OpenAdminConnection(ctx); err != nil {
			return err
		}

		if _, err := r.m.DeleteDatabase(ctx); err != nil {
			return err
		}

		if err := r.m.CloseAdminConnection(ctx); err != nil {
			return err
		}

		if err := r.m.CloseConnection(ctx); err != nil {
			return err
		}

		r.log.Infof("%s has removed database (%s). All changes and backups can be found at \"%s\".",
			AppName, db.DatabaseName(), r.folders.ChangeDrop)
	}

	r.result.Outcome = OutcomeDropped

	return nil
}

func (r *Runner) migrate(ctx context.Context, db database.Database) error {
	r.log.Info("Setup, Backup, Create/Restore/Drop")

	created := false

	if !r.cfg.DontCreateDatabase {
		custom, err := r.customCreateScript()
		if err != nil {
			return err
		}

		if created, err = r.m.CreateOrRestoreDatabase(ctx, custom); err != nil {
			return err
		}
	}

	if r.cfg.RecoveryMode != config.RecoveryModeNoChange && r.cfg.RecoveryMode != "" {
		if _, err := r.m.SetRecoveryMode(ctx, r.cfg.RecoveryMode == config.RecoveryModeSimple); err != nil {
			return err
		}
	}

	if r.cfg.DryRun && r.useTransaction {
		r.log.Infof("-DryRun- Would have began a transaction on database %s", db.DatabaseName())
	}

	if err := r.m.OpenConnection(ctx, r.useTransaction); err != nil {
		return err
	}

	if err := r.m.RunSupportTasks(ctx); err != nil {
		return err
	}

	newVersion, err := r.resolver.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("resolving version: %w", err)
	}

	r.replacer.Set(tokens.Version, newVersion)
	r.result.Version = newVersion

	current, err := r.m.GetCurrentVersion(ctx, r.cfg.RepositoryPath)
	if err != nil {
		return err
	}

	r.log.Infof("Migrating %s from version %s to %s.", db.DatabaseName(), current, newVersion)

	versionID, err := r.m.VersionTheDatabase(ctx, r.cfg.RepositoryPath, newVersion)
	if err != nil {
		return err
	}

	r.result.VersionID = versionID

	st := stage{versionID: versionID, version: newVersion}

	if err := r.outsideTransaction(ctx, func() error {
		return r.traverse(ctx, r.folders.BeforeMigration, st, database.Default)
	}); err != nil {
		return err
	}

	r.log.Info("Migration Scripts")

	if err := r.traverseKnownFolders(ctx, st, created); err != nil {
		return err
	}

	if r.useTransaction {
		if r.cfg.DryRun {
			r.log.Infof("-DryRun-Would have committed the transaction on database %s", db.DatabaseName())
		} else if err := r.reopen(ctx, false); err != nil {
			return err
		}
	}

	if err := r.traverse(ctx, r.folders.Permissions, st, database.Default); err != nil {
		return err
	}

	if err := r.outsideTransaction(ctx, func() error {
		return r.traverse(ctx, r.folders.AfterMigration, st, database.Default)
	}); err != nil {
		return err
	}

	if r.cfg.DryRun {
		r.log.Infof("-DryRun-%s v%s would have kicked your database (%s)! You would be at version %s. "+
			"All changes and backups can be found at \"%s\".",
			AppName, r.appVersion, db.DatabaseName(), newVersion, r.folders.ChangeDrop)
	} else {
		r.log.Infof("%s v%s has kicked your database (%s)! You are now at version %s. "+
			"All changes and backups can be found at \"%s\".",
			AppName, r.appVersion, db.DatabaseName(), newVersion, r.folders.ChangeDrop)
	}

	if err := r.m.CloseConnection(ctx); err != nil {
		return err
	}

	r.result.Outcome = OutcomeMigrated

	return nil
}

func (r *Runner) traverseKnownFolders(ctx context.Context, st stage, created bool) error {
	if err := r.m.OpenAdminConnection(ctx); err != nil {
		return err
	}

	if err := r.traverse(ctx, r.folders.AlterDatabase, st, database.Admin); err != nil {
		return err
	}

	if err := r.m.CloseAdminConnection(ctx); err != nil {
		return err
	}

	if created {
		if err := r.traverse(ctx, r.folders.RunAfterCreateDatabase, st, database.Default); err != nil {
			return err
		}
	}

	for _, f := range []migration.Folder{
		r.folders.RunBeforeUp,
		r.folders.Up,
		r.folders.RunFirstAfterUp,
		r.folders.Functions,
		r.folders.Views,
		r.folders.Sprocs,
		r.folders.Indexes,
		r.folders.RunAfterOtherAnyTimeScripts,
	} {
		if err := r.traverse(ctx, f, st, database.Default); err != nil {
			return err
		}
	}

	return nil
}

// outsideTransaction runs fn on a non-transactional connection and
// restores the transaction afterwards.
func (r *Runner) outsideTransaction(ctx context.Context, fn func() error) error {
	if !r.useTransaction {
		return fn()
	}

	if err := r.reopen(ctx, false); err != nil {
		return err
	}

	if err := fn(); err != nil {
		return err
	}

	return r.reopen(ctx, true)
}

func (r *Runner) reopen(ctx context.Context, withTransaction bool) error {
	if err := r.m.CloseConnection(ctx); err != nil {
		return err
	}

	return r.m.OpenConnection(ctx, withTransaction)
}

// customCreateScript returns the configured create script, reading it from
// a file when the setting names one.
func (r *Runner) customCreateScript() (string, error) {
	custom := r.cfg.CreateDatabaseCustomScript
	if custom == "" {
		return "", nil
	}

	if ok, _ := afero.Exists(r.fs, custom); ok {
		data, err := afero.ReadFile(r.fs, custom)
		if err != nil {
			return "", fmt.Errorf("reading create database script: %w", err)
		}

		custom = string(data)
	}

	if !r.cfg.DisableTokenReplacement {
		custom = r.replacer.Replace(custom)
	}

	return custom, nil
}
