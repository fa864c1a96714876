// Package cli is the schemakick command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aqasim81/schemakick/internal/config"
)

const version = "0.1.0"

// AppConfig holds the loaded configuration, set during PersistentPreRunE.
var AppConfig *config.Config //nolint:gochecknoglobals // standard Cobra pattern for shared config

// rootCmd is the base command for the schemakick CLI.
var rootCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:     "schemakick",
	Version: version,
	Short:   "Folder-staged SQL migrations for PostgreSQL and SQLite",
	Long: `schemakick applies a directory of SQL scripts to a database in a fixed
stage order (alterDatabase, up, functions, views, sprocs, indexes,
permissions, ...). It records every script it runs, skips scripts that
have not changed, refuses edited one-time scripts, and can simulate a
whole run without touching the database.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return loadConfig(cmd)
	},
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	f := rootCmd.PersistentFlags()
	f.String("config", "schemakick.yml", "path to configuration file")
	f.String("database-type", "", "target database type (postgres, sqlite)")
	f.String("database-url", "", "connection string of the target database")
	f.String("admin-database-url", "", "connection string used for create/drop/restore")
	f.String("files", "", "directory holding the stage folders")
	f.String("repository-path", "", "repository the scripts come from, recorded with each version")
	f.String("db-version", "", "version to record (default: version file, then highest up script number)")
	f.String("version-file", "", "file whose first line is the version to record")
	f.String("environment", "", "environment name used to select .env. scripts")
	f.String("output", "", "directory receiving the change drop")
	f.Bool("with-transaction", false, "run the stage folders in one transaction")
	f.Bool("dont-create-database", false, "never create the target database")
	f.String("recovery-mode", "", "durability mode to set before migrating (no_change, simple, full)")
	f.Bool("search-all-subdirectories", false, "order scripts by file name across all subdirectories")
	f.Bool("warn-on-one-time-script-changes", false, "warn instead of failing when a one-time script changed")
	f.Bool("run-all-any-time-scripts", false, "run every any-time script even when unchanged")
	f.Bool("disable-token-replacement", false, "do not replace {{Token}} placeholders")
	f.Bool("disable-output", false, "do not write the change drop")
	f.Bool("silent", false, "never wait for confirmation")
	f.Bool("restore", false, "restore the database from --restore-from-path before migrating")
	f.String("restore-from-path", "", "backup to restore from")
	f.String("restore-custom-options", "", "extra options for the restore")
	f.String("create-database-custom-script", "", "SQL, or a file of SQL, used to create the database")
	f.String("log-level", "", "log level (debug, info, warn, error)")
	f.String("log-format", "", "log format (text, json)")
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads configuration with precedence: flag > env > file.
func loadConfig(cmd *cobra.Command) error {
	configPath, _ := cmd.Flags().GetString("config")
	allowMissing := !cmd.Flags().Changed("config")

	cfg, err := config.Load(configPath, allowMissing)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	config.MergeEnv(cfg)

	if err := mergeFlags(cmd, cfg); err != nil {
		return err
	}

	AppConfig = cfg

	return nil
}

// stringFlags maps string flags onto config fields.
func stringFlags(cfg *config.Config) map[string]*string {
	return map[string]*string{
		"database-type":                 &cfg.DatabaseType,
		"database-url":                  &cfg.DatabaseURL,
		"admin-database-url":            &cfg.AdminDatabaseURL,
		"files":                         &cfg.SQLFilesDirectory,
		"repository-path":               &cfg.RepositoryPath,
		"db-version":                    &cfg.Version,
		"version-file":                  &cfg.VersionFile,
		"environment":                   &cfg.EnvironmentName,
		"output":                        &cfg.OutputPath,
		"restore-from-path":             &cfg.RestoreFromPath,
		"restore-custom-options":        &cfg.RestoreCustomOptions,
		"create-database-custom-script": &cfg.CreateDatabaseCustomScript,
		"log-level":                     &cfg.LogLevel,
		"log-format":                    &cfg.LogFormat,
	}
}

// boolFlags maps boolean flags onto config fields.
func boolFlags(cfg *config.Config) map[string]*bool {
	return map[string]*bool{
		"with-transaction":                &cfg.WithTransaction,
		"dont-create-database":            &cfg.DontCreateDatabase,
		"search-all-subdirectories":       &cfg.SearchAllSubdirectories,
		"warn-on-one-time-script-changes": &cfg.WarnOnOneTimeScriptChanges,
		"run-all-any-time-scripts":        &cfg.RunAllAnyTimeScripts,
		"disable-token-replacement":       &cfg.DisableTokenReplacement,
		"disable-output":                  &cfg.DisableOutput,
		"silent":                          &cfg.Silent,
		"restore":                         &cfg.Restore,
	}
}

// mergeFlags overrides config with explicitly-set CLI flags. Flags the
// command does not define are ignored.
func mergeFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	for name, dst := range stringFlags(cfg) {
		if flags.Lookup(name) != nil && flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}

	for name, dst := range boolFlags(cfg) {
		if flags.Lookup(name) != nil && flags.Changed(name) {
			*dst, _ = flags.GetBool(name)
		}
	}

	if flags.Lookup("recovery-mode") != nil && flags.Changed("recovery-mode") {
		raw, _ := flags.GetString("recovery-mode")

		mode, err := config.ParseRecoveryMode(raw)
		if err != nil {
			return err
		}

		cfg.RecoveryMode = mode
	}

	return nil
}
