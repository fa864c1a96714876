package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for configuration fields.
const (
	DefaultDatabaseType       = DatabaseTypePostgres
	DefaultSQLFilesDirectory  = "."
	DefaultOutputPath         = "./change_drop"
	DefaultEnvironmentName    = "LOCAL"
	DefaultSchemaName         = "schemakick"
	DefaultHashAlgorithm      = "md5"
	DefaultLockTimeout        = 5 * time.Second
	DefaultStatementTimeout   = 30 * time.Second
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
	DefaultVersionTable       = "version"
	DefaultScriptsRunTable    = "scripts_run"
	DefaultScriptsErrorsTable = "scripts_run_errors"
)

// Supported database types.
const (
	DatabaseTypePostgres = "postgres"
	DatabaseTypeSQLite   = "sqlite"
)

// RecoveryMode selects how the target database's durability setting is
// adjusted before migrating.
type RecoveryMode string

// Recovery modes.
const (
	RecoveryModeNoChange RecoveryMode = "no_change"
	RecoveryModeSimple   RecoveryMode = "simple"
	RecoveryModeFull     RecoveryMode = "full"
)

// ParseRecoveryMode accepts the config spelling of a recovery mode.
func ParseRecoveryMode(s string) (RecoveryMode, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")) {
	case "", "no_change", "nochange":
		return RecoveryModeNoChange, nil
	case "simple":
		return RecoveryModeSimple, nil
	case "full":
		return RecoveryModeFull, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRecoveryMode, s)
	}
}

// Folders holds the directory name of every migration stage, relative to
// SQLFilesDirectory. An empty name disables the stage.
type Folders struct {
	BeforeMigration             string `yaml:"before_migration"`
	AlterDatabase               string `yaml:"alter_database"`
	RunAfterCreateDatabase      string `yaml:"run_after_create_database"`
	RunBeforeUp                 string `yaml:"run_before_up"`
	Up                          string `yaml:"up"`
	RunFirstAfterUp             string `yaml:"run_first_after_up"`
	Functions                   string `yaml:"functions"`
	Views                       string `yaml:"views"`
	Sprocs                      string `yaml:"sprocs"`
	Indexes                     string `yaml:"indexes"`
	RunAfterOtherAnyTimeScripts string `yaml:"run_after_other_any_time_scripts"`
	Permissions                 string `yaml:"permissions"`
	AfterMigration              string `yaml:"after_migration"`
}

// DefaultFolders returns the conventional stage directory names.
func DefaultFolders() Folders {
	return Folders{
		BeforeMigration:             "beforeMigration",
		AlterDatabase:               "alterDatabase",
		RunAfterCreateDatabase:      "runAfterCreateDatabase",
		RunBeforeUp:                 "runBeforeUp",
		Up:                          "up",
		RunFirstAfterUp:             "runFirstAfterUp",
		Functions:                   "functions",
		Views:                       "views",
		Sprocs:                      "sprocs",
		Indexes:                     "indexes",
		RunAfterOtherAnyTimeScripts: "runAfterOtherAnyTimeScripts",
		Permissions:                 "permissions",
		AfterMigration:              "afterMigration",
	}
}

// Config holds the application configuration loaded from file, environment, and flags.
// The runner copies it on construction and never mutates its copy.
type Config struct {
	DatabaseType     string
	DatabaseURL      string
	AdminDatabaseURL string

	SQLFilesDirectory string
	RepositoryPath    string
	Version           string
	VersionFile       string
	EnvironmentName   string
	OutputPath        string
	Folders           Folders

	DryRun                     bool
	Drop                       bool
	DontCreateDatabase         bool
	WithTransaction            bool
	RecoveryMode               RecoveryMode
	SearchAllSubdirectories    bool
	WarnOnOneTimeScriptChanges bool
	RunAllAnyTimeScripts       bool
	DisableTokenReplacement    bool
	DisableOutput              bool
	Silent                     bool

	Restore                    bool
	RestoreFromPath            string
	RestoreCustomOptions       string
	CreateDatabaseCustomScript string

	HashAlgorithm      string
	SchemaName         string
	VersionTable       string
	ScriptsRunTable    string
	ScriptsErrorsTable string
	StatementSeparator string
	LockTimeout        time.Duration
	StatementTimeout   time.Duration

	Tokens map[string]string

	LogLevel  string
	LogFormat string
}

// yamlConfig is the raw YAML file representation with string durations.
type yamlConfig struct {
	DatabaseType     string `yaml:"database_type"`
	DatabaseURL      string `yaml:"database_url"`
	AdminDatabaseURL string `yaml:"admin_database_url"`

	SQLFilesDirectory string  `yaml:"sql_files_directory"`
	RepositoryPath    string  `yaml:"repository_path"`
	Version           string  `yaml:"version"`
	VersionFile       string  `yaml:"version_file"`
	EnvironmentName   string  `yaml:"environment_name"`
	OutputPath        string  `yaml:"output_path"`
	Folders           Folders `yaml:"folders"`

	DryRun                     bool   `yaml:"dry_run"`
	Drop                       bool   `yaml:"drop"`
	DontCreateDatabase         bool   `yaml:"dont_create_database"`
	WithTransaction            bool   `yaml:"with_transaction"`
	RecoveryMode               string `yaml:"recovery_mode"`
	SearchAllSubdirectories    bool   `yaml:"search_all_subdirectories"`
	WarnOnOneTimeScriptChanges bool   `yaml:"warn_on_one_time_script_changes"`
	RunAllAnyTimeScripts       bool   `yaml:"run_all_any_time_scripts"`
	DisableTokenReplacement    bool   `yaml:"disable_token_replacement"`
	DisableOutput              bool   `yaml:"disable_output"`
	Silent                     bool   `yaml:"silent"`

	Restore                    bool   `yaml:"restore"`
	RestoreFromPath            string `yaml:"restore_from_path"`
	RestoreCustomOptions       string `yaml:"restore_custom_options"`
	CreateDatabaseCustomScript string `yaml:"create_database_custom_script"`

	HashAlgorithm      string `yaml:"hash_algorithm"`
	SchemaName         string `yaml:"schema_name"`
	VersionTable       string `yaml:"version_table"`
	ScriptsRunTable    string `yaml:"scripts_run_table"`
	ScriptsErrorsTable string `yaml:"scripts_run_errors_table"`
	StatementSeparator string `yaml:"statement_separator"`
	LockTimeout        string `yaml:"lock_timeout"`
	StatementTimeout   string `yaml:"statement_timeout"`

	Tokens map[string]string `yaml:"tokens"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// New returns a Config populated with default values.
func New() *Config {
	return &Config{
		DatabaseType:       DefaultDatabaseType,
		SQLFilesDirectory:  DefaultSQLFilesDirectory,
		EnvironmentName:    DefaultEnvironmentName,
		OutputPath:         DefaultOutputPath,
		Folders:            DefaultFolders(),
		RecoveryMode:       RecoveryModeNoChange,
		HashAlgorithm:      DefaultHashAlgorithm,
		SchemaName:         DefaultSchemaName,
		VersionTable:       DefaultVersionTable,
		ScriptsRunTable:    DefaultScriptsRunTable,
		ScriptsErrorsTable: DefaultScriptsErrorsTable,
		LockTimeout:        DefaultLockTimeout,
		StatementTimeout:   DefaultStatementTimeout,
		Tokens:             map[string]string{},
		LogLevel:           DefaultLogLevel,
		LogFormat:          DefaultLogFormat,
	}
}

// Clone returns a deep copy so a consumer can hold a snapshot that later
// flag or env merges cannot reach.
func (c *Config) Clone() *Config {
	cp := *c

	cp.Tokens = make(map[string]string, len(c.Tokens))
	for k, v := range c.Tokens {
		cp.Tokens[k] = v
	}

	return &cp
}

// Validate checks the fields whose values are restricted to a fixed set.
func (c *Config) Validate() error {
	switch c.DatabaseType {
	case DatabaseTypePostgres, DatabaseTypeSQLite:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDatabaseType, c.DatabaseType)
	}

	if _, err := ParseRecoveryMode(string(c.RecoveryMode)); err != nil {
		return err
	}

	if c.DatabaseURL == "" {
		return ErrDatabaseURLRequired
	}

	return nil
}

// Load reads a YAML configuration file and returns a Config.
// If allowMissing is true and the file does not exist, defaults are returned.
func Load(path string, allowMissing bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && allowMissing {
			return New(), nil
		}

		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var raw yamlConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return fromYAML(&raw)
}

// fromYAML converts the raw YAML representation to a Config with defaults applied.
func fromYAML(raw *yamlConfig) (*Config, error) {
	cfg := New()

	setString(&cfg.DatabaseType, strings.ToLower(raw.DatabaseType))
	setString(&cfg.DatabaseURL, raw.DatabaseURL)
	setString(&cfg.AdminDatabaseURL, raw.AdminDatabaseURL)
	setString(&cfg.SQLFilesDirectory, raw.SQLFilesDirectory)
	setString(&cfg.RepositoryPath, raw.RepositoryPath)
	setString(&cfg.Version, raw.Version)
	setString(&cfg.VersionFile, raw.VersionFile)
	setString(&cfg.EnvironmentName, raw.EnvironmentName)
	setString(&cfg.OutputPath, raw.OutputPath)
	setString(&cfg.RestoreFromPath, raw.RestoreFromPath)
	setString(&cfg.RestoreCustomOptions, raw.RestoreCustomOptions)
	setString(&cfg.CreateDatabaseCustomScript, raw.CreateDatabaseCustomScript)
	setString(&cfg.HashAlgorithm, strings.ToLower(raw.HashAlgorithm))
	setString(&cfg.SchemaName, raw.SchemaName)
	setString(&cfg.VersionTable, raw.VersionTable)
	setString(&cfg.ScriptsRunTable, raw.ScriptsRunTable)
	setString(&cfg.ScriptsErrorsTable, raw.ScriptsErrorsTable)
	setString(&cfg.StatementSeparator, raw.StatementSeparator)
	setString(&cfg.LogLevel, raw.LogLevel)
	setString(&cfg.LogFormat, raw.LogFormat)

	mergeFolders(&cfg.Folders, raw.Folders)

	cfg.DryRun = raw.DryRun
	cfg.Drop = raw.Drop
	cfg.DontCreateDatabase = raw.DontCreateDatabase
	cfg.WithTransaction = raw.WithTransaction
	cfg.SearchAllSubdirectories = raw.SearchAllSubdirectories
	cfg.WarnOnOneTimeScriptChanges = raw.WarnOnOneTimeScriptChanges
	cfg.RunAllAnyTimeScripts = raw.RunAllAnyTimeScripts
	cfg.DisableTokenReplacement = raw.DisableTokenReplacement
	cfg.DisableOutput = raw.DisableOutput
	cfg.Silent = raw.Silent
	cfg.Restore = raw.Restore

	mode, err := ParseRecoveryMode(raw.RecoveryMode)
	if err != nil {
		return nil, err
	}

	cfg.RecoveryMode = mode

	if raw.LockTimeout != "" {
		d, err := time.ParseDuration(raw.LockTimeout)
		if err != nil {
			return nil, fmt.Errorf("parsing lock_timeout %q: %w", raw.LockTimeout, err)
		}

		cfg.LockTimeout = d
	}

	if raw.StatementTimeout != "" {
		d, err := time.ParseDuration(raw.StatementTimeout)
		if err != nil {
			return nil, fmt.Errorf("parsing statement_timeout %q: %w", raw.StatementTimeout, err)
		}

		cfg.StatementTimeout = d
	}

	for k, v := range raw.Tokens {
		cfg.Tokens[k] = v
	}

	return cfg, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mergeFolders(dst *Folders, src Folders) {
	setString(&dst.BeforeMigration, src.BeforeMigration)
	setString(&dst.AlterDatabase, src.AlterDatabase)
	setString(&dst.RunAfterCreateDatabase, src.RunAfterCreateDatabase)
	setString(&dst.RunBeforeUp, src.RunBeforeUp)
	setString(&dst.Up, src.Up)
	setString(&dst.RunFirstAfterUp, src.RunFirstAfterUp)
	setString(&dst.Functions, src.Functions)
	setString(&dst.Views, src.Views)
	setString(&dst.Sprocs, src.Sprocs)
	setString(&dst.Indexes, src.Indexes)
	setString(&dst.RunAfterOtherAnyTimeScripts, src.RunAfterOtherAnyTimeScripts)
	setString(&dst.Permissions, src.Permissions)
	setString(&dst.AfterMigration, src.AfterMigration)
}

// envPrefix is prepended to every environment override.
const envPrefix = "SCHEMAKICK_"

// MergeEnv overrides config fields from SCHEMAKICK_* environment variables.
// Malformed booleans and durations are ignored.
func MergeEnv(cfg *Config) {
	envString(&cfg.DatabaseType, "DATABASE_TYPE")
	envString(&cfg.DatabaseURL, "DATABASE_URL")
	envString(&cfg.AdminDatabaseURL, "ADMIN_DATABASE_URL")
	envString(&cfg.SQLFilesDirectory, "SQL_FILES_DIRECTORY")
	envString(&cfg.RepositoryPath, "REPOSITORY_PATH")
	envString(&cfg.Version, "VERSION")
	envString(&cfg.VersionFile, "VERSION_FILE")
	envString(&cfg.EnvironmentName, "ENVIRONMENT_NAME")
	envString(&cfg.OutputPath, "OUTPUT_PATH")
	envString(&cfg.HashAlgorithm, "HASH_ALGORITHM")
	envString(&cfg.LogLevel, "LOG_LEVEL")
	envString(&cfg.LogFormat, "LOG_FORMAT")

	envBool(&cfg.DryRun, "DRY_RUN")
	envBool(&cfg.WithTransaction, "WITH_TRANSACTION")
	envBool(&cfg.Silent, "SILENT")
	envBool(&cfg.WarnOnOneTimeScriptChanges, "WARN_ON_ONE_TIME_SCRIPT_CHANGES")

	if v := os.Getenv(envPrefix + "RECOVERY_MODE"); v != "" {
		if mode, err := ParseRecoveryMode(v); err == nil {
			cfg.RecoveryMode = mode
		}
	}

	if v := os.Getenv(envPrefix + "LOCK_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.LockTimeout = d
		}
	}

	if v := os.Getenv(envPrefix + "STATEMENT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.StatementTimeout = d
		}
	}
}

func envString(dst *string, name string) {
	if v := os.Getenv(envPrefix + name); v != "" {
		*dst = v
	}
}

func envBool(dst *bool, name string) {
	if v := os.Getenv(envPrefix + name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
