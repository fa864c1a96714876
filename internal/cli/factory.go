package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/aqasim81/schemakick/internal/config"
	"github.com/aqasim81/schemakick/internal/database"
	"github.com/aqasim81/schemakick/internal/database/postgres"
	"github.com/aqasim81/schemakick/internal/database/sqlite"
	"github.com/aqasim81/schemakick/internal/logging"
)

// newDatabase builds the target for the configured database type. Restore
// sources are read from fsys.
func newDatabase(cfg *config.Config, log logrus.FieldLogger, fsys afero.Fs) (database.Database, error) {
	switch strings.ToLower(cfg.DatabaseType) {
	case config.DatabaseTypePostgres, "":
		return postgres.New(postgres.WithLogger(log), postgres.WithFs(fsys)), nil
	case config.DatabaseTypeSQLite:
		return sqlite.New(sqlite.WithLogger(log), sqlite.WithFs(fsys)), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownDatabaseType, cfg.DatabaseType)
	}
}

// newLogger builds the run logger. Silent runs only report warnings.
func newLogger(cfg *config.Config, out io.Writer) (logrus.FieldLogger, error) {
	level := cfg.LogLevel
	if cfg.Silent && level == config.DefaultLogLevel {
		level = "warn"
	}

	logger, err := logging.New(level, cfg.LogFormat, out)
	if err != nil {
		return nil, err
	}

	return logging.WithRunID(logger), nil
}
