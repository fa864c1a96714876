package sqlite_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqasim81/schemakick/internal/config"
	"github.com/aqasim81/schemakick/internal/database"
	"github.com/aqasim81/schemakick/internal/database/sqlite"
	"github.com/aqasim81/schemakick/internal/tracker"
)

func newTarget(t *testing.T, mutate func(cfg *config.Config)) (*sqlite.Database, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "data", "shop.db")

	cfg := config.New()
	cfg.DatabaseType = config.DatabaseTypeSQLite
	cfg.DatabaseURL = "sqlite://" + path

	if mutate != nil {
		mutate(cfg)
	}

	d := sqlite.New()
	require.NoError(t, d.InitializeConnections(context.Background(), cfg))

	t.Cleanup(func() { _ = d.Close(context.Background()) })

	return d, path
}

func TestInitializeConnections(t *testing.T) {
	t.Parallel()

	d, _ := newTarget(t, nil)

	assert.Equal(t, "shop", d.DatabaseName())
	assert.Equal(t, "localhost", d.ServerName())
	assert.Equal(t, "schemakick_version", d.Tables().Version)
	assert.True(t, d.SupportsDDLTransactions())
	assert.NotEmpty(t, d.StatementSeparatorPattern())

	err := sqlite.New().InitializeConnections(context.Background(), &config.Config{DatabaseURL: "sqlite://"})
	require.ErrorIs(t, err, database.ErrInvalidDatabaseURL)
}

func TestCreateDatabaseIfItDoesntExist(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d, path := newTarget(t, nil)

	created, err := d.CreateDatabaseIfItDoesntExist(ctx, "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.FileExists(t, path)

	created, err = d.CreateDatabaseIfItDoesntExist(ctx, "")
	require.NoError(t, err)
	assert.False(t, created, "second call finds the file")
}

func TestCreateDatabaseIfItDoesntExist_customScript(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d, _ := newTarget(t, nil)

	created, err := d.CreateDatabaseIfItDoesntExist(ctx, "CREATE TABLE seeded (id INTEGER)")
	require.NoError(t, err)
	require.True(t, created)

	require.NoError(t, d.OpenConnection(ctx, false))
	require.NoError(t, d.RunSQL(ctx, "INSERT INTO seeded VALUES (1)", database.Default))
	require.NoError(t, d.CloseConnection(ctx))
}

func TestTransaction_commitOnCloseRollbackOnDemand(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d, _ := newTarget(t, nil)

	_, err := d.CreateDatabaseIfItDoesntExist(ctx, "")
	require.NoError(t, err)

	require.NoError(t, d.OpenConnection(ctx, true))
	require.NoError(t, d.RunSQL(ctx, "CREATE TABLE kept (id INTEGER)", database.Default))
	require.NoError(t, d.CloseConnection(ctx))

	require.NoError(t, d.OpenConnection(ctx, true))
	require.NoError(t, d.RunSQL(ctx, "CREATE TABLE discarded (id INTEGER)", database.Admin))
	require.NoError(t, d.Rollback(ctx))
	require.NoError(t, d.CloseConnection(ctx))

	require.NoError(t, d.OpenConnection(ctx, false))
	defer d.CloseConnection(ctx) //nolint:errcheck // test cleanup

	require.NoError(t, d.RunSQL(ctx, "SELECT * FROM kept", database.Default))
	require.Error(t, d.RunSQL(ctx, "SELECT * FROM discarded", database.Default))
}

func TestInMemory_survivesReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	cfg := config.New()
	cfg.DatabaseType = config.DatabaseTypeSQLite
	cfg.DatabaseURL = ":memory:"

	d := sqlite.New()
	require.NoError(t, d.InitializeConnections(ctx, cfg))

	require.NoError(t, d.OpenConnection(ctx, false))
	require.NoError(t, d.CreateOrUpdateSupportTables(ctx))
	require.NoError(t, d.CloseConnection(ctx))

	require.NoError(t, d.OpenConnection(ctx, true))
	has, err := d.HasSupportTables(ctx)
	require.NoError(t, err)
	assert.True(t, has, "audit tables outlive the reopened connection")

	_, err = d.InsertVersion(ctx, "repo", "1")
	require.NoError(t, err)
	require.NoError(t, d.CloseConnection(ctx))

	require.NoError(t, d.OpenConnection(ctx, false))
	v, err := d.GetVersion(ctx, "repo")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	require.NoError(t, d.Close(ctx))
	require.NoError(t, d.OpenConnection(ctx, false))
	has, err = d.HasSupportTables(ctx)
	require.NoError(t, err)
	assert.False(t, has, "Close releases the in-memory database")
	require.NoError(t, d.Close(ctx))
}

func TestRunSQL_closedConnection(t *testing.T) {
	t.Parallel()

	d, _ := newTarget(t, nil)

	err := d.RunSQL(context.Background(), "SELECT 1", database.Default)

	require.ErrorIs(t, err, database.ErrConnectionClosed)
}

func TestSupportTablesAndAudit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d, _ := newTarget(t, nil)

	_, err := d.CreateDatabaseIfItDoesntExist(ctx, "")
	require.NoError(t, err)
	require.NoError(t, d.OpenConnection(ctx, false))

	has, err := d.HasSupportTables(ctx)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, d.RunDatabaseSpecificTasks(ctx))
	require.NoError(t, d.CreateOrUpdateSupportTables(ctx))

	has, err = d.HasSupportTables(ctx)
	require.NoError(t, err)
	assert.True(t, has)

	id, err := d.InsertVersion(ctx, "repo", "3")
	require.NoError(t, err)
	require.NoError(t, d.InsertScriptRun(ctx, tracker.ScriptRun{VersionID: id, ScriptName: "a.sql", TextHash: "h"}))

	v, err := d.GetVersion(ctx, "repo")
	require.NoError(t, err)
	assert.Equal(t, "3", v)

	ran, err := d.HasRunScriptAlready(ctx, "a.sql")
	require.NoError(t, err)
	assert.True(t, ran)

	h, err := d.GetCurrentScriptHash(ctx, "a.sql")
	require.NoError(t, err)
	assert.Equal(t, "h", h)

	runs, err := d.ListScriptsRun(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestDryRun_missingFileIsNotCreated(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d, path := newTarget(t, func(cfg *config.Config) { cfg.DryRun = true })

	require.NoError(t, d.OpenConnection(ctx, true))

	has, err := d.HasSupportTables(ctx)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, d.CloseConnection(ctx))
	assert.NoFileExists(t, path)
}

func TestDeleteDatabaseIfItExists(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d, path := newTarget(t, nil)

	_, err := d.CreateDatabaseIfItDoesntExist(ctx, "")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path+"-wal", nil, 0o644))

	require.NoError(t, d.DeleteDatabaseIfItExists(ctx))
	assert.NoFileExists(t, path)
	assert.NoFileExists(t, path+"-wal")

	require.NoError(t, d.DeleteDatabaseIfItExists(ctx), "deleting twice is fine")
	assert.Contains(t, d.DeleteDatabaseScript(), path)
}

func TestBackupAndRestore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d, _ := newTarget(t, nil)
	backups := t.TempDir()

	_, err := d.CreateDatabaseIfItDoesntExist(ctx, "CREATE TABLE t (id INTEGER); INSERT INTO t VALUES (7);")
	require.NoError(t, err)

	require.NoError(t, d.BackupDatabase(ctx, backups))

	entries, err := os.ReadDir(backups)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, d.DeleteDatabaseIfItExists(ctx))
	require.NoError(t, d.RestoreDatabase(ctx, filepath.Join(backups, entries[0].Name()), "ignored"))

	require.NoError(t, d.OpenConnection(ctx, false))
	defer d.CloseConnection(ctx) //nolint:errcheck // test cleanup

	require.NoError(t, d.RunSQL(ctx, "SELECT id FROM t", database.Default))
}

func TestRestoreDatabase_readsSourceFromFs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	src, _ := newTarget(t, nil)
	backups := t.TempDir()

	_, err := src.CreateDatabaseIfItDoesntExist(ctx, "CREATE TABLE t (id INTEGER); INSERT INTO t VALUES (9);")
	require.NoError(t, err)
	require.NoError(t, src.BackupDatabase(ctx, backups))

	entries, err := os.ReadDir(backups)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	raw, err := os.ReadFile(filepath.Join(backups, entries[0].Name()))
	require.NoError(t, err)

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/backups/shop.bak", raw, 0o644))

	path := filepath.Join(t.TempDir(), "restored.db")
	cfg := config.New()
	cfg.DatabaseType = config.DatabaseTypeSQLite
	cfg.DatabaseURL = path

	d := sqlite.New(sqlite.WithFs(fsys))
	require.NoError(t, d.InitializeConnections(ctx, cfg))
	t.Cleanup(func() { _ = d.Close(context.Background()) })

	require.Error(t, d.RestoreDatabase(ctx, filepath.Join(backups, entries[0].Name()), ""),
		"host paths are not visible through the configured file system")
	require.NoError(t, d.RestoreDatabase(ctx, "/backups/shop.bak", ""))
	assert.FileExists(t, path)

	require.NoError(t, d.OpenConnection(ctx, false))
	require.NoError(t, d.RunSQL(ctx, "SELECT id FROM t", database.Default))
	require.NoError(t, d.CloseConnection(ctx))
}

func TestSetRecoveryMode(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d, _ := newTarget(t, nil)

	_, err := d.CreateDatabaseIfItDoesntExist(ctx, "")
	require.NoError(t, err)

	require.NoError(t, d.SetRecoveryMode(ctx, false))
	require.NoError(t, d.SetRecoveryMode(ctx, true))
	assert.Equal(t, "PRAGMA journal_mode = WAL", d.RecoveryModeScript(false))
}
