package runner_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqasim81/schemakick/internal/config"
	"github.com/aqasim81/schemakick/internal/database"
	"github.com/aqasim81/schemakick/internal/database/sqlite"
	"github.com/aqasim81/schemakick/internal/executor"
	"github.com/aqasim81/schemakick/internal/hash"
	"github.com/aqasim81/schemakick/internal/migration"
	"github.com/aqasim81/schemakick/internal/runner"
)

var runStamp = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) //nolint:gochecknoglobals // fixed clock

func scriptTree(t *testing.T) afero.Fs {
	t.Helper()

	fsys := afero.NewMemMapFs()

	files := map[string]string{
		"/db/beforeMigration/before.sql":         "CREATE TABLE IF NOT EXISTS run_log (stage TEXT);",
		"/db/alterDatabase/alter.sql":            "PRAGMA user_version = 5;",
		"/db/runAfterCreateDatabase/created.sql": "CREATE TABLE created_marker (id INTEGER);",
		"/db/up/0001_create.sql":                 "CREATE TABLE {{Prefix}}_items (id INTEGER PRIMARY KEY, name TEXT);",
		"/db/up/0002_seed.sql":                   "INSERT INTO {{Prefix}}_items (name) VALUES ('a');\nINSERT INTO {{Prefix}}_items (name) VALUES ('b');",
		"/db/views/v_items.sql":                  "DROP VIEW IF EXISTS v_items;\nCREATE VIEW v_items AS SELECT name FROM {{Prefix}}_items;",
		"/db/permissions/grants.sql":             "INSERT INTO run_log (stage) VALUES ('permissions');",
		"/db/afterMigration/after.sql":           "INSERT INTO run_log (stage) VALUES ('after');",
	}

	for path, content := range files {
		require.NoError(t, afero.WriteFile(fsys, path, []byte(content), 0o644))
	}

	return fsys
}

type harness struct {
	fs   afero.Fs
	path string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	return &harness{fs: scriptTree(t), path: filepath.Join(t.TempDir(), "shop.db")}
}

func (h *harness) config(mutate func(cfg *config.Config)) *config.Config {
	cfg := config.New()
	cfg.DatabaseType = config.DatabaseTypeSQLite
	cfg.DatabaseURL = h.path
	cfg.SQLFilesDirectory = "/db"
	cfg.OutputPath = "/out"
	cfg.RepositoryPath = "repo"
	cfg.Silent = true
	cfg.Tokens["Prefix"] = "shop"

	if mutate != nil {
		mutate(cfg)
	}

	return cfg
}

func (h *harness) run(t *testing.T, db database.Database, cfg *config.Config, opts ...runner.Option) (runner.Result, *test.Hook, error) {
	t.Helper()

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	if db == nil {
		db = sqlite.New(sqlite.WithLogger(logger))
	}

	m := executor.New(db, hash.MD5{}, cfg, executor.WithLogger(logger))
	folders := migration.NewKnownFolders(cfg, runStamp)

	opts = append([]runner.Option{runner.WithFs(h.fs), runner.WithLogger(logger)}, opts...)
	res, err := runner.New(cfg, m, folders, opts...).Run(context.Background())

	return res, hook, err
}

func logged(hook *test.Hook, substr string) bool {
	for _, e := range hook.AllEntries() {
		if strings.Contains(e.Message, substr) {
			return true
		}
	}

	return false
}

func (h *harness) count(t *testing.T, query string) int {
	t.Helper()

	db, err := sql.Open("sqlite", h.path)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow(query).Scan(&n))

	return n
}

func TestRun_freshDatabase(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	res, hook, err := h.run(t, nil, h.config(nil))
	require.NoError(t, err)

	assert.Equal(t, runner.OutcomeMigrated, res.Outcome)
	assert.Equal(t, "2", res.Version)
	assert.NotZero(t, res.VersionID)
	assert.Equal(t, filepath.Join("/out", "20260501_120000"), res.ChangeDropPath)
	assert.Equal(t, []string{
		"before.sql",
		"alter.sql",
		"created.sql",
		"0001_create.sql",
		"0002_seed.sql",
		"v_items.sql",
		"grants.sql",
		"after.sql",
	}, res.ScriptsRan)

	assert.Equal(t, 2, h.count(t, "SELECT COUNT(*) FROM v_items"))
	assert.Equal(t, 1, h.count(t, "SELECT COUNT(*) FROM sqlite_master WHERE name = 'created_marker'"))
	assert.Equal(t, 5, h.count(t, "PRAGMA user_version"))
	assert.Equal(t, 8, h.count(t, "SELECT COUNT(*) FROM schemakick_scripts_run"))

	assert.True(t, logged(hook, "has kicked your database (shop)! You are now at version 2."))
	assert.True(t, logged(hook, "Migrating shop from version 0 to 2."))

	for _, p := range []string{
		"/out/20260501_120000/itemsRan/up/0001_create.sql",
		"/out/20260501_120000/itemsRan/views/v_items.sql",
		"/out/20260501_120000/before/create_database.sql",
		"/out/20260501_120000/during/support_tables.sql",
	} {
		ok, err := afero.Exists(h.fs, filepath.FromSlash(p))
		require.NoError(t, err)
		assert.True(t, ok, p)
	}

	copied, err := afero.ReadFile(h.fs, filepath.FromSlash("/out/20260501_120000/itemsRan/up/0001_create.sql"))
	require.NoError(t, err)
	assert.Contains(t, string(copied), "{{Prefix}}", "the change drop keeps the source text")
}

func TestRun_secondRunIsIdempotent(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	_, _, err := h.run(t, nil, h.config(nil))
	require.NoError(t, err)

	res, hook, err := h.run(t, nil, h.config(nil))
	require.NoError(t, err)

	assert.Equal(t, []string{"before.sql", "grants.sql", "after.sql"}, res.ScriptsRan)
	assert.True(t, logged(hook, "Skipped 0001_create.sql - One time script."))
	assert.True(t, logged(hook, "Skipped v_items.sql - No changes were found to run."))
	assert.Equal(t, 2, h.count(t, "SELECT COUNT(*) FROM shop_items"))
	assert.Equal(t, 2, h.count(t, "SELECT COUNT(*) FROM schemakick_version"))
}

func TestRun_transactional(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	res, _, err := h.run(t, nil, h.config(func(cfg *config.Config) { cfg.WithTransaction = true }))
	require.NoError(t, err)
	assert.Equal(t, runner.OutcomeMigrated, res.Outcome)
	assert.Equal(t, 2, h.count(t, "SELECT COUNT(*) FROM shop_items"))
	assert.Equal(t, 2, h.count(t, "SELECT COUNT(*) FROM run_log"))
}

func TestRun_failingScriptRollsBack(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.NoError(t, afero.WriteFile(h.fs, "/db/up/0003_broken.sql",
		[]byte("CREATE TABLE half_done (id INTEGER);\nINSERT INTO nowhere VALUES (1);"), 0o644))

	res, hook, err := h.run(t, nil, h.config(func(cfg *config.Config) { cfg.WithTransaction = true }))
	require.ErrorIs(t, err, executor.ErrScriptExecution)
	assert.Equal(t, runner.OutcomeFailed, res.Outcome)

	assert.True(t, logged(hook, "schemakick encountered an error. You were running in a transaction though"))
	assert.Equal(t, 0, h.count(t, "SELECT COUNT(*) FROM sqlite_master WHERE name IN ('half_done', 'shop_items')"))
	assert.Equal(t, 1, h.count(t, "SELECT COUNT(*) FROM schemakick_scripts_run_errors WHERE script_name = '0003_broken.sql'"))
}

func TestRun_dryRunOnFreshTargetAbortsCleanly(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	res, hook, err := h.run(t, nil, h.config(func(cfg *config.Config) { cfg.DryRun = true }))
	require.NoError(t, err)
	assert.Equal(t, runner.OutcomeAbortedMissingSupportTables, res.Outcome)
	assert.Empty(t, res.ScriptsRan)

	_, statErr := os.Stat(h.path)
	assert.True(t, os.IsNotExist(statErr))
	assert.True(t, logged(hook, "This is a dry run, nothing will be done to the database."))
	assert.True(t, logged(hook, "-DryRun-Would have created shop database on localhost server"))
}

func TestRun_dryRunOnExistingTarget(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	_, _, err := h.run(t, nil, h.config(nil))
	require.NoError(t, err)

	require.NoError(t, afero.WriteFile(h.fs, "/db/up/0003_more.sql", []byte("CREATE TABLE more (id INTEGER);"), 0o644))

	res, hook, err := h.run(t, nil, h.config(func(cfg *config.Config) {
		cfg.DryRun = true
		cfg.WithTransaction = true
	}))
	require.NoError(t, err)

	assert.Equal(t, runner.OutcomeMigrated, res.Outcome)
	assert.Equal(t, "3", res.Version)
	assert.Contains(t, res.ScriptsRan, "0003_more.sql")
	assert.True(t, logged(hook, "-DryRun- Would have began a transaction on database shop"))
	assert.True(t, logged(hook, "-DryRun-Would have committed the transaction on database shop"))
	assert.True(t, logged(hook, "would have kicked your database (shop)! You would be at version 3."))

	assert.Equal(t, 0, h.count(t, "SELECT COUNT(*) FROM sqlite_master WHERE name = 'more'"))
	assert.Equal(t, 1, h.count(t, "SELECT COUNT(*) FROM schemakick_version"))
}

func TestRun_drop(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	_, _, err := h.run(t, nil, h.config(nil))
	require.NoError(t, err)

	res, hook, err := h.run(t, nil, h.config(func(cfg *config.Config) {
		cfg.Drop = true
		cfg.DryRun = true
	}))
	require.NoError(t, err)
	assert.Equal(t, runner.OutcomeDropped, res.Outcome)
	assert.True(t, logged(hook, "would have removed database (shop)"))

	_, statErr := os.Stat(h.path)
	require.NoError(t, statErr, "dry run keeps the database")

	res, hook, err = h.run(t, nil, h.config(func(cfg *config.Config) { cfg.Drop = true }))
	require.NoError(t, err)
	assert.Equal(t, runner.OutcomeDropped, res.Outcome)
	assert.True(t, logged(hook, "schemakick has removed database (shop)."))

	_, statErr = os.Stat(h.path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_disableOutput(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	_, _, err := h.run(t, nil, h.config(func(cfg *config.Config) { cfg.DisableOutput = true }))
	require.NoError(t, err)

	ok, err := afero.DirExists(h.fs, filepath.FromSlash("/out/20260501_120000/itemsRan"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRun_confirmHook(t *testing.T) {
	t.Parallel()

	t.Run("called when not silent", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t)

		var prompts []string
		confirm := func(_ context.Context, prompt string) error {
			prompts = append(prompts, prompt)
			return nil
		}

		_, _, err := h.run(t, nil, h.config(func(cfg *config.Config) { cfg.Silent = false }), runner.WithConfirm(confirm))
		require.NoError(t, err)
		assert.Len(t, prompts, 1)
	})

	t.Run("error aborts before touching the database", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t)
		confirm := func(context.Context, string) error { return errors.New("cancelled") }

		_, _, err := h.run(t, nil, h.config(func(cfg *config.Config) { cfg.Silent = false }), runner.WithConfirm(confirm))
		require.Error(t, err)

		_, statErr := os.Stat(h.path)
		assert.True(t, os.IsNotExist(statErr))
	})
}

// noDDLTransactions is a SQLite target pretending DDL cannot be
// transactional.
type noDDLTransactions struct {
	*sqlite.Database
}

func (noDDLTransactions) SupportsDDLTransactions() bool { return false }

func TestRun_transactionDowngrade(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	db := noDDLTransactions{sqlite.New()}

	res, hook, err := h.run(t, db, h.config(func(cfg *config.Config) { cfg.WithTransaction = true }))
	require.NoError(t, err)
	assert.Equal(t, runner.OutcomeMigrated, res.Outcome)
	assert.True(t, logged(hook, "You asked to run in a transaction, but this database type doesn't support DDL transactions."))
}

func TestRun_versionResolver(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.NoError(t, afero.WriteFile(h.fs, "/app/VERSION", []byte("4.2.0\n"), 0o644))

	res, _, err := h.run(t, nil, h.config(func(cfg *config.Config) { cfg.VersionFile = "/app/VERSION" }))
	require.NoError(t, err)
	assert.Equal(t, "4.2.0", res.Version)

	res, _, err = h.run(t, nil, h.config(func(cfg *config.Config) { cfg.Version = "9" }))
	require.NoError(t, err)
	assert.Equal(t, "9", res.Version)
}

func TestOutcomeString(t *testing.T) {
	t.Parallel()

	var zero runner.Outcome

	assert.Equal(t, runner.OutcomeFailed, zero)
	assert.Equal(t, "failed", runner.OutcomeFailed.String())
	assert.Equal(t, "migrated", runner.OutcomeMigrated.String())
	assert.Equal(t, "dropped", runner.OutcomeDropped.String())
	assert.Contains(t, runner.OutcomeAbortedMissingSupportTables.String(), "aborted")
}
