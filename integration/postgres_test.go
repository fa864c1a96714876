//go:build integration

package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqasim81/schemakick/internal/config"
	"github.com/aqasim81/schemakick/internal/database"
	"github.com/aqasim81/schemakick/internal/database/postgres"
	"github.com/aqasim81/schemakick/internal/tracker"
)

func TestPostgres_databaseLifecycle(t *testing.T) {
	t.Parallel()

	srv := SetupPostgres(t)
	ctx := context.Background()

	cfg := config.New()
	cfg.DatabaseURL = srv.DSN("shop")

	db := postgres.New()
	require.NoError(t, db.InitializeConnections(ctx, cfg))
	assert.Equal(t, "shop", db.DatabaseName())

	created, err := db.CreateDatabaseIfItDoesntExist(ctx, "")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = db.CreateDatabaseIfItDoesntExist(ctx, "")
	require.NoError(t, err)
	assert.False(t, created, "second call finds the database")

	require.NoError(t, db.SetRecoveryMode(ctx, true))

	require.NoError(t, db.OpenConnection(ctx, false))
	require.NoError(t, db.RunDatabaseSpecificTasks(ctx))
	require.NoError(t, db.CreateOrUpdateSupportTables(ctx))
	require.NoError(t, db.CreateOrUpdateSupportTables(ctx), "support tables are idempotent")

	has, err := db.HasSupportTables(ctx)
	require.NoError(t, err)
	assert.True(t, has)

	id, err := db.InsertVersion(ctx, "repo", "7")
	require.NoError(t, err)

	v, err := db.GetVersion(ctx, "repo")
	require.NoError(t, err)
	assert.Equal(t, "7", v)

	require.NoError(t, db.InsertScriptRun(ctx, tracker.ScriptRun{
		VersionID: id, ScriptName: "0001_a.sql", TextOfScript: "SELECT 1", TextHash: "h1", OneTimeScript: true,
	}))

	ran, err := db.HasRunScriptAlready(ctx, "0001_a.sql")
	require.NoError(t, err)
	assert.True(t, ran)

	hash, err := db.GetCurrentScriptHash(ctx, "0001_a.sql")
	require.NoError(t, err)
	assert.Equal(t, "h1", hash)

	require.NoError(t, db.CloseConnection(ctx))
	require.NoError(t, db.DeleteDatabaseIfItExists(ctx))

	var exists bool
	srv.Query(t, "postgres", "SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = 'shop')", &exists)
	assert.False(t, exists)
}

func TestPostgres_transactionRollback(t *testing.T) {
	t.Parallel()

	srv := SetupPostgres(t)
	ctx := context.Background()

	cfg := config.New()
	cfg.DatabaseURL = srv.DSN("postgres")

	db := postgres.New()
	require.NoError(t, db.InitializeConnections(ctx, cfg))
	require.NoError(t, db.OpenConnection(ctx, true))

	require.NoError(t, db.RunSQL(ctx, "CREATE TABLE rolled_back (id int)", database.Default))
	require.ErrorIs(t,
		db.RunSQL(ctx, "CREATE INDEX CONCURRENTLY idx ON rolled_back (id)", database.Default),
		postgres.ErrConcurrentIndexInTransaction)
	require.NoError(t, db.Rollback(ctx))
	require.NoError(t, db.Close(ctx))

	var n int
	srv.Query(t, "postgres", "SELECT COUNT(*) FROM pg_tables WHERE tablename = 'rolled_back'", &n)
	assert.Zero(t, n)
}

func TestPostgres_badURL_returnsError(t *testing.T) {
	t.Parallel()

	cfg := config.New()
	cfg.DatabaseURL = "postgres://localhost:1/"

	err := postgres.New().InitializeConnections(context.Background(), cfg)
	require.ErrorIs(t, err, database.ErrInvalidDatabaseURL)
}
