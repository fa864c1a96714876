//go:build integration

package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	postgresImage = "postgres:16-alpine"
	testUser      = "migrate"
	testPassword  = "migrate"
)

// Server is a disposable PostgreSQL instance.
type Server struct {
	host string
	port string
}

// DSN returns a connection string for database name on the server. The
// database does not have to exist yet.
func (s Server) DSN(name string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", testUser, testPassword, s.host, s.port, name)
}

// Query runs a single-value query against database name.
func (s Server) Query(t *testing.T, name, sql string, dst any) {
	t.Helper()

	ctx := context.Background()

	conn, err := pgx.Connect(ctx, s.DSN(name))
	require.NoError(t, err)

	defer conn.Close(ctx) //nolint:errcheck // test cleanup

	require.NoError(t, conn.QueryRow(ctx, sql).Scan(dst))
}

// SetupPostgres starts a PostgreSQL 16 container. The container is
// terminated when the test completes.
func SetupPostgres(t *testing.T) Server {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "postgres",
			"POSTGRES_USER":     testUser,
			"POSTGRES_PASSWORD": testPassword,
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()))
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	return Server{host: host, port: port.Port()}
}
