package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aqasim81/schemakick/internal/database"
)

// adminMaxConns bounds the maintenance-database pool; admin work is
// strictly sequential.
const adminMaxConns = 2

// newPool creates a pgx connection pool for the given database URL and
// pings it to verify connectivity.
func newPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", database.ErrInvalidDatabaseURL, err)
	}

	poolCfg.MaxConns = adminMaxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", database.ErrConnectionFailed, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()

		return nil, fmt.Errorf("%w: %w", database.ErrConnectionFailed, err)
	}

	return pool, nil
}
