package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// execer is satisfied by *pgx.Conn, pgx.Tx and *pgxpool.Pool.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// setLockTimeout makes statements on the session fail fast when a lock
// cannot be acquired within timeout.
func setLockTimeout(ctx context.Context, e execer, timeout time.Duration) error {
	sql := fmt.Sprintf("SET lock_timeout = '%dms'", timeout.Milliseconds())

	if _, err := e.Exec(ctx, sql); err != nil {
		return fmt.Errorf("setting lock_timeout: %w", err)
	}

	return nil
}

// setStatementTimeout bounds the runtime of every statement on the session.
func setStatementTimeout(ctx context.Context, e execer, timeout time.Duration) error {
	sql := fmt.Sprintf("SET statement_timeout = '%dms'", timeout.Milliseconds())

	if _, err := e.Exec(ctx, sql); err != nil {
		return fmt.Errorf("setting statement_timeout: %w", err)
	}

	return nil
}

// applyTimeouts configures a freshly opened session. Zero leaves the server
// default in place.
func applyTimeouts(ctx context.Context, e execer, lock, statement time.Duration) error {
	if lock > 0 {
		if err := setLockTimeout(ctx, e, lock); err != nil {
			return err
		}
	}

	if statement > 0 {
		if err := setStatementTimeout(ctx, e, statement); err != nil {
			return err
		}
	}

	return nil
}
