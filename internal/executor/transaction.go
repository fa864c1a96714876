package executor

import (
	"context"
	"errors"
	"fmt"
)

// outsideTransaction runs fn on a non-transactional default connection.
// When the run is transactional the open transaction is committed by
// closing the connection, and a fresh transaction is started afterwards.
func (m *Migrator) outsideTransaction(ctx context.Context, fn func() error) error {
	if !m.inTransaction {
		return fn()
	}

	if err := m.reopen(ctx, false); err != nil {
		return err
	}

	fnErr := fn()

	if err := m.reopen(ctx, true); err != nil {
		return errors.Join(fnErr, err)
	}

	return fnErr
}

func (m *Migrator) reopen(ctx context.Context, withTransaction bool) error {
	if err := m.db.CloseConnection(ctx); err != nil {
		return fmt.Errorf("closing connection: %w", err)
	}

	if err := m.db.OpenConnection(ctx, withTransaction); err != nil {
		return fmt.Errorf("reopening connection: %w", err)
	}

	return nil
}

// rollback aborts the open transaction. Failures are logged because the
// caller is already returning the error that triggered it.
func (m *Migrator) rollback(ctx context.Context) {
	if err := m.db.Rollback(ctx); err != nil {
		m.log.WithError(err).Warn("rollback failed")
	}
}

// closeAfterFailure closes the default connection after a fatal script
// error.
func (m *Migrator) closeAfterFailure(ctx context.Context) {
	if err := m.db.CloseConnection(ctx); err != nil {
		m.log.WithError(err).Warn("closing connection after failure")
	}
}
