package postgres

import "errors"

// ErrConcurrentIndexInTransaction indicates a CREATE INDEX CONCURRENTLY was
// sent while the default connection holds a transaction. Move such scripts
// to a folder that runs outside the transaction.
var ErrConcurrentIndexInTransaction = errors.New("CREATE INDEX CONCURRENTLY cannot run inside a transaction")
