package tracker

import "errors"

// ErrTableCreation indicates the audit tables could not be created.
var ErrTableCreation = errors.New("creating audit tables")
