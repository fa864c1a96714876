package hash

import "errors"

// ErrUnknownAlgorithm indicates a hash_algorithm with no implementation.
var ErrUnknownAlgorithm = errors.New("unknown hash algorithm")
