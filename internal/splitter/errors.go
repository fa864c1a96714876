package splitter

import "errors"

// ErrNoSeparatorGroup indicates a pattern without a (?P<separator>...) group.
var ErrNoSeparatorGroup = errors.New("separator pattern has no separator group")
