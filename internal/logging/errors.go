package logging

import "errors"

// ErrUnknownFormat indicates a log_format other than text or json.
var ErrUnknownFormat = errors.New("unknown log format")
