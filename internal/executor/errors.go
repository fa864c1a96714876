package executor

import "errors"

// ErrOneTimeScriptChanged indicates a run-once script whose content no
// longer matches what was recorded when it ran.
var ErrOneTimeScriptChanged = errors.New("one time script changed")

// ErrScriptExecution indicates a statement of a script failed.
var ErrScriptExecution = errors.New("script execution failed")

// ErrSupportTablesMissing is returned in dry run when the audit tables do
// not exist yet, so nothing after versioning can be simulated. It ends a
// run cleanly and is never surfaced as a failure.
var ErrSupportTablesMissing = errors.New("audit tables do not exist yet")
