package interfaces

import "errors"

// ErrCollaboratorUnavailable marks a failure of something outside the
// process: market data, the advisor model, news. Such failures abort at most
// the current cycle.
var ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
