package registry

import "errors"

// Sentinel errors surfaced by the Registry. Callers at the HTTP boundary
// map these to the status table in spec.md §7; internal callers treat a
// NotFound as a null return.
var (
	ErrNotFound       = errors.New("registry: not found")
	ErrConflict       = errors.New("registry: conflict")
	ErrInvalidChannel = errors.New("registry: channel not in admin whitelist")
	ErrTerminalState  = errors.New("registry: request already in a terminal state")
)
