package vmtree

import "errors"

// Sentinel error taxonomy. Internal helpers return these (or a bare -1/ok
// status) directly; public entry points wrap them with pkg/errors to
// attach operation context while keeping errors.Is(err, ErrNotFound)
// working through the Cause chain.
var (
	ErrIO                = errors.New("vmtree: io error")
	ErrOutOfSpace        = errors.New("vmtree: out of space")
	ErrOutOfMappingSpace = errors.New("vmtree: out of mapping space")
	ErrNotFound          = errors.New("vmtree: not found")
	ErrInvariant         = errors.New("vmtree: invariant violation")
)
