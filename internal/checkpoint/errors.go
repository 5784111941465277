package checkpoint

import "errors"

var (
	// ErrNotFound is returned when a referenced checkpoint does not exist.
	ErrNotFound = errors.New("checkpoint: not found")

	// ErrConflict is returned when an append collides with an existing
	// non-identical record under the same (thread, namespace, parent, step).
	ErrConflict = errors.New("checkpoint: conflicting append")
)
