package chat

import "errors"

var (
	// ErrNotFound is returned for a missing thread or message reference.
	ErrNotFound = errors.New("chat: not found")

	// ErrValidation is returned for malformed requests, before any state
	// mutation.
	ErrValidation = errors.New("chat: invalid request")

	// ErrGeneration wraps upstream generation failures. Callers see it only
	// through the stream's terminal error event; nothing is committed.
	ErrGeneration = errors.New("chat: generation failed")
)
