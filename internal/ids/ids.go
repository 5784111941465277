package ids

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewULID returns a lexically sortable id for checkpoints, messages and jobs.
func NewULID() string {
	return ulid.Make().String()
}

// NewThreadID returns a uuid4 thread identifier.
func NewThreadID() string {
	return uuid.NewString()
}
