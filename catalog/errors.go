package catalog

import "errors"

var (
	// ErrNotFound indicates no catalog entry exists for the id.
	ErrNotFound = errors.New("catalog: entry not found")

	// ErrInvalidID indicates an empty or malformed entry id.
	ErrInvalidID = errors.New("catalog: invalid id")

	// ErrNilEntry indicates a nil entry was passed.
	ErrNilEntry = errors.New("catalog: nil entry")
)
