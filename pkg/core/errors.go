package core

import "errors"

// Common errors.
var (
	// ErrConflict is returned when the supplied revision does not match the
	// current one, or when creating an id that is already live. Callers must
	// re-read the document and retry.
	ErrConflict = errors.New("document update conflict")

	// ErrNotFound is returned when no live document exists for an id.
	ErrNotFound = errors.New("document not found")

	// ErrCorruptRecord is returned when a log record fails its integrity check.
	ErrCorruptRecord = errors.New("corrupt log record")

	// ErrInvalidDocument is returned for malformed ids, bodies or revisions.
	ErrInvalidDocument = errors.New("invalid document")

	ErrReadOnly = errors.New("repository is in read-only mode")
	ErrClosed   = errors.New("repository is closed")
)
