package models

import "errors"

// Error taxonomy for the engine boundary. Transient dispatch and
// context errors never escape to callers; these are the ones that do.
var (
	// ErrInvalidInput is a caller error (oversized content, unknown
	// type). Never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound is returned for status or usage queries against an
	// unknown thought ID.
	ErrNotFound = errors.New("thought not found")

	// ErrStorageFailure marks a durable-write failure. The responsible
	// component must not advance a thought's state past a write that
	// did not commit.
	ErrStorageFailure = errors.New("storage failure")
)
