package models

import "errors"

// Structural error kinds. The generator, enumerator, and scorer are total
// functions; only configuration and the pipeline surface these to callers.
// Match with errors.Is; the wrapped text carries the detail.
var (
	// ErrInvalidQuery means the query normalized to an empty string.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrInvalidConfig means an option was out of range. Raised at
	// configuration time, never during a request.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrInvalidMode means the search mode is not local/remote/hybrid.
	ErrInvalidMode = errors.New("invalid mode")

	// ErrRemoteFetch marks a per-candidate mirror failure. Swallowed and
	// logged by the pipeline; never fatal to a search.
	ErrRemoteFetch = errors.New("remote fetch failed")

	// ErrDeadline is surfaced only when the pipeline deadline expires
	// before any result was scored.
	ErrDeadline = errors.New("deadline exceeded")
)
