package graph

import "errors"

// Sentinel errors for the graph store. Callers match with errors.Is; every
// failing write rejects the operation before any state change.
var (
	// ErrValidation covers malformed enum values, non-monotonic cycles and
	// duplicate ids. A cycle conflict between two near-simultaneous writers
	// surfaces as ErrValidation: the losing writer re-reads the current
	// maximum cycle and retries with a corrected value.
	ErrValidation = errors.New("validation failed")

	// ErrDanglingReference is returned when an edge endpoint does not
	// resolve to a node present in the store.
	ErrDanglingReference = errors.New("dangling node reference")

	// ErrNotFound is returned by lookups that miss. Read-only, no state
	// effect.
	ErrNotFound = errors.New("not found")

	// ErrStoreClosed is returned by every operation after Close.
	ErrStoreClosed = errors.New("store closed")

	// ErrMalformed is returned when a persisted document cannot be decoded
	// or fails invariant validation during load. Loads are atomic: a
	// malformed document leaves the target store untouched.
	ErrMalformed = errors.New("malformed document")
)
