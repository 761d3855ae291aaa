package service

import "errors"

// Resolution-level ambiguity and no-match are not errors: they are
// encoded as AssignmentStatus values. Only the conditions below are
// raised as operation failures.
var (
	// ErrCrossTenant is returned when a caller addresses an entity owned
	// by another tenant. Rejected, never silently filtered.
	ErrCrossTenant = errors.New("cross-tenant access rejected")

	// ErrDataConflict marks totals inconsistent with the claimed parent
	// (e.g. negative counts after a correction). Surfaced for review,
	// never auto-resolved.
	ErrDataConflict = errors.New("data conflict")

	// ErrInvariantViolation is fatal for the record being processed but
	// must not corrupt any other record.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrTransientIO wraps persistence failures worth retrying with
	// backoff.
	ErrTransientIO = errors.New("transient persistence failure")
)
