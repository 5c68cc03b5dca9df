// Package common defines shared constants and sentinel errors used across
// the ingestion service layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors.
	ErrorUnauthorized = errors.New("unauthorized")

	// Validation errors for malformed client or worker input.
	ErrorValidation = errors.New("validation error")

	// Lifecycle errors.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrInvariantViolation     = errors.New("invariant violation")

	// ErrTransientConflict is a uniqueness race while claiming canonical
	// status. Safe to retry.
	ErrTransientConflict = errors.New("transient conflict")

	// ErrDuplicateTransition is returned when an outbox transition with the
	// same (process, status) pair is already recorded.
	ErrDuplicateTransition = errors.New("duplicate transition")

	// ErrDeliveryFailure wraps queue handoff errors. It never reaches clients.
	ErrDeliveryFailure = errors.New("delivery failure")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
)
