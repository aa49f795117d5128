package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation covers malformed input; the caller can correct and retry.
	ErrValidation = errors.New("validation error")
	// ErrTenantMismatch is returned when the caller's tenant context disagrees
	// with the record's tenant. Never downgraded or silently ignored.
	ErrTenantMismatch = errors.New("tenant mismatch")
	// ErrNotFound covers absent records, including wrong-tenant lookups.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition covers governance state machine violations.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrConcurrentModification is the optimistic-lock failure; the caller
	// should re-fetch and retry.
	ErrConcurrentModification = errors.New("concurrent modification")
	// ErrDetectionUnavailable means the conflict scan could not reach the
	// store. The fact itself is still persisted as proposed.
	ErrDetectionUnavailable = errors.New("conflict detection unavailable")
)

func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func TenantMismatchf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrTenantMismatch, fmt.Sprintf(format, args...))
}

func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func InvalidTransitionf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidTransition, fmt.Sprintf(format, args...))
}

func Is(err, target error) bool { return errors.Is(err, target) }
