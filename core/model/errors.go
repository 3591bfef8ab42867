package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the actor may not perform the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidState is returned when a sheet is not in a state allowing the operation.
	ErrInvalidState = errors.New("invalid state")
	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrNoActiveRate is returned when no rate covers a cost date.
	ErrNoActiveRate = errors.New("no active rate")
	// ErrRateOverlap is returned when a new rate shares days with an existing one.
	ErrRateOverlap = errors.New("rate overlaps an existing rate")
	// ErrConflict is returned on unique constraint violations.
	ErrConflict = errors.New("conflict")
)

// Invalidf wraps ErrValidation with a formatted message.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
