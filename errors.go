package main

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the estimation and forecasting entry points.
// Callers branch with errors.Is; handlers map them to HTTP status codes.
var (
	// ErrInvalidInput marks malformed caller arguments: unsorted or duplicate
	// dates, non-positive weights, out-of-range confidence levels, and so on.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInsufficientData marks a history too short for any forecasting model.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrVersionConflict is returned by the store when a compare-and-swap
	// estimator commit lost a race with a concurrent writer.
	ErrVersionConflict = errors.New("estimator state version conflict")
)

// invalidInputf wraps ErrInvalidInput with a precise description of what was
// wrong, so errors.Is(err, ErrInvalidInput) works while the message stays useful.
func invalidInputf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
