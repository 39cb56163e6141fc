// Package vererr defines the error taxonomy shared by the version graph,
// tag engine and merge engine. All four classes are sentinels meant to be
// wrapped with %w and tested with errors.Is.
package vererr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a bad input combination; raised before any
	// storage mutation.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks an unknown component, version or snap.
	ErrNotFound = errors.New("not found")

	// ErrIntegrity marks a graph invariant violation (parent cycle,
	// dangling reference). Never auto-repaired.
	ErrIntegrity = errors.New("integrity violation")

	// ErrNoPendingMerge marks an abort or resolve with no merge in flight.
	ErrNoPendingMerge = errors.New("no pending merge")
)

// Validationf wraps ErrValidation with a formatted detail message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf wraps ErrNotFound with a formatted detail message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Integrityf wraps ErrIntegrity with a formatted detail message.
func Integrityf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIntegrity, fmt.Sprintf(format, args...))
}
