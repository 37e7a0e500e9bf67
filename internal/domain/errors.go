package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks requests rejected before any computation.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks lookups of entities that do not exist.
	ErrNotFound = errors.New("not found")

	// ErrScorerUnavailable is returned when detection or graph building is
	// requested before a scorer has been trained or data has been loaded.
	ErrScorerUnavailable = errors.New("scorer unavailable: train a model first")
)

// ValidationError enumerates every violation found in a request.
type ValidationError struct {
	Violations []string
}

// NewValidationError creates a ValidationError from one or more violations.
func NewValidationError(violations ...string) *ValidationError {
	return &ValidationError{Violations: violations}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(e.Violations, "; "))
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// MissingColumnsError reports the required columns absent from a transaction table.
func MissingColumnsError(missing []string) *ValidationError {
	return NewValidationError(fmt.Sprintf("missing required columns: [%s]", strings.Join(missing, ", ")))
}

// NotFoundError reports a missing entity by kind and id.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found", e.Entity, e.ID)
}

// Is lets errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
