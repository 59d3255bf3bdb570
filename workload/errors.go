/*
errors.go - Error types for the workload engine

ERROR CATEGORIES:
  1. Validation errors - malformed dates, end before start, missing fields.
     Rejected before any computation; nothing is written.
  2. Lookup errors - referenced manager/resource/project missing, or outside
     the caller's company (reported as missing, never as forbidden).
  3. Permission errors - the actor's role does not allow the operation.
  4. Conflict errors - duplicate email, manager still owning work.

Overload is NOT an error: admission returns a Decision carrying a Rejection.
Zero team capacity is NOT an error either: the charge is simply 0.

SEE ALSO:
  - admission.go: Decision / Rejection
  - api/handlers.go: HTTP status mapping
*/
package workload

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the parent of every input validation failure.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidDate is returned when a date is not YYYY-MM-DD.
	ErrInvalidDate = fmt.Errorf("%w: invalid date", ErrValidation)

	// ErrInvalidDates is returned when a project ends before it starts.
	ErrInvalidDates = fmt.Errorf("%w: end date must not be before start date", ErrValidation)

	ErrManagerNotFound  = errors.New("manager not found")
	ErrResourceNotFound = errors.New("resource not found")
	ErrProjectNotFound  = errors.New("project not found")
	ErrUserNotFound     = errors.New("user not found")

	// ErrForbidden is returned when the actor's role does not allow an action.
	ErrForbidden = errors.New("permission denied")

	// ErrDuplicateEmail is returned when an email is already registered.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrDuplicateCompany is returned when a company name is already taken.
	ErrDuplicateCompany = errors.New("company already registered")

	// ErrManagerHasDependents is returned when deleting a manager that still
	// owns resources or projects.
	ErrManagerHasDependents = errors.New("manager still owns resources or projects")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// FieldError names the offending input field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error { return ErrValidation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrManagerNotFound) ||
		errors.Is(err, ErrResourceNotFound) ||
		errors.Is(err, ErrProjectNotFound) ||
		errors.Is(err, ErrUserNotFound)
}

func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsConflict returns true if the write clashes with existing state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateEmail) ||
		errors.Is(err, ErrDuplicateCompany) ||
		errors.Is(err, ErrManagerHasDependents)
}
