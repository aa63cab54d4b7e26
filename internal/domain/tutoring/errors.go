// Package tutoring holds the snapshots and generation results exchanged with
// the homework backend, plus the domain errors shared by the tutoring core.
// This package has zero external dependencies.
package tutoring

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	ErrNotFound     = errors.New("entity not found")
	ErrValidation   = errors.New("validation error")
	ErrInvalidID    = errors.New("invalid ID")
	ErrInvalidInput = errors.New("invalid input")

	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
	ErrInvalidFormat      = errors.New("invalid format")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "homework", "feedback", "profile"
	Op      string // Operation that failed, e.g., "Generate", "Fetch"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

// Tutoring errors
var (
	ErrHomeworkNotFound   = NewDomainError("homework", "Find", ErrNotFound, "homework not found")
	ErrSubmissionNotFound = NewDomainError("submission", "Find", ErrNotFound, "no submission found for the homework title")
	ErrUserNotFound       = NewDomainError("user", "Find", ErrNotFound, "user not found")
	ErrNotAStudent        = NewDomainError("user", "CheckRole", ErrForbidden, "only students can talk to the AI teacher")
	ErrScoreOutOfRange    = NewDomainError("feedback", "Validate", ErrValidation, "score must be between 0 and 100")
)

// Backend errors
var (
	ErrBackendUnavailable     = NewDomainError("backend", "Request", ErrServiceUnavailable, "backend API is unavailable")
	ErrBackendRateLimited     = NewDomainError("backend", "Request", ErrRateLimited, "backend API rate limit exceeded")
	ErrBackendTimeout         = NewDomainError("backend", "Request", ErrTimeout, "backend API request timeout")
	ErrBackendInvalidResponse = NewDomainError("backend", "Parse", ErrInvalidFormat, "invalid response from backend API")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput)
}

// IsPermanent reports errors that retrying cannot fix.
func IsPermanent(err error) bool {
	return IsNotFound(err) || IsValidation(err) ||
		errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}
