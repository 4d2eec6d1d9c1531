// Package apperr defines the error taxonomy shared by the seat lock manager,
// the booking protocol and the HTTP handlers. Handlers translate these values
// into status codes; services never return raw driver errors for conditions a
// caller can act on.
package apperr

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrValidation marks missing or malformed input. Fatal to the request.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks an absent or inactive show, movie or booking.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the actor does not own the resource.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict marks seat contention or an illegal state transition.
	ErrConflict = errors.New("conflict")
	// ErrRateLimited is returned once a caller exceeds its window budget.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrUnavailable marks a degraded dependency (ephemeral store, database).
	// Only load-bearing paths let it reach the caller.
	ErrUnavailable = errors.New("dependency unavailable")
)

// ValidationError carries per-field messages.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	parts := make([]string, 0, len(e.Fields))
	for f, m := range e.Fields {
		parts = append(parts, f+": "+m)
	}
	return e.Message + " (" + strings.Join(parts, "; ") + ")"
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError without field details.
func Invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NotFound wraps ErrNotFound with the name of the missing entity.
func NotFound(what string) error {
	return fmt.Errorf("%s %w", what, ErrNotFound)
}

// ConflictError reports seat contention. Seats always holds the precise
// conflicting subset; it may be empty only for state-transition conflicts
// such as settling an already settled payment.
type ConflictError struct {
	Reason string
	Seats  []string
}

func (e *ConflictError) Error() string {
	if len(e.Seats) == 0 {
		return e.Reason
	}
	return e.Reason + ": " + strings.Join(e.Seats, ",")
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// InvalidSeatsError is returned by the booking commit when one or more
// requested seats are not locked by the requesting user.
type InvalidSeatsError struct {
	Seats []string
}

func (e *InvalidSeatsError) Error() string {
	return "seats not locked by requester: " + strings.Join(e.Seats, ",")
}

func (e *InvalidSeatsError) Unwrap() error { return ErrConflict }

// RateLimitError tells the caller when to try again.
type RateLimitError struct {
	Action     string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Action, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// Unavailable wraps err as a dependency failure.
func Unavailable(dep string, err error) error {
	return fmt.Errorf("%s: %w: %v", dep, ErrUnavailable, err)
}
