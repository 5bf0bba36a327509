// Package errs defines the error taxonomy shared across hypercron's components.
//
// Errors for the conditions named below wrap the matching sentinel so callers can
// branch with errors.Is without losing the underlying cause. Other failures (for
// example NewConfig's validation errors or driver errors from the store) carry no
// sentinel.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error without needing a type switch.
type Kind string

const (
	KindConfig         Kind = "CONFIG"
	KindNotInitialised Kind = "NOT_INITIALISED"
	KindStore          Kind = "STORE"
	KindHandler        Kind = "HANDLER"
	KindInternal       Kind = "INTERNAL"
)

var (
	// ErrInvalidCron is returned when the cron parser rejects a schedule string.
	ErrInvalidCron = errors.New("hypercron: invalid cron expression")
	// ErrTimeInPast is returned when a one-shot instant is not strictly in the future.
	ErrTimeInPast = errors.New("hypercron: specific time is not in the future")
	// ErrNotInitialised is returned when an operation runs before the store has been opened.
	ErrNotInitialised = errors.New("hypercron: store not initialised")
	// ErrNotFound is returned when a job identifier has no record in the store.
	ErrNotFound = errors.New("hypercron: job not found")
	// ErrInvalidConfig is returned for a malformed request: an empty identifier, an
	// unrecognised schedule input, or a lifecycle transition the state machine forbids.
	ErrInvalidConfig = errors.New("hypercron: invalid configuration")
)

// Error is a typed wrapper that attaches a Kind to an underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("hypercron[%s]: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("hypercron[%s] %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a typed error wrapping err with the given kind and operation name.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// ValidationError aggregates multiple option failures from a single call instead
// of stopping at the first one, so a caller sees every problem with a Config at
// once.
type ValidationError struct {
	Errors []error
}

func (v *ValidationError) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

func (v *ValidationError) HasError() bool {
	return len(v.Errors) > 0
}

func (v *ValidationError) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	return fmt.Sprintf("%v", errors.Join(v.Errors...))
}
