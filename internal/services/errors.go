package services

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a referenced record does not exist or is not
	// visible to the caller.
	ErrNotFound = errors.New("not found")
	// ErrExpired is returned for a passcode whose expiry has passed.
	ErrExpired = errors.New("passcode expired")
	// ErrAlreadyUsed is returned for a passcode that has been consumed.
	ErrAlreadyUsed = errors.New("passcode already used")
	// ErrMismatch is returned when a supplied code or confirmation does not match.
	ErrMismatch = errors.New("value mismatch")
	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrFlowMissing is returned when no live auth flow matches the flow token.
	ErrFlowMissing = errors.New("auth flow missing")
	// ErrTooManyAttempts is returned once a flow exhausts its verification attempts.
	ErrTooManyAttempts = errors.New("too many attempts")
	// ErrConflict is returned when a concurrent write wins a uniqueness race.
	ErrConflict = errors.New("conflict")
	// ErrAccountDisabled is returned for inactive accounts.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrForbidden is returned when the actor may not perform the operation.
	ErrForbidden = errors.New("forbidden")
)

// Error attaches a client safe message to one of the sentinel errors above.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func validationError(format string, args ...any) error {
	return newError(ErrValidation, format, args...)
}
