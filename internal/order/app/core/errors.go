package core

import (
	"errors"
	"fmt"
)

var (
	ErrDBConn = errors.New("db connection failure")
	ErrMBConn = errors.New("message broker connection failure")

	ErrOrderNotFound = errors.New("order not found")
	ErrItemNotFound  = errors.New("order item not found")

	ErrOrderTerminal           = errors.New("order is in a terminal state")
	ErrItemTerminal            = errors.New("item is in a terminal state")
	ErrInvalidTransition       = errors.New("transition is not allowed from the current state")
	ErrConfirmationRequired    = errors.New("order awaits explicit confirmation")
	ErrNotAwaitingConfirmation = errors.New("order is not awaiting confirmation")

	ErrRoleForbidden = errors.New("actor role does not permit this operation")
)

// ValidationError reports a malformed payload with field-level detail. It is
// surfaced verbatim and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
