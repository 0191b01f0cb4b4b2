// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Storage errors.
	ErrNotFound      = errors.New("not found")
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	ErrAccessDenied  = errors.New("storage access denied")
	ErrCorruptedData = errors.New("corrupted data")

	// Session errors.
	ErrNoActiveSession = errors.New("no active session")
	ErrUnknownSet      = errors.New("unknown card set")
	ErrInvalidImport   = errors.New("invalid import payload")

	// Pricing service errors.
	ErrAPIConnection = errors.New("pricing service connection failed")
	ErrAPITimeout    = errors.New("pricing service timed out")
	ErrOffline       = errors.New("offline")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// ValidationError describes invalid user input, naming the field at fault.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return e.Message
}

// NewValidationError creates a validation error for a field.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrAPIConnection) ||
		errors.Is(err, ErrAPITimeout) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return false
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
