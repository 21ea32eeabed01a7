// Package common holds the error taxonomy shared by the auth layer and the
// HTTP boundary.
package common

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrInvalidCredentials  = errors.New("invalid username or password")
	ErrRateLimited         = errors.New("too many failed attempts, try again later")
	ErrSessionViolation    = errors.New("session security violation")
	ErrSessionExpired      = fmt.Errorf("session expired: %w", ErrSessionViolation)
	ErrFingerprintMismatch = fmt.Errorf("session fingerprint mismatch: %w", ErrSessionViolation)
	ErrCSRF                = errors.New("form expired, please retry")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("already exists")
)

// RateLimitError reports a lockout together with the time left on it.
type RateLimitError struct {
	Remaining time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s (retry in %s)", ErrRateLimited.Error(), e.Remaining.Round(time.Second))
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// ValidationError carries a user-facing message for a rejected input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
