package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the task identifier does not resolve.
	ErrNotFound = errors.New("task not found")
	// ErrUserNotFound indicates the user identifier or email does not resolve.
	ErrUserNotFound = errors.New("user not found")
	// ErrDuplicateEmail indicates a registration with an already taken email.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrInvalidCredentials indicates a failed login.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ValidationError reports malformed or missing input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
