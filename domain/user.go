package domain

import (
	"strings"
	"time"
)

// User is an account able to own and be assigned tasks. The password hash
// never leaves the server.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// NormalizeEmail lowercases an email for case-insensitive uniqueness.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateRegistration checks the fields supplied at registration.
func ValidateRegistration(name, email, password string) error {
	if len(strings.TrimSpace(name)) < 2 {
		return &ValidationError{Field: "name", Reason: "at least 2 characters"}
	}
	if email = NormalizeEmail(email); email == "" || !strings.Contains(email, "@") {
		return &ValidationError{Field: "email", Reason: "must be a valid email address"}
	}
	if len(password) < 6 {
		return &ValidationError{Field: "password", Reason: "at least 6 characters"}
	}
	return nil
}
