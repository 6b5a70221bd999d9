package identity

import (
	"errors"
	"time"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidEmail       = errors.New("a valid email is required")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
)

const statusActive = "active"

// User represents a registered wallet owner.
type User struct {
	ID           string
	Email        string
	FullName     string
	Country      string
	Status       string
	PasswordHash []byte
	TokenVersion int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Registration is a sign-up request.
type Registration struct {
	Email    string
	Password string
	FullName string
	Country  string
}

// Credentials request structure.
type Credentials struct {
	Email    string
	Password string
}
