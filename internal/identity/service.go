package identity

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// Provisioner opens the resources a new user needs, such as a wallet.
type Provisioner interface {
	ProvisionUser(ctx context.Context, user User) error
}

// Service manages identity lifecycle.
type Service struct {
	repo        Repository
	provisioner Provisioner
}

// NewService creates a new identity service. provisioner may be nil.
func NewService(repo Repository, provisioner Provisioner) *Service {
	return &Service{repo: repo, provisioner: provisioner}
}

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a user with a hashed password and provisions their wallet.
func (s *Service) Register(ctx context.Context, reg Registration) (User, error) {
	email := NormalizeEmail(reg.Email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return User{}, ErrInvalidEmail
	}
	if len(reg.Password) < minPasswordLength {
		return User{}, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	now := time.Now().UTC()
	user := User{
		ID:           uuid.New().String(),
		Email:        email,
		FullName:     strings.TrimSpace(reg.FullName),
		Country:      strings.ToUpper(strings.TrimSpace(reg.Country)),
		Status:       statusActive,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}
	if s.provisioner != nil {
		if err := s.provisioner.ProvisionUser(ctx, user); err != nil {
			return User{}, err
		}
	}
	return user, nil
}

// Authenticate verifies email and password.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (User, error) {
	user, err := s.repo.FindByEmail(ctx, NormalizeEmail(creds.Email))
	if errors.Is(err, ErrUserNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(creds.Password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.FindByID(ctx, id)
}
