package identity

import (
	"context"
	"errors"
	"testing"
)

type recordingProvisioner struct {
	users []User
}

func (p *recordingProvisioner) ProvisionUser(_ context.Context, user User) error {
	p.users = append(p.users, user)
	return nil
}

func TestRegisterAndAuthenticate(t *testing.T) {
	repo := NewMemoryRepository()
	prov := &recordingProvisioner{}
	svc := NewService(repo, prov)

	ctx := context.Background()
	user, err := svc.Register(ctx, Registration{Email: " Ada@Example.com ", Password: "s3cret-pass", Country: "ng"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Email != "ada@example.com" || user.Country != "NG" {
		t.Fatalf("expected normalised user, got %+v", user)
	}
	if len(prov.users) != 1 || prov.users[0].ID != user.ID {
		t.Fatalf("expected wallet provisioning for %s", user.ID)
	}

	authed, err := svc.Authenticate(ctx, Credentials{Email: "ADA@example.com", Password: "s3cret-pass"})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if authed.ID != user.ID {
		t.Fatalf("expected user %s, got %s", user.ID, authed.ID)
	}
}

func TestAuthenticateWrongPassword(t *testing.T) {
	svc := NewService(NewMemoryRepository(), nil)
	ctx := context.Background()

	if _, err := svc.Register(ctx, Registration{Email: "bob@example.com", Password: "correct-horse"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Authenticate(ctx, Credentials{Email: "bob@example.com", Password: "battery"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, Credentials{Email: "nobody@example.com", Password: "battery"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown email, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := NewService(NewMemoryRepository(), nil)
	ctx := context.Background()

	if _, err := svc.Register(ctx, Registration{Email: "not-an-email", Password: "long-enough"}); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected invalid email, got %v", err)
	}
	if _, err := svc.Register(ctx, Registration{Email: "c@example.com", Password: "short"}); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected weak password, got %v", err)
	}
	if _, err := svc.Register(ctx, Registration{Email: "c@example.com", Password: "long-enough"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(ctx, Registration{Email: "c@example.com", Password: "long-enough"}); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected duplicate, got %v", err)
	}
}
