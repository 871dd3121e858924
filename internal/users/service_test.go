package users

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestRegisterNormalizesAndHashes(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, "pepper")

	user, err := svc.Register(context.Background(), RegisterInput{
		Username: " dr_house ",
		Email:    " House@Example.COM ",
		Password: "secret123",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Email != "house@example.com" || user.Username != "dr_house" {
		t.Fatalf("expected normalized identity, got %q %q", user.Email, user.Username)
	}
	if user.Role != RoleUser {
		t.Fatalf("expected default role, got %q", user.Role)
	}
	if user.PasswordHash == "" || user.PasswordHash == "secret123" {
		t.Fatalf("expected bcrypt hash, got %q", user.PasswordHash)
	}
	if !checkPasswordHash("secret123", user.PasswordHash, "pepper") {
		t.Fatalf("expected hash to verify with pepper")
	}
	if checkPasswordHash("secret123", user.PasswordHash, "other") {
		t.Fatalf("expected hash to fail with a different pepper")
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, "")
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{Username: "alice", Email: "a@example.com", Password: "secret1"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, err := svc.Register(ctx, RegisterInput{Username: "alice2", Email: "A@example.com", Password: "secret1"})
	if !errors.Is(err, ErrEmailExists) {
		t.Fatalf("expected ErrEmailExists, got %v", err)
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected 'already exists' in %q", err.Error())
	}
	if _, err := repo.GetByUsername(ctx, "alice2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no account created, got %v", err)
	}

	_, err = svc.Register(ctx, RegisterInput{Username: "ALICE", Email: "b@example.com", Password: "secret1"})
	if !errors.Is(err, ErrUsernameExists) {
		t.Fatalf("expected ErrUsernameExists, got %v", err)
	}
}

func TestRegisterCollectsFieldErrors(t *testing.T) {
	svc := NewService(NewMemoryRepo(), "")
	_, err := svc.Register(context.Background(), RegisterInput{Username: "a!", Email: "nope", Password: "123"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput in chain")
	}
	if len(verr.Fields) != 3 {
		t.Fatalf("expected 3 field errors, got %+v", verr.Fields)
	}
}

func TestLoginByEmailOrUsername(t *testing.T) {
	svc := NewService(NewMemoryRepo(), "pepper")
	ctx := context.Background()
	registered, err := svc.Register(ctx, RegisterInput{Username: "bob", Email: "bob@example.com", Password: "hunter22"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	for _, id := range []string{"bob", "BOB@example.com"} {
		user, err := svc.Login(ctx, id, "hunter22")
		if err != nil {
			t.Fatalf("Login(%q): %v", id, err)
		}
		if user.ID != registered.ID {
			t.Fatalf("Login(%q) returned wrong user", id)
		}
		if user.LastLoginAt == nil {
			t.Fatalf("expected LastLoginAt to be set")
		}
	}

	if _, err := svc.Login(ctx, "bob", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody", "hunter22"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestIncrementPredictionCount(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, "")
	ctx := context.Background()
	user, err := svc.Register(ctx, RegisterInput{Username: "carol", Email: "carol@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := svc.IncrementPredictionCount(ctx, user.ID); err != nil {
			t.Fatalf("IncrementPredictionCount: %v", err)
		}
	}
	got, err := svc.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.PredictionCount != 2 {
		t.Fatalf("expected count 2, got %d", got.PredictionCount)
	}
	if err := svc.IncrementPredictionCount(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
