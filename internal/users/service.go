package users

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"rd-prediction-backend/internal/shared/telemetry"
)

const minPasswordLength = 6

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,30}$`)

type Service struct {
	Repo   Repo
	Pepper string
	now    func() time.Time
}

func NewService(repo Repo, pepper string) *Service {
	return &Service{Repo: repo, Pepper: pepper, now: time.Now}
}

// Register validates the sign-up payload and creates an account with the default role.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	if s == nil || s.Repo == nil {
		return User{}, errors.New("users service not configured")
	}
	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))

	var fields []FieldError
	if !usernamePattern.MatchString(username) {
		fields = append(fields, FieldError{Field: "username", Message: "username must be 3-30 characters of letters, digits or underscore"})
	}
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		fields = append(fields, FieldError{Field: "email", Message: "a valid email is required"})
	}
	if len(in.Password) < minPasswordLength {
		fields = append(fields, FieldError{Field: "password", Message: fmt.Sprintf("password must be at least %d characters", minPasswordLength)})
	}
	if len(fields) > 0 {
		return User{}, &ValidationError{Fields: fields}
	}

	if _, err := s.Repo.GetByEmail(ctx, email); err == nil {
		return User{}, ErrEmailExists
	} else if !errors.Is(err, ErrNotFound) {
		return User{}, fmt.Errorf("lookup email: %w", err)
	}
	if _, err := s.Repo.GetByUsername(ctx, username); err == nil {
		return User{}, ErrUsernameExists
	} else if !errors.Is(err, ErrNotFound) {
		return User{}, fmt.Errorf("lookup username: %w", err)
	}

	hash, err := hashPassword(in.Password, s.Pepper)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	user, err := s.Repo.Create(ctx, User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         RoleUser,
	})
	if err != nil {
		return User{}, err
	}
	telemetry.Info("user.registered", map[string]any{"user_id": user.ID, "username": user.Username})
	return user, nil
}

// Login accepts either the email or the username as identifier.
func (s *Service) Login(ctx context.Context, identifier, password string) (User, error) {
	if s == nil || s.Repo == nil {
		return User{}, errors.New("users service not configured")
	}
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return User{}, ErrInvalidCredentials
	}

	var (
		user User
		err  error
	)
	if strings.Contains(identifier, "@") {
		user, err = s.Repo.GetByEmail(ctx, strings.ToLower(identifier))
	} else {
		user, err = s.Repo.GetByUsername(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	if !checkPasswordHash(password, user.PasswordHash, s.Pepper) {
		return User{}, ErrInvalidCredentials
	}

	now := s.now().UTC()
	if err := s.Repo.TouchLogin(ctx, user.ID, now); err != nil {
		telemetry.Warn("user.touch_login_failed", map[string]any{"user_id": user.ID, "error": err})
	} else {
		user.LastLoginAt = &now
	}
	return user, nil
}

func (s *Service) GetByID(ctx context.Context, userID string) (User, error) {
	if s == nil || s.Repo == nil {
		return User{}, errors.New("users service not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return User{}, errors.New("user id is required")
	}
	return s.Repo.GetByID(ctx, userID)
}

// IncrementPredictionCount bumps the running counter shown on the profile.
func (s *Service) IncrementPredictionCount(ctx context.Context, userID string) error {
	if s == nil || s.Repo == nil {
		return errors.New("users service not configured")
	}
	return s.Repo.IncrementPredictionCount(ctx, userID)
}

func applyPepper(password, pepper string) []byte {
	h := hmac.New(sha256.New, []byte(pepper))
	h.Write([]byte(password))
	return h.Sum(nil)
}

func hashPassword(password, pepper string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(applyPepper(password, pepper), bcrypt.DefaultCost)
	return string(hash), err
}

func checkPasswordHash(password, hash, pepper string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), applyPepper(password, pepper)) == nil
}
