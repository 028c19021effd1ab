// Package authpw provides email/password authentication for profiles.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"telloom/api/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
)

// ValidationError reports bad sign-up or sign-in input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Service provides email/password authentication
type Service struct {
	store ProfileStore
	cost  int
}

// ProfileStore defines the storage interface for auth
type ProfileStore interface {
	GetProfileByEmail(ctx context.Context, email string) (store.Profile, error)
	CreateProfile(ctx context.Context, profile store.Profile) (store.Profile, error)
}

// NewService creates a new auth service
func NewService(profiles ProfileStore) *Service {
	return &Service{store: profiles, cost: bcrypt.DefaultCost}
}

// SignUpRequest contains sign-up parameters
type SignUpRequest struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// SignUp creates a new profile
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (store.Profile, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" || strings.TrimSpace(req.FirstName) == "" {
		return store.Profile{}, &ValidationError{Message: "email, password, and first name are required"}
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return store.Profile{}, &ValidationError{Message: "email is invalid"}
	}
	if strings.ContainsAny(req.FirstName+req.LastName, "\r\n") {
		return store.Profile{}, &ValidationError{Message: "names cannot contain line breaks"}
	}
	if len(req.Password) < 8 {
		return store.Profile{}, &ValidationError{Message: "password must be at least 8 characters"}
	}

	if _, err := s.store.GetProfileByEmail(ctx, email); err == nil {
		return store.Profile{}, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return store.Profile{}, fmt.Errorf("hash password: %w", err)
	}

	profile, err := s.store.CreateProfile(ctx, store.Profile{
		Email:        email,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		PasswordHash: string(hash),
	})
	if errors.Is(err, store.ErrDuplicate) {
		return store.Profile{}, ErrEmailTaken
	}
	if err != nil {
		return store.Profile{}, fmt.Errorf("create profile: %w", err)
	}
	return profile, nil
}

// SignIn authenticates a profile
func (s *Service) SignIn(ctx context.Context, email, password string) (store.Profile, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return store.Profile{}, &ValidationError{Message: "email and password are required"}
	}

	profile, err := s.store.GetProfileByEmail(ctx, email)
	if err != nil {
		return store.Profile{}, ErrInvalidCredentials
	}
	if profile.PasswordHash == "" {
		return store.Profile{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(password)); err != nil {
		return store.Profile{}, ErrInvalidCredentials
	}
	return profile, nil
}
