package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"telloom/api/internal/auth"
	"telloom/api/internal/authpw"
	"telloom/api/internal/session"
	"telloom/api/internal/store"
	"telloom/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	ExpiresAt    time.Time
	Profile      store.Profile
}

type SignUpInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func (s *Service) SignUp(ctx context.Context, input SignUpInput) (Session, error) {
	profile, err := s.passwords.SignUp(ctx, authpw.SignUpRequest{
		Email:     input.Email,
		Password:  input.Password,
		FirstName: input.FirstName,
		LastName:  input.LastName,
	})
	if err != nil {
		var validation *authpw.ValidationError
		switch {
		case errors.As(err, &validation):
			return Session{}, errValidation(validation.Message)
		case errors.Is(err, authpw.ErrEmailTaken):
			return Session{}, errConflict("Email already registered")
		}
		return Session{}, err
	}
	s.log.Info("profile signed up", zap.String("profile_id", profile.ID))
	return s.issueSession(ctx, profile)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	profile, err := s.passwords.SignIn(ctx, email, password)
	if errors.Is(err, authpw.ErrInvalidCredentials) {
		return Session{}, domainError(http.StatusUnauthorized, CodeUnauthorized, "Invalid email or password", nil)
	}
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, profile)
}

// Refresh rotates a refresh token: the old one is revoked and a new pair
// is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return Session{}, errUnauthorized()
	}
	tokenHash := auth.HashToken(refreshToken)
	profileID, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if errors.Is(err, session.ErrSessionNotFound) || errors.Is(err, sql.ErrNoRows) {
		return Session{}, errUnauthorized()
	}
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	profile, err := s.store.GetProfile(ctx, profileID)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, errUnauthorized()
	}
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, profile)
}

func (s *Service) Logout(ctx context.Context, refreshToken string) {
	if strings.TrimSpace(refreshToken) == "" {
		return
	}
	if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
		s.log.Warn("revoke refresh session", zap.Error(err))
	}
}

func (s *Service) issueSession(ctx context.Context, profile store.Profile) (Session, error) {
	now := s.now()
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), profile.ID, profile.Email, s.cfg.AccessTTL)
	if err != nil {
		return Session{}, err
	}

	refresh, err := util.NewToken()
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), profile.ID, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		ExpiresAt:    now.Add(s.cfg.AccessTTL),
		Profile:      profile,
	}, nil
}
