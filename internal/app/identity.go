package app

import (
	"context"
	"database/sql"
	"errors"
	"slices"

	"go.uber.org/zap"

	"telloom/api/internal/auth"
	"telloom/api/internal/rbac"
	"telloom/api/internal/store"
	"telloom/api/internal/util"
)

// Caller is the authenticated profile behind a request. The zero value is
// anonymous.
type Caller struct {
	ProfileID string
	Email     string
}

func (c Caller) Anonymous() bool {
	return c.ProfileID == ""
}

// CallerFromToken validates an access token and confirms the profile still
// exists.
func (s *Service) CallerFromToken(ctx context.Context, token string) (Caller, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Caller{}, err
	}
	profile, err := s.store.GetProfile(ctx, claims.Subject)
	if errors.Is(err, sql.ErrNoRows) {
		return Caller{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Caller{}, err
	}
	return Caller{ProfileID: profile.ID, Email: profile.Email}, nil
}

// roleFor picks the strongest role a profile holds for one sharer.
func roleFor(roles store.Roles, sharerID string) rbac.Role {
	switch {
	case roles.SharerID != "" && roles.SharerID == sharerID:
		return rbac.RoleSharer
	case slices.Contains(roles.ExecutorOf, sharerID):
		return rbac.RoleExecutor
	case slices.Contains(roles.ListenerOf, sharerID):
		return rbac.RoleListener
	default:
		return ""
	}
}

// authorize is the single capability check in front of every sharer-scoped
// operation. It returns the role the caller acts in.
func (s *Service) authorize(ctx context.Context, caller Caller, sharerID string, action rbac.Action) (rbac.Role, error) {
	if caller.Anonymous() {
		return "", errUnauthorized()
	}
	if !util.IsUUID(sharerID) {
		return "", errForbidden("")
	}
	roles, err := s.store.ResolveRoles(ctx, caller.ProfileID)
	if err != nil {
		return "", err
	}
	role := roleFor(roles, sharerID)
	if role == "" || !rbac.Can(role, action) {
		s.log.Debug("authorization denied",
			zap.String("profile_id", caller.ProfileID),
			zap.String("sharer_id", sharerID),
			zap.String("action", string(action)))
		return "", errForbidden("")
	}
	return role, nil
}

func (s *Service) Me(ctx context.Context, caller Caller) (MeView, error) {
	if caller.Anonymous() {
		return MeView{}, errUnauthorized()
	}
	profile, err := s.store.GetProfile(ctx, caller.ProfileID)
	if err != nil {
		return MeView{}, err
	}
	roles, err := s.store.ResolveRoles(ctx, caller.ProfileID)
	if err != nil {
		return MeView{}, err
	}
	view := MeView{
		Profile: profileView(publicProfile(profile)),
		Phone:   profile.Phone,
		Roles:   RolesView{ListenerOf: roles.ListenerOf, ExecutorOf: roles.ExecutorOf},
	}
	if roles.SharerID != "" {
		view.Roles.SharerID = &roles.SharerID
	}
	return view, nil
}

// BecomeSharer gives the caller a sharer record, returning the existing one
// when they already have it.
func (s *Service) BecomeSharer(ctx context.Context, caller Caller) (store.Sharer, error) {
	if caller.Anonymous() {
		return store.Sharer{}, errUnauthorized()
	}
	return s.store.CreateSharer(ctx, caller.ProfileID)
}
