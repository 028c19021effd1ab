package app

import (
	"context"
	"database/sql"
	"errors"
	"net/mail"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"telloom/api/internal/email"
	"telloom/api/internal/rbac"
	"telloom/api/internal/store"
	"telloom/api/internal/util"
	"telloom/api/internal/workflow"
)

type CreateInvitationInput struct {
	Email     string `json:"email"`
	Role      string `json:"role"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Relation  string `json:"relation"`
	Phone     string `json:"phone"`
}

// InvitationRef names an invitation by id or by its emailed token.
type InvitationRef struct {
	InvitationID string `json:"invitationId"`
	Token        string `json:"token"`
}

func normalizeEmail(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", errValidation("email is required")
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		return "", errValidation("email is invalid")
	}
	return value, nil
}

func (s *Service) CreateInvitation(ctx context.Context, caller Caller, sharerID string, input CreateInvitationInput) (InvitationView, error) {
	if _, err := s.authorize(ctx, caller, sharerID, rbac.ActionManage); err != nil {
		return InvitationView{}, err
	}
	inviteeEmail, err := normalizeEmail(input.Email)
	if err != nil {
		return InvitationView{}, err
	}
	role := rbac.Normalize(input.Role)
	if !rbac.Invitable(role) {
		return InvitationView{}, errValidation("role must be LISTENER or EXECUTOR")
	}

	sharer, err := s.store.GetSharerProfile(ctx, sharerID)
	if err != nil {
		return InvitationView{}, err
	}
	if strings.EqualFold(sharer.Email, inviteeEmail) {
		return InvitationView{}, errValidation("A sharer cannot invite themself")
	}

	pending, err := s.store.HasPendingInvitation(ctx, sharerID, inviteeEmail, string(role))
	if err != nil {
		return InvitationView{}, err
	}
	if pending {
		return InvitationView{}, errConflict("A pending invitation already exists for this email and role")
	}

	token, err := util.NewToken()
	if err != nil {
		return InvitationView{}, err
	}
	item := store.Invitation{
		Token:        token,
		SharerID:     sharerID,
		InviterID:    caller.ProfileID,
		InviteeEmail: inviteeEmail,
		Role:         string(role),
	}
	if role == rbac.RoleExecutor {
		item.Executor = store.ExecutorMeta{
			FirstName: strings.TrimSpace(input.FirstName),
			LastName:  strings.TrimSpace(input.LastName),
			Relation:  strings.TrimSpace(input.Relation),
			Phone:     strings.TrimSpace(input.Phone),
		}
	}

	created, err := s.store.CreateInvitation(ctx, item)
	if errors.Is(err, store.ErrDuplicate) {
		return InvitationView{}, errConflict("A pending invitation already exists for this email and role")
	}
	if err != nil {
		return InvitationView{}, err
	}
	s.metrics.Transition("invitation", created.Status)
	s.log.Info("invitation created",
		zap.String("invitation_id", created.ID),
		zap.String("sharer_id", sharerID),
		zap.String("role", created.Role))

	inviterName := "Someone"
	if inviter, err := s.store.GetProfile(ctx, caller.ProfileID); err == nil && inviter.FullName() != "" {
		inviterName = inviter.FullName()
	}
	sharerName := sharer.FullName()
	if sharerName == "" {
		sharerName = inviterName
	}

	s.sendEmail(ctx, "invitation", func(ctx context.Context) error {
		return s.mailer.SendInvitationEmail(ctx, inviteeEmail, email.InvitationData{
			SharerName:  sharerName,
			InviterName: inviterName,
			Role:        strings.ToLower(created.Role),
			AcceptURL:   s.appLink("/invitation/accept/" + url.PathEscape(token)),
		})
	})

	if invitee, err := s.store.GetProfileByEmail(ctx, inviteeEmail); err == nil {
		s.notify(ctx, invitee.ID, NotificationInvitation,
			inviterName+" invited you to connect as "+strings.ToLower(created.Role),
			map[string]any{
				"invitationId": created.ID,
				"token":        token,
				"sharerId":     sharerID,
				"role":         created.Role,
			})
	} else if !errors.Is(err, sql.ErrNoRows) {
		s.log.Warn("look up invitee profile", zap.Error(err))
	}

	view := invitationView(created)
	view.Token = token
	return view, nil
}

func (s *Service) ListInvitations(ctx context.Context, caller Caller, sharerID, status string) ([]InvitationView, error) {
	if _, err := s.authorize(ctx, caller, sharerID, rbac.ActionManage); err != nil {
		return nil, err
	}
	filter := ""
	if strings.TrimSpace(status) != "" {
		parsed, ok := workflow.ParseInvitationStatus(strings.ToUpper(strings.TrimSpace(status)))
		if !ok {
			return nil, errValidation("status must be PENDING, ACCEPTED, DECLINED or EXPIRED")
		}
		filter = string(parsed)
	}
	items, err := s.store.ListInvitations(ctx, sharerID, filter)
	if err != nil {
		return nil, err
	}
	views := make([]InvitationView, 0, len(items))
	for _, item := range items {
		views = append(views, invitationView(item))
	}
	return views, nil
}

// CancelInvitation deletes a PENDING invitation. An executor cancelling one
// tells the sharer.
func (s *Service) CancelInvitation(ctx context.Context, caller Caller, sharerID, invitationID string) error {
	role, err := s.authorize(ctx, caller, sharerID, rbac.ActionManage)
	if err != nil {
		return err
	}
	if !util.IsUUID(invitationID) {
		return errNotFound("Invitation")
	}
	invitation, err := s.store.GetInvitation(ctx, invitationID)
	if errors.Is(err, sql.ErrNoRows) {
		return errNotFound("Invitation")
	}
	if err != nil {
		return err
	}
	if invitation.SharerID != sharerID {
		return errForbidden("Invitation belongs to another sharer")
	}
	if workflow.InvitationStatus(invitation.Status).Terminal() {
		return errAlreadyProcessed("Invitation", invitation.Status, invitation.SharerID)
	}

	if err := s.store.DeleteInvitation(ctx, sharerID, invitationID); err != nil {
		if !errors.Is(err, store.ErrStatusChanged) {
			return err
		}
		current, getErr := s.store.GetInvitation(ctx, invitationID)
		if errors.Is(getErr, sql.ErrNoRows) {
			return errNotFound("Invitation")
		}
		if getErr != nil {
			return getErr
		}
		return errAlreadyProcessed("Invitation", current.Status, current.SharerID)
	}
	s.metrics.Transition("invitation", "CANCELLED")
	s.log.Info("invitation cancelled", zap.String("invitation_id", invitationID), zap.String("role", string(role)))

	if role == rbac.RoleExecutor {
		sharer, err := s.store.GetSharer(ctx, sharerID)
		if err != nil {
			s.log.Warn("load sharer for cancel notification", zap.Error(err))
			return nil
		}
		s.notify(ctx, sharer.ProfileID, NotificationInvitationCancelled,
			"An executor cancelled the invitation to "+invitation.InviteeEmail,
			map[string]any{
				"invitationId": invitationID,
				"inviteeEmail": invitation.InviteeEmail,
				"role":         invitation.Role,
				"cancelledBy":  caller.ProfileID,
			})
	}
	return nil
}

// FindInvitationByToken is public: the token is the credential.
func (s *Service) FindInvitationByToken(ctx context.Context, token string) (InvitationLookup, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return InvitationLookup{}, errNotFound("Invitation")
	}
	invitation, err := s.store.GetInvitationByToken(ctx, token)
	if errors.Is(err, sql.ErrNoRows) {
		return InvitationLookup{}, errNotFound("Invitation")
	}
	if err != nil {
		return InvitationLookup{}, err
	}
	sharer, err := s.store.GetSharerProfile(ctx, invitation.SharerID)
	if err != nil {
		return InvitationLookup{}, err
	}
	return InvitationLookup{Invitation: invitationView(invitation), Sharer: profileView(sharer)}, nil
}

// loadInvitation resolves ref. byToken reports whether the token was the
// credential used.
func (s *Service) loadInvitation(ctx context.Context, ref InvitationRef) (invitation store.Invitation, byToken bool, err error) {
	id := strings.TrimSpace(ref.InvitationID)
	token := strings.TrimSpace(ref.Token)
	switch {
	case id != "":
		if !util.IsUUID(id) {
			return store.Invitation{}, false, errNotFound("Invitation")
		}
		invitation, err = s.store.GetInvitation(ctx, id)
	case token != "":
		byToken = true
		invitation, err = s.store.GetInvitationByToken(ctx, token)
	default:
		return store.Invitation{}, false, errValidation("invitationId or token is required")
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.Invitation{}, false, errNotFound("Invitation")
	}
	return invitation, byToken, err
}

// checkInvitee matches the caller against the invitee email. By id a
// mismatch is refused; by token it is logged and allowed so people can sign
// up with another address while accepting.
func (s *Service) checkInvitee(ctx context.Context, caller Caller, invitation store.Invitation, byToken bool) (store.Profile, error) {
	profile, err := s.store.GetProfile(ctx, caller.ProfileID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Profile{}, errUnauthorized()
	}
	if err != nil {
		return store.Profile{}, err
	}
	if strings.EqualFold(strings.TrimSpace(profile.Email), strings.TrimSpace(invitation.InviteeEmail)) {
		return profile, nil
	}
	if !byToken {
		return store.Profile{}, errForbidden("Invitation was sent to a different email")
	}
	s.log.Warn("invitation used by a different email",
		zap.String("invitation_id", invitation.ID),
		zap.String("profile_id", profile.ID))
	return profile, nil
}

func (s *Service) AcceptInvitation(ctx context.Context, caller Caller, ref InvitationRef) (InvitationView, error) {
	if caller.Anonymous() {
		return InvitationView{}, errUnauthorized()
	}
	invitation, byToken, err := s.loadInvitation(ctx, ref)
	if err != nil {
		return InvitationView{}, err
	}
	if invitation, err = s.expireIfStale(ctx, invitation); err != nil {
		return InvitationView{}, err
	}
	if workflow.InvitationStatus(invitation.Status).Terminal() {
		return InvitationView{}, errAlreadyProcessed("Invitation", invitation.Status, invitation.SharerID)
	}
	profile, err := s.checkInvitee(ctx, caller, invitation, byToken)
	if err != nil {
		return InvitationView{}, err
	}
	sharer, err := s.store.GetSharerProfile(ctx, invitation.SharerID)
	if err != nil {
		return InvitationView{}, err
	}
	if sharer.ID == profile.ID {
		return InvitationView{}, errConflict("A sharer cannot connect to themself")
	}

	accepted, err := s.store.AcceptInvitation(ctx, invitation.ID, profile.ID)
	if errors.Is(err, store.ErrStatusChanged) {
		return InvitationView{}, errAlreadyProcessed("Invitation", accepted.Status, invitation.SharerID)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return InvitationView{}, errNotFound("Invitation")
	}
	if err != nil {
		return InvitationView{}, err
	}
	s.metrics.Transition("invitation", accepted.Status)
	s.log.Info("invitation accepted",
		zap.String("invitation_id", accepted.ID),
		zap.String("profile_id", profile.ID),
		zap.String("role", accepted.Role))

	s.notify(ctx, sharer.ID, NotificationConnectionChange,
		displayName(publicProfile(profile))+" accepted your invitation as "+strings.ToLower(accepted.Role),
		map[string]any{
			"invitationId": accepted.ID,
			"profileId":    profile.ID,
			"role":         accepted.Role,
			"status":       accepted.Status,
		})
	return invitationView(accepted), nil
}

func (s *Service) DeclineInvitation(ctx context.Context, caller Caller, ref InvitationRef) (InvitationView, error) {
	if caller.Anonymous() {
		return InvitationView{}, errUnauthorized()
	}
	invitation, byToken, err := s.loadInvitation(ctx, ref)
	if err != nil {
		return InvitationView{}, err
	}
	if invitation, err = s.expireIfStale(ctx, invitation); err != nil {
		return InvitationView{}, err
	}
	if workflow.InvitationStatus(invitation.Status).Terminal() {
		return InvitationView{}, errAlreadyProcessed("Invitation", invitation.Status, invitation.SharerID)
	}
	profile, err := s.checkInvitee(ctx, caller, invitation, byToken)
	if err != nil {
		return InvitationView{}, err
	}

	declined, err := s.store.DeclineInvitation(ctx, invitation.ID)
	if errors.Is(err, store.ErrStatusChanged) {
		return InvitationView{}, errAlreadyProcessed("Invitation", declined.Status, invitation.SharerID)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return InvitationView{}, errNotFound("Invitation")
	}
	if err != nil {
		return InvitationView{}, err
	}
	s.metrics.Transition("invitation", declined.Status)
	s.log.Info("invitation declined", zap.String("invitation_id", declined.ID), zap.String("profile_id", profile.ID))

	if sharer, err := s.store.GetSharer(ctx, declined.SharerID); err == nil {
		s.notify(ctx, sharer.ProfileID, NotificationConnectionChange,
			displayName(publicProfile(profile))+" declined your invitation",
			map[string]any{
				"invitationId": declined.ID,
				"profileId":    profile.ID,
				"role":         declined.Role,
				"status":       declined.Status,
			})
	}
	return invitationView(declined), nil
}

// expireIfStale expires a PENDING invitation that outlived the TTL before
// the next sweep reached it.
func (s *Service) expireIfStale(ctx context.Context, invitation store.Invitation) (store.Invitation, error) {
	if workflow.InvitationStatus(invitation.Status) != workflow.InvitationPending {
		return invitation, nil
	}
	if !invitation.CreatedAt.Before(s.now().Add(-s.cfg.InvitationTTL)) {
		return invitation, nil
	}
	if _, err := s.ExpireInvitations(ctx); err != nil {
		return store.Invitation{}, err
	}
	invitation.Status = string(workflow.InvitationExpired)
	return invitation, nil
}

// ExpireInvitations sweeps PENDING invitations older than the configured
// TTL to EXPIRED and returns how many moved.
func (s *Service) ExpireInvitations(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.InvitationTTL)
	expired, err := s.store.ExpireInvitations(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	for _, item := range expired {
		s.metrics.Transition("invitation", item.Status)
	}
	if len(expired) > 0 {
		s.log.Info("invitations expired", zap.Int("count", len(expired)), zap.Time("cutoff", cutoff))
	}
	return len(expired), nil
}

func displayName(p store.PublicProfile) string {
	if name := p.FullName(); name != "" {
		return name
	}
	if p.Email != "" {
		return p.Email
	}
	return "Someone"
}
