package app

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"telloom/api/internal/email"
	"telloom/api/internal/rbac"
	"telloom/api/internal/store"
	"telloom/api/internal/util"
	"telloom/api/internal/workflow"
)

func (s *Service) CreateFollowRequest(ctx context.Context, caller Caller, sharerID string) (FollowRequestView, error) {
	if caller.Anonymous() {
		return FollowRequestView{}, errUnauthorized()
	}
	if !util.IsUUID(sharerID) {
		return FollowRequestView{}, errNotFound("Sharer")
	}
	sharer, err := s.store.GetSharerProfile(ctx, sharerID)
	if errors.Is(err, sql.ErrNoRows) {
		return FollowRequestView{}, errNotFound("Sharer")
	}
	if err != nil {
		return FollowRequestView{}, err
	}
	if sharer.ID == caller.ProfileID {
		return FollowRequestView{}, errConflict("A sharer cannot follow themself")
	}

	listener, err := s.store.GetListener(ctx, sharerID, caller.ProfileID)
	switch {
	case err == nil && listener.HasAccess:
		return FollowRequestView{}, errConflict("Already connected to this sharer")
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return FollowRequestView{}, err
	}

	pending, err := s.store.HasPendingFollowRequest(ctx, caller.ProfileID, sharerID)
	if err != nil {
		return FollowRequestView{}, err
	}
	if pending {
		return FollowRequestView{}, errConflict("A follow request is already pending")
	}

	created, err := s.store.CreateFollowRequest(ctx, caller.ProfileID, sharerID)
	if errors.Is(err, store.ErrDuplicate) {
		return FollowRequestView{}, errConflict("A follow request is already pending")
	}
	if err != nil {
		return FollowRequestView{}, err
	}
	s.metrics.Transition("follow_request", created.Status)
	s.log.Info("follow request created",
		zap.String("follow_request_id", created.ID),
		zap.String("sharer_id", sharerID),
		zap.String("requestor_id", caller.ProfileID))

	requestor := store.PublicProfile{ID: caller.ProfileID, Email: caller.Email}
	if profile, err := s.store.GetProfile(ctx, caller.ProfileID); err == nil {
		requestor = publicProfile(profile)
	}
	requestorName := displayName(requestor)

	s.notify(ctx, sharer.ID, NotificationFollowRequest, requestorName+" wants to follow your stories",
		map[string]any{
			"followRequestId": created.ID,
			"requestorId":     caller.ProfileID,
			"sharerId":        sharerID,
		})
	s.sendEmail(ctx, "follow_request", func(ctx context.Context) error {
		return s.mailer.SendFollowRequestEmail(ctx, sharer.Email, email.FollowRequestData{
			SharerName:     displayName(sharer),
			RequestorName:  requestorName,
			RequestorEmail: requestor.Email,
			ReviewURL:      s.appLink("/role-sharer/connections"),
		})
	})
	return followRequestView(created), nil
}

// loadFollowRequestForSharer loads a request and checks the caller may
// decide it. An empty sharerID means the request's own sharer.
func (s *Service) loadFollowRequestForSharer(ctx context.Context, caller Caller, sharerID, requestID string) (store.FollowRequest, error) {
	if caller.Anonymous() {
		return store.FollowRequest{}, errUnauthorized()
	}
	if !util.IsUUID(requestID) {
		return store.FollowRequest{}, errNotFound("Follow request")
	}
	request, err := s.store.GetFollowRequest(ctx, requestID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.FollowRequest{}, errNotFound("Follow request")
	}
	if err != nil {
		return store.FollowRequest{}, err
	}
	if sharerID != "" && sharerID != request.SharerID {
		return store.FollowRequest{}, errForbidden("Follow request belongs to another sharer")
	}
	if _, err := s.authorize(ctx, caller, request.SharerID, rbac.ActionOwn); err != nil {
		return store.FollowRequest{}, err
	}
	return request, nil
}

// ApproveFollowRequest approves a PENDING request, or restores a REVOKED
// one in place.
func (s *Service) ApproveFollowRequest(ctx context.Context, caller Caller, sharerID, requestID string) (FollowRequestView, error) {
	return s.approveFollowRequest(ctx, caller, sharerID, requestID, false)
}

// RestoreFollowRequest re-approves a REVOKED request. The original row and
// listener record are reused.
func (s *Service) RestoreFollowRequest(ctx context.Context, caller Caller, sharerID, requestID string) (FollowRequestView, error) {
	return s.approveFollowRequest(ctx, caller, sharerID, requestID, true)
}

func (s *Service) approveFollowRequest(ctx context.Context, caller Caller, sharerID, requestID string, restoreOnly bool) (FollowRequestView, error) {
	request, err := s.loadFollowRequestForSharer(ctx, caller, sharerID, requestID)
	if err != nil {
		return FollowRequestView{}, err
	}
	status := workflow.FollowRequestStatus(request.Status)
	if !workflow.Approvable(status) || (restoreOnly && status != workflow.FollowRevoked) {
		return FollowRequestView{}, errAlreadyProcessed("Follow request", request.Status, request.SharerID)
	}

	approved, restored, err := s.store.ApproveFollowRequest(ctx, request.ID, restoreOnly)
	if errors.Is(err, store.ErrStatusChanged) {
		return FollowRequestView{}, errAlreadyProcessed("Follow request", approved.Status, request.SharerID)
	}
	if errors.Is(err, store.ErrDuplicate) {
		return FollowRequestView{}, errConflict("Another follow request for this sharer is pending")
	}
	if errors.Is(err, sql.ErrNoRows) {
		return FollowRequestView{}, errNotFound("Follow request")
	}
	if err != nil {
		return FollowRequestView{}, err
	}
	s.metrics.Transition("follow_request", approved.Status)
	s.log.Info("follow request approved",
		zap.String("follow_request_id", approved.ID),
		zap.Bool("restored", restored))

	sharer, err := s.store.GetSharerProfile(ctx, approved.SharerID)
	if err != nil {
		s.log.Warn("load sharer for approval notice", zap.Error(err))
		return followRequestView(approved), nil
	}
	sharerName := displayName(sharer)
	message := sharerName + " approved your follow request"
	if restored {
		message = sharerName + " restored your access"
	}
	s.notify(ctx, approved.RequestorID, NotificationConnectionChange, message,
		map[string]any{
			"followRequestId": approved.ID,
			"sharerId":        approved.SharerID,
			"status":          approved.Status,
			"restored":        restored,
		})

	if requestor, err := s.store.GetProfile(ctx, approved.RequestorID); err == nil {
		s.sendEmail(ctx, "follow_approved", func(ctx context.Context) error {
			return s.mailer.SendFollowApprovedEmail(ctx, requestor.Email, email.FollowApprovedData{
				RequestorName: displayName(publicProfile(requestor)),
				SharerName:    sharerName,
				ViewURL:       s.appLink("/role-listener/" + approved.SharerID),
			})
		})
	}
	return followRequestView(approved), nil
}

func (s *Service) DenyFollowRequest(ctx context.Context, caller Caller, sharerID, requestID string) (FollowRequestView, error) {
	request, err := s.loadFollowRequestForSharer(ctx, caller, sharerID, requestID)
	if err != nil {
		return FollowRequestView{}, err
	}
	if workflow.FollowRequestStatus(request.Status) != workflow.FollowPending {
		return FollowRequestView{}, errAlreadyProcessed("Follow request", request.Status, request.SharerID)
	}

	denied, err := s.store.DenyFollowRequest(ctx, request.ID)
	if errors.Is(err, store.ErrStatusChanged) {
		return FollowRequestView{}, errAlreadyProcessed("Follow request", denied.Status, request.SharerID)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return FollowRequestView{}, errNotFound("Follow request")
	}
	if err != nil {
		return FollowRequestView{}, err
	}
	s.metrics.Transition("follow_request", denied.Status)
	s.log.Info("follow request denied", zap.String("follow_request_id", denied.ID))
	return followRequestView(denied), nil
}

// ListSharerFollowRequests lists PENDING requests when pending is set,
// otherwise the decided ones.
func (s *Service) ListSharerFollowRequests(ctx context.Context, caller Caller, sharerID string, pending bool) ([]FollowRequestView, error) {
	if _, err := s.authorize(ctx, caller, sharerID, rbac.ActionManage); err != nil {
		return nil, err
	}
	items, err := s.store.ListSharerFollowRequests(ctx, sharerID, pending)
	if err != nil {
		return nil, err
	}
	return followRequestViews(items), nil
}

func (s *Service) ListMyFollowRequests(ctx context.Context, caller Caller) ([]FollowRequestView, error) {
	if caller.Anonymous() {
		return nil, errUnauthorized()
	}
	items, err := s.store.ListRequestorFollowRequests(ctx, caller.ProfileID)
	if err != nil {
		return nil, err
	}
	return followRequestViews(items), nil
}

func followRequestViews(items []store.FollowRequest) []FollowRequestView {
	views := make([]FollowRequestView, 0, len(items))
	for _, item := range items {
		views = append(views, followRequestView(item))
	}
	return views
}
