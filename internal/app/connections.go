package app

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"telloom/api/internal/rbac"
	"telloom/api/internal/store"
	"telloom/api/internal/util"
)

func (s *Service) GetActiveConnections(ctx context.Context, caller Caller, sharerID string) ([]ConnectionView, error) {
	if _, err := s.authorize(ctx, caller, sharerID, rbac.ActionManage); err != nil {
		return nil, err
	}
	connections, err := s.store.ListConnections(ctx, sharerID)
	if err != nil {
		return nil, err
	}
	views := make([]ConnectionView, 0, len(connections))
	for _, c := range connections {
		views = append(views, connectionView(c))
	}
	return views, nil
}

// RevokeListener turns off a listener's access. Revoking an already revoked
// listener succeeds without notifying anyone again. changed reports whether
// access was actually removed.
func (s *Service) RevokeListener(ctx context.Context, caller Caller, sharerID, listenerID string) (changed bool, err error) {
	if _, err := s.authorize(ctx, caller, sharerID, rbac.ActionOwn); err != nil {
		return false, err
	}
	if !util.IsUUID(listenerID) {
		return false, errNotFound("Connection")
	}

	changed, err = s.store.RevokeListener(ctx, sharerID, listenerID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, errNotFound("Connection")
	}
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}

	s.metrics.Transition("listener", "REVOKED")
	s.log.Info("listener revoked", zap.String("sharer_id", sharerID), zap.String("listener_id", listenerID))
	s.notify(ctx, listenerID, NotificationConnectionRemoved, s.sharerName(ctx, sharerID)+" removed your access",
		map[string]any{"sharerId": sharerID, "role": store.ConnectionListener})
	return true, nil
}

// RevokeExecutor deletes an executor record. The record must belong to
// sharerID.
func (s *Service) RevokeExecutor(ctx context.Context, caller Caller, sharerID, executorRecordID string) error {
	if _, err := s.authorize(ctx, caller, sharerID, rbac.ActionOwn); err != nil {
		return err
	}
	if !util.IsUUID(executorRecordID) {
		return errNotFound("Executor")
	}

	executor, err := s.store.GetExecutor(ctx, executorRecordID)
	if errors.Is(err, sql.ErrNoRows) {
		return errNotFound("Executor")
	}
	if err != nil {
		return err
	}
	if executor.SharerID != sharerID {
		s.log.Warn("cross-sharer executor revoke refused",
			zap.String("sharer_id", sharerID),
			zap.String("executor_record_id", executorRecordID))
		return errForbidden("Executor belongs to another sharer")
	}

	deleted, err := s.store.DeleteExecutor(ctx, sharerID, executorRecordID)
	if err != nil {
		return err
	}
	if !deleted {
		return errNotFound("Executor")
	}

	s.metrics.Transition("executor", "REVOKED")
	s.log.Info("executor revoked", zap.String("sharer_id", sharerID), zap.String("executor_id", executor.ExecutorID))
	s.notify(ctx, executor.ExecutorID, NotificationConnectionRemoved, s.sharerName(ctx, sharerID)+" removed you as an executor",
		map[string]any{"sharerId": sharerID, "role": store.ConnectionExecutor})
	return nil
}

// sharerName is a best-effort display name for messages.
func (s *Service) sharerName(ctx context.Context, sharerID string) string {
	profile, err := s.store.GetSharerProfile(ctx, sharerID)
	if err != nil || profile.FullName() == "" {
		return "A sharer"
	}
	return profile.FullName()
}
