package app

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"telloom/api/internal/store"
	"telloom/api/internal/util"
)

const (
	NotificationInvitation          = "INVITATION"
	NotificationInvitationCancelled = "INVITATION_CANCELLED"
	NotificationConnectionChange    = "CONNECTION_CHANGE"
	NotificationConnectionRemoved   = "CONNECTION_REMOVED"
	NotificationFollowRequest       = "FOLLOW_REQUEST"
	NotificationTopicResponse       = "TOPIC_RESPONSE"
)

// notify persists a notification and publishes it to the realtime channel.
// It never fails the calling workflow.
func (s *Service) notify(ctx context.Context, userID, kind, message string, data map[string]any) {
	if userID == "" {
		return
	}
	payload, err := json.Marshal(data)
	if err != nil {
		s.metrics.Notification(kind, "failed")
		s.log.Error("marshal notification data", zap.String("type", kind), zap.Error(err))
		return
	}

	ctx = context.WithoutCancel(ctx)
	created, err := s.store.InsertNotification(ctx, store.Notification{
		UserID:  userID,
		Type:    kind,
		Message: message,
		Data:    payload,
	})
	if err != nil {
		s.metrics.Notification(kind, "failed")
		s.log.Error("insert notification",
			zap.String("user_id", userID),
			zap.String("type", kind),
			zap.Error(err))
		return
	}
	s.metrics.Notification(kind, "stored")

	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, userID, notificationView(created)); err != nil {
		s.log.Warn("publish notification",
			zap.String("notification_id", created.ID),
			zap.Error(err))
	}
}

func (s *Service) ListNotifications(ctx context.Context, caller Caller, unreadOnly bool, limit int) (NotificationList, error) {
	if caller.Anonymous() {
		return NotificationList{}, errUnauthorized()
	}
	items, err := s.store.ListNotifications(ctx, caller.ProfileID, unreadOnly, limit)
	if err != nil {
		return NotificationList{}, err
	}
	unread, err := s.store.UnreadNotificationCount(ctx, caller.ProfileID)
	if err != nil {
		return NotificationList{}, err
	}

	views := make([]NotificationView, 0, len(items))
	for _, item := range items {
		views = append(views, notificationView(item))
	}
	return NotificationList{Notifications: views, UnreadCount: unread}, nil
}

// MarkNotificationsRead marks the caller's own notifications. Ids that belong
// to someone else are ignored.
func (s *Service) MarkNotificationsRead(ctx context.Context, caller Caller, ids []string) (int64, error) {
	if caller.Anonymous() {
		return 0, errUnauthorized()
	}
	if len(ids) == 0 {
		return 0, errValidation("ids is required")
	}
	for _, id := range ids {
		if !util.IsUUID(id) {
			return 0, errValidation("ids must be notification ids")
		}
	}
	return s.store.MarkNotificationsRead(ctx, caller.ProfileID, ids)
}

func (s *Service) MarkAllNotificationsRead(ctx context.Context, caller Caller) (int64, error) {
	if caller.Anonymous() {
		return 0, errUnauthorized()
	}
	return s.store.MarkAllNotificationsRead(ctx, caller.ProfileID)
}
