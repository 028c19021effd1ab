package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationsListAndMarkRead(t *testing.T) {
	m := newMemStore()
	svc := newTestService(t, m)
	user := mustProfile(t, m, "lee")
	other := mustProfile(t, m, "ola")
	ctx := context.Background()

	svc.notify(ctx, user.ID, NotificationConnectionChange, "one", map[string]any{"n": 1})
	svc.notify(ctx, user.ID, NotificationConnectionChange, "two", map[string]any{"n": 2})
	svc.notify(ctx, other.ID, NotificationConnectionChange, "theirs", nil)

	list, err := svc.ListNotifications(ctx, callerOf(user), false, 50)
	require.NoError(t, err)
	require.Len(t, list.Notifications, 2)
	assert.Equal(t, 2, list.UnreadCount)
	assert.Equal(t, "two", list.Notifications[0].Message, "newest first")

	theirs := m.notificationsFor(other.ID)[0].ID
	updated, err := svc.MarkNotificationsRead(ctx, callerOf(user), []string{list.Notifications[0].ID, theirs})
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated, "other people's ids are ignored")

	unread, err := svc.ListNotifications(ctx, callerOf(user), true, 50)
	require.NoError(t, err)
	require.Len(t, unread.Notifications, 1)
	assert.Equal(t, 1, unread.UnreadCount)

	updated, err = svc.MarkAllNotificationsRead(ctx, callerOf(user))
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)
	assert.False(t, m.notificationsFor(other.ID)[0].IsRead)
}

func TestMarkNotificationsReadValidates(t *testing.T) {
	m := newMemStore()
	svc := newTestService(t, m)
	user := mustProfile(t, m, "lee")

	_, err := svc.MarkNotificationsRead(context.Background(), callerOf(user), nil)
	requireCode(t, err, CodeValidation)
	_, err = svc.MarkNotificationsRead(context.Background(), callerOf(user), []string{"x"})
	requireCode(t, err, CodeValidation)
	_, err = svc.ListNotifications(context.Background(), Caller{}, false, 10)
	requireCode(t, err, CodeUnauthorized)
}

func TestNotificationFailureDoesNotFailWorkflow(t *testing.T) {
	m := newMemStore()
	m.notificationErr = errors.New("insert failed")
	svc := newTestService(t, m)
	_, sharer := mustSharer(t, m, "sam")
	requestor := mustProfile(t, m, "lee")

	request, err := svc.CreateFollowRequest(context.Background(), callerOf(requestor), sharer.ID)
	require.NoError(t, err)
	assert.Equal(t, "PENDING", request.Status)
}
