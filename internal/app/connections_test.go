package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telloom/api/internal/store"
	"telloom/api/internal/util"
)

func TestRevokeListenerIsIdempotent(t *testing.T) {
	m := newMemStore()
	svc := newTestService(t, m)
	owner, sharer := mustSharer(t, m, "sam")
	listener := mustProfile(t, m, "lee")
	m.upsertListener(sharer.ID, listener.ID, false)
	ctx := context.Background()

	changed, err := svc.RevokeListener(ctx, callerOf(owner), sharer.ID, listener.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = svc.RevokeListener(ctx, callerOf(owner), sharer.ID, listener.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	notes := m.notificationsFor(listener.ID)
	require.Len(t, notes, 1)
	assert.Equal(t, NotificationConnectionRemoved, notes[0].Type)

	roles, err := m.ResolveRoles(ctx, listener.ID)
	require.NoError(t, err)
	assert.Empty(t, roles.ListenerOf)

	connections, err := svc.GetActiveConnections(ctx, callerOf(owner), sharer.ID)
	require.NoError(t, err)
	assert.Empty(t, connections)
}

func TestRevokeListenerUnknownPair(t *testing.T) {
	m := newMemStore()
	svc := newTestService(t, m)
	owner, sharer := mustSharer(t, m, "sam")

	_, err := svc.RevokeListener(context.Background(), callerOf(owner), sharer.ID, util.NewID())
	requireCode(t, err, CodeNotFound)
	_, err = svc.RevokeListener(context.Background(), callerOf(owner), sharer.ID, "bad")
	requireCode(t, err, CodeNotFound)
}

func TestExecutorCannotRevoke(t *testing.T) {
	m := newMemStore()
	svc := newTestService(t, m)
	_, sharer := mustSharer(t, m, "sam")
	executor := mustProfile(t, m, "ezra")
	listener := mustProfile(t, m, "lee")
	m.executors["exec-1"] = store.Executor{ID: "exec-1", ExecutorID: executor.ID, SharerID: sharer.ID}
	m.upsertListener(sharer.ID, listener.ID, false)

	_, err := svc.RevokeListener(context.Background(), callerOf(executor), sharer.ID, listener.ID)
	requireCode(t, err, CodeForbidden)

	connections, err := svc.GetActiveConnections(context.Background(), callerOf(executor), sharer.ID)
	require.NoError(t, err)
	assert.Len(t, connections, 2)
}

func TestRevokeExecutorScopedToSharer(t *testing.T) {
	m := newMemStore()
	svc := newTestService(t, m)
	ownerA, sharerA := mustSharer(t, m, "sam")
	ownerB, sharerB := mustSharer(t, m, "ola")
	executor := mustProfile(t, m, "ezra")
	recordID := util.NewID()
	m.executors[recordID] = store.Executor{ID: recordID, ExecutorID: executor.ID, SharerID: sharerA.ID}
	ctx := context.Background()

	err := svc.RevokeExecutor(ctx, callerOf(ownerB), sharerB.ID, recordID)
	requireCode(t, err, CodeForbidden)
	_, err = m.GetExecutor(ctx, recordID)
	require.NoError(t, err, "row must survive a cross-sharer revoke")

	err = svc.RevokeExecutor(ctx, callerOf(ownerB), sharerA.ID, recordID)
	requireCode(t, err, CodeForbidden)

	require.NoError(t, svc.RevokeExecutor(ctx, callerOf(ownerA), sharerA.ID, recordID))
	_, err = m.GetExecutor(ctx, recordID)
	assert.Error(t, err)

	notes := m.notificationsFor(executor.ID)
	require.Len(t, notes, 1)
	assert.Equal(t, NotificationConnectionRemoved, notes[0].Type)

	err = svc.RevokeExecutor(ctx, callerOf(ownerA), sharerA.ID, recordID)
	requireCode(t, err, CodeNotFound)
}

func TestAuthorizeRolePrecedence(t *testing.T) {
	roles := store.Roles{SharerID: "s1", ExecutorOf: []string{"s2"}, ListenerOf: []string{"s2", "s3"}}
	assert.Equal(t, "SHARER", string(roleFor(roles, "s1")))
	assert.Equal(t, "EXECUTOR", string(roleFor(roles, "s2")))
	assert.Equal(t, "LISTENER", string(roleFor(roles, "s3")))
	assert.Empty(t, string(roleFor(roles, "s4")))
}
