package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) (*PostgresStore, context.Context) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	dsn := strings.TrimSpace(os.Getenv("TELLOOM_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("TELLOOM_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	t.Cleanup(cancel)

	db, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, ApplyMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations")))
	return NewPostgresStore(db), ctx
}

func createTestProfile(t *testing.T, ctx context.Context, s *PostgresStore, name string) Profile {
	t.Helper()
	profile, err := s.CreateProfile(ctx, Profile{
		Email:     name + "-" + uuid.NewString()[:8] + "@example.test",
		FirstName: name,
	})
	require.NoError(t, err)
	return profile
}

func createTestSharer(t *testing.T, ctx context.Context, s *PostgresStore) (Profile, Sharer) {
	t.Helper()
	owner := createTestProfile(t, ctx, s, "sharer")
	sharer, err := s.CreateSharer(ctx, owner.ID)
	require.NoError(t, err)
	return owner, sharer
}

func TestCreateSharerIsIdempotent(t *testing.T) {
	s, ctx := openTestStore(t)
	owner, first := createTestSharer(t, ctx, s)

	second, err := s.CreateSharer(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestAcceptInvitationTwiceCreatesOneListener(t *testing.T) {
	s, ctx := openTestStore(t)
	owner, sharer := createTestSharer(t, ctx, s)
	invitee := createTestProfile(t, ctx, s, "invitee")

	invitation, err := s.CreateInvitation(ctx, Invitation{
		Token:        uuid.NewString(),
		SharerID:     sharer.ID,
		InviterID:    owner.ID,
		InviteeEmail: invitee.Email,
		Role:         ConnectionListener,
	})
	require.NoError(t, err)

	accepted, err := s.AcceptInvitation(ctx, invitation.ID, invitee.ID)
	require.NoError(t, err)
	assert.Equal(t, "ACCEPTED", accepted.Status)

	again, err := s.AcceptInvitation(ctx, invitation.ID, invitee.ID)
	require.ErrorIs(t, err, ErrStatusChanged)
	assert.Equal(t, "ACCEPTED", again.Status)

	connections, err := s.ListConnections(ctx, sharer.ID)
	require.NoError(t, err)
	require.Len(t, connections, 1)
	assert.Equal(t, invitee.ID, connections[0].Profile.ID)
}

func TestDuplicatePendingInvitationIsRejected(t *testing.T) {
	s, ctx := openTestStore(t)
	owner, sharer := createTestSharer(t, ctx, s)

	base := Invitation{SharerID: sharer.ID, InviterID: owner.ID, InviteeEmail: "dup@example.test", Role: ConnectionListener}
	first := base
	first.Token = uuid.NewString()
	_, err := s.CreateInvitation(ctx, first)
	require.NoError(t, err)

	second := base
	second.Token = uuid.NewString()
	second.InviteeEmail = "DUP@example.test"
	_, err = s.CreateInvitation(ctx, second)
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestInvitationTokenLookupFallsBackToCaseInsensitive(t *testing.T) {
	s, ctx := openTestStore(t)
	owner, sharer := createTestSharer(t, ctx, s)

	token := "MixedCase-" + uuid.NewString()
	created, err := s.CreateInvitation(ctx, Invitation{Token: token, SharerID: sharer.ID, InviterID: owner.ID, InviteeEmail: "case@example.test", Role: ConnectionListener})
	require.NoError(t, err)

	exact, err := s.GetInvitationByToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, created.ID, exact.ID)

	folded, err := s.GetInvitationByToken(ctx, strings.ToLower(token))
	require.NoError(t, err)
	assert.Equal(t, created.ID, folded.ID)

	_, err = s.GetInvitationByToken(ctx, "missing-"+uuid.NewString())
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestConcurrentFollowApprovalsProduceOneListener(t *testing.T) {
	s, ctx := openTestStore(t)
	_, sharer := createTestSharer(t, ctx, s)
	requestor := createTestProfile(t, ctx, s, "requestor")

	request, err := s.CreateFollowRequest(ctx, requestor.ID, sharer.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.ApproveFollowRequest(ctx, request.ID, false)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins, losses int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrStatusChanged):
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, losses)

	var count int
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM profile_listeners WHERE sharer_id=$1 AND listener_id=$2`, sharer.ID, requestor.ID).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestRevokeThenRestoreKeepsRowAndSharedSince(t *testing.T) {
	s, ctx := openTestStore(t)
	_, sharer := createTestSharer(t, ctx, s)
	requestor := createTestProfile(t, ctx, s, "restorer")

	request, err := s.CreateFollowRequest(ctx, requestor.ID, sharer.ID)
	require.NoError(t, err)
	_, _, err = s.ApproveFollowRequest(ctx, request.ID, false)
	require.NoError(t, err)
	before, err := s.GetListener(ctx, sharer.ID, requestor.ID)
	require.NoError(t, err)

	changed, err := s.RevokeListener(ctx, sharer.ID, requestor.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.RevokeListener(ctx, sharer.ID, requestor.ID)
	require.NoError(t, err)
	assert.False(t, changed, "second revoke should be a no-op")

	revoked, err := s.GetFollowRequest(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, "REVOKED", revoked.Status)

	restored, wasRestore, err := s.ApproveFollowRequest(ctx, request.ID, true)
	require.NoError(t, err)
	assert.True(t, wasRestore)
	assert.Equal(t, request.ID, restored.ID)
	assert.Equal(t, "APPROVED", restored.Status)

	after, err := s.GetListener(ctx, sharer.ID, requestor.ID)
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID)
	assert.True(t, after.HasAccess)
	assert.True(t, before.SharedSince.Equal(after.SharedSince))
}

func TestDeleteExecutorScopedToSharer(t *testing.T) {
	s, ctx := openTestStore(t)
	ownerA, sharerA := createTestSharer(t, ctx, s)
	_, sharerB := createTestSharer(t, ctx, s)
	executor := createTestProfile(t, ctx, s, "executor")

	invitation, err := s.CreateInvitation(ctx, Invitation{
		Token:        uuid.NewString(),
		SharerID:     sharerA.ID,
		InviterID:    ownerA.ID,
		InviteeEmail: executor.Email,
		Role:         ConnectionExecutor,
		Executor:     ExecutorMeta{FirstName: "Ex", Relation: "Sibling"},
	})
	require.NoError(t, err)
	_, err = s.AcceptInvitation(ctx, invitation.ID, executor.ID)
	require.NoError(t, err)

	connections, err := s.ListConnections(ctx, sharerA.ID)
	require.NoError(t, err)
	require.Len(t, connections, 1)
	recordID := connections[0].RecordID
	assert.Equal(t, "Sibling", connections[0].Relation)

	deleted, err := s.DeleteExecutor(ctx, sharerB.ID, recordID)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = s.GetExecutor(ctx, recordID)
	require.NoError(t, err, "row must survive a cross-sharer delete")
}

func TestExpireInvitationsOnlyTouchesOldPending(t *testing.T) {
	s, ctx := openTestStore(t)
	owner, sharer := createTestSharer(t, ctx, s)

	stale, err := s.CreateInvitation(ctx, Invitation{Token: uuid.NewString(), SharerID: sharer.ID, InviterID: owner.ID, InviteeEmail: "old@example.test", Role: ConnectionListener})
	require.NoError(t, err)
	_, err = s.DB().ExecContext(ctx, `UPDATE invitations SET created_at = NOW() - INTERVAL '30 days' WHERE id=$1`, stale.ID)
	require.NoError(t, err)

	fresh, err := s.CreateInvitation(ctx, Invitation{Token: uuid.NewString(), SharerID: sharer.ID, InviterID: owner.ID, InviteeEmail: "new@example.test", Role: ConnectionListener})
	require.NoError(t, err)

	_, err = s.ExpireInvitations(ctx, time.Now().Add(-7*24*time.Hour))
	require.NoError(t, err)

	got, err := s.GetInvitation(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, "EXPIRED", got.Status)

	got, err = s.GetInvitation(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, "PENDING", got.Status)
}

func TestRestoreWithNewerPendingRequest(t *testing.T) {
	s, ctx := openTestStore(t)
	_, sharer := createTestSharer(t, ctx, s)
	requestor := createTestProfile(t, ctx, s, "requestor")

	first, err := s.CreateFollowRequest(ctx, requestor.ID, sharer.ID)
	require.NoError(t, err)
	_, _, err = s.ApproveFollowRequest(ctx, first.ID, false)
	require.NoError(t, err)
	_, err = s.RevokeListener(ctx, sharer.ID, requestor.ID)
	require.NoError(t, err)

	second, err := s.CreateFollowRequest(ctx, requestor.ID, sharer.ID)
	require.NoError(t, err)

	restored, wasRestore, err := s.ApproveFollowRequest(ctx, first.ID, true)
	require.NoError(t, err)
	assert.True(t, wasRestore)
	assert.Equal(t, "APPROVED", restored.Status)

	settled, err := s.GetFollowRequest(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "APPROVED", settled.Status)

	listener, err := s.GetListener(ctx, sharer.ID, requestor.ID)
	require.NoError(t, err)
	assert.True(t, listener.HasAccess)
}
