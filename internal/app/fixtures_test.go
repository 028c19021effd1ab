package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"telloom/api/internal/auth"
	"telloom/api/internal/config"
	"telloom/api/internal/email"
	"telloom/api/internal/export"
	"telloom/api/internal/search"
	"telloom/api/internal/store"
)

const testJWTSecret = "test-secret"

type sentEmail struct {
	kind string
	to   string
	data any
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (f *fakeMailer) record(kind, to string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentEmail{kind: kind, to: to, data: data})
	return nil
}

func (f *fakeMailer) SendInvitationEmail(_ context.Context, to string, data email.InvitationData) error {
	return f.record("invitation", to, data)
}

func (f *fakeMailer) SendFollowRequestEmail(_ context.Context, to string, data email.FollowRequestData) error {
	return f.record("follow_request", to, data)
}

func (f *fakeMailer) SendFollowApprovedEmail(_ context.Context, to string, data email.FollowApprovedData) error {
	return f.record("follow_approved", to, data)
}

func (f *fakeMailer) emails() []sentEmail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentEmail(nil), f.sent...)
}

type publishedEvent struct {
	userID string
	event  any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (f *fakePublisher) Publish(_ context.Context, userID string, event any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedEvent{userID: userID, event: event})
	return nil
}

type fakeExporter struct {
	got    export.Topic
	result *export.Result
	err    error
}

func (f *fakeExporter) ExportTopic(_ context.Context, topic export.Topic) (*export.Result, error) {
	f.got = topic
	return f.result, f.err
}

type fakeSearcher struct {
	queries []search.Query
	indexed []search.ResponseRecord
}

func (f *fakeSearcher) Search(_ context.Context, q search.Query) search.Response {
	f.queries = append(f.queries, q)
	return search.Response{Results: []search.Result{{ID: "r-1", Snippet: q.Text}}, Total: 1, Query: q.Text}
}

func (f *fakeSearcher) Reindex(records []search.ResponseRecord) (int, error) {
	f.indexed = append(f.indexed, records...)
	return len(records), nil
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:     testJWTSecret,
		AccessTTL:     time.Hour,
		RefreshTTL:    24 * time.Hour,
		AppURL:        "https://app.telloom.test/",
		InvitationTTL: 7 * 24 * time.Hour,
		EmailTimeout:  time.Second,
	}
}

func newTestService(t *testing.T, m *memStore, opts ...Option) *Service {
	t.Helper()
	return New(testConfig(), m, zaptest.NewLogger(t), opts...)
}

func mustProfile(t *testing.T, m *memStore, name string) store.Profile {
	t.Helper()
	profile, err := m.CreateProfile(context.Background(), store.Profile{
		Email:     name + "@example.test",
		FirstName: name,
	})
	require.NoError(t, err)
	return profile
}

func mustSharer(t *testing.T, m *memStore, name string) (store.Profile, store.Sharer) {
	t.Helper()
	profile := mustProfile(t, m, name)
	sharer, err := m.CreateSharer(context.Background(), profile.ID)
	require.NoError(t, err)
	return profile, sharer
}

func callerOf(p store.Profile) Caller {
	return Caller{ProfileID: p.ID, Email: p.Email}
}

func bearerFor(t *testing.T, p store.Profile) string {
	t.Helper()
	token, err := auth.IssueToken([]byte(testJWTSecret), p.ID, p.Email, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	require.Truef(t, IsCode(err, code), "expected %s, got %v", code, err)
}
