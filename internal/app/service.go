package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"telloom/api/internal/authpw"
	"telloom/api/internal/config"
	"telloom/api/internal/email"
	"telloom/api/internal/export"
	"telloom/api/internal/metrics"
	"telloom/api/internal/search"
	"telloom/api/internal/store"
)

type dataStore interface {
	Ping(context.Context) error

	CreateProfile(context.Context, store.Profile) (store.Profile, error)
	GetProfile(context.Context, string) (store.Profile, error)
	GetProfileByEmail(context.Context, string) (store.Profile, error)
	CreateSharer(context.Context, string) (store.Sharer, error)
	GetSharer(context.Context, string) (store.Sharer, error)
	GetSharerProfile(context.Context, string) (store.PublicProfile, error)
	ResolveRoles(context.Context, string) (store.Roles, error)

	ListConnections(context.Context, string) ([]store.Connection, error)
	GetListener(context.Context, string, string) (store.Listener, error)
	RevokeListener(context.Context, string, string) (bool, error)
	GetExecutor(context.Context, string) (store.Executor, error)
	DeleteExecutor(context.Context, string, string) (bool, error)

	CreateInvitation(context.Context, store.Invitation) (store.Invitation, error)
	HasPendingInvitation(context.Context, string, string, string) (bool, error)
	GetInvitation(context.Context, string) (store.Invitation, error)
	GetInvitationByToken(context.Context, string) (store.Invitation, error)
	ListInvitations(context.Context, string, string) ([]store.Invitation, error)
	AcceptInvitation(context.Context, string, string) (store.Invitation, error)
	DeclineInvitation(context.Context, string) (store.Invitation, error)
	DeleteInvitation(context.Context, string, string) error
	ExpireInvitations(context.Context, time.Time) ([]store.Invitation, error)

	CreateFollowRequest(context.Context, string, string) (store.FollowRequest, error)
	HasPendingFollowRequest(context.Context, string, string) (bool, error)
	GetFollowRequest(context.Context, string) (store.FollowRequest, error)
	ApproveFollowRequest(context.Context, string, bool) (store.FollowRequest, bool, error)
	DenyFollowRequest(context.Context, string) (store.FollowRequest, error)
	ListSharerFollowRequests(context.Context, string, bool) ([]store.FollowRequest, error)
	ListRequestorFollowRequests(context.Context, string) ([]store.FollowRequest, error)

	InsertNotification(context.Context, store.Notification) (store.Notification, error)
	ListNotifications(context.Context, string, bool, int) ([]store.Notification, error)
	UnreadNotificationCount(context.Context, string) (int, error)
	MarkNotificationsRead(context.Context, string, []string) (int64, error)
	MarkAllNotificationsRead(context.Context, string) (int64, error)

	GetPromptCategory(context.Context, string) (store.PromptCategory, error)
	ListTopics(context.Context, string, string, string) ([]store.TopicSummary, error)
	GetTopic(context.Context, string, string, string, string) (store.Topic, error)
	ToggleTopicFavorite(context.Context, string, string, string, string) (bool, error)
	ToggleTopicQueue(context.Context, string, string, string, string) (bool, error)
	ListResponseDocuments(context.Context, string) ([]store.ResponseDocument, error)
}

// sessionStore holds refresh sessions. Both the Redis store and the
// Postgres store satisfy it.
type sessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (string, error)
	RevokeRefreshSession(context.Context, string) error
}

type mailer interface {
	SendInvitationEmail(context.Context, string, email.InvitationData) error
	SendFollowRequestEmail(context.Context, string, email.FollowRequestData) error
	SendFollowApprovedEmail(context.Context, string, email.FollowApprovedData) error
}

type publisher interface {
	Publish(ctx context.Context, userID string, event any) error
}

type presigner interface {
	DownloadURL(ctx context.Context, objectKey, fileName string) (string, error)
}

type searcher interface {
	Search(ctx context.Context, q search.Query) search.Response
	Reindex(records []search.ResponseRecord) (int, error)
}

type exporter interface {
	ExportTopic(ctx context.Context, topic export.Topic) (*export.Result, error)
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  sessionStore
	passwords *authpw.Service
	mailer    mailer
	publisher publisher
	metrics   *metrics.Metrics
	presigner presigner
	search    searcher
	exporter  exporter
	log       *zap.Logger
	now       func() time.Time
}

type Option func(*Service)

// WithSessions replaces the Postgres refresh-session table, typically with Redis.
func WithSessions(sessions sessionStore) Option {
	return func(s *Service) { s.sessions = sessions }
}

func WithMailer(m mailer) Option {
	return func(s *Service) { s.mailer = m }
}

func WithPublisher(p publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithPresigner(p presigner) Option {
	return func(s *Service) { s.presigner = p }
}

func WithSearch(sr searcher) Option {
	return func(s *Service) { s.search = sr }
}

func WithExporter(e exporter) Option {
	return func(s *Service) { s.exporter = e }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New wires a Service. dataStore also backs refresh sessions unless
// WithSessions says otherwise.
func New(cfg config.Config, dataStore dataStore, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		cfg:       cfg,
		store:     dataStore,
		passwords: authpw.NewService(dataStore),
		log:       logger,
		now:       time.Now,
	}
	if sessions, ok := dataStore.(sessionStore); ok {
		s.sessions = sessions
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// emailTimeout bounds a single best-effort send.
func (s *Service) emailTimeout() time.Duration {
	if s.cfg.EmailTimeout > 0 {
		return s.cfg.EmailTimeout
	}
	return 5 * time.Second
}

// sendEmail runs one best-effort send. Failures and timeouts are logged and
// never reach the caller.
func (s *Service) sendEmail(ctx context.Context, kind string, send func(context.Context) error) {
	if s.mailer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.emailTimeout())
	defer cancel()

	err := send(ctx)
	switch {
	case err == nil:
		s.metrics.Email(kind, "sent")
	case errors.Is(err, email.ErrNotConfigured):
		s.metrics.Email(kind, "skipped")
		s.log.Debug("email not configured, skipping send", zap.String("kind", kind))
	default:
		s.metrics.Email(kind, "failed")
		s.log.Warn("email send failed", zap.String("kind", kind), zap.Error(err))
	}
}

func (s *Service) appLink(path string) string {
	return strings.TrimRight(s.cfg.AppURL, "/") + path
}
