package app

import (
	"context"
	"database/sql"
	"slices"
	"strings"
	"sync"
	"time"

	"telloom/api/internal/store"
	"telloom/api/internal/util"
)

// memStore is an in-memory dataStore. Status transitions follow the same
// compare-and-set rules as the Postgres store, under a single lock.
type memStore struct {
	mu sync.Mutex

	profiles       map[string]store.Profile
	sharers        map[string]store.Sharer
	listeners      map[string]*store.Listener
	executors      map[string]store.Executor
	invitations    map[string]*store.Invitation
	followRequests map[string]*store.FollowRequest
	notifications  []store.Notification
	sessions       map[string]memSession
	categories     map[string]store.PromptCategory
	marks          map[string]bool
	documents      []store.ResponseDocument

	pingErr         error
	notificationErr error
}

type memSession struct {
	profileID string
	expiresAt time.Time
	revoked   bool
}

func newMemStore() *memStore {
	return &memStore{
		profiles:       map[string]store.Profile{},
		sharers:        map[string]store.Sharer{},
		listeners:      map[string]*store.Listener{},
		executors:      map[string]store.Executor{},
		invitations:    map[string]*store.Invitation{},
		followRequests: map[string]*store.FollowRequest{},
		sessions:       map[string]memSession{},
		categories:     map[string]store.PromptCategory{},
		marks:          map[string]bool{},
	}
}

func listenerKey(sharerID, listenerID string) string {
	return sharerID + "/" + listenerID
}

func (m *memStore) Ping(context.Context) error { return m.pingErr }

func (m *memStore) CreateProfile(_ context.Context, p store.Profile) (store.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.profiles {
		if strings.EqualFold(existing.Email, p.Email) {
			return store.Profile{}, store.ErrDuplicate
		}
	}
	if p.ID == "" {
		p.ID = util.NewID()
	}
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	m.profiles[p.ID] = p
	return p, nil
}

func (m *memStore) GetProfile(_ context.Context, id string) (store.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return store.Profile{}, sql.ErrNoRows
	}
	return p, nil
}

func (m *memStore) GetProfileByEmail(_ context.Context, email string) (store.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if strings.EqualFold(p.Email, strings.TrimSpace(email)) {
			return p, nil
		}
	}
	return store.Profile{}, sql.ErrNoRows
}

func (m *memStore) CreateSharer(_ context.Context, profileID string) (store.Sharer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sh := range m.sharers {
		if sh.ProfileID == profileID {
			return sh, nil
		}
	}
	sh := store.Sharer{ID: util.NewID(), ProfileID: profileID, CreatedAt: time.Now().UTC()}
	m.sharers[sh.ID] = sh
	return sh, nil
}

func (m *memStore) GetSharer(_ context.Context, sharerID string) (store.Sharer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sh, ok := m.sharers[sharerID]
	if !ok {
		return store.Sharer{}, sql.ErrNoRows
	}
	return sh, nil
}

func (m *memStore) GetSharerProfile(_ context.Context, sharerID string) (store.PublicProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sh, ok := m.sharers[sharerID]
	if !ok {
		return store.PublicProfile{}, sql.ErrNoRows
	}
	p, ok := m.profiles[sh.ProfileID]
	if !ok {
		return store.PublicProfile{}, sql.ErrNoRows
	}
	return publicProfile(p), nil
}

func (m *memStore) ResolveRoles(_ context.Context, profileID string) (store.Roles, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	roles := store.Roles{ProfileID: profileID, ListenerOf: []string{}, ExecutorOf: []string{}}
	for _, sh := range m.sharers {
		if sh.ProfileID == profileID {
			roles.SharerID = sh.ID
		}
	}
	for _, l := range m.listeners {
		if l.ListenerID == profileID && l.HasAccess {
			roles.ListenerOf = append(roles.ListenerOf, l.SharerID)
		}
	}
	for _, e := range m.executors {
		if e.ExecutorID == profileID {
			roles.ExecutorOf = append(roles.ExecutorOf, e.SharerID)
		}
	}
	slices.Sort(roles.ListenerOf)
	slices.Sort(roles.ExecutorOf)
	return roles, nil
}

func (m *memStore) ListConnections(_ context.Context, sharerID string) ([]store.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]store.Connection, 0)
	for _, l := range m.listeners {
		if l.SharerID != sharerID || !l.HasAccess {
			continue
		}
		since := l.SharedSince
		items = append(items, store.Connection{
			Kind:        store.ConnectionListener,
			RecordID:    l.ID,
			Profile:     publicProfile(m.profiles[l.ListenerID]),
			SharedSince: &since,
			CreatedAt:   l.CreatedAt,
		})
	}
	for _, e := range m.executors {
		if e.SharerID != sharerID {
			continue
		}
		items = append(items, store.Connection{
			Kind:      store.ConnectionExecutor,
			RecordID:  e.ID,
			Profile:   publicProfile(m.profiles[e.ExecutorID]),
			Relation:  e.Relation,
			CreatedAt: e.CreatedAt,
		})
	}
	slices.SortFunc(items, func(a, b store.Connection) int { return strings.Compare(a.RecordID, b.RecordID) })
	return items, nil
}

func (m *memStore) GetListener(_ context.Context, sharerID, listenerID string) (store.Listener, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listeners[listenerKey(sharerID, listenerID)]
	if !ok {
		return store.Listener{}, sql.ErrNoRows
	}
	return *l, nil
}

func (m *memStore) RevokeListener(_ context.Context, sharerID, listenerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listeners[listenerKey(sharerID, listenerID)]
	if !ok {
		return false, sql.ErrNoRows
	}
	if !l.HasAccess {
		return false, nil
	}
	now := time.Now().UTC()
	l.HasAccess = false
	l.UpdatedAt = now
	for _, fr := range m.followRequests {
		if fr.SharerID == sharerID && fr.RequestorID == listenerID && fr.Status == "APPROVED" {
			fr.Status = "REVOKED"
			fr.RevokedAt = &now
			fr.UpdatedAt = now
		}
	}
	return true, nil
}

func (m *memStore) GetExecutor(_ context.Context, id string) (store.Executor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executors[id]
	if !ok {
		return store.Executor{}, sql.ErrNoRows
	}
	return e, nil
}

func (m *memStore) DeleteExecutor(_ context.Context, sharerID, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executors[id]
	if !ok || e.SharerID != sharerID {
		return false, nil
	}
	delete(m.executors, id)
	return true, nil
}

// upsertListener must be called with mu held.
func (m *memStore) upsertListener(sharerID, listenerID string, keepSince bool) {
	now := time.Now().UTC()
	key := listenerKey(sharerID, listenerID)
	if l, ok := m.listeners[key]; ok {
		l.HasAccess = true
		l.UpdatedAt = now
		if !keepSince {
			l.SharedSince = now
		}
		return
	}
	m.listeners[key] = &store.Listener{
		ID: util.NewID(), ListenerID: listenerID, SharerID: sharerID,
		HasAccess: true, SharedSince: now, CreatedAt: now, UpdatedAt: now,
	}
}

func (m *memStore) CreateInvitation(_ context.Context, item store.Invitation) (store.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invitations {
		if inv.Token == item.Token {
			return store.Invitation{}, store.ErrDuplicate
		}
		if inv.SharerID == item.SharerID && inv.Role == item.Role && inv.Status == "PENDING" &&
			strings.EqualFold(inv.InviteeEmail, item.InviteeEmail) {
			return store.Invitation{}, store.ErrDuplicate
		}
	}
	now := time.Now().UTC()
	item.ID = util.NewID()
	item.Status = "PENDING"
	item.CreatedAt = now
	item.UpdatedAt = now
	stored := item
	m.invitations[item.ID] = &stored
	return item, nil
}

func (m *memStore) HasPendingInvitation(_ context.Context, sharerID, email, role string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invitations {
		if inv.SharerID == sharerID && inv.Role == role && inv.Status == "PENDING" &&
			strings.EqualFold(inv.InviteeEmail, strings.TrimSpace(email)) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) GetInvitation(_ context.Context, id string) (store.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invitations[id]
	if !ok {
		return store.Invitation{}, sql.ErrNoRows
	}
	return *inv, nil
}

func (m *memStore) GetInvitationByToken(_ context.Context, token string) (store.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invitations {
		if inv.Token == token {
			return *inv, nil
		}
	}
	for _, inv := range m.invitations {
		if strings.EqualFold(inv.Token, token) {
			return *inv, nil
		}
	}
	return store.Invitation{}, sql.ErrNoRows
}

func (m *memStore) ListInvitations(_ context.Context, sharerID, status string) ([]store.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]store.Invitation, 0)
	for _, inv := range m.invitations {
		if inv.SharerID == sharerID && (status == "" || inv.Status == status) {
			items = append(items, *inv)
		}
	}
	slices.SortFunc(items, func(a, b store.Invitation) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return items, nil
}

func (m *memStore) AcceptInvitation(_ context.Context, id, profileID string) (store.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invitations[id]
	if !ok {
		return store.Invitation{}, sql.ErrNoRows
	}
	if inv.Status != "PENDING" {
		return *inv, store.ErrStatusChanged
	}
	inv.Status = "ACCEPTED"
	inv.AcceptedBy = &profileID
	inv.UpdatedAt = time.Now().UTC()
	switch inv.Role {
	case store.ConnectionListener:
		m.upsertListener(inv.SharerID, profileID, false)
	case store.ConnectionExecutor:
		for _, e := range m.executors {
			if e.SharerID == inv.SharerID && e.ExecutorID == profileID {
				return *inv, nil
			}
		}
		e := store.Executor{ID: util.NewID(), ExecutorID: profileID, SharerID: inv.SharerID, ExecutorMeta: inv.Executor, CreatedAt: time.Now().UTC()}
		m.executors[e.ID] = e
	}
	return *inv, nil
}

func (m *memStore) DeclineInvitation(_ context.Context, id string) (store.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invitations[id]
	if !ok {
		return store.Invitation{}, sql.ErrNoRows
	}
	if inv.Status != "PENDING" {
		return *inv, store.ErrStatusChanged
	}
	inv.Status = "DECLINED"
	inv.UpdatedAt = time.Now().UTC()
	return *inv, nil
}

func (m *memStore) DeleteInvitation(_ context.Context, sharerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invitations[id]
	if !ok || inv.SharerID != sharerID || inv.Status != "PENDING" {
		return store.ErrStatusChanged
	}
	delete(m.invitations, id)
	return nil
}

func (m *memStore) ExpireInvitations(_ context.Context, cutoff time.Time) ([]store.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]store.Invitation, 0)
	for _, inv := range m.invitations {
		if inv.Status == "PENDING" && inv.CreatedAt.Before(cutoff) {
			inv.Status = "EXPIRED"
			inv.UpdatedAt = time.Now().UTC()
			items = append(items, *inv)
		}
	}
	return items, nil
}

func (m *memStore) CreateFollowRequest(_ context.Context, requestorID, sharerID string) (store.FollowRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, fr := range m.followRequests {
		if fr.RequestorID == requestorID && fr.SharerID == sharerID && (fr.Status == "PENDING" || fr.Status == "APPROVED") {
			return store.FollowRequest{}, store.ErrDuplicate
		}
	}
	now := time.Now().UTC()
	fr := &store.FollowRequest{ID: util.NewID(), RequestorID: requestorID, SharerID: sharerID, Status: "PENDING", CreatedAt: now, UpdatedAt: now}
	m.followRequests[fr.ID] = fr
	return *fr, nil
}

func (m *memStore) HasPendingFollowRequest(_ context.Context, requestorID, sharerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, fr := range m.followRequests {
		if fr.RequestorID == requestorID && fr.SharerID == sharerID && fr.Status == "PENDING" {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) GetFollowRequest(_ context.Context, id string) (store.FollowRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fr, ok := m.followRequests[id]
	if !ok {
		return store.FollowRequest{}, sql.ErrNoRows
	}
	return *fr, nil
}

func (m *memStore) ApproveFollowRequest(_ context.Context, id string, restoreOnly bool) (store.FollowRequest, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fr, ok := m.followRequests[id]
	if !ok {
		return store.FollowRequest{}, false, sql.ErrNoRows
	}
	restored := false
	now := time.Now().UTC()
	switch {
	case fr.Status == "REVOKED":
		restored = true
		for _, other := range m.followRequests {
			if other.ID != fr.ID && other.RequestorID == fr.RequestorID && other.SharerID == fr.SharerID && other.Status == "PENDING" {
				other.Status = "APPROVED"
				other.ApprovedAt = &now
				other.UpdatedAt = now
			}
		}
	case fr.Status == "PENDING" && !restoreOnly:
	default:
		return *fr, false, store.ErrStatusChanged
	}
	fr.Status = "APPROVED"
	fr.ApprovedAt = &now
	fr.DeniedAt = nil
	fr.RevokedAt = nil
	fr.UpdatedAt = now
	m.upsertListener(fr.SharerID, fr.RequestorID, restored)
	return *fr, restored, nil
}

func (m *memStore) DenyFollowRequest(_ context.Context, id string) (store.FollowRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fr, ok := m.followRequests[id]
	if !ok {
		return store.FollowRequest{}, sql.ErrNoRows
	}
	if fr.Status != "PENDING" {
		return *fr, store.ErrStatusChanged
	}
	now := time.Now().UTC()
	fr.Status = "DENIED"
	fr.DeniedAt = &now
	fr.UpdatedAt = now
	return *fr, nil
}

func (m *memStore) ListSharerFollowRequests(_ context.Context, sharerID string, pending bool) ([]store.FollowRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]store.FollowRequest, 0)
	for _, fr := range m.followRequests {
		if fr.SharerID == sharerID && (fr.Status == "PENDING") == pending {
			item := *fr
			item.Counterpart = publicProfile(m.profiles[fr.RequestorID])
			items = append(items, item)
		}
	}
	return items, nil
}

func (m *memStore) ListRequestorFollowRequests(_ context.Context, requestorID string) ([]store.FollowRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]store.FollowRequest, 0)
	for _, fr := range m.followRequests {
		if fr.RequestorID == requestorID {
			item := *fr
			item.Counterpart = publicProfile(m.profiles[m.sharers[fr.SharerID].ProfileID])
			items = append(items, item)
		}
	}
	return items, nil
}

func (m *memStore) InsertNotification(_ context.Context, n store.Notification) (store.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.notificationErr != nil {
		return store.Notification{}, m.notificationErr
	}
	n.ID = util.NewID()
	n.CreatedAt = time.Now().UTC()
	m.notifications = append(m.notifications, n)
	return n, nil
}

func (m *memStore) ListNotifications(_ context.Context, userID string, unreadOnly bool, limit int) ([]store.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]store.Notification, 0)
	for i := len(m.notifications) - 1; i >= 0; i-- {
		n := m.notifications[i]
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		items = append(items, n)
		if limit > 0 && len(items) == limit {
			break
		}
	}
	return items, nil
}

func (m *memStore) UnreadNotificationCount(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, n := range m.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (m *memStore) MarkNotificationsRead(_ context.Context, userID string, ids []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var updated int64
	now := time.Now().UTC()
	for i := range m.notifications {
		n := &m.notifications[i]
		if n.UserID == userID && !n.IsRead && slices.Contains(ids, n.ID) {
			n.IsRead = true
			n.ReadAt = &now
			updated++
		}
	}
	return updated, nil
}

func (m *memStore) MarkAllNotificationsRead(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var updated int64
	now := time.Now().UTC()
	for i := range m.notifications {
		n := &m.notifications[i]
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			n.ReadAt = &now
			updated++
		}
	}
	return updated, nil
}

func (m *memStore) GetPromptCategory(_ context.Context, id string) (store.PromptCategory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.categories[id]
	if !ok {
		return store.PromptCategory{}, sql.ErrNoRows
	}
	return c, nil
}

func markKey(kind, viewerID, categoryID, sharerID, role string) string {
	return strings.Join([]string{kind, viewerID, categoryID, sharerID, role}, "/")
}

func (m *memStore) topicSummary(c store.PromptCategory, sharerID, viewerID, role string) store.TopicSummary {
	return store.TopicSummary{
		PromptCategory: c,
		IsFavorite:     m.marks[markKey("favorite", viewerID, c.ID, sharerID, role)],
		IsInQueue:      m.marks[markKey("queue", viewerID, c.ID, sharerID, role)],
	}
}

func (m *memStore) ListTopics(_ context.Context, sharerID, viewerID, role string) ([]store.TopicSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]store.TopicSummary, 0, len(m.categories))
	for _, c := range m.categories {
		items = append(items, m.topicSummary(c, sharerID, viewerID, role))
	}
	slices.SortFunc(items, func(a, b store.TopicSummary) int { return strings.Compare(a.Category, b.Category) })
	return items, nil
}

func (m *memStore) GetTopic(_ context.Context, sharerID, categoryID, viewerID, role string) (store.Topic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.categories[categoryID]
	if !ok {
		return store.Topic{}, sql.ErrNoRows
	}
	return store.Topic{TopicSummary: m.topicSummary(c, sharerID, viewerID, role), Prompts: []store.Prompt{}}, nil
}

func (m *memStore) toggle(kind, viewerID, categoryID, sharerID, role string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := markKey(kind, viewerID, categoryID, sharerID, role)
	m.marks[key] = !m.marks[key]
	return m.marks[key]
}

func (m *memStore) ToggleTopicFavorite(_ context.Context, viewerID, categoryID, sharerID, role string) (bool, error) {
	return m.toggle("favorite", viewerID, categoryID, sharerID, role), nil
}

func (m *memStore) ToggleTopicQueue(_ context.Context, viewerID, categoryID, sharerID, role string) (bool, error) {
	return m.toggle("queue", viewerID, categoryID, sharerID, role), nil
}

func (m *memStore) ListResponseDocuments(_ context.Context, sharerID string) ([]store.ResponseDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]store.ResponseDocument, 0)
	for _, d := range m.documents {
		if sharerID == "" || d.SharerID == sharerID {
			items = append(items, d)
		}
	}
	return items, nil
}

func (m *memStore) SaveRefreshSession(_ context.Context, tokenHash, profileID string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[tokenHash] = memSession{profileID: profileID, expiresAt: expiresAt}
	return nil
}

func (m *memStore) LookupRefreshSession(_ context.Context, tokenHash string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[tokenHash]
	if !ok || sess.revoked || time.Now().After(sess.expiresAt) {
		return "", sql.ErrNoRows
	}
	return sess.profileID, nil
}

func (m *memStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[tokenHash]; ok {
		sess.revoked = true
		m.sessions[tokenHash] = sess
	}
	return nil
}

func (m *memStore) notificationsFor(userID string) []store.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]store.Notification, 0)
	for _, n := range m.notifications {
		if n.UserID == userID {
			items = append(items, n)
		}
	}
	return items
}

func (m *memStore) listenerRows(sharerID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, l := range m.listeners {
		if l.SharerID == sharerID {
			count++
		}
	}
	return count
}
