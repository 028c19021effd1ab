package app

import (
	"encoding/json"
	"time"

	"telloom/api/internal/store"
)

type ProfileView struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	FullName  string `json:"fullName"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

func profileView(p store.PublicProfile) ProfileView {
	return ProfileView{
		ID:        p.ID,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		FullName:  p.FullName(),
		Email:     p.Email,
		AvatarURL: p.AvatarURL,
	}
}

func publicProfile(p store.Profile) store.PublicProfile {
	return store.PublicProfile{ID: p.ID, FirstName: p.FirstName, LastName: p.LastName, Email: p.Email, AvatarURL: p.AvatarURL}
}

type RolesView struct {
	SharerID   *string  `json:"sharerId"`
	ListenerOf []string `json:"listenerOf"`
	ExecutorOf []string `json:"executorOf"`
}

type MeView struct {
	Profile ProfileView `json:"profile"`
	Phone   string      `json:"phone,omitempty"`
	Roles   RolesView   `json:"roles"`
}

type ConnectionView struct {
	Kind        string      `json:"kind"`
	ID          string      `json:"id"`
	Profile     ProfileView `json:"profile"`
	Relation    string      `json:"relation,omitempty"`
	SharedSince *time.Time  `json:"sharedSince,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
}

func connectionView(c store.Connection) ConnectionView {
	return ConnectionView{
		Kind:        c.Kind,
		ID:          c.RecordID,
		Profile:     profileView(c.Profile),
		Relation:    c.Relation,
		SharedSince: c.SharedSince,
		CreatedAt:   c.CreatedAt,
	}
}

type ExecutorMetaView struct {
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Relation  string `json:"relation,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

type InvitationView struct {
	ID           string            `json:"id"`
	Token        string            `json:"token,omitempty"`
	SharerID     string            `json:"sharerId"`
	InviterID    string            `json:"inviterId"`
	InviteeEmail string            `json:"inviteeEmail"`
	Role         string            `json:"role"`
	Status       string            `json:"status"`
	Executor     *ExecutorMetaView `json:"executor,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// invitationView leaves the token out; only its creator and holder see it.
func invitationView(inv store.Invitation) InvitationView {
	view := InvitationView{
		ID:           inv.ID,
		SharerID:     inv.SharerID,
		InviterID:    inv.InviterID,
		InviteeEmail: inv.InviteeEmail,
		Role:         inv.Role,
		Status:       inv.Status,
		CreatedAt:    inv.CreatedAt,
		UpdatedAt:    inv.UpdatedAt,
	}
	if inv.Executor != (store.ExecutorMeta{}) {
		view.Executor = &ExecutorMetaView{
			FirstName: inv.Executor.FirstName,
			LastName:  inv.Executor.LastName,
			Relation:  inv.Executor.Relation,
			Phone:     inv.Executor.Phone,
		}
	}
	return view
}

type InvitationLookup struct {
	Invitation InvitationView `json:"invitation"`
	Sharer     ProfileView    `json:"sharer"`
}

type FollowRequestView struct {
	ID          string       `json:"id"`
	RequestorID string       `json:"requestorId"`
	SharerID    string       `json:"sharerId"`
	Status      string       `json:"status"`
	ApprovedAt  *time.Time   `json:"approvedAt,omitempty"`
	DeniedAt    *time.Time   `json:"deniedAt,omitempty"`
	RevokedAt   *time.Time   `json:"revokedAt,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	Counterpart *ProfileView `json:"counterpart,omitempty"`
}

func followRequestView(fr store.FollowRequest) FollowRequestView {
	view := FollowRequestView{
		ID:          fr.ID,
		RequestorID: fr.RequestorID,
		SharerID:    fr.SharerID,
		Status:      fr.Status,
		ApprovedAt:  fr.ApprovedAt,
		DeniedAt:    fr.DeniedAt,
		RevokedAt:   fr.RevokedAt,
		CreatedAt:   fr.CreatedAt,
		UpdatedAt:   fr.UpdatedAt,
	}
	if fr.Counterpart.ID != "" {
		counterpart := profileView(fr.Counterpart)
		view.Counterpart = &counterpart
	}
	return view
}

type NotificationView struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	IsRead    bool            `json:"isRead"`
	ReadAt    *time.Time      `json:"readAt,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

func notificationView(n store.Notification) NotificationView {
	data := n.Data
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}
	return NotificationView{
		ID:        n.ID,
		Type:      n.Type,
		Message:   n.Message,
		Data:      data,
		IsRead:    n.IsRead,
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
}

type NotificationList struct {
	Notifications []NotificationView `json:"notifications"`
	UnreadCount   int                `json:"unreadCount"`
}

type TopicSummaryView struct {
	ID             string `json:"id"`
	Category       string `json:"category"`
	Description    string `json:"description"`
	Theme          string `json:"theme,omitempty"`
	PromptCount    int    `json:"promptCount"`
	CompletedCount int    `json:"completedCount"`
	IsFavorite     bool   `json:"isFavorite"`
	IsInQueue      bool   `json:"isInQueue"`
}

func topicSummaryView(t store.TopicSummary) TopicSummaryView {
	return TopicSummaryView{
		ID:             t.ID,
		Category:       t.Category,
		Description:    t.Description,
		Theme:          t.Theme,
		PromptCount:    t.PromptCount,
		CompletedCount: t.CompletedCount,
		IsFavorite:     t.IsFavorite,
		IsInQueue:      t.IsInQueue,
	}
}

type VideoView struct {
	ID            string  `json:"id"`
	MuxPlaybackID string  `json:"muxPlaybackId"`
	Status        string  `json:"status"`
	Duration      float64 `json:"duration"`
}

type AttachmentView struct {
	ID          string `json:"id"`
	FileType    string `json:"fileType"`
	FileName    string `json:"fileName"`
	FileSize    int64  `json:"fileSize"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	DownloadURL string `json:"downloadUrl,omitempty"`
}

type ResponseView struct {
	ID           string           `json:"id"`
	ResponseText string           `json:"responseText"`
	Summary      string           `json:"summary,omitempty"`
	PrivacyLevel string           `json:"privacyLevel,omitempty"`
	Video        *VideoView       `json:"video,omitempty"`
	Attachments  []AttachmentView `json:"attachments"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

type PromptView struct {
	ID                    string        `json:"id"`
	PromptText            string        `json:"promptText"`
	PromptType            string        `json:"promptType"`
	IsContextEstablishing bool          `json:"isContextEstablishing"`
	Response              *ResponseView `json:"response,omitempty"`
}

type TopicView struct {
	TopicSummaryView
	Prompts []PromptView `json:"prompts"`
}
