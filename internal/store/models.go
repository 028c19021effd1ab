package store

import (
	"encoding/json"
	"strings"
	"time"
)

type Profile struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	AvatarURL    string
	Phone        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (p Profile) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// PublicProfile is the subset of a Profile shown to other people.
type PublicProfile struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	AvatarURL string
}

func (p PublicProfile) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

type Sharer struct {
	ID        string
	ProfileID string
	CreatedAt time.Time
}

// Roles lists the sharer ids a profile holds each role for.
type Roles struct {
	ProfileID  string
	SharerID   string
	ListenerOf []string
	ExecutorOf []string
}

type Listener struct {
	ID          string
	ListenerID  string
	SharerID    string
	HasAccess   bool
	SharedSince time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type ExecutorMeta struct {
	FirstName string
	LastName  string
	Relation  string
	Phone     string
}

type Executor struct {
	ID         string
	ExecutorID string
	SharerID   string
	ExecutorMeta
	CreatedAt time.Time
}

const (
	ConnectionListener = "LISTENER"
	ConnectionExecutor = "EXECUTOR"
)

// Connection is one active listener or executor of a sharer, joined with the
// counterpart's profile.
type Connection struct {
	Kind        string
	RecordID    string
	Profile     PublicProfile
	Relation    string
	SharedSince *time.Time
	CreatedAt   time.Time
}

type Invitation struct {
	ID           string
	Token        string
	SharerID     string
	InviterID    string
	InviteeEmail string
	Role         string
	Status       string
	Executor     ExecutorMeta
	AcceptedBy   *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type FollowRequest struct {
	ID          string
	RequestorID string
	SharerID    string
	Status      string
	ApprovedAt  *time.Time
	DeniedAt    *time.Time
	RevokedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	// Counterpart is the requestor on sharer-side listings and the sharer's
	// profile on requestor-side listings. Empty on single-row reads.
	Counterpart PublicProfile
}

type Notification struct {
	ID        string
	UserID    string
	Type      string
	Message   string
	Data      json.RawMessage
	IsRead    bool
	ReadAt    *time.Time
	CreatedAt time.Time
}

type PromptCategory struct {
	ID          string
	Category    string
	Description string
	Theme       string
}

// TopicSummary is a category with the sharer's progress and the caller's
// per-role marks.
type TopicSummary struct {
	PromptCategory
	PromptCount    int
	CompletedCount int
	IsFavorite     bool
	IsInQueue      bool
}

type Prompt struct {
	ID                    string
	PromptText            string
	PromptType            string
	IsContextEstablishing bool
	PromptCategoryID      string
	Response              *PromptResponse
}

type Video struct {
	ID            string
	MuxPlaybackID string
	Status        string
	Duration      float64
}

type PromptResponse struct {
	ID              string
	ProfileSharerID string
	PromptID        string
	ResponseText    string
	Summary         string
	PrivacyLevel    string
	Video           *Video
	Attachments     []Attachment
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Attachment struct {
	ID               string
	PromptResponseID string
	ProfileSharerID  string
	ObjectKey        string
	FileType         string
	FileName         string
	FileSize         int64
	Title            string
	Description      string
}

type Topic struct {
	TopicSummary
	Prompts []Prompt
}

// ResponseDocument is the flattened row fed to the search index.
type ResponseDocument struct {
	ID           string
	SharerID     string
	PromptID     string
	PromptText   string
	CategoryID   string
	Category     string
	ResponseText string
	Summary      string
	UpdatedAt    time.Time
}
