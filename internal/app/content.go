package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"telloom/api/internal/export"
	"telloom/api/internal/rbac"
	"telloom/api/internal/search"
	"telloom/api/internal/store"
	"telloom/api/internal/util"
)

func (s *Service) ListTopics(ctx context.Context, caller Caller, sharerID string) ([]TopicSummaryView, error) {
	role, err := s.authorize(ctx, caller, sharerID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	topics, err := s.store.ListTopics(ctx, sharerID, caller.ProfileID, string(role))
	if err != nil {
		return nil, err
	}
	views := make([]TopicSummaryView, 0, len(topics))
	for _, topic := range topics {
		views = append(views, topicSummaryView(topic))
	}
	return views, nil
}

func (s *Service) loadTopic(ctx context.Context, caller Caller, sharerID, categoryID string) (store.Topic, error) {
	role, err := s.authorize(ctx, caller, sharerID, rbac.ActionRead)
	if err != nil {
		return store.Topic{}, err
	}
	if !util.IsUUID(categoryID) {
		return store.Topic{}, errNotFound("Topic")
	}
	topic, err := s.store.GetTopic(ctx, sharerID, categoryID, caller.ProfileID, string(role))
	if errors.Is(err, sql.ErrNoRows) {
		return store.Topic{}, errNotFound("Topic")
	}
	return topic, err
}

func (s *Service) GetTopic(ctx context.Context, caller Caller, sharerID, categoryID string) (TopicView, error) {
	topic, err := s.loadTopic(ctx, caller, sharerID, categoryID)
	if err != nil {
		return TopicView{}, err
	}

	view := TopicView{TopicSummaryView: topicSummaryView(topic.TopicSummary), Prompts: make([]PromptView, 0, len(topic.Prompts))}
	for _, prompt := range topic.Prompts {
		pv := PromptView{
			ID:                    prompt.ID,
			PromptText:            prompt.PromptText,
			PromptType:            prompt.PromptType,
			IsContextEstablishing: prompt.IsContextEstablishing,
		}
		if r := prompt.Response; r != nil {
			rv := &ResponseView{
				ID:           r.ID,
				ResponseText: r.ResponseText,
				Summary:      r.Summary,
				PrivacyLevel: r.PrivacyLevel,
				Attachments:  make([]AttachmentView, 0, len(r.Attachments)),
				CreatedAt:    r.CreatedAt,
				UpdatedAt:    r.UpdatedAt,
			}
			if r.Video != nil {
				rv.Video = &VideoView{ID: r.Video.ID, MuxPlaybackID: r.Video.MuxPlaybackID, Status: r.Video.Status, Duration: r.Video.Duration}
			}
			for _, a := range r.Attachments {
				rv.Attachments = append(rv.Attachments, s.attachmentView(ctx, a))
			}
			pv.Response = rv
		}
		view.Prompts = append(view.Prompts, pv)
	}
	return view, nil
}

// attachmentView signs a download URL when object storage is configured.
// A signing failure leaves the URL empty.
func (s *Service) attachmentView(ctx context.Context, a store.Attachment) AttachmentView {
	view := AttachmentView{
		ID:          a.ID,
		FileType:    a.FileType,
		FileName:    a.FileName,
		FileSize:    a.FileSize,
		Title:       a.Title,
		Description: a.Description,
	}
	if s.presigner == nil || a.ObjectKey == "" {
		return view
	}
	signed, err := s.presigner.DownloadURL(ctx, a.ObjectKey, a.FileName)
	if err != nil {
		s.log.Warn("presign attachment", zap.String("attachment_id", a.ID), zap.Error(err))
		return view
	}
	view.DownloadURL = signed
	return view
}

// ToggleTopicFavorite flips the caller's favorite mark for the role they
// hold with the sharer and reports the new state.
func (s *Service) ToggleTopicFavorite(ctx context.Context, caller Caller, sharerID, categoryID string) (bool, error) {
	return s.toggleTopicMark(ctx, caller, sharerID, categoryID, s.store.ToggleTopicFavorite)
}

func (s *Service) ToggleTopicQueue(ctx context.Context, caller Caller, sharerID, categoryID string) (bool, error) {
	return s.toggleTopicMark(ctx, caller, sharerID, categoryID, s.store.ToggleTopicQueue)
}

func (s *Service) toggleTopicMark(
	ctx context.Context,
	caller Caller,
	sharerID, categoryID string,
	toggle func(ctx context.Context, viewerID, categoryID, sharerID, role string) (bool, error),
) (bool, error) {
	role, err := s.authorize(ctx, caller, sharerID, rbac.ActionRead)
	if err != nil {
		return false, err
	}
	if !util.IsUUID(categoryID) {
		return false, errNotFound("Topic")
	}
	if _, err := s.store.GetPromptCategory(ctx, categoryID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, errNotFound("Topic")
		}
		return false, err
	}
	return toggle(ctx, caller.ProfileID, categoryID, sharerID, string(role))
}

type SearchInput struct {
	Query      string
	CategoryID string
	Limit      int
	Offset     int
}

// SearchResponses searches one sharer's responses.
func (s *Service) SearchResponses(ctx context.Context, caller Caller, sharerID string, input SearchInput) (search.Response, error) {
	if _, err := s.authorize(ctx, caller, sharerID, rbac.ActionRead); err != nil {
		return search.Response{}, err
	}
	text := strings.TrimSpace(input.Query)
	empty := search.Response{Results: []search.Result{}, Query: text}
	if text == "" || s.search == nil {
		return empty, nil
	}
	return s.search.Search(ctx, search.Query{
		Text:       text,
		SharerID:   sharerID,
		CategoryID: strings.TrimSpace(input.CategoryID),
		Limit:      input.Limit,
		Offset:     input.Offset,
	}), nil
}

// ReindexResponses pushes stored responses to the search index. An empty
// sharerID reindexes everyone.
func (s *Service) ReindexResponses(ctx context.Context, sharerID string) (int, error) {
	if s.search == nil {
		return 0, nil
	}
	docs, err := s.store.ListResponseDocuments(ctx, sharerID)
	if err != nil {
		return 0, err
	}
	records := make([]search.ResponseRecord, 0, len(docs))
	for _, d := range docs {
		records = append(records, search.NewResponseRecord(d.ID, d.SharerID, d.PromptID, d.PromptText, d.CategoryID, d.Category, d.ResponseText, d.Summary, d.UpdatedAt))
	}
	return s.search.Reindex(records)
}

// ExportTopic renders one topic of a sharer to PDF.
func (s *Service) ExportTopic(ctx context.Context, caller Caller, sharerID, categoryID string) (*export.Result, error) {
	topic, err := s.loadTopic(ctx, caller, sharerID, categoryID)
	if err != nil {
		return nil, err
	}
	if s.exporter == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export is not available", nil)
	}
	sharer, err := s.store.GetSharerProfile(ctx, sharerID)
	if err != nil {
		return nil, err
	}

	doc := export.Topic{
		SharerName:  displayName(sharer),
		Category:    topic.Category,
		Description: topic.Description,
		GeneratedAt: s.now(),
		Prompts:     make([]export.Prompt, 0, len(topic.Prompts)),
	}
	for _, prompt := range topic.Prompts {
		item := export.Prompt{Text: prompt.PromptText}
		if r := prompt.Response; r != nil {
			item.Response = r.ResponseText
			item.Summary = r.Summary
			item.HasVideo = r.Video != nil
			item.AnsweredAt = r.UpdatedAt
			for _, a := range r.Attachments {
				item.Attachments = append(item.Attachments, firstNonBlank(a.Title, a.FileName))
			}
		}
		doc.Prompts = append(doc.Prompts, item)
	}

	result, err := s.exporter.ExportTopic(ctx, doc)
	if errors.Is(err, export.ErrPDFDependencyMissing) {
		s.log.Warn("topic export unavailable", zap.Error(err))
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export is not available", nil)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
