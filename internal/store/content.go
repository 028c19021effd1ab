package store

import (
	"context"
	"database/sql"
	"fmt"
)

const topicSummaryQuery = `
	SELECT c.id, c.category, c.description, c.theme,
		(SELECT COUNT(*) FROM prompts p WHERE p.prompt_category_id = c.id) AS prompt_count,
		(SELECT COUNT(*) FROM prompt_responses r
			JOIN prompts p ON p.id = r.prompt_id
			WHERE p.prompt_category_id = c.id AND r.profile_sharer_id = $1) AS completed_count,
		EXISTS(SELECT 1 FROM topic_favorites f
			WHERE f.prompt_category_id = c.id AND f.sharer_id = $1 AND f.profile_id = $2 AND f.role = $3) AS is_favorite,
		EXISTS(SELECT 1 FROM topic_queue_items q
			WHERE q.prompt_category_id = c.id AND q.sharer_id = $1 AND q.profile_id = $2 AND q.role = $3) AS is_in_queue
	FROM prompt_categories c
`

func scanTopicSummary(row interface{ Scan(...any) error }) (TopicSummary, error) {
	var item TopicSummary
	err := row.Scan(&item.ID, &item.Category, &item.Description, &item.Theme, &item.PromptCount, &item.CompletedCount, &item.IsFavorite, &item.IsInQueue)
	return item, err
}

// ListTopics returns every category with the sharer's completion counts and
// the viewer's marks for the role they view the sharer in.
func (s *PostgresStore) ListTopics(ctx context.Context, sharerID, viewerID, role string) ([]TopicSummary, error) {
	rows, err := s.db.QueryContext(ctx, topicSummaryQuery+` ORDER BY c.category`, sharerID, viewerID, role)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	defer rows.Close()

	items := make([]TopicSummary, 0)
	for rows.Next() {
		item, err := scanTopicSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetTopic loads one category with its prompts and the sharer's responses,
// videos, and attachments.
func (s *PostgresStore) GetTopic(ctx context.Context, sharerID, categoryID, viewerID, role string) (Topic, error) {
	summary, err := scanTopicSummary(s.db.QueryRowContext(ctx, topicSummaryQuery+` WHERE c.id = $4`, sharerID, viewerID, role, categoryID))
	if err != nil {
		return Topic{}, err
	}
	topic := Topic{TopicSummary: summary, Prompts: make([]Prompt, 0)}

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.prompt_text, p.prompt_type, p.is_context_establishing, p.prompt_category_id,
			r.id, r.response_text, r.summary, r.privacy_level, r.created_at, r.updated_at,
			v.id, v.mux_playback_id, v.status, v.duration
		FROM prompts p
		LEFT JOIN prompt_responses r ON r.prompt_id = p.id AND r.profile_sharer_id = $1
		LEFT JOIN videos v ON v.id = r.video_id
		WHERE p.prompt_category_id = $2
		ORDER BY p.is_context_establishing DESC, p.created_at ASC
	`, sharerID, categoryID)
	if err != nil {
		return Topic{}, fmt.Errorf("list topic prompts: %w", err)
	}
	defer rows.Close()

	responses := map[string]*PromptResponse{}
	for rows.Next() {
		var prompt Prompt
		var responseID, responseText, summaryText, privacy sql.NullString
		var createdAt, updatedAt sql.NullTime
		var videoID, playbackID, videoStatus sql.NullString
		var duration sql.NullFloat64
		if err := rows.Scan(
			&prompt.ID, &prompt.PromptText, &prompt.PromptType, &prompt.IsContextEstablishing, &prompt.PromptCategoryID,
			&responseID, &responseText, &summaryText, &privacy, &createdAt, &updatedAt,
			&videoID, &playbackID, &videoStatus, &duration,
		); err != nil {
			return Topic{}, fmt.Errorf("scan topic prompt: %w", err)
		}
		if responseID.Valid {
			response := &PromptResponse{
				ID:              responseID.String,
				ProfileSharerID: sharerID,
				PromptID:        prompt.ID,
				ResponseText:    responseText.String,
				Summary:         summaryText.String,
				PrivacyLevel:    privacy.String,
				Attachments:     make([]Attachment, 0),
				CreatedAt:       createdAt.Time,
				UpdatedAt:       updatedAt.Time,
			}
			if videoID.Valid {
				response.Video = &Video{ID: videoID.String, MuxPlaybackID: playbackID.String, Status: videoStatus.String, Duration: duration.Float64}
			}
			prompt.Response = response
			responses[response.ID] = response
		}
		topic.Prompts = append(topic.Prompts, prompt)
	}
	if err := rows.Err(); err != nil {
		return Topic{}, fmt.Errorf("iterate topic prompts: %w", err)
	}
	rows.Close()

	if len(responses) == 0 {
		return topic, nil
	}

	attachmentRows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.prompt_response_id, a.profile_sharer_id, a.object_key, a.file_type, a.file_name,
			a.file_size, a.title, a.description
		FROM prompt_response_attachments a
		JOIN prompt_responses r ON r.id = a.prompt_response_id
		JOIN prompts p ON p.id = r.prompt_id
		WHERE r.profile_sharer_id = $1 AND p.prompt_category_id = $2
		ORDER BY a.created_at ASC
	`, sharerID, categoryID)
	if err != nil {
		return Topic{}, fmt.Errorf("list topic attachments: %w", err)
	}
	defer attachmentRows.Close()

	for attachmentRows.Next() {
		var item Attachment
		if err := attachmentRows.Scan(&item.ID, &item.PromptResponseID, &item.ProfileSharerID, &item.ObjectKey, &item.FileType, &item.FileName, &item.FileSize, &item.Title, &item.Description); err != nil {
			return Topic{}, fmt.Errorf("scan attachment: %w", err)
		}
		if response, ok := responses[item.PromptResponseID]; ok {
			response.Attachments = append(response.Attachments, item)
		}
	}
	return topic, attachmentRows.Err()
}

func (s *PostgresStore) GetPromptCategory(ctx context.Context, categoryID string) (PromptCategory, error) {
	var item PromptCategory
	err := s.db.QueryRowContext(ctx, `
		SELECT id, category, description, theme FROM prompt_categories WHERE id=$1
	`, categoryID).Scan(&item.ID, &item.Category, &item.Description, &item.Theme)
	return item, err
}

const (
	topicFavorites = "topic_favorites"
	topicQueue     = "topic_queue_items"
)

func (s *PostgresStore) ToggleTopicFavorite(ctx context.Context, viewerID, categoryID, sharerID, role string) (bool, error) {
	return s.toggleTopicMark(ctx, topicFavorites, viewerID, categoryID, sharerID, role)
}

func (s *PostgresStore) ToggleTopicQueue(ctx context.Context, viewerID, categoryID, sharerID, role string) (bool, error) {
	return s.toggleTopicMark(ctx, topicQueue, viewerID, categoryID, sharerID, role)
}

// toggleTopicMark deletes the mark if present, otherwise inserts it, and
// reports whether the mark is now set.
func (s *PostgresStore) toggleTopicMark(ctx context.Context, table, viewerID, categoryID, sharerID, role string) (bool, error) {
	var marked bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			DELETE FROM `+table+`
			WHERE profile_id=$1 AND prompt_category_id=$2 AND sharer_id=$3 AND role=$4
		`, viewerID, categoryID, sharerID, role)
		if err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("clear %s rows: %w", table, err)
		}
		if affected > 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO `+table+` (profile_id, prompt_category_id, sharer_id, role)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT DO NOTHING
		`, viewerID, categoryID, sharerID, role); err != nil {
			return fmt.Errorf("set %s: %w", table, err)
		}
		marked = true
		return nil
	})
	return marked, err
}

// ListResponseDocuments flattens responses for the search index. An empty
// sharerID lists every sharer.
func (s *PostgresStore) ListResponseDocuments(ctx context.Context, sharerID string) ([]ResponseDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.profile_sharer_id, p.id, p.prompt_text, c.id, c.category, r.response_text, r.summary, r.updated_at
		FROM prompt_responses r
		JOIN prompts p ON p.id = r.prompt_id
		JOIN prompt_categories c ON c.id = p.prompt_category_id
		WHERE $1 = '' OR r.profile_sharer_id::text = $1
		ORDER BY r.updated_at DESC
	`, sharerID)
	if err != nil {
		return nil, fmt.Errorf("list response documents: %w", err)
	}
	defer rows.Close()

	items := make([]ResponseDocument, 0)
	for rows.Next() {
		var item ResponseDocument
		if err := rows.Scan(&item.ID, &item.SharerID, &item.PromptID, &item.PromptText, &item.CategoryID, &item.Category, &item.ResponseText, &item.Summary, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan response document: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
