package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

const notificationColumns = `id, user_id, type, message, data, is_read, read_at, created_at`

func scanNotification(row interface{ Scan(...any) error }) (Notification, error) {
	var item Notification
	var data []byte
	var readAt sql.NullTime
	if err := row.Scan(&item.ID, &item.UserID, &item.Type, &item.Message, &data, &item.IsRead, &readAt, &item.CreatedAt); err != nil {
		return Notification{}, err
	}
	item.Data = json.RawMessage(data)
	item.ReadAt = nullTimePtr(readAt)
	return item, nil
}

func (s *PostgresStore) InsertNotification(ctx context.Context, item Notification) (Notification, error) {
	data := []byte(item.Data)
	if len(data) == 0 {
		data = []byte(`{}`)
	}
	created, err := scanNotification(s.db.QueryRowContext(ctx, `
		INSERT INTO notifications (user_id, type, message, data)
		VALUES ($1, $2, $3, $4::jsonb)
		RETURNING `+notificationColumns, item.UserID, item.Type, item.Message, string(data)))
	if err != nil {
		return Notification{}, fmt.Errorf("insert notification: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE user_id=$1 AND (NOT $2 OR NOT is_read)
		ORDER BY created_at DESC
		LIMIT $3
	`, userID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := make([]Notification, 0)
	for rows.Next() {
		item, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) UnreadNotificationCount(ctx context.Context, userID string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id=$1 AND NOT is_read`, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkNotificationsRead marks the listed rows read. Ids owned by other users
// are ignored.
func (s *PostgresStore) MarkNotificationsRead(ctx context.Context, userID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET is_read=TRUE, read_at=NOW()
		WHERE user_id=$1 AND id = ANY($2::uuid[]) AND NOT is_read
	`, userID, ids)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return result.RowsAffected()
}

func (s *PostgresStore) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET is_read=TRUE, read_at=NOW()
		WHERE user_id=$1 AND NOT is_read
	`, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return result.RowsAffected()
}
