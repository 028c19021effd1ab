package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const followRequestColumns = `fr.id, fr.requestor_id, fr.sharer_id, fr.status, fr.approved_at, fr.denied_at, fr.revoked_at, fr.created_at, fr.updated_at`

func scanFollowRequest(row interface{ Scan(...any) error }, extra ...any) (FollowRequest, error) {
	var item FollowRequest
	var approvedAt, deniedAt, revokedAt sql.NullTime
	dest := []any{&item.ID, &item.RequestorID, &item.SharerID, &item.Status, &approvedAt, &deniedAt, &revokedAt, &item.CreatedAt, &item.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return FollowRequest{}, err
	}
	item.ApprovedAt = nullTimePtr(approvedAt)
	item.DeniedAt = nullTimePtr(deniedAt)
	item.RevokedAt = nullTimePtr(revokedAt)
	return item, nil
}

func (s *PostgresStore) CreateFollowRequest(ctx context.Context, requestorID, sharerID string) (FollowRequest, error) {
	item, err := scanFollowRequest(s.db.QueryRowContext(ctx, `
		INSERT INTO follow_requests AS fr (requestor_id, sharer_id)
		VALUES ($1, $2)
		RETURNING `+followRequestColumns, requestorID, sharerID))
	if err != nil {
		if isUniqueViolation(err) {
			return FollowRequest{}, ErrDuplicate
		}
		return FollowRequest{}, fmt.Errorf("insert follow request: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) HasPendingFollowRequest(ctx context.Context, requestorID, sharerID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM follow_requests WHERE requestor_id=$1 AND sharer_id=$2 AND status='PENDING')
	`, requestorID, sharerID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check pending follow request: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) GetFollowRequest(ctx context.Context, requestID string) (FollowRequest, error) {
	return scanFollowRequest(s.db.QueryRowContext(ctx, `SELECT `+followRequestColumns+` FROM follow_requests fr WHERE fr.id=$1`, requestID))
}

// ApproveFollowRequest approves a PENDING request, or restores a REVOKED one
// by passing it through PENDING, and grants listener access in the same
// transaction. A restore keeps the listener's original shared_since. With
// restoreOnly set only REVOKED rows qualify. A newer PENDING request for the
// same pair is settled as APPROVED by the restore. When the row is not in an
// approvable status the current row comes back with ErrStatusChanged.
func (s *PostgresStore) ApproveFollowRequest(ctx context.Context, requestID string, restoreOnly bool) (FollowRequest, bool, error) {
	var approved FollowRequest
	var restored bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var status, requestorID, sharerID string
		if err := tx.QueryRowContext(ctx, `
			SELECT status, requestor_id, sharer_id FROM follow_requests WHERE id=$1 FOR UPDATE
		`, requestID).Scan(&status, &requestorID, &sharerID); err != nil {
			return err
		}

		switch {
		case status == "REVOKED":
			restored = true
			if _, err := tx.ExecContext(ctx, `
				UPDATE follow_requests SET status='APPROVED', approved_at=NOW(), updated_at=NOW()
				WHERE requestor_id=$1 AND sharer_id=$2 AND status='PENDING' AND id<>$3
			`, requestorID, sharerID, requestID); err != nil {
				return fmt.Errorf("settle newer follow request: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE follow_requests SET status='PENDING', revoked_at=NULL, updated_at=NOW()
				WHERE id=$1 AND status='REVOKED'
			`, requestID); err != nil {
				if isUniqueViolation(err) {
					return ErrDuplicate
				}
				return fmt.Errorf("reopen follow request: %w", err)
			}
		case status == "PENDING" && !restoreOnly:
		default:
			return ErrStatusChanged
		}

		item, err := scanFollowRequest(tx.QueryRowContext(ctx, `
			UPDATE follow_requests AS fr SET status='APPROVED', approved_at=NOW(), denied_at=NULL, updated_at=NOW()
			WHERE fr.id=$1 AND fr.status='PENDING'
			RETURNING `+followRequestColumns, requestID))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrStatusChanged
		}
		if err != nil {
			return fmt.Errorf("approve follow request: %w", err)
		}

		if err := upsertListener(ctx, tx, item.SharerID, item.RequestorID, restored); err != nil {
			return err
		}
		approved = item
		return nil
	})
	if errors.Is(err, ErrStatusChanged) {
		current, getErr := s.GetFollowRequest(ctx, requestID)
		if getErr != nil {
			return FollowRequest{}, false, getErr
		}
		return current, false, ErrStatusChanged
	}
	if err != nil {
		return FollowRequest{}, false, err
	}
	return approved, restored, nil
}

func (s *PostgresStore) DenyFollowRequest(ctx context.Context, requestID string) (FollowRequest, error) {
	item, err := scanFollowRequest(s.db.QueryRowContext(ctx, `
		UPDATE follow_requests AS fr SET status='DENIED', denied_at=NOW(), updated_at=NOW()
		WHERE fr.id=$1 AND fr.status='PENDING'
		RETURNING `+followRequestColumns, requestID))
	if errors.Is(err, sql.ErrNoRows) {
		current, getErr := s.GetFollowRequest(ctx, requestID)
		if getErr != nil {
			return FollowRequest{}, getErr
		}
		return current, ErrStatusChanged
	}
	if err != nil {
		return FollowRequest{}, fmt.Errorf("deny follow request: %w", err)
	}
	return item, nil
}

// ListSharerFollowRequests lists requests addressed to a sharer with the
// requestor's profile. pending selects PENDING rows, otherwise every
// decided row.
func (s *PostgresStore) ListSharerFollowRequests(ctx context.Context, sharerID string, pending bool) ([]FollowRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+followRequestColumns+`, p.id, p.first_name, p.last_name, p.email, p.avatar_url
		FROM follow_requests fr
		JOIN profiles p ON p.id = fr.requestor_id
		WHERE fr.sharer_id=$1 AND ((fr.status='PENDING') = $2)
		ORDER BY fr.updated_at DESC
	`, sharerID, pending)
	if err != nil {
		return nil, fmt.Errorf("list sharer follow requests: %w", err)
	}
	return collectFollowRequests(rows)
}

// ListRequestorFollowRequests lists a requestor's own requests with the
// target sharer's profile.
func (s *PostgresStore) ListRequestorFollowRequests(ctx context.Context, requestorID string) ([]FollowRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+followRequestColumns+`, p.id, p.first_name, p.last_name, p.email, p.avatar_url
		FROM follow_requests fr
		JOIN profile_sharers ps ON ps.id = fr.sharer_id
		JOIN profiles p ON p.id = ps.profile_id
		WHERE fr.requestor_id=$1
		ORDER BY fr.created_at DESC
	`, requestorID)
	if err != nil {
		return nil, fmt.Errorf("list requestor follow requests: %w", err)
	}
	return collectFollowRequests(rows)
}

func collectFollowRequests(rows *sql.Rows) ([]FollowRequest, error) {
	defer rows.Close()

	items := make([]FollowRequest, 0)
	for rows.Next() {
		var p PublicProfile
		item, err := scanFollowRequest(rows, &p.ID, &p.FirstName, &p.LastName, &p.Email, &p.AvatarURL)
		if err != nil {
			return nil, fmt.Errorf("scan follow request: %w", err)
		}
		item.Counterpart = p
		items = append(items, item)
	}
	return items, rows.Err()
}
