package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const invitationColumns = `id, token, sharer_id, inviter_id, invitee_email, role, status,
	executor_first_name, executor_last_name, executor_relation, executor_phone,
	accepted_by, created_at, updated_at`

func scanInvitation(row interface{ Scan(...any) error }) (Invitation, error) {
	var item Invitation
	var acceptedBy sql.NullString
	err := row.Scan(
		&item.ID,
		&item.Token,
		&item.SharerID,
		&item.InviterID,
		&item.InviteeEmail,
		&item.Role,
		&item.Status,
		&item.Executor.FirstName,
		&item.Executor.LastName,
		&item.Executor.Relation,
		&item.Executor.Phone,
		&acceptedBy,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	item.AcceptedBy = nullStringPtr(acceptedBy)
	return item, err
}

func (s *PostgresStore) CreateInvitation(ctx context.Context, item Invitation) (Invitation, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO invitations (token, sharer_id, inviter_id, invitee_email, role,
			executor_first_name, executor_last_name, executor_relation, executor_phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+invitationColumns,
		item.Token, item.SharerID, item.InviterID, item.InviteeEmail, item.Role,
		item.Executor.FirstName, item.Executor.LastName, item.Executor.Relation, item.Executor.Phone)
	created, err := scanInvitation(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Invitation{}, ErrDuplicate
		}
		return Invitation{}, fmt.Errorf("insert invitation: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) HasPendingInvitation(ctx context.Context, sharerID, email, role string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM invitations
			WHERE sharer_id=$1 AND lower(invitee_email)=lower($2) AND role=$3 AND status='PENDING'
		)
	`, sharerID, strings.TrimSpace(email), role).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check pending invitation: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) GetInvitation(ctx context.Context, invitationID string) (Invitation, error) {
	return scanInvitation(s.db.QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE id=$1`, invitationID))
}

// GetInvitationByToken tries an exact token match first and falls back to a
// case-insensitive one for links that were re-cased in transit.
func (s *PostgresStore) GetInvitationByToken(ctx context.Context, token string) (Invitation, error) {
	item, err := scanInvitation(s.db.QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE token=$1`, token))
	if err == nil || !errors.Is(err, sql.ErrNoRows) {
		return item, err
	}
	return scanInvitation(s.db.QueryRowContext(ctx, `
		SELECT `+invitationColumns+` FROM invitations
		WHERE lower(token)=lower($1)
		ORDER BY created_at DESC
		LIMIT 1
	`, token))
}

// ListInvitations returns the sharer's invitations, newest first. An empty
// status lists every status.
func (s *PostgresStore) ListInvitations(ctx context.Context, sharerID, status string) ([]Invitation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+invitationColumns+` FROM invitations
		WHERE sharer_id=$1 AND ($2 = '' OR status=$2)
		ORDER BY created_at DESC
	`, sharerID, status)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close()

	items := make([]Invitation, 0)
	for rows.Next() {
		item, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invitation: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// AcceptInvitation moves a PENDING invitation to ACCEPTED and writes the
// listener or executor row in the same transaction. When the invitation is
// no longer PENDING it returns the current row with ErrStatusChanged.
func (s *PostgresStore) AcceptInvitation(ctx context.Context, invitationID, profileID string) (Invitation, error) {
	var accepted Invitation
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		item, err := scanInvitation(tx.QueryRowContext(ctx, `
			UPDATE invitations SET status='ACCEPTED', accepted_by=$2, updated_at=NOW()
			WHERE id=$1 AND status='PENDING'
			RETURNING `+invitationColumns,
			invitationID, profileID))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrStatusChanged
		}
		if err != nil {
			return fmt.Errorf("accept invitation: %w", err)
		}

		switch item.Role {
		case ConnectionListener:
			err = upsertListener(ctx, tx, item.SharerID, profileID, false)
		case ConnectionExecutor:
			err = upsertExecutor(ctx, tx, item.SharerID, profileID, item.Executor)
		default:
			err = fmt.Errorf("accept invitation: unknown role %q", item.Role)
		}
		if err != nil {
			return err
		}
		accepted = item
		return nil
	})
	if errors.Is(err, ErrStatusChanged) {
		return s.currentInvitation(ctx, invitationID)
	}
	if err != nil {
		return Invitation{}, err
	}
	return accepted, nil
}

func (s *PostgresStore) DeclineInvitation(ctx context.Context, invitationID string) (Invitation, error) {
	item, err := scanInvitation(s.db.QueryRowContext(ctx, `
		UPDATE invitations SET status='DECLINED', updated_at=NOW()
		WHERE id=$1 AND status='PENDING'
		RETURNING `+invitationColumns, invitationID))
	if errors.Is(err, sql.ErrNoRows) {
		return s.currentInvitation(ctx, invitationID)
	}
	if err != nil {
		return Invitation{}, fmt.Errorf("decline invitation: %w", err)
	}
	return item, nil
}

// DeleteInvitation removes a PENDING invitation owned by sharerID.
func (s *PostgresStore) DeleteInvitation(ctx context.Context, sharerID, invitationID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM invitations WHERE id=$1 AND sharer_id=$2 AND status='PENDING'
	`, invitationID, sharerID)
	if err != nil {
		return fmt.Errorf("delete invitation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete invitation rows: %w", err)
	}
	if affected == 0 {
		return ErrStatusChanged
	}
	return nil
}

// ExpireInvitations moves PENDING invitations created before cutoff to
// EXPIRED and returns them.
func (s *PostgresStore) ExpireInvitations(ctx context.Context, cutoff time.Time) ([]Invitation, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE invitations SET status='EXPIRED', updated_at=NOW()
		WHERE status='PENDING' AND created_at < $1
		RETURNING `+invitationColumns, cutoff)
	if err != nil {
		return nil, fmt.Errorf("expire invitations: %w", err)
	}
	defer rows.Close()

	items := make([]Invitation, 0)
	for rows.Next() {
		item, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired invitation: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// currentInvitation reloads a row after a lost compare-and-set. A row that
// vanished surfaces as sql.ErrNoRows.
func (s *PostgresStore) currentInvitation(ctx context.Context, invitationID string) (Invitation, error) {
	item, err := s.GetInvitation(ctx, invitationID)
	if err != nil {
		return Invitation{}, err
	}
	return item, ErrStatusChanged
}
