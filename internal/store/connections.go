package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ListConnections returns the sharer's listeners with access followed by all
// of its executors.
func (s *PostgresStore) ListConnections(ctx context.Context, sharerID string) ([]Connection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT 'LISTENER' AS kind, pl.id, p.id, p.first_name, p.last_name, p.email, p.avatar_url,
			'' AS relation, pl.shared_since, pl.created_at
		FROM profile_listeners pl
		JOIN profiles p ON p.id = pl.listener_id
		WHERE pl.sharer_id = $1 AND pl.has_access
		UNION ALL
		SELECT 'EXECUTOR' AS kind, pe.id, p.id, p.first_name, p.last_name, p.email, p.avatar_url,
			pe.relation, NULL, pe.created_at
		FROM profile_executors pe
		JOIN profiles p ON p.id = pe.executor_id
		WHERE pe.sharer_id = $1
		ORDER BY kind DESC, created_at ASC
	`, sharerID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	connections := make([]Connection, 0)
	for rows.Next() {
		var item Connection
		var sharedSince sql.NullTime
		if err := rows.Scan(
			&item.Kind,
			&item.RecordID,
			&item.Profile.ID,
			&item.Profile.FirstName,
			&item.Profile.LastName,
			&item.Profile.Email,
			&item.Profile.AvatarURL,
			&item.Relation,
			&sharedSince,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		item.SharedSince = nullTimePtr(sharedSince)
		connections = append(connections, item)
	}
	return connections, rows.Err()
}

func (s *PostgresStore) GetListener(ctx context.Context, sharerID, listenerID string) (Listener, error) {
	var item Listener
	err := s.db.QueryRowContext(ctx, `
		SELECT id, listener_id, sharer_id, has_access, shared_since, created_at, updated_at
		FROM profile_listeners
		WHERE sharer_id=$1 AND listener_id=$2
	`, sharerID, listenerID).Scan(&item.ID, &item.ListenerID, &item.SharerID, &item.HasAccess, &item.SharedSince, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

// RevokeListener clears has_access for the pair and moves an APPROVED follow
// request for the same pair to REVOKED. changed is false when access was
// already off. Returns sql.ErrNoRows when the pair has no listener row.
func (s *PostgresStore) RevokeListener(ctx context.Context, sharerID, listenerID string) (changed bool, err error) {
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var hasAccess bool
		if err := tx.QueryRowContext(ctx, `
			SELECT has_access FROM profile_listeners
			WHERE sharer_id=$1 AND listener_id=$2
			FOR UPDATE
		`, sharerID, listenerID).Scan(&hasAccess); err != nil {
			return err
		}
		if !hasAccess {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE profile_listeners SET has_access=FALSE, updated_at=NOW()
			WHERE sharer_id=$1 AND listener_id=$2
		`, sharerID, listenerID); err != nil {
			return fmt.Errorf("revoke listener: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE follow_requests SET status='REVOKED', revoked_at=NOW(), updated_at=NOW()
			WHERE sharer_id=$1 AND requestor_id=$2 AND status='APPROVED'
		`, sharerID, listenerID); err != nil {
			return fmt.Errorf("revoke follow request: %w", err)
		}
		changed = true
		return nil
	})
	return changed, err
}

func (s *PostgresStore) GetExecutor(ctx context.Context, executorRecordID string) (Executor, error) {
	var item Executor
	err := s.db.QueryRowContext(ctx, `
		SELECT id, executor_id, sharer_id, first_name, last_name, relation, phone, created_at
		FROM profile_executors
		WHERE id=$1
	`, executorRecordID).Scan(&item.ID, &item.ExecutorID, &item.SharerID, &item.FirstName, &item.LastName, &item.Relation, &item.Phone, &item.CreatedAt)
	return item, err
}

// DeleteExecutor removes the executor row only when it belongs to sharerID.
func (s *PostgresStore) DeleteExecutor(ctx context.Context, sharerID, executorRecordID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM profile_executors WHERE id=$1 AND sharer_id=$2`, executorRecordID, sharerID)
	if err != nil {
		return false, fmt.Errorf("delete executor: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete executor rows: %w", err)
	}
	return affected > 0, nil
}

// upsertListener grants access for the pair. A fresh grant resets
// shared_since; keepSince preserves the original date on an existing row.
func upsertListener(ctx context.Context, tx *sql.Tx, sharerID, listenerID string, keepSince bool) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO profile_listeners (listener_id, sharer_id, has_access, shared_since)
		VALUES ($1, $2, TRUE, NOW())
		ON CONFLICT (listener_id, sharer_id) DO UPDATE SET
			has_access = TRUE,
			shared_since = CASE
				WHEN $3 OR profile_listeners.has_access THEN profile_listeners.shared_since
				ELSE NOW()
			END,
			updated_at = NOW()
	`, listenerID, sharerID, keepSince)
	if err != nil {
		return fmt.Errorf("upsert listener: %w", err)
	}
	return nil
}

func upsertExecutor(ctx context.Context, tx *sql.Tx, sharerID, executorID string, meta ExecutorMeta) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO profile_executors (executor_id, sharer_id, first_name, last_name, relation, phone)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (executor_id, sharer_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			relation = EXCLUDED.relation,
			phone = EXCLUDED.phone
	`, executorID, sharerID, meta.FirstName, meta.LastName, meta.Relation, meta.Phone)
	if err != nil {
		return fmt.Errorf("upsert executor: %w", err)
	}
	return nil
}
