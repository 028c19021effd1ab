package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrDuplicate reports a unique constraint violation.
	ErrDuplicate = errors.New("duplicate record")
	// ErrStatusChanged reports a conditional update that matched no row
	// because the record left the expected status first.
	ErrStatusChanged = errors.New("status changed")
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	s := value.String
	return &s
}

const profileColumns = `id, email, first_name, last_name, avatar_url, phone, password_hash, created_at, updated_at`

func scanProfile(row interface{ Scan(...any) error }) (Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.AvatarURL, &p.Phone, &p.PasswordHash, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *PostgresStore) CreateProfile(ctx context.Context, profile Profile) (Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO profiles (email, first_name, last_name, avatar_url, phone, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+profileColumns,
		strings.TrimSpace(profile.Email), profile.FirstName, profile.LastName, profile.AvatarURL, profile.Phone, profile.PasswordHash)
	created, err := scanProfile(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Profile{}, ErrDuplicate
		}
		return Profile{}, fmt.Errorf("insert profile: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, profileID string) (Profile, error) {
	return scanProfile(s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id=$1`, profileID))
}

func (s *PostgresStore) GetProfileByEmail(ctx context.Context, email string) (Profile, error) {
	return scanProfile(s.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE lower(email)=lower($1)`, strings.TrimSpace(email)))
}

func (s *PostgresStore) CreateSharer(ctx context.Context, profileID string) (Sharer, error) {
	var sharer Sharer
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO profile_sharers (profile_id)
		VALUES ($1)
		ON CONFLICT (profile_id) DO UPDATE SET profile_id=EXCLUDED.profile_id
		RETURNING id, profile_id, created_at
	`, profileID).Scan(&sharer.ID, &sharer.ProfileID, &sharer.CreatedAt)
	if err != nil {
		return Sharer{}, fmt.Errorf("upsert sharer: %w", err)
	}
	return sharer, nil
}

func (s *PostgresStore) GetSharer(ctx context.Context, sharerID string) (Sharer, error) {
	var sharer Sharer
	err := s.db.QueryRowContext(ctx, `SELECT id, profile_id, created_at FROM profile_sharers WHERE id=$1`, sharerID).
		Scan(&sharer.ID, &sharer.ProfileID, &sharer.CreatedAt)
	return sharer, err
}

// GetSharerProfile returns the public profile behind a sharer id.
func (s *PostgresStore) GetSharerProfile(ctx context.Context, sharerID string) (PublicProfile, error) {
	var p PublicProfile
	err := s.db.QueryRowContext(ctx, `
		SELECT p.id, p.first_name, p.last_name, p.email, p.avatar_url
		FROM profile_sharers ps
		JOIN profiles p ON p.id = ps.profile_id
		WHERE ps.id=$1
	`, sharerID).Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.AvatarURL)
	return p, err
}

func (s *PostgresStore) ResolveRoles(ctx context.Context, profileID string) (Roles, error) {
	roles := Roles{ProfileID: profileID, ListenerOf: []string{}, ExecutorOf: []string{}}

	err := s.db.QueryRowContext(ctx, `SELECT id FROM profile_sharers WHERE profile_id=$1`, profileID).Scan(&roles.SharerID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Roles{}, fmt.Errorf("read sharer role: %w", err)
	}

	listenerOf, err := s.sharerIDs(ctx, `SELECT sharer_id FROM profile_listeners WHERE listener_id=$1 AND has_access ORDER BY created_at`, profileID)
	if err != nil {
		return Roles{}, fmt.Errorf("read listener roles: %w", err)
	}
	roles.ListenerOf = listenerOf

	executorOf, err := s.sharerIDs(ctx, `SELECT sharer_id FROM profile_executors WHERE executor_id=$1 ORDER BY created_at`, profileID)
	if err != nil {
		return Roles{}, fmt.Errorf("read executor roles: %w", err)
	}
	roles.ExecutorOf = executorOf
	return roles, nil
}

func (s *PostgresStore) sharerIDs(ctx context.Context, query, profileID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, profileID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, profile_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET profile_id=EXCLUDED.profile_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, profileID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

// LookupRefreshSession returns the profile id of a live session, or
// sql.ErrNoRows when the session is unknown, revoked, or expired.
func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (string, error) {
	var profileID string
	err := s.db.QueryRowContext(ctx, `
		SELECT profile_id
		FROM refresh_sessions
		WHERE token_hash = $1
			AND revoked_at IS NULL
			AND expires_at > NOW()
	`, tokenHash).Scan(&profileID)
	if err != nil {
		return "", err
	}
	return profileID, nil
}
