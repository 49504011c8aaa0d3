package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrLastAdmin is returned when a write would leave the roster with
	// no admin. The check runs inside the same transaction as the write.
	ErrLastAdmin = errors.New("cannot remove the last admin")
	// ErrAlreadyMember is returned when a principal already has a roster entry.
	ErrAlreadyMember = errors.New("already a team member")
	ErrInviteUsed    = errors.New("invite already used")
	ErrInviteExpired = errors.New("invite expired")
)

// rosterGuardLockID keys the transaction-scoped advisory lock that
// serializes roster writes whose precondition spans rows: founder
// seating and the last-admin check. Row locks alone cannot order two
// transactions that each lock a different row. Postgres releases the
// advisory lock at commit or rollback.
const rosterGuardLockID int64 = 0x7465616d73796e63

type PostgresStore struct {
	db *sql.DB
}

func lockRosterGuard(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, rosterGuardLockID); err != nil {
		return fmt.Errorf("lock roster guard: %w", err)
	}
	return nil
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

// ---- identities -----------------------------------------------------------

func (s *PostgresStore) CreateIdentity(ctx context.Context, identity Identity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO identities (id, email, display_name, password_hash, is_email_verified, verification_token, verification_expires_at)
		VALUES ($1, LOWER($2), $3, $4, $5, $6, $7)
	`, identity.ID, identity.Email, identity.DisplayName, identity.PasswordHash,
		identity.IsEmailVerified, identity.VerificationToken, identity.VerificationExpiresAt)
	if err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetIdentityByID(ctx context.Context, identityID string) (Identity, error) {
	return s.scanIdentity(s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash, is_email_verified, verification_token, verification_expires_at, created_at
		FROM identities WHERE id=$1
	`, identityID))
}

func (s *PostgresStore) GetIdentityByEmail(ctx context.Context, email string) (Identity, error) {
	return s.scanIdentity(s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash, is_email_verified, verification_token, verification_expires_at, created_at
		FROM identities WHERE email=LOWER($1)
	`, email))
}

func (s *PostgresStore) scanIdentity(row *sql.Row) (Identity, error) {
	var identity Identity
	var token sql.NullString
	err := row.Scan(&identity.ID, &identity.Email, &identity.DisplayName, &identity.PasswordHash,
		&identity.IsEmailVerified, &token, &identity.VerificationExpiresAt, &identity.CreatedAt)
	if err != nil {
		return Identity{}, err
	}
	identity.VerificationToken = token.String
	return identity, nil
}

func (s *PostgresStore) VerifyIdentityEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE identities
		SET is_email_verified=TRUE, verification_token=NULL, verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify identity email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify identity email: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ---- refresh sessions (Postgres fallback when Redis is absent) ------------

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, identityID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, identity_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET identity_id=EXCLUDED.identity_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, identityID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (Identity, error) {
	const query = `
		SELECT i.id, i.email, i.display_name
		FROM refresh_sessions rs
		JOIN identities i ON i.id = rs.identity_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var identity Identity
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&identity.ID, &identity.Email, &identity.DisplayName)
	if err != nil {
		return Identity{}, err
	}
	return identity, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// ---- members --------------------------------------------------------------

const memberColumns = `id, name, email, role, avatar_url, department, presence, access_level, skills, identity_id, created_at, updated_at`

func (s *PostgresStore) ListMembers(ctx context.Context) ([]Member, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+memberColumns+` FROM team_members ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	items := make([]Member, 0)
	for rows.Next() {
		item, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (Member, error) {
	var item Member
	var skills []byte
	err := row.Scan(&item.ID, &item.Name, &item.Email, &item.Role, &item.AvatarURL, &item.Department,
		&item.Presence, &item.AccessLevel, &skills, &item.IdentityID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Member{}, err
	}
	if len(skills) > 0 {
		if err := json.Unmarshal(skills, &item.Skills); err != nil {
			return Member{}, fmt.Errorf("decode skills: %w", err)
		}
	}
	return item, nil
}

func (s *PostgresStore) GetMember(ctx context.Context, memberID string) (Member, error) {
	return scanMember(s.db.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM team_members WHERE id=$1`, memberID))
}

func (s *PostgresStore) GetMemberByEmail(ctx context.Context, email string) (Member, error) {
	return scanMember(s.db.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM team_members WHERE email=LOWER($1)`, email))
}

func (s *PostgresStore) GetMemberByIdentity(ctx context.Context, identityID string) (Member, error) {
	return scanMember(s.db.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM team_members WHERE identity_id=$1`, identityID))
}

func (s *PostgresStore) MemberCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM team_members`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) InsertMember(ctx context.Context, item Member) error {
	skills, err := encodeStrings(item.Skills)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO team_members (id, name, email, role, avatar_url, department, presence, access_level, skills, identity_id)
		VALUES ($1, $2, LOWER($3), $4, $5, $6, $7, $8, $9, $10)
	`, item.ID, item.Name, item.Email, item.Role, item.AvatarURL, item.Department,
		item.Presence, item.AccessLevel, skills, item.IdentityID)
	if err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

// InsertFounderMember inserts the first-ever roster entry as an admin.
// The roster guard lock orders concurrent founder attempts: whoever
// acquires it second counts the first founder's committed row and
// backs off, so two founders cannot both land.
func (s *PostgresStore) InsertFounderMember(ctx context.Context, item Member) (bool, error) {
	skills, err := encodeStrings(item.Skills)
	if err != nil {
		return false, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin founder tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockRosterGuard(ctx, tx); err != nil {
		return false, err
	}
	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM team_members`).Scan(&count); err != nil {
		return false, fmt.Errorf("count members: %w", err)
	}
	if count > 0 {
		return false, nil
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO team_members (id, name, email, role, avatar_url, department, presence, access_level, skills, identity_id)
		VALUES ($1, $2, LOWER($3), $4, $5, $6, $7, 'admin', $8, $9)
	`, item.ID, item.Name, item.Email, item.Role, item.AvatarURL, item.Department,
		item.Presence, skills, item.IdentityID)
	if err != nil {
		return false, fmt.Errorf("insert founder member: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit founder tx: %w", err)
	}
	return true, nil
}

// UpdateMember writes a full merged row. When the write demotes an
// admin it takes the roster guard lock and re-counts the remaining
// admins inside the transaction, returning ErrLastAdmin if no other
// admin would be left. The guard lock is what makes the count safe:
// under READ COMMITTED two demotions locking only their own rows would
// each still count the other as an admin.
func (s *PostgresStore) UpdateMember(ctx context.Context, item Member) error {
	skills, err := encodeStrings(item.Skills)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin member update tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var currentLevel string
	err = tx.QueryRowContext(ctx, `SELECT access_level FROM team_members WHERE id=$1 FOR UPDATE`, item.ID).Scan(&currentLevel)
	if err != nil {
		return err
	}
	if currentLevel == "admin" && item.AccessLevel != "admin" {
		if err := lockRosterGuard(ctx, tx); err != nil {
			return err
		}
		var others int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM team_members WHERE access_level='admin' AND id<>$1`, item.ID).Scan(&others); err != nil {
			return fmt.Errorf("count admins: %w", err)
		}
		if others == 0 {
			return ErrLastAdmin
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE team_members
		SET name=$2, email=LOWER($3), role=$4, avatar_url=$5, department=$6, presence=$7,
			access_level=$8, skills=$9, identity_id=$10, updated_at=NOW()
		WHERE id=$1
	`, item.ID, item.Name, item.Email, item.Role, item.AvatarURL, item.Department,
		item.Presence, item.AccessLevel, skills, item.IdentityID)
	if err != nil {
		return fmt.Errorf("update member: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit member update tx: %w", err)
	}
	return nil
}

// DeleteMember removes a roster entry with the same in-transaction
// last-admin guard as UpdateMember.
func (s *PostgresStore) DeleteMember(ctx context.Context, memberID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin member delete tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var currentLevel string
	err = tx.QueryRowContext(ctx, `SELECT access_level FROM team_members WHERE id=$1 FOR UPDATE`, memberID).Scan(&currentLevel)
	if err != nil {
		return err
	}
	if currentLevel == "admin" {
		if err := lockRosterGuard(ctx, tx); err != nil {
			return err
		}
		var others int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM team_members WHERE access_level='admin' AND id<>$1`, memberID).Scan(&others); err != nil {
			return fmt.Errorf("count admins: %w", err)
		}
		if others == 0 {
			return ErrLastAdmin
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM team_members WHERE id=$1`, memberID); err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit member delete tx: %w", err)
	}
	return nil
}

func encodeStrings(values []string) ([]byte, error) {
	if values == nil {
		values = []string{}
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("encode string list: %w", err)
	}
	return encoded, nil
}
