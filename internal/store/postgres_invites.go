package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

func (s *PostgresStore) InsertInvite(ctx context.Context, item Invite) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invites (id, code, created_by, expires_at)
		VALUES ($1, $2, $3, $4)
	`, item.ID, item.Code, item.CreatedBy, item.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert invite: %w", err)
	}
	return nil
}

const inviteColumns = `id, code, created_by, expires_at, used_by, used_at, created_at`

func (s *PostgresStore) GetInvite(ctx context.Context, inviteID string) (Invite, error) {
	return scanInvite(s.db.QueryRowContext(ctx, `SELECT `+inviteColumns+` FROM invites WHERE id=$1`, inviteID))
}

func (s *PostgresStore) GetInviteByCode(ctx context.Context, code string) (Invite, error) {
	return scanInvite(s.db.QueryRowContext(ctx, `SELECT `+inviteColumns+` FROM invites WHERE code=$1`, code))
}

func scanInvite(row rowScanner) (Invite, error) {
	var item Invite
	err := row.Scan(&item.ID, &item.Code, &item.CreatedBy, &item.ExpiresAt, &item.UsedBy, &item.UsedAt, &item.CreatedAt)
	if err != nil {
		return Invite{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListInvites(ctx context.Context) ([]Invite, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+inviteColumns+` FROM invites ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}
	defer rows.Close()

	items := make([]Invite, 0)
	for rows.Next() {
		item, err := scanInvite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invite: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invites: %w", err)
	}
	return items, nil
}

// RedeemInvite validates the code and mints the new member in one
// transaction. The row lock on the invite serializes concurrent
// redemption attempts: the second caller observes used_by set and fails.
func (s *PostgresStore) RedeemInvite(ctx context.Context, code string, member Member, now time.Time) (Invite, error) {
	skills, err := encodeStrings(member.Skills)
	if err != nil {
		return Invite{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Invite{}, fmt.Errorf("begin redeem tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	invite, err := scanInvite(tx.QueryRowContext(ctx, `SELECT `+inviteColumns+` FROM invites WHERE code=$1 FOR UPDATE`, code))
	if err != nil {
		return Invite{}, err
	}
	if invite.UsedBy != nil {
		return Invite{}, ErrInviteUsed
	}
	if !now.Before(invite.ExpiresAt) {
		return Invite{}, ErrInviteExpired
	}

	if member.IdentityID != nil {
		var exists bool
		err = tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM team_members WHERE identity_id=$1 OR email=LOWER($2))`,
			*member.IdentityID, member.Email).Scan(&exists)
		if err != nil {
			return Invite{}, fmt.Errorf("check existing member: %w", err)
		}
		if exists {
			return Invite{}, ErrAlreadyMember
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO team_members (id, name, email, role, avatar_url, department, presence, access_level, skills, identity_id)
		VALUES ($1, $2, LOWER($3), $4, $5, $6, $7, 'member', $8, $9)
	`, member.ID, member.Name, member.Email, member.Role, member.AvatarURL, member.Department,
		member.Presence, skills, member.IdentityID)
	if err != nil {
		return Invite{}, fmt.Errorf("insert redeemed member: %w", err)
	}

	_, err = tx.ExecContext(ctx, `UPDATE invites SET used_by=$2, used_at=$3 WHERE id=$1`, invite.ID, member.ID, now)
	if err != nil {
		return Invite{}, fmt.Errorf("mark invite used: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Invite{}, fmt.Errorf("commit redeem tx: %w", err)
	}

	invite.UsedBy = &member.ID
	invite.UsedAt = &now
	return invite, nil
}

// DeleteUnusedInvite hard-deletes an invite. Used invites are kept as
// historical records; deleting one reports ErrInviteUsed.
func (s *PostgresStore) DeleteUnusedInvite(ctx context.Context, inviteID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM invites WHERE id=$1 AND used_by IS NULL`, inviteID)
	if err != nil {
		return fmt.Errorf("delete invite: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete invite: %w", err)
	}
	if affected == 0 {
		_, err := s.GetInvite(ctx, inviteID)
		if errors.Is(err, sql.ErrNoRows) {
			return sql.ErrNoRows
		}
		if err != nil {
			return err
		}
		return ErrInviteUsed
	}
	return nil
}

// ExtendUnusedInvite replaces the expiry of an unused invite.
func (s *PostgresStore) ExtendUnusedInvite(ctx context.Context, inviteID string, expiresAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `UPDATE invites SET expires_at=$2 WHERE id=$1 AND used_by IS NULL`, inviteID, expiresAt)
	if err != nil {
		return fmt.Errorf("extend invite: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("extend invite: %w", err)
	}
	if affected == 0 {
		_, err := s.GetInvite(ctx, inviteID)
		if errors.Is(err, sql.ErrNoRows) {
			return sql.ErrNoRows
		}
		if err != nil {
			return err
		}
		return ErrInviteUsed
	}
	return nil
}
