package app

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/yash1258/TeamSync-sub000/internal/access"
	"github.com/yash1258/TeamSync-sub000/internal/store"
	"github.com/yash1258/TeamSync-sub000/internal/util"
)

// maskInviteCode redacts a join code for the activity feed, which every
// roster member can read. The raw code is shown once to the creating admin.
func maskInviteCode(code string) string {
	if len(code) <= 3 {
		return strings.Repeat("*", len(code))
	}
	return code[:3] + strings.Repeat("*", len(code)-3)
}

func invitePayload(invite store.Invite, now time.Time) map[string]any {
	payload := map[string]any{
		"id":        invite.ID,
		"code":      invite.Code,
		"createdBy": invite.CreatedBy,
		"createdAt": invite.CreatedAt,
		"expiresAt": invite.ExpiresAt,
		"isUsed":    invite.UsedBy != nil,
		"isExpired": invite.UsedBy == nil && now.After(invite.ExpiresAt),
	}
	if invite.UsedBy != nil {
		payload["usedBy"] = *invite.UsedBy
		payload["usedAt"] = invite.UsedAt
	}
	return payload
}

type CreateInviteInput struct {
	ExpiresInDays int    `json:"expiresInDays"`
	Email         string `json:"email"`
}

func (s *Service) CreateInvite(ctx context.Context, session Session, input CreateInviteInput) (map[string]any, error) {
	caller, err := s.requireMember(ctx, session)
	if err != nil {
		return nil, err
	}
	if !access.IsAdmin(caller) {
		return nil, errForbidden("Only admins can create invites")
	}

	days := input.ExpiresInDays
	if days == 0 {
		days = s.cfg.InviteExpiryDays
	}
	if days < 0 {
		return nil, errValidation("expiresInDays must be positive")
	}

	now := time.Now()
	invite := store.Invite{
		ID:        util.NewID("inv"),
		Code:      util.NewInviteCode(),
		CreatedBy: caller.ID,
		ExpiresAt: now.Add(time.Duration(days) * 24 * time.Hour),
	}
	if err := s.store.InsertInvite(ctx, invite); err != nil {
		return nil, err
	}

	s.logActivity(ctx, caller.ID, "created invite", maskInviteCode(invite.Code))

	if to := strings.TrimSpace(input.Email); to != "" && s.SMTPConfigured() {
		go func(to, inviter, code string, expiresAt time.Time) {
			if err := s.mail.SendInviteEmail(to, inviter, code, expiresAt.Format("2006-01-02")); err != nil {
				log.Printf("invite: send code to %s: %v", to, err)
			}
		}(to, caller.Name, invite.Code, invite.ExpiresAt)
	}

	return invitePayload(invite, now), nil
}

// ValidateInvite is a read-only probe: it never consumes the code.
func (s *Service) ValidateInvite(ctx context.Context, code string) (map[string]any, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, errValidation("code is required")
	}

	invite, err := s.store.GetInviteByCode(ctx, code)
	if errors.Is(err, sql.ErrNoRows) {
		return map[string]any{"status": "not_found"}, nil
	}
	if err != nil {
		return nil, err
	}

	now := time.Now()
	switch {
	case invite.UsedBy != nil:
		return map[string]any{"status": "already_used"}, nil
	case now.After(invite.ExpiresAt):
		return map[string]any{"status": "expired", "expiresAt": invite.ExpiresAt}, nil
	default:
		return map[string]any{"status": "valid", "expiresAt": invite.ExpiresAt}, nil
	}
}

type RedeemInviteInput struct {
	Code       string   `json:"code"`
	Name       string   `json:"name"`
	Role       string   `json:"role"`
	Department string   `json:"department"`
	Skills     []string `json:"skills"`
}

// RedeemInvite consumes a code and seats the caller on the roster.
// Validation and consumption happen in one store transaction, so two
// concurrent redemptions of the same code cannot both succeed.
func (s *Service) RedeemInvite(ctx context.Context, session Session, input RedeemInviteInput) (map[string]any, error) {
	code := strings.ToUpper(strings.TrimSpace(input.Code))
	if code == "" {
		return nil, errValidation("code is required")
	}
	if input.Department != "" && !validDepartment(input.Department) {
		return nil, errValidation("unknown department")
	}

	identityID := session.IdentityID
	member := store.Member{
		ID:         util.NewID("mem"),
		Name:       defaultString(strings.TrimSpace(input.Name), session.DisplayName),
		Email:      session.Email,
		Role:       strings.TrimSpace(input.Role),
		Department: input.Department,
		Presence:   "online",
		Skills:     input.Skills,
		IdentityID: &identityID,
	}

	_, err := s.store.RedeemInvite(ctx, code, member, time.Now())
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, errNotFound("invite code not found")
	case errors.Is(err, store.ErrInviteUsed):
		return nil, errValidation("invite code has already been used")
	case errors.Is(err, store.ErrInviteExpired):
		return nil, errValidation("invite code has expired")
	case errors.Is(err, store.ErrAlreadyMember):
		return nil, errValidation("you are already on the roster")
	case err != nil:
		return nil, err
	}

	s.logActivity(ctx, member.ID, "joined the team", member.Name)

	created, err := s.store.GetMember(ctx, member.ID)
	if err != nil {
		return memberPayload(member), nil
	}
	return memberPayload(created), nil
}

// ListInvites returns annotated rows for admins. Non-admin members get
// an empty list rather than an error so shared dashboards stay quiet.
func (s *Service) ListInvites(ctx context.Context, session Session) ([]map[string]any, error) {
	caller, err := s.requireMember(ctx, session)
	if err != nil {
		return nil, err
	}
	if !access.IsAdmin(caller) {
		return []map[string]any{}, nil
	}

	invites, err := s.store.ListInvites(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	creators := map[string]store.Member{}
	items := make([]map[string]any, 0, len(invites))
	for _, invite := range invites {
		payload := invitePayload(invite, now)
		creator, ok := creators[invite.CreatedBy]
		if !ok {
			if loaded, err := s.store.GetMember(ctx, invite.CreatedBy); err == nil {
				creator, creators[invite.CreatedBy] = loaded, loaded
				ok = true
			}
		}
		if ok {
			payload["createdByName"] = creator.Name
		}
		items = append(items, payload)
	}
	return items, nil
}

func (s *Service) RevokeInvite(ctx context.Context, session Session, inviteID string) error {
	caller, err := s.requireMember(ctx, session)
	if err != nil {
		return err
	}
	if !access.IsAdmin(caller) {
		return errForbidden("Only admins can revoke invites")
	}

	if err := s.store.DeleteUnusedInvite(ctx, inviteID); err != nil {
		if errors.Is(err, store.ErrInviteUsed) {
			return errValidation("invite has already been used")
		}
		return err
	}

	s.logActivity(ctx, caller.ID, "revoked invite", inviteID)
	return nil
}

type ExtendInviteInput struct {
	Days int `json:"days"`
}

// ExtendInvite pushes the expiry forward: expired codes restart from
// now, live codes extend from their current expiry.
func (s *Service) ExtendInvite(ctx context.Context, session Session, inviteID string, input ExtendInviteInput) (map[string]any, error) {
	caller, err := s.requireMember(ctx, session)
	if err != nil {
		return nil, err
	}
	if !access.IsAdmin(caller) {
		return nil, errForbidden("Only admins can extend invites")
	}

	days := input.Days
	if days == 0 {
		days = s.cfg.InviteExpiryDays
	}
	if days < 0 {
		return nil, errValidation("days must be positive")
	}

	invite, err := s.store.GetInvite(ctx, inviteID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	base := invite.ExpiresAt
	if base.Before(now) {
		base = now
	}
	expiresAt := base.Add(time.Duration(days) * 24 * time.Hour)

	if err := s.store.ExtendUnusedInvite(ctx, inviteID, expiresAt); err != nil {
		if errors.Is(err, store.ErrInviteUsed) {
			return nil, errValidation("invite has already been used")
		}
		return nil, err
	}

	invite.ExpiresAt = expiresAt
	s.logActivity(ctx, caller.ID, "extended invite", maskInviteCode(invite.Code))
	return invitePayload(invite, now), nil
}
