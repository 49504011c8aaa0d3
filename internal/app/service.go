package app

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/yash1258/TeamSync-sub000/internal/access"
	"github.com/yash1258/TeamSync-sub000/internal/auth"
	"github.com/yash1258/TeamSync-sub000/internal/authpw"
	"github.com/yash1258/TeamSync-sub000/internal/blob"
	"github.com/yash1258/TeamSync-sub000/internal/config"
	"github.com/yash1258/TeamSync-sub000/internal/email"
	"github.com/yash1258/TeamSync-sub000/internal/search"
	"github.com/yash1258/TeamSync-sub000/internal/store"
	"github.com/yash1258/TeamSync-sub000/internal/util"
)

// Session is an authenticated principal. It carries identity, not roster
// membership; membership is resolved per request.
type Session struct {
	Token        string
	RefreshToken string
	IdentityID   string
	Email        string
	DisplayName  string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	Ping(ctx context.Context) error

	GetIdentityByID(context.Context, string) (store.Identity, error)
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)

	ListMembers(context.Context) ([]store.Member, error)
	GetMember(context.Context, string) (store.Member, error)
	GetMemberByEmail(context.Context, string) (store.Member, error)
	GetMemberByIdentity(context.Context, string) (store.Member, error)
	MemberCount(context.Context) (int, error)
	InsertMember(context.Context, store.Member) error
	InsertFounderMember(context.Context, store.Member) (bool, error)
	UpdateMember(context.Context, store.Member) error
	DeleteMember(context.Context, string) error

	InsertInvite(context.Context, store.Invite) error
	GetInvite(context.Context, string) (store.Invite, error)
	GetInviteByCode(context.Context, string) (store.Invite, error)
	ListInvites(context.Context) ([]store.Invite, error)
	RedeemInvite(context.Context, string, store.Member, time.Time) (store.Invite, error)
	DeleteUnusedInvite(context.Context, string) error
	ExtendUnusedInvite(context.Context, string, time.Time) error

	InsertTask(context.Context, store.Task) error
	GetTask(context.Context, string) (store.Task, error)
	ListTeamTasks(context.Context) ([]store.Task, error)
	ListMemberTasks(context.Context, string) ([]store.Task, error)
	ListRecentTasks(context.Context, int) ([]store.Task, error)
	UpdateTask(context.Context, store.Task) error
	UpdateTaskStatus(context.Context, string, string) error
	DeleteTask(context.Context, string) error
	InsertComment(context.Context, store.Comment) error
	ListTaskComments(context.Context, string) ([]store.Comment, error)
	TaskStatusCounts(context.Context) (map[string]int, error)

	InsertDocument(context.Context, store.Document, store.DocumentVersion) error
	GetDocument(context.Context, string) (store.Document, error)
	AddDocumentVersion(context.Context, string, string, store.DocumentVersion) (int, error)
	ListDocumentVersions(context.Context, string) ([]store.DocumentVersion, error)
	GetDocumentVersion(context.Context, string, string) (store.DocumentVersion, error)
	DocumentVersionCount(context.Context, string) (int, error)
	DeleteDocument(context.Context, string) error
	UpdateDocumentMetadata(context.Context, string, string, string, []string) error

	InsertBudgetEntry(context.Context, store.BudgetEntry) error
	GetBudgetEntry(context.Context, string) (store.BudgetEntry, error)
	ListBudgetEntries(context.Context) ([]store.BudgetEntry, error)
	DeleteBudgetEntry(context.Context, string) error
	BudgetTotalsByCategory(context.Context) (map[string]int64, error)

	InsertActivity(context.Context, store.ActivityEntry) error
	ListRecentActivity(context.Context, int) ([]store.ActivityEntry, error)
	ClearActivity(context.Context) error
}

// SessionStore holds refresh tokens keyed by hash. Backed by Redis in
// production with a Postgres fallback.
type SessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, identity store.Identity, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.Identity, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type blobStore interface {
	UploadURL(ctx context.Context, key string) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	DownloadURL(ctx context.Context, key, filename string) (string, error)
	Remove(ctx context.Context, key string) error
}

type documentIndex interface {
	Search(ctx context.Context, query string) ([]store.Document, error)
	Index(doc store.Document)
	Delete(id string)
}

type mailer interface {
	IsConfigured() bool
	SendInviteEmail(to, inviterName, code, expiresAt string) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions SessionStore
	blobs    blobStore
	search   documentIndex
	auth     *authpw.Service
	mail     mailer
}

func New(cfg config.Config, dataStore *store.PostgresStore, sessions SessionStore, blobs *blob.Store, index *search.Service, mail *email.Service) *Service {
	s := &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		blobs:    blobs,
		search:   index,
		auth:     authpw.NewService(dataStore),
	}
	if mail != nil {
		s.mail = mail
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Auth exposes the email/password provider to the HTTP layer.
func (s *Service) Auth() *authpw.Service {
	return s.auth
}

func (s *Service) SMTPConfigured() bool {
	return s.mail != nil && s.mail.IsConfigured()
}

// ---- sessions -------------------------------------------------------------

func (s *Service) CreateSession(ctx context.Context, identityID string) (Session, error) {
	identity, err := s.store.GetIdentityByID(ctx, identityID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, identity)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	identity, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, identity)
}

func (s *Service) issueSession(ctx context.Context, identity store.Identity) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   identity.ID,
		Email: identity.Email,
		Name:  identity.DisplayName,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), identity, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		IdentityID:   identity.ID,
		Email:        identity.Email,
		DisplayName:  identity.DisplayName,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:       token,
		IdentityID:  claims.Sub,
		Email:       claims.Email,
		DisplayName: claims.Name,
		JTI:         claims.JTI,
		ExpiresAt:   time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// ---- identity resolution --------------------------------------------------

// resolveMember maps an authenticated principal onto the roster: the
// explicit identity link wins, the principal's email is the fallback.
// Returns nil without error when the principal is not on the roster.
func (s *Service) resolveMember(ctx context.Context, session Session) (*store.Member, error) {
	member, err := s.store.GetMemberByIdentity(ctx, session.IdentityID)
	if err == nil {
		return &member, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	member, err = s.store.GetMemberByEmail(ctx, session.Email)
	if err == nil {
		return &member, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return nil, err
}

func (s *Service) requireMember(ctx context.Context, session Session) (store.Member, error) {
	member, err := s.resolveMember(ctx, session)
	if err != nil {
		return store.Member{}, err
	}
	if member == nil {
		return store.Member{}, errMembershipRequired()
	}
	return *member, nil
}

// CurrentMember returns the principal plus their roster entry, which is
// null when the principal has not joined yet.
func (s *Service) CurrentMember(ctx context.Context, session Session) (map[string]any, error) {
	member, err := s.resolveMember(ctx, session)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"identityId":  session.IdentityID,
		"email":       session.Email,
		"displayName": session.DisplayName,
		"member":      nil,
	}
	if member != nil {
		payload["member"] = memberPayload(*member)
	}
	return payload, nil
}

// ---- activity -------------------------------------------------------------

// logActivity is best effort: the feed is informational and must not
// fail the mutation that produced it.
func (s *Service) logActivity(ctx context.Context, actorID, action, target string) {
	if err := s.store.InsertActivity(ctx, store.ActivityEntry{
		ActorID: actorID,
		Action:  action,
		Target:  target,
	}); err != nil {
		log.Printf("activity: record %q: %v", action, err)
	}
}

// ---- members --------------------------------------------------------------

func memberPayload(member store.Member) map[string]any {
	skills := member.Skills
	if skills == nil {
		skills = []string{}
	}
	return map[string]any{
		"id":          member.ID,
		"name":        member.Name,
		"email":       member.Email,
		"role":        member.Role,
		"avatarUrl":   member.AvatarURL,
		"department":  member.Department,
		"presence":    member.Presence,
		"accessLevel": member.AccessLevel,
		"skills":      skills,
		"identityId":  member.IdentityID,
		"createdAt":   member.CreatedAt,
		"updatedAt":   member.UpdatedAt,
	}
}

func (s *Service) ListMembers(ctx context.Context, session Session) ([]map[string]any, error) {
	if _, err := s.requireMember(ctx, session); err != nil {
		return nil, err
	}
	members, err := s.store.ListMembers(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(members))
	for _, member := range members {
		items = append(items, memberPayload(member))
	}
	return items, nil
}

func (s *Service) GetMember(ctx context.Context, session Session, memberID string) (map[string]any, error) {
	if _, err := s.requireMember(ctx, session); err != nil {
		return nil, err
	}
	member, err := s.store.GetMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	return memberPayload(member), nil
}

type MemberInput struct {
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	Role        string   `json:"role"`
	AvatarURL   string   `json:"avatarUrl"`
	Department  string   `json:"department"`
	Presence    string   `json:"presence"`
	AccessLevel string   `json:"accessLevel"`
	Skills      []string `json:"skills"`
}

func validDepartment(department string) bool {
	for _, candidate := range store.Departments {
		if candidate == department {
			return true
		}
	}
	return false
}

func validPresence(presence string) bool {
	for _, candidate := range store.PresenceStatuses {
		if candidate == presence {
			return true
		}
	}
	return false
}

func (s *Service) CreateMember(ctx context.Context, session Session, input MemberInput) (map[string]any, error) {
	caller, err := s.requireMember(ctx, session)
	if err != nil {
		return nil, err
	}
	if !access.IsAdmin(caller) {
		return nil, errForbidden("Only admins can add members")
	}

	name := strings.TrimSpace(input.Name)
	emailAddr := strings.TrimSpace(strings.ToLower(input.Email))
	if name == "" || emailAddr == "" {
		return nil, errValidation("name and email are required")
	}
	if input.Department != "" && !validDepartment(input.Department) {
		return nil, errValidation("unknown department")
	}
	if input.Presence != "" && !validPresence(input.Presence) {
		return nil, errValidation("unknown presence status")
	}
	if _, err := s.store.GetMemberByEmail(ctx, emailAddr); err == nil {
		return nil, errValidation("a member with that email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	member := store.Member{
		ID:          util.NewID("mem"),
		Name:        name,
		Email:       emailAddr,
		Role:        strings.TrimSpace(input.Role),
		AvatarURL:   input.AvatarURL,
		Department:  input.Department,
		Presence:    defaultString(input.Presence, "offline"),
		AccessLevel: string(access.Normalize(input.AccessLevel)),
		Skills:      input.Skills,
	}
	if err := s.store.InsertMember(ctx, member); err != nil {
		return nil, err
	}

	s.logActivity(ctx, caller.ID, "added member", member.Name)

	created, err := s.store.GetMember(ctx, member.ID)
	if err != nil {
		return memberPayload(member), nil
	}
	return memberPayload(created), nil
}

type MemberPatch struct {
	Name        *string   `json:"name"`
	Role        *string   `json:"role"`
	AvatarURL   *string   `json:"avatarUrl"`
	Department  *string   `json:"department"`
	Presence    *string   `json:"presence"`
	AccessLevel *string   `json:"accessLevel"`
	Skills      *[]string `json:"skills"`
}

func (s *Service) UpdateMember(ctx context.Context, session Session, memberID string, patch MemberPatch) (map[string]any, error) {
	caller, err := s.requireMember(ctx, session)
	if err != nil {
		return nil, err
	}
	isSelf := caller.ID == memberID
	if !isSelf && !access.IsAdmin(caller) {
		return nil, errForbidden("You can only edit your own profile")
	}

	member, err := s.store.GetMember(ctx, memberID)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, errValidation("name cannot be empty")
		}
		member.Name = name
	}
	if patch.Role != nil {
		member.Role = strings.TrimSpace(*patch.Role)
	}
	if patch.AvatarURL != nil {
		member.AvatarURL = *patch.AvatarURL
	}
	if patch.Department != nil {
		if !validDepartment(*patch.Department) {
			return nil, errValidation("unknown department")
		}
		member.Department = *patch.Department
	}
	if patch.Presence != nil {
		if !validPresence(*patch.Presence) {
			return nil, errValidation("unknown presence status")
		}
		member.Presence = *patch.Presence
	}
	if patch.Skills != nil {
		member.Skills = *patch.Skills
	}
	if patch.AccessLevel != nil {
		level := string(access.Normalize(*patch.AccessLevel))
		if level != member.AccessLevel && !access.IsAdmin(caller) {
			return nil, errForbidden("Only admins can change access levels")
		}
		member.AccessLevel = level
	}

	if err := s.store.UpdateMember(ctx, member); err != nil {
		if errors.Is(err, store.ErrLastAdmin) {
			return nil, errValidation("cannot demote the last admin")
		}
		return nil, err
	}

	updated, err := s.store.GetMember(ctx, memberID)
	if err != nil {
		return memberPayload(member), nil
	}
	return memberPayload(updated), nil
}

func (s *Service) RemoveMember(ctx context.Context, session Session, memberID string) error {
	caller, err := s.requireMember(ctx, session)
	if err != nil {
		return err
	}
	if !access.IsAdmin(caller) {
		return errForbidden("Only admins can remove members")
	}
	if caller.ID == memberID {
		return errValidation("you cannot remove yourself")
	}

	member, err := s.store.GetMember(ctx, memberID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteMember(ctx, memberID); err != nil {
		if errors.Is(err, store.ErrLastAdmin) {
			return errValidation("cannot remove the last admin")
		}
		return err
	}

	s.logActivity(ctx, caller.ID, "removed member", member.Name)
	return nil
}

// JoinTeam seats the very first principal as the founding admin. Once a
// roster exists, joining goes through invite redemption instead.
func (s *Service) JoinTeam(ctx context.Context, session Session, input MemberInput) (map[string]any, error) {
	existing, err := s.resolveMember(ctx, session)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errValidation("you are already on the roster")
	}

	identityID := session.IdentityID
	member := store.Member{
		ID:         util.NewID("mem"),
		Name:       defaultString(strings.TrimSpace(input.Name), session.DisplayName),
		Email:      session.Email,
		Role:       strings.TrimSpace(input.Role),
		AvatarURL:  input.AvatarURL,
		Department: input.Department,
		Presence:   "online",
		Skills:     input.Skills,
		IdentityID: &identityID,
	}
	if member.Department != "" && !validDepartment(member.Department) {
		return nil, errValidation("unknown department")
	}

	founded, err := s.store.InsertFounderMember(ctx, member)
	if err != nil {
		return nil, err
	}
	if !founded {
		return nil, errForbidden("Joining this team requires an invite")
	}

	member.AccessLevel = string(access.LevelAdmin)
	s.logActivity(ctx, member.ID, "created the team", member.Name)

	created, err := s.store.GetMember(ctx, member.ID)
	if err != nil {
		return memberPayload(member), nil
	}
	return memberPayload(created), nil
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
