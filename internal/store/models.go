package store

import "time"

// Identity is an authenticated principal. It is distinct from Member:
// an identity can exist without a roster entry (pre-onboarding), and a
// member can exist without a linked identity (created before linking or
// minted through an invite that only recorded an email).
type Identity struct {
	ID                    string
	Email                 string
	DisplayName           string
	PasswordHash          string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

const (
	VisibilityTeam     = "team"
	VisibilityPersonal = "personal"
)

const (
	StatusTodo       = "todo"
	StatusInProgress = "in-progress"
	StatusReview     = "review"
	StatusDone       = "done"
)

var TaskStatuses = []string{StatusTodo, StatusInProgress, StatusReview, StatusDone}

var TaskPriorities = []string{"low", "medium", "high"}

var Departments = []string{"engineering", "design", "finance", "product", "marketing"}

var PresenceStatuses = []string{"online", "offline", "away"}

// Member is a team-roster entry.
type Member struct {
	ID          string
	Name        string
	Email       string
	Role        string
	AvatarURL   string
	Department  string
	Presence    string
	AccessLevel string
	Skills      []string
	IdentityID  *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Invite is a single-use, time-boxed join code. "Expired" is derived at
// read time from ExpiresAt; the row persists until revoked.
type Invite struct {
	ID        string
	Code      string
	CreatedBy string
	ExpiresAt time.Time
	UsedBy    *string
	UsedAt    *time.Time
	CreatedAt time.Time
}

type Task struct {
	ID          string
	Title       string
	Description string
	Status      string
	Priority    string
	Visibility  string
	OwnerID     string
	AssigneeID  string
	DueDate     string
	Tags        []string
	CreatedAt   time.Time
}

// Comment belongs to exactly one task and is immutable once created.
type Comment struct {
	ID        string
	TaskID    string
	AuthorID  string
	Content   string
	CreatedAt time.Time
}

const (
	FileTypePDF      = "pdf"
	FileTypeMarkdown = "markdown"
	FileTypeJSONL    = "jsonl"
	FileTypeOther    = "other"
)

// Document carries denormalized current-version fields (FileName, FileType,
// MimeType, SizeBytes, StorageKey, CurrentVersion) mirroring the latest
// DocumentVersion so "what is the latest" is a single row read.
type Document struct {
	ID             string
	Title          string
	FileName       string
	Description    string
	Tags           []string
	FileType       string
	MimeType       string
	SizeBytes      int64
	StorageKey     string
	CreatedBy      string
	CurrentVersion int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DocumentVersion is an immutable history record. Version numbers per
// document are sequential from 1 with no gaps.
type DocumentVersion struct {
	ID         string
	DocumentID string
	Version    int
	StorageKey string
	FileName   string
	MimeType   string
	SizeBytes  int64
	UploadedBy string
	Note       string
	CreatedAt  time.Time
}

type BudgetEntry struct {
	ID          string
	Label       string
	AmountCents int64
	Category    string
	CreatedBy   string
	CreatedAt   time.Time
}

// ActivityEntry is append-only; rows are never updated, and deleted only
// by the administrative bulk reset.
type ActivityEntry struct {
	ID        int64
	ActorID   string
	Action    string
	Target    string
	CreatedAt time.Time
}
