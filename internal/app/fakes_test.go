package app

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/yash1258/TeamSync-sub000/internal/config"
	"github.com/yash1258/TeamSync-sub000/internal/store"
)

type fakeStore struct {
	getIdentityByIDFn      func(context.Context, string) (store.Identity, error)
	listMembersFn          func(context.Context) ([]store.Member, error)
	getMemberFn            func(context.Context, string) (store.Member, error)
	getMemberByEmailFn     func(context.Context, string) (store.Member, error)
	getMemberByIdentityFn  func(context.Context, string) (store.Member, error)
	memberCountFn          func(context.Context) (int, error)
	insertMemberFn         func(context.Context, store.Member) error
	insertFounderMemberFn  func(context.Context, store.Member) (bool, error)
	updateMemberFn         func(context.Context, store.Member) error
	deleteMemberFn         func(context.Context, string) error
	insertInviteFn         func(context.Context, store.Invite) error
	getInviteFn            func(context.Context, string) (store.Invite, error)
	getInviteByCodeFn      func(context.Context, string) (store.Invite, error)
	listInvitesFn          func(context.Context) ([]store.Invite, error)
	redeemInviteFn         func(context.Context, string, store.Member, time.Time) (store.Invite, error)
	deleteUnusedInviteFn   func(context.Context, string) error
	extendUnusedInviteFn   func(context.Context, string, time.Time) error
	insertTaskFn           func(context.Context, store.Task) error
	getTaskFn              func(context.Context, string) (store.Task, error)
	listTeamTasksFn        func(context.Context) ([]store.Task, error)
	listMemberTasksFn      func(context.Context, string) ([]store.Task, error)
	listRecentTasksFn      func(context.Context, int) ([]store.Task, error)
	updateTaskFn           func(context.Context, store.Task) error
	updateTaskStatusFn     func(context.Context, string, string) error
	deleteTaskFn           func(context.Context, string) error
	insertCommentFn        func(context.Context, store.Comment) error
	listTaskCommentsFn     func(context.Context, string) ([]store.Comment, error)
	taskStatusCountsFn     func(context.Context) (map[string]int, error)
	insertDocumentFn       func(context.Context, store.Document, store.DocumentVersion) error
	getDocumentFn          func(context.Context, string) (store.Document, error)
	addDocumentVersionFn   func(context.Context, string, string, store.DocumentVersion) (int, error)
	listDocumentVersionsFn func(context.Context, string) ([]store.DocumentVersion, error)
	getDocumentVersionFn   func(context.Context, string, string) (store.DocumentVersion, error)
	documentVersionCountFn func(context.Context, string) (int, error)
	deleteDocumentFn       func(context.Context, string) error
	updateDocumentMetaFn   func(context.Context, string, string, string, []string) error
	insertBudgetEntryFn    func(context.Context, store.BudgetEntry) error
	getBudgetEntryFn       func(context.Context, string) (store.BudgetEntry, error)
	listBudgetEntriesFn    func(context.Context) ([]store.BudgetEntry, error)
	deleteBudgetEntryFn    func(context.Context, string) error
	budgetTotalsFn         func(context.Context) (map[string]int64, error)
	listRecentActivityFn   func(context.Context, int) ([]store.ActivityEntry, error)
	clearActivityFn        func(context.Context) error

	mu       sync.Mutex
	activity []store.ActivityEntry
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) GetIdentityByID(ctx context.Context, id string) (store.Identity, error) {
	if f.getIdentityByIDFn != nil {
		return f.getIdentityByIDFn(ctx, id)
	}
	return store.Identity{}, sql.ErrNoRows
}
func (f *fakeStore) RevokeAccessToken(context.Context, string, time.Time) error { return nil }
func (f *fakeStore) IsAccessTokenRevoked(context.Context, string) (bool, error) {
	return false, nil
}

func (f *fakeStore) ListMembers(ctx context.Context) ([]store.Member, error) {
	if f.listMembersFn != nil {
		return f.listMembersFn(ctx)
	}
	return nil, nil
}
func (f *fakeStore) GetMember(ctx context.Context, id string) (store.Member, error) {
	if f.getMemberFn != nil {
		return f.getMemberFn(ctx, id)
	}
	return store.Member{}, sql.ErrNoRows
}
func (f *fakeStore) GetMemberByEmail(ctx context.Context, email string) (store.Member, error) {
	if f.getMemberByEmailFn != nil {
		return f.getMemberByEmailFn(ctx, email)
	}
	return store.Member{}, sql.ErrNoRows
}
func (f *fakeStore) GetMemberByIdentity(ctx context.Context, identityID string) (store.Member, error) {
	if f.getMemberByIdentityFn != nil {
		return f.getMemberByIdentityFn(ctx, identityID)
	}
	return store.Member{}, sql.ErrNoRows
}
func (f *fakeStore) MemberCount(ctx context.Context) (int, error) {
	if f.memberCountFn != nil {
		return f.memberCountFn(ctx)
	}
	return 0, nil
}
func (f *fakeStore) InsertMember(ctx context.Context, item store.Member) error {
	if f.insertMemberFn != nil {
		return f.insertMemberFn(ctx, item)
	}
	return nil
}
func (f *fakeStore) InsertFounderMember(ctx context.Context, item store.Member) (bool, error) {
	if f.insertFounderMemberFn != nil {
		return f.insertFounderMemberFn(ctx, item)
	}
	return false, nil
}
func (f *fakeStore) UpdateMember(ctx context.Context, item store.Member) error {
	if f.updateMemberFn != nil {
		return f.updateMemberFn(ctx, item)
	}
	return nil
}
func (f *fakeStore) DeleteMember(ctx context.Context, id string) error {
	if f.deleteMemberFn != nil {
		return f.deleteMemberFn(ctx, id)
	}
	return nil
}

func (f *fakeStore) InsertInvite(ctx context.Context, item store.Invite) error {
	if f.insertInviteFn != nil {
		return f.insertInviteFn(ctx, item)
	}
	return nil
}
func (f *fakeStore) GetInvite(ctx context.Context, id string) (store.Invite, error) {
	if f.getInviteFn != nil {
		return f.getInviteFn(ctx, id)
	}
	return store.Invite{}, sql.ErrNoRows
}
func (f *fakeStore) GetInviteByCode(ctx context.Context, code string) (store.Invite, error) {
	if f.getInviteByCodeFn != nil {
		return f.getInviteByCodeFn(ctx, code)
	}
	return store.Invite{}, sql.ErrNoRows
}
func (f *fakeStore) ListInvites(ctx context.Context) ([]store.Invite, error) {
	if f.listInvitesFn != nil {
		return f.listInvitesFn(ctx)
	}
	return nil, nil
}
func (f *fakeStore) RedeemInvite(ctx context.Context, code string, member store.Member, now time.Time) (store.Invite, error) {
	if f.redeemInviteFn != nil {
		return f.redeemInviteFn(ctx, code, member, now)
	}
	return store.Invite{}, sql.ErrNoRows
}
func (f *fakeStore) DeleteUnusedInvite(ctx context.Context, id string) error {
	if f.deleteUnusedInviteFn != nil {
		return f.deleteUnusedInviteFn(ctx, id)
	}
	return nil
}
func (f *fakeStore) ExtendUnusedInvite(ctx context.Context, id string, expiresAt time.Time) error {
	if f.extendUnusedInviteFn != nil {
		return f.extendUnusedInviteFn(ctx, id, expiresAt)
	}
	return nil
}

func (f *fakeStore) InsertTask(ctx context.Context, item store.Task) error {
	if f.insertTaskFn != nil {
		return f.insertTaskFn(ctx, item)
	}
	return nil
}
func (f *fakeStore) GetTask(ctx context.Context, id string) (store.Task, error) {
	if f.getTaskFn != nil {
		return f.getTaskFn(ctx, id)
	}
	return store.Task{}, sql.ErrNoRows
}
func (f *fakeStore) ListTeamTasks(ctx context.Context) ([]store.Task, error) {
	if f.listTeamTasksFn != nil {
		return f.listTeamTasksFn(ctx)
	}
	return nil, nil
}
func (f *fakeStore) ListMemberTasks(ctx context.Context, memberID string) ([]store.Task, error) {
	if f.listMemberTasksFn != nil {
		return f.listMemberTasksFn(ctx, memberID)
	}
	return nil, nil
}
func (f *fakeStore) ListRecentTasks(ctx context.Context, limit int) ([]store.Task, error) {
	if f.listRecentTasksFn != nil {
		return f.listRecentTasksFn(ctx, limit)
	}
	return nil, nil
}
func (f *fakeStore) UpdateTask(ctx context.Context, item store.Task) error {
	if f.updateTaskFn != nil {
		return f.updateTaskFn(ctx, item)
	}
	return nil
}
func (f *fakeStore) UpdateTaskStatus(ctx context.Context, id, status string) error {
	if f.updateTaskStatusFn != nil {
		return f.updateTaskStatusFn(ctx, id, status)
	}
	return nil
}
func (f *fakeStore) DeleteTask(ctx context.Context, id string) error {
	if f.deleteTaskFn != nil {
		return f.deleteTaskFn(ctx, id)
	}
	return nil
}
func (f *fakeStore) InsertComment(ctx context.Context, item store.Comment) error {
	if f.insertCommentFn != nil {
		return f.insertCommentFn(ctx, item)
	}
	return nil
}
func (f *fakeStore) ListTaskComments(ctx context.Context, taskID string) ([]store.Comment, error) {
	if f.listTaskCommentsFn != nil {
		return f.listTaskCommentsFn(ctx, taskID)
	}
	return nil, nil
}
func (f *fakeStore) TaskStatusCounts(ctx context.Context) (map[string]int, error) {
	if f.taskStatusCountsFn != nil {
		return f.taskStatusCountsFn(ctx)
	}
	return map[string]int{}, nil
}

func (f *fakeStore) InsertDocument(ctx context.Context, item store.Document, first store.DocumentVersion) error {
	if f.insertDocumentFn != nil {
		return f.insertDocumentFn(ctx, item, first)
	}
	return nil
}
func (f *fakeStore) GetDocument(ctx context.Context, id string) (store.Document, error) {
	if f.getDocumentFn != nil {
		return f.getDocumentFn(ctx, id)
	}
	return store.Document{}, sql.ErrNoRows
}
func (f *fakeStore) AddDocumentVersion(ctx context.Context, id, fileType string, version store.DocumentVersion) (int, error) {
	if f.addDocumentVersionFn != nil {
		return f.addDocumentVersionFn(ctx, id, fileType, version)
	}
	return 0, nil
}
func (f *fakeStore) ListDocumentVersions(ctx context.Context, id string) ([]store.DocumentVersion, error) {
	if f.listDocumentVersionsFn != nil {
		return f.listDocumentVersionsFn(ctx, id)
	}
	return nil, nil
}
func (f *fakeStore) GetDocumentVersion(ctx context.Context, documentID, versionID string) (store.DocumentVersion, error) {
	if f.getDocumentVersionFn != nil {
		return f.getDocumentVersionFn(ctx, documentID, versionID)
	}
	return store.DocumentVersion{}, sql.ErrNoRows
}
func (f *fakeStore) DocumentVersionCount(ctx context.Context, id string) (int, error) {
	if f.documentVersionCountFn != nil {
		return f.documentVersionCountFn(ctx, id)
	}
	return 0, nil
}
func (f *fakeStore) DeleteDocument(ctx context.Context, id string) error {
	if f.deleteDocumentFn != nil {
		return f.deleteDocumentFn(ctx, id)
	}
	return nil
}
func (f *fakeStore) UpdateDocumentMetadata(ctx context.Context, id, title, description string, tags []string) error {
	if f.updateDocumentMetaFn != nil {
		return f.updateDocumentMetaFn(ctx, id, title, description, tags)
	}
	return nil
}

func (f *fakeStore) InsertBudgetEntry(ctx context.Context, item store.BudgetEntry) error {
	if f.insertBudgetEntryFn != nil {
		return f.insertBudgetEntryFn(ctx, item)
	}
	return nil
}
func (f *fakeStore) GetBudgetEntry(ctx context.Context, id string) (store.BudgetEntry, error) {
	if f.getBudgetEntryFn != nil {
		return f.getBudgetEntryFn(ctx, id)
	}
	return store.BudgetEntry{}, sql.ErrNoRows
}
func (f *fakeStore) ListBudgetEntries(ctx context.Context) ([]store.BudgetEntry, error) {
	if f.listBudgetEntriesFn != nil {
		return f.listBudgetEntriesFn(ctx)
	}
	return nil, nil
}
func (f *fakeStore) DeleteBudgetEntry(ctx context.Context, id string) error {
	if f.deleteBudgetEntryFn != nil {
		return f.deleteBudgetEntryFn(ctx, id)
	}
	return nil
}
func (f *fakeStore) BudgetTotalsByCategory(ctx context.Context) (map[string]int64, error) {
	if f.budgetTotalsFn != nil {
		return f.budgetTotalsFn(ctx)
	}
	return map[string]int64{}, nil
}

func (f *fakeStore) InsertActivity(_ context.Context, entry store.ActivityEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activity = append(f.activity, entry)
	return nil
}
func (f *fakeStore) ListRecentActivity(ctx context.Context, limit int) ([]store.ActivityEntry, error) {
	if f.listRecentActivityFn != nil {
		return f.listRecentActivityFn(ctx, limit)
	}
	return nil, nil
}
func (f *fakeStore) ClearActivity(ctx context.Context) error {
	if f.clearActivityFn != nil {
		return f.clearActivityFn(ctx)
	}
	return nil
}

func (f *fakeStore) recordedActivity() []store.ActivityEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.ActivityEntry, len(f.activity))
	copy(out, f.activity)
	return out
}

// seedRoster wires the member lookup paths for a fixed set of members.
// Identity IDs follow the "idn:<memberID>" convention used by sessionFor.
func seedRoster(f *fakeStore, members ...store.Member) {
	byID := map[string]store.Member{}
	byEmail := map[string]store.Member{}
	byIdentity := map[string]store.Member{}
	for _, member := range members {
		byID[member.ID] = member
		byEmail[member.Email] = member
		byIdentity["idn:"+member.ID] = member
	}
	f.getMemberFn = func(_ context.Context, id string) (store.Member, error) {
		if member, ok := byID[id]; ok {
			return member, nil
		}
		return store.Member{}, sql.ErrNoRows
	}
	f.getMemberByEmailFn = func(_ context.Context, email string) (store.Member, error) {
		if member, ok := byEmail[email]; ok {
			return member, nil
		}
		return store.Member{}, sql.ErrNoRows
	}
	f.getMemberByIdentityFn = func(_ context.Context, identityID string) (store.Member, error) {
		if member, ok := byIdentity[identityID]; ok {
			return member, nil
		}
		return store.Member{}, sql.ErrNoRows
	}
	f.listMembersFn = func(context.Context) ([]store.Member, error) {
		return members, nil
	}
	f.memberCountFn = func(context.Context) (int, error) {
		return len(members), nil
	}
}

func sessionFor(member store.Member) Session {
	return Session{
		IdentityID:  "idn:" + member.ID,
		Email:       member.Email,
		DisplayName: member.Name,
		JTI:         "jti:" + member.ID,
		ExpiresAt:   time.Now().Add(time.Hour),
	}
}

func rosterMember(id, level string) store.Member {
	return store.Member{
		ID:          id,
		Name:        strings.ToUpper(id[:1]) + id[1:],
		Email:       id + "@example.com",
		AccessLevel: level,
		Presence:    "online",
	}
}

type fakeBlobs struct {
	existsFn func(key string) (bool, error)
	removeFn func(key string) error

	mu      sync.Mutex
	removed []string
}

func (f *fakeBlobs) UploadURL(_ context.Context, key string) (string, error) {
	return "https://blob.test/put/" + key, nil
}
func (f *fakeBlobs) Exists(_ context.Context, key string) (bool, error) {
	if f.existsFn != nil {
		return f.existsFn(key)
	}
	return true, nil
}
func (f *fakeBlobs) DownloadURL(_ context.Context, key, filename string) (string, error) {
	return "https://blob.test/get/" + key + "?name=" + filename, nil
}
func (f *fakeBlobs) Remove(_ context.Context, key string) error {
	if f.removeFn != nil {
		if err := f.removeFn(key); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, key)
	return nil
}
func (f *fakeBlobs) removedKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.removed))
	copy(out, f.removed)
	return out
}

type fakeIndex struct {
	searchFn func(ctx context.Context, query string) ([]store.Document, error)

	mu      sync.Mutex
	indexed []string
	deleted []string
}

func (f *fakeIndex) Search(ctx context.Context, query string) ([]store.Document, error) {
	if f.searchFn != nil {
		return f.searchFn(ctx, query)
	}
	return nil, nil
}
func (f *fakeIndex) Index(doc store.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, doc.ID)
}
func (f *fakeIndex) Delete(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
}

type fakeSessions struct {
	mu    sync.Mutex
	saved map[string]store.Identity
}

func (f *fakeSessions) SaveRefreshSession(_ context.Context, tokenHash string, identity store.Identity, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = map[string]store.Identity{}
	}
	f.saved[tokenHash] = identity
	return nil
}
func (f *fakeSessions) LookupRefreshSession(_ context.Context, tokenHash string) (store.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if identity, ok := f.saved[tokenHash]; ok {
		return identity, nil
	}
	return store.Identity{}, sql.ErrNoRows
}
func (f *fakeSessions) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.saved, tokenHash)
	return nil
}

func newTestService(f *fakeStore) (*Service, *fakeBlobs, *fakeIndex) {
	blobs := &fakeBlobs{}
	index := &fakeIndex{}
	svc := &Service{
		cfg: config.Config{
			JWTSecret:        "test-secret",
			AccessTTL:        15 * time.Minute,
			RefreshTTL:       24 * time.Hour,
			InviteExpiryDays: 7,
		},
		store:    f,
		sessions: &fakeSessions{},
		blobs:    blobs,
		search:   index,
	}
	return svc, blobs, index
}
