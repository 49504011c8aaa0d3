// Package access holds the pure authorization rules for team resources.
// Functions here take a resolved member plus a target record and do no I/O;
// callers resolve the member once at the request boundary.
package access

import "github.com/yash1258/TeamSync-sub000/internal/store"

type Level string

const (
	LevelAdmin  Level = "admin"
	LevelMember Level = "member"
	LevelViewer Level = "viewer"
)

func Normalize(level string) Level {
	switch Level(level) {
	case LevelAdmin, LevelMember, LevelViewer:
		return Level(level)
	default:
		return LevelViewer
	}
}

func IsAdmin(member store.Member) bool {
	return Normalize(member.AccessLevel) == LevelAdmin
}

// CanAccessTask reports whether the member may read the task. Team tasks
// are visible to everyone on the roster; personal tasks only to the
// owner, the assignee, or an admin.
func CanAccessTask(member store.Member, task store.Task) bool {
	if task.Visibility == store.VisibilityTeam {
		return true
	}
	if IsAdmin(member) {
		return true
	}
	return task.OwnerID == member.ID || task.AssigneeID == member.ID
}

// CanUpdateTask shares the read gate: anyone who can see a task may
// edit it.
func CanUpdateTask(member store.Member, task store.Task) bool {
	return CanAccessTask(member, task)
}

// CanDeleteTask is stricter than update: assignee alone is not enough.
func CanDeleteTask(member store.Member, task store.Task) bool {
	return IsAdmin(member) || task.OwnerID == member.ID
}

// CanEditDocument excludes viewers from all document writes.
func CanEditDocument(member store.Member) bool {
	level := Normalize(member.AccessLevel)
	return level == LevelAdmin || level == LevelMember
}

func CanDeleteDocument(member store.Member, doc store.Document) bool {
	return IsAdmin(member) || doc.CreatedBy == member.ID
}

func CanDeleteBudgetEntry(member store.Member, entry store.BudgetEntry) bool {
	return IsAdmin(member) || entry.CreatedBy == member.ID
}
