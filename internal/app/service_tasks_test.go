package app

import (
	"context"
	"testing"

	"github.com/yash1258/TeamSync-sub000/internal/store"
)

func strptr(s string) *string { return &s }

func TestCreateTask(t *testing.T) {
	ctx := context.Background()
	owner := rosterMember("jordan", "member")

	t.Run("applies defaults", func(t *testing.T) {
		fake := &fakeStore{}
		seedRoster(fake, owner)
		var inserted store.Task
		fake.insertTaskFn = func(_ context.Context, task store.Task) error {
			inserted = task
			return nil
		}
		svc, _, _ := newTestService(fake)

		_, err := svc.CreateTask(ctx, sessionFor(owner), CreateTaskInput{Title: " Ship the report "})
		if err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
		if inserted.Title != "Ship the report" {
			t.Fatalf("title not trimmed: %q", inserted.Title)
		}
		if inserted.Status != "todo" || inserted.Priority != "medium" || inserted.Visibility != "team" {
			t.Fatalf("defaults not applied: %+v", inserted)
		}
		if inserted.OwnerID != owner.ID {
			t.Fatalf("owner should be the caller, got %s", inserted.OwnerID)
		}
		activity := fake.recordedActivity()
		if len(activity) != 1 || activity[0].Action != "created task" {
			t.Fatalf("expected created-task activity, got %+v", activity)
		}
	})

	t.Run("personal tasks stay out of the feed", func(t *testing.T) {
		fake := &fakeStore{}
		seedRoster(fake, owner)
		svc, _, _ := newTestService(fake)

		_, err := svc.CreateTask(ctx, sessionFor(owner), CreateTaskInput{Title: "Private", Visibility: "personal"})
		if err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
		if activity := fake.recordedActivity(); len(activity) != 0 {
			t.Fatalf("personal task should not log activity, got %+v", activity)
		}
	})

	t.Run("validation", func(t *testing.T) {
		fake := &fakeStore{}
		seedRoster(fake, owner)
		svc, _, _ := newTestService(fake)
		session := sessionFor(owner)

		cases := []struct {
			name  string
			input CreateTaskInput
		}{
			{"blank title", CreateTaskInput{Title: "  "}},
			{"unknown status", CreateTaskInput{Title: "T", Status: "blocked"}},
			{"unknown priority", CreateTaskInput{Title: "T", Priority: "urgent"}},
			{"unknown visibility", CreateTaskInput{Title: "T", Visibility: "secret"}},
			{"assignee off the roster", CreateTaskInput{Title: "T", AssigneeID: "mem-ghost"}},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := svc.CreateTask(ctx, session, tc.input)
				assertDomainError(t, err, "VALIDATION_ERROR")
			})
		}
	})
}

func TestPersonalTaskVisibility(t *testing.T) {
	ctx := context.Background()
	admin := rosterMember("casey", "admin")
	owner := rosterMember("jordan", "member")
	other := rosterMember("riley", "member")

	personal := store.Task{ID: "tsk-1", Title: "Private", Status: "todo", Priority: "medium", Visibility: "personal", OwnerID: owner.ID}
	team := store.Task{ID: "tsk-2", Title: "Shared", Status: "todo", Priority: "medium", Visibility: "team", OwnerID: owner.ID}

	newSvc := func() *Service {
		fake := &fakeStore{}
		seedRoster(fake, admin, owner, other)
		fake.getTaskFn = func(_ context.Context, id string) (store.Task, error) {
			switch id {
			case personal.ID:
				return personal, nil
			case team.ID:
				return team, nil
			}
			return store.Task{}, errNotFound("task not found")
		}
		fake.listRecentTasksFn = func(context.Context, int) ([]store.Task, error) {
			return []store.Task{personal, team}, nil
		}
		svc, _, _ := newTestService(fake)
		return svc
	}

	t.Run("owner sees their personal task", func(t *testing.T) {
		if _, err := newSvc().GetTask(ctx, sessionFor(owner), personal.ID); err != nil {
			t.Fatalf("GetTask: %v", err)
		}
	})

	t.Run("admin sees any personal task", func(t *testing.T) {
		if _, err := newSvc().GetTask(ctx, sessionFor(admin), personal.ID); err != nil {
			t.Fatalf("GetTask: %v", err)
		}
	})

	t.Run("others get not found, not forbidden", func(t *testing.T) {
		_, err := newSvc().GetTask(ctx, sessionFor(other), personal.ID)
		assertDomainError(t, err, "NOT_FOUND")
	})

	t.Run("list filtering hides inaccessible tasks", func(t *testing.T) {
		items, err := newSvc().ListRecentTasks(ctx, sessionFor(other), 20)
		if err != nil {
			t.Fatalf("ListRecentTasks: %v", err)
		}
		if len(items) != 1 || items[0]["id"] != team.ID {
			t.Fatalf("expected only the team task, got %+v", items)
		}
	})

	t.Run("viewing another board requires admin", func(t *testing.T) {
		_, err := newSvc().ListPersonalTasks(ctx, sessionFor(other), owner.ID)
		assertDomainError(t, err, "FORBIDDEN")
	})
}

func TestUpdateTaskStatus(t *testing.T) {
	ctx := context.Background()
	owner := rosterMember("jordan", "member")
	task := store.Task{ID: "tsk-1", Title: "Shared", Status: "todo", Priority: "medium", Visibility: "team", OwnerID: owner.ID}

	t.Run("moves and logs with the display label", func(t *testing.T) {
		fake := &fakeStore{}
		seedRoster(fake, owner)
		fake.getTaskFn = func(context.Context, string) (store.Task, error) { return task, nil }
		moved := false
		fake.updateTaskStatusFn = func(_ context.Context, _, status string) error {
			moved = status == "in-progress"
			return nil
		}
		svc, _, _ := newTestService(fake)

		payload, err := svc.UpdateTaskStatus(ctx, sessionFor(owner), task.ID, "in-progress")
		if err != nil {
			t.Fatalf("UpdateTaskStatus: %v", err)
		}
		if !moved {
			t.Fatal("store was not asked to move the task")
		}
		if payload["status"] != "in-progress" {
			t.Fatalf("payload status stale: %v", payload["status"])
		}
		activity := fake.recordedActivity()
		if len(activity) != 1 || activity[0].Action != "moved task to In Progress" {
			t.Fatalf("expected moved-task activity with label, got %+v", activity)
		}
	})

	t.Run("same status is a no-op", func(t *testing.T) {
		fake := &fakeStore{}
		seedRoster(fake, owner)
		fake.getTaskFn = func(context.Context, string) (store.Task, error) { return task, nil }
		fake.updateTaskStatusFn = func(context.Context, string, string) error {
			t.Fatal("no-op status change should not hit the store")
			return nil
		}
		svc, _, _ := newTestService(fake)

		if _, err := svc.UpdateTaskStatus(ctx, sessionFor(owner), task.ID, "todo"); err != nil {
			t.Fatalf("UpdateTaskStatus: %v", err)
		}
		if activity := fake.recordedActivity(); len(activity) != 0 {
			t.Fatalf("no-op should not log activity, got %+v", activity)
		}
	})

	t.Run("unknown status rejected", func(t *testing.T) {
		fake := &fakeStore{}
		seedRoster(fake, owner)
		svc, _, _ := newTestService(fake)

		_, err := svc.UpdateTaskStatus(ctx, sessionFor(owner), task.ID, "archived")
		assertDomainError(t, err, "VALIDATION_ERROR")
	})
}

func TestApplyTaskPatch(t *testing.T) {
	base := store.Task{
		ID: "tsk-1", Title: "Shared", Description: "desc", Status: "todo",
		Priority: "medium", Visibility: "team", Tags: []string{"a", "b"},
	}

	t.Run("empty patch changes nothing", func(t *testing.T) {
		_, changed, err := applyTaskPatch(base, TaskPatch{})
		if err != nil || changed {
			t.Fatalf("expected no change, got changed=%v err=%v", changed, err)
		}
	})

	t.Run("same values change nothing", func(t *testing.T) {
		tags := []string{"a", "b"}
		_, changed, err := applyTaskPatch(base, TaskPatch{
			Title:  strptr("Shared"),
			Status: strptr("todo"),
			Tags:   &tags,
		})
		if err != nil || changed {
			t.Fatalf("expected no change, got changed=%v err=%v", changed, err)
		}
	})

	t.Run("real edits are applied", func(t *testing.T) {
		merged, changed, err := applyTaskPatch(base, TaskPatch{Title: strptr("  Renamed  "), Status: strptr("done")})
		if err != nil {
			t.Fatalf("applyTaskPatch: %v", err)
		}
		if !changed || merged.Title != "Renamed" || merged.Status != "done" {
			t.Fatalf("patch not applied: %+v", merged)
		}
	})

	t.Run("blank title rejected", func(t *testing.T) {
		_, _, err := applyTaskPatch(base, TaskPatch{Title: strptr("   ")})
		assertDomainError(t, err, "VALIDATION_ERROR")
	})

	t.Run("unknown status rejected", func(t *testing.T) {
		_, _, err := applyTaskPatch(base, TaskPatch{Status: strptr("blocked")})
		assertDomainError(t, err, "VALIDATION_ERROR")
	})
}

func TestUpdateTask(t *testing.T) {
	ctx := context.Background()
	owner := rosterMember("jordan", "member")
	task := store.Task{ID: "tsk-1", Title: "Shared", Status: "todo", Priority: "medium", Visibility: "team", OwnerID: owner.ID}

	t.Run("empty diff writes nothing", func(t *testing.T) {
		fake := &fakeStore{}
		seedRoster(fake, owner)
		fake.getTaskFn = func(context.Context, string) (store.Task, error) { return task, nil }
		fake.updateTaskFn = func(context.Context, store.Task) error {
			t.Fatal("empty diff should not hit the store")
			return nil
		}
		svc, _, _ := newTestService(fake)

		if _, err := svc.UpdateTask(ctx, sessionFor(owner), task.ID, TaskPatch{Title: strptr("Shared")}); err != nil {
			t.Fatalf("UpdateTask: %v", err)
		}
		if activity := fake.recordedActivity(); len(activity) != 0 {
			t.Fatalf("empty diff should not log activity, got %+v", activity)
		}
	})

	t.Run("assignee must be on the roster", func(t *testing.T) {
		fake := &fakeStore{}
		seedRoster(fake, owner)
		fake.getTaskFn = func(context.Context, string) (store.Task, error) { return task, nil }
		svc, _, _ := newTestService(fake)

		_, err := svc.UpdateTask(ctx, sessionFor(owner), task.ID, TaskPatch{AssigneeID: strptr("mem-ghost")})
		assertDomainError(t, err, "VALIDATION_ERROR")
	})
}

func TestAddComment(t *testing.T) {
	ctx := context.Background()
	owner := rosterMember("jordan", "member")
	task := store.Task{ID: "tsk-1", Title: "Shared", Status: "todo", Priority: "medium", Visibility: "team", OwnerID: owner.ID}

	t.Run("whitespace comments rejected", func(t *testing.T) {
		fake := &fakeStore{}
		seedRoster(fake, owner)
		svc, _, _ := newTestService(fake)

		_, err := svc.AddComment(ctx, sessionFor(owner), task.ID, CommentInput{Content: "  \n "})
		assertDomainError(t, err, "VALIDATION_ERROR")
	})

	t.Run("stores trimmed content", func(t *testing.T) {
		fake := &fakeStore{}
		seedRoster(fake, owner)
		fake.getTaskFn = func(context.Context, string) (store.Task, error) { return task, nil }
		var inserted store.Comment
		fake.insertCommentFn = func(_ context.Context, comment store.Comment) error {
			inserted = comment
			return nil
		}
		svc, _, _ := newTestService(fake)

		if _, err := svc.AddComment(ctx, sessionFor(owner), task.ID, CommentInput{Content: "  looks good  "}); err != nil {
			t.Fatalf("AddComment: %v", err)
		}
		if inserted.Content != "looks good" || inserted.AuthorID != owner.ID {
			t.Fatalf("comment not built correctly: %+v", inserted)
		}
	})
}

func TestDeleteTask(t *testing.T) {
	ctx := context.Background()
	admin := rosterMember("casey", "admin")
	owner := rosterMember("jordan", "member")
	assignee := rosterMember("riley", "member")
	task := store.Task{ID: "tsk-1", Title: "Shared", Status: "todo", Priority: "medium", Visibility: "team", OwnerID: owner.ID, AssigneeID: assignee.ID}

	newFake := func() *fakeStore {
		fake := &fakeStore{}
		seedRoster(fake, admin, owner, assignee)
		fake.getTaskFn = func(context.Context, string) (store.Task, error) { return task, nil }
		return fake
	}

	t.Run("assignee alone cannot delete", func(t *testing.T) {
		svc, _, _ := newTestService(newFake())
		err := svc.DeleteTask(ctx, sessionFor(assignee), task.ID)
		assertDomainError(t, err, "FORBIDDEN")
	})

	t.Run("owner can delete and the snapshot is logged", func(t *testing.T) {
		fake := newFake()
		svc, _, _ := newTestService(fake)
		if err := svc.DeleteTask(ctx, sessionFor(owner), task.ID); err != nil {
			t.Fatalf("DeleteTask: %v", err)
		}
		activity := fake.recordedActivity()
		if len(activity) != 1 || activity[0].Action != "deleted task" || activity[0].Target != task.Title {
			t.Fatalf("expected deleted-task activity, got %+v", activity)
		}
	})

	t.Run("admin can delete", func(t *testing.T) {
		svc, _, _ := newTestService(newFake())
		if err := svc.DeleteTask(ctx, sessionFor(admin), task.ID); err != nil {
			t.Fatalf("DeleteTask: %v", err)
		}
	})
}
