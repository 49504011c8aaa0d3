package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/yash1258/TeamSync-sub000/internal/access"
	"github.com/yash1258/TeamSync-sub000/internal/store"
	"github.com/yash1258/TeamSync-sub000/internal/util"
)

var statusLabels = map[string]string{
	store.StatusTodo:       "To Do",
	store.StatusInProgress: "In Progress",
	store.StatusReview:     "Review",
	store.StatusDone:       "Done",
}

func validTaskStatus(status string) bool {
	_, ok := statusLabels[status]
	return ok
}

func validTaskPriority(priority string) bool {
	for _, candidate := range store.TaskPriorities {
		if candidate == priority {
			return true
		}
	}
	return false
}

// memberResolver caches roster lookups while hydrating a task list.
type memberResolver struct {
	store dataStore
	cache map[string]map[string]any
}

func newMemberResolver(store dataStore) *memberResolver {
	return &memberResolver{store: store, cache: map[string]map[string]any{}}
}

func (r *memberResolver) resolve(ctx context.Context, memberID string) map[string]any {
	if memberID == "" {
		return nil
	}
	if cached, ok := r.cache[memberID]; ok {
		return cached
	}
	member, err := r.store.GetMember(ctx, memberID)
	if err != nil {
		r.cache[memberID] = nil
		return nil
	}
	brief := map[string]any{
		"id":        member.ID,
		"name":      member.Name,
		"avatarUrl": member.AvatarURL,
		"presence":  member.Presence,
	}
	r.cache[memberID] = brief
	return brief
}

func (s *Service) taskPayload(ctx context.Context, resolver *memberResolver, task store.Task) (map[string]any, error) {
	comments, err := s.store.ListTaskComments(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	commentItems := make([]map[string]any, 0, len(comments))
	for _, comment := range comments {
		commentItems = append(commentItems, map[string]any{
			"id":        comment.ID,
			"content":   comment.Content,
			"author":    resolver.resolve(ctx, comment.AuthorID),
			"createdAt": comment.CreatedAt,
		})
	}

	tags := task.Tags
	if tags == nil {
		tags = []string{}
	}
	return map[string]any{
		"id":          task.ID,
		"title":       task.Title,
		"description": task.Description,
		"status":      task.Status,
		"priority":    task.Priority,
		"visibility":  task.Visibility,
		"owner":       resolver.resolve(ctx, task.OwnerID),
		"assignee":    resolver.resolve(ctx, task.AssigneeID),
		"dueDate":     task.DueDate,
		"tags":        tags,
		"comments":    commentItems,
		"createdAt":   task.CreatedAt,
	}, nil
}

func (s *Service) taskPayloads(ctx context.Context, viewer store.Member, tasks []store.Task) ([]map[string]any, error) {
	resolver := newMemberResolver(s.store)
	items := make([]map[string]any, 0, len(tasks))
	for _, task := range tasks {
		if !access.CanAccessTask(viewer, task) {
			continue
		}
		payload, err := s.taskPayload(ctx, resolver, task)
		if err != nil {
			return nil, err
		}
		items = append(items, payload)
	}
	return items, nil
}

type CreateTaskInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	Priority    string   `json:"priority"`
	Visibility  string   `json:"visibility"`
	AssigneeID  string   `json:"assigneeId"`
	DueDate     string   `json:"dueDate"`
	Tags        []string `json:"tags"`
}

func (s *Service) CreateTask(ctx context.Context, session Session, input CreateTaskInput) (map[string]any, error) {
	caller, err := s.requireMember(ctx, session)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, errValidation("title is required")
	}
	status := defaultString(input.Status, store.StatusTodo)
	if !validTaskStatus(status) {
		return nil, errValidation("unknown task status")
	}
	priority := defaultString(input.Priority, "medium")
	if !validTaskPriority(priority) {
		return nil, errValidation("unknown task priority")
	}
	visibility := defaultString(input.Visibility, store.VisibilityTeam)
	if visibility != store.VisibilityTeam && visibility != store.VisibilityPersonal {
		return nil, errValidation("visibility must be team or personal")
	}
	if input.AssigneeID != "" {
		if _, err := s.store.GetMember(ctx, input.AssigneeID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, errValidation("assignee is not on the roster")
			}
			return nil, err
		}
	}

	task := store.Task{
		ID:          util.NewID("tsk"),
		Title:       title,
		Description: input.Description,
		Status:      status,
		Priority:    priority,
		Visibility:  visibility,
		OwnerID:     caller.ID,
		AssigneeID:  input.AssigneeID,
		DueDate:     input.DueDate,
		Tags:        input.Tags,
	}
	if err := s.store.InsertTask(ctx, task); err != nil {
		return nil, err
	}

	if task.Visibility == store.VisibilityTeam {
		s.logActivity(ctx, caller.ID, "created task", task.Title)
	}

	created, err := s.store.GetTask(ctx, task.ID)
	if err != nil {
		created = task
	}
	return s.taskPayload(ctx, newMemberResolver(s.store), created)
}

func (s *Service) GetTask(ctx context.Context, session Session, taskID string) (map[string]any, error) {
	caller, err := s.requireMember(ctx, session)
	if err != nil {
		return nil, err
	}
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !access.CanAccessTask(caller, task) {
		return nil, errNotFound("task not found")
	}
	return s.taskPayload(ctx, newMemberResolver(s.store), task)
}

func (s *Service) ListTeamTasks(ctx context.Context, session Session) ([]map[string]any, error) {
	caller, err := s.requireMember(ctx, session)
	if err != nil {
		return nil, err
	}
	tasks, err := s.store.ListTeamTasks(ctx)
	if err != nil {
		return nil, err
	}
	return s.taskPayloads(ctx, caller, tasks)
}

// ListPersonalTasks lists tasks a member owns or is assigned to. Looking
// at someone else's board requires admin.
func (s *Service) ListPersonalTasks(ctx context.Context, session Session, ownerID string) ([]map[string]any, error) {
	caller, err := s.requireMember(ctx, session)
	if err != nil {
		return nil, err
	}
	if ownerID == "" {
		ownerID = caller.ID
	}
	if ownerID != caller.ID && !access.IsAdmin(caller) {
		return nil, errForbidden("You can only view your own tasks")
	}
	tasks, err := s.store.ListMemberTasks(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return s.taskPayloads(ctx, caller, tasks)
}

func (s *Service) ListRecentTasks(ctx context.Context, session Session, limit int) ([]map[string]any, error) {
	caller, err := s.requireMember(ctx, session)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	tasks, err := s.store.ListRecentTasks(ctx, limit)
	if err != nil {
		return nil, err
	}
	return s.taskPayloads(ctx, caller, tasks)
}

func (s *Service) UpdateTaskStatus(ctx context.Context, session Session, taskID, status string) (map[string]any, error) {
	caller, err := s.requireMember(ctx, session)
	if err != nil {
		return nil, err
	}
	if !validTaskStatus(status) {
		return nil, errValidation("unknown task status")
	}

	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !access.CanAccessTask(caller, task) {
		return nil, errNotFound("task not found")
	}
	if !access.CanUpdateTask(caller, task) {
		return nil, errForbidden("You cannot update this task")
	}

	if task.Status != status {
		if err := s.store.UpdateTaskStatus(ctx, taskID, status); err != nil {
			return nil, err
		}
		task.Status = status
		if task.Visibility == store.VisibilityTeam {
			s.logActivity(ctx, caller.ID, "moved task to "+statusLabels[status], task.Title)
		}
	}
	return s.taskPayload(ctx, newMemberResolver(s.store), task)
}

type TaskPatch struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Status      *string   `json:"status"`
	Priority    *string   `json:"priority"`
	Visibility  *string   `json:"visibility"`
	AssigneeID  *string   `json:"assigneeId"`
	DueDate     *string   `json:"dueDate"`
	Tags        *[]string `json:"tags"`
}

// applyTaskPatch merges set fields into the task and reports whether
// anything actually changed. Unset fields never overwrite.
func applyTaskPatch(task store.Task, patch TaskPatch) (store.Task, bool, error) {
	changed := false

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return task, false, errValidation("title cannot be empty")
		}
		if title != task.Title {
			task.Title = title
			changed = true
		}
	}
	if patch.Description != nil && *patch.Description != task.Description {
		task.Description = *patch.Description
		changed = true
	}
	if patch.Status != nil {
		if !validTaskStatus(*patch.Status) {
			return task, false, errValidation("unknown task status")
		}
		if *patch.Status != task.Status {
			task.Status = *patch.Status
			changed = true
		}
	}
	if patch.Priority != nil {
		if !validTaskPriority(*patch.Priority) {
			return task, false, errValidation("unknown task priority")
		}
		if *patch.Priority != task.Priority {
			task.Priority = *patch.Priority
			changed = true
		}
	}
	if patch.Visibility != nil {
		if *patch.Visibility != store.VisibilityTeam && *patch.Visibility != store.VisibilityPersonal {
			return task, false, errValidation("visibility must be team or personal")
		}
		if *patch.Visibility != task.Visibility {
			task.Visibility = *patch.Visibility
			changed = true
		}
	}
	if patch.AssigneeID != nil && *patch.AssigneeID != task.AssigneeID {
		task.AssigneeID = *patch.AssigneeID
		changed = true
	}
	if patch.DueDate != nil && *patch.DueDate != task.DueDate {
		task.DueDate = *patch.DueDate
		changed = true
	}
	if patch.Tags != nil && !equalStrings(*patch.Tags, task.Tags) {
		task.Tags = *patch.Tags
		changed = true
	}
	return task, changed, nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (s *Service) UpdateTask(ctx context.Context, session Session, taskID string, patch TaskPatch) (map[string]any, error) {
	caller, err := s.requireMember(ctx, session)
	if err != nil {
		return nil, err
	}
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !access.CanAccessTask(caller, task) {
		return nil, errNotFound("task not found")
	}
	if !access.CanUpdateTask(caller, task) {
		return nil, errForbidden("You cannot update this task")
	}

	if patch.AssigneeID != nil && *patch.AssigneeID != "" {
		if _, err := s.store.GetMember(ctx, *patch.AssigneeID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, errValidation("assignee is not on the roster")
			}
			return nil, err
		}
	}

	merged, changed, err := applyTaskPatch(task, patch)
	if err != nil {
		return nil, err
	}
	if changed {
		if err := s.store.UpdateTask(ctx, merged); err != nil {
			return nil, err
		}
		if merged.Visibility == store.VisibilityTeam {
			s.logActivity(ctx, caller.ID, "updated task", merged.Title)
		}
	}
	return s.taskPayload(ctx, newMemberResolver(s.store), merged)
}

type CommentInput struct {
	Content string `json:"content"`
}

func (s *Service) AddComment(ctx context.Context, session Session, taskID string, input CommentInput) (map[string]any, error) {
	caller, err := s.requireMember(ctx, session)
	if err != nil {
		return nil, err
	}
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, errValidation("comment cannot be empty")
	}

	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !access.CanAccessTask(caller, task) {
		return nil, errNotFound("task not found")
	}

	comment := store.Comment{
		ID:       util.NewID("cmt"),
		TaskID:   task.ID,
		AuthorID: caller.ID,
		Content:  content,
	}
	if err := s.store.InsertComment(ctx, comment); err != nil {
		return nil, err
	}
	if task.Visibility == store.VisibilityTeam {
		s.logActivity(ctx, caller.ID, "commented on", task.Title)
	}
	return s.taskPayload(ctx, newMemberResolver(s.store), task)
}

func (s *Service) DeleteTask(ctx context.Context, session Session, taskID string) error {
	caller, err := s.requireMember(ctx, session)
	if err != nil {
		return err
	}
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if !access.CanAccessTask(caller, task) {
		return errNotFound("task not found")
	}
	if !access.CanDeleteTask(caller, task) {
		return errForbidden("Only the owner or an admin can delete a task")
	}

	if err := s.store.DeleteTask(ctx, taskID); err != nil {
		return err
	}
	if task.Visibility == store.VisibilityTeam {
		s.logActivity(ctx, caller.ID, "deleted task", task.Title)
	}
	return nil
}
