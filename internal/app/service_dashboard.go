package app

import (
	"context"
	"strings"

	"github.com/yash1258/TeamSync-sub000/internal/access"
	"github.com/yash1258/TeamSync-sub000/internal/store"
	"github.com/yash1258/TeamSync-sub000/internal/util"
)

func budgetPayload(ctx context.Context, resolver *memberResolver, entry store.BudgetEntry) map[string]any {
	return map[string]any{
		"id":          entry.ID,
		"label":       entry.Label,
		"amountCents": entry.AmountCents,
		"category":    entry.Category,
		"createdBy":   resolver.resolve(ctx, entry.CreatedBy),
		"createdAt":   entry.CreatedAt,
	}
}

func (s *Service) ListBudgetEntries(ctx context.Context, session Session) ([]map[string]any, error) {
	if _, err := s.requireMember(ctx, session); err != nil {
		return nil, err
	}
	entries, err := s.store.ListBudgetEntries(ctx)
	if err != nil {
		return nil, err
	}
	resolver := newMemberResolver(s.store)
	items := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		items = append(items, budgetPayload(ctx, resolver, entry))
	}
	return items, nil
}

type BudgetEntryInput struct {
	Label       string `json:"label"`
	AmountCents int64  `json:"amountCents"`
	Category    string `json:"category"`
}

func (s *Service) CreateBudgetEntry(ctx context.Context, session Session, input BudgetEntryInput) (map[string]any, error) {
	caller, err := s.requireMember(ctx, session)
	if err != nil {
		return nil, err
	}
	if !access.CanEditDocument(caller) {
		return nil, errForbidden("Viewers cannot record budget entries")
	}

	label := strings.TrimSpace(input.Label)
	if label == "" {
		return nil, errValidation("label is required")
	}
	if input.AmountCents == 0 {
		return nil, errValidation("amountCents must be non-zero")
	}

	entry := store.BudgetEntry{
		ID:          util.NewID("bdg"),
		Label:       label,
		AmountCents: input.AmountCents,
		Category:    strings.TrimSpace(input.Category),
		CreatedBy:   caller.ID,
	}
	if err := s.store.InsertBudgetEntry(ctx, entry); err != nil {
		return nil, err
	}
	s.logActivity(ctx, caller.ID, "recorded budget entry", entry.Label)

	created, err := s.store.GetBudgetEntry(ctx, entry.ID)
	if err != nil {
		created = entry
	}
	return budgetPayload(ctx, newMemberResolver(s.store), created), nil
}

func (s *Service) DeleteBudgetEntry(ctx context.Context, session Session, entryID string) error {
	caller, err := s.requireMember(ctx, session)
	if err != nil {
		return err
	}
	entry, err := s.store.GetBudgetEntry(ctx, entryID)
	if err != nil {
		return err
	}
	if !access.CanDeleteBudgetEntry(caller, entry) {
		return errForbidden("Only the creator or an admin can delete a budget entry")
	}
	if err := s.store.DeleteBudgetEntry(ctx, entryID); err != nil {
		return err
	}
	s.logActivity(ctx, caller.ID, "deleted budget entry", entry.Label)
	return nil
}

// DashboardSummary aggregates the team overview in separate reads;
// read-committed staleness between the counts is acceptable.
func (s *Service) DashboardSummary(ctx context.Context, session Session) (map[string]any, error) {
	if _, err := s.requireMember(ctx, session); err != nil {
		return nil, err
	}

	statusCounts, err := s.store.TaskStatusCounts(ctx)
	if err != nil {
		return nil, err
	}
	open := 0
	for _, status := range []string{store.StatusTodo, store.StatusInProgress, store.StatusReview} {
		open += statusCounts[status]
	}

	memberCount, err := s.store.MemberCount(ctx)
	if err != nil {
		return nil, err
	}
	budgetTotals, err := s.store.BudgetTotalsByCategory(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := s.activityPayloads(ctx, 10)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"taskCounts":     statusCounts,
		"openTasks":      open,
		"doneTasks":      statusCounts[store.StatusDone],
		"memberCount":    memberCount,
		"budgetTotals":   budgetTotals,
		"recentActivity": recent,
	}, nil
}

func (s *Service) activityPayloads(ctx context.Context, limit int) ([]map[string]any, error) {
	entries, err := s.store.ListRecentActivity(ctx, limit)
	if err != nil {
		return nil, err
	}
	resolver := newMemberResolver(s.store)
	items := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		items = append(items, map[string]any{
			"id":        entry.ID,
			"actor":     resolver.resolve(ctx, entry.ActorID),
			"action":    entry.Action,
			"target":    entry.Target,
			"createdAt": entry.CreatedAt,
		})
	}
	return items, nil
}

func (s *Service) ListActivity(ctx context.Context, session Session, limit int) ([]map[string]any, error) {
	if _, err := s.requireMember(ctx, session); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.activityPayloads(ctx, limit)
}

// ClearActivity is an admin-only data reset, not part of day-to-day use.
func (s *Service) ClearActivity(ctx context.Context, session Session) error {
	caller, err := s.requireMember(ctx, session)
	if err != nil {
		return err
	}
	if !access.IsAdmin(caller) {
		return errForbidden("Only admins can clear the activity log")
	}
	return s.store.ClearActivity(ctx)
}
