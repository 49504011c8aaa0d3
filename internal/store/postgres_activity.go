package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) InsertActivity(ctx context.Context, entry ActivityEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_entries (actor_id, action, target)
		VALUES ($1, $2, $3)
	`, entry.ActorID, entry.Action, entry.Target)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRecentActivity(ctx context.Context, limit int) ([]ActivityEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_id, action, target, created_at
		FROM activity_entries
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	items := make([]ActivityEntry, 0)
	for rows.Next() {
		var item ActivityEntry
		if err := rows.Scan(&item.ID, &item.ActorID, &item.Action, &item.Target, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity: %w", err)
	}
	return items, nil
}

// ClearActivity is the administrative data-reset utility, not part of
// steady-state behavior.
func (s *PostgresStore) ClearActivity(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM activity_entries`)
	if err != nil {
		return fmt.Errorf("clear activity: %w", err)
	}
	return nil
}

// ---- budget ---------------------------------------------------------------

func (s *PostgresStore) InsertBudgetEntry(ctx context.Context, item BudgetEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO budget_entries (id, label, amount_cents, category, created_by)
		VALUES ($1, $2, $3, $4, $5)
	`, item.ID, item.Label, item.AmountCents, item.Category, item.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert budget entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetBudgetEntry(ctx context.Context, entryID string) (BudgetEntry, error) {
	var item BudgetEntry
	err := s.db.QueryRowContext(ctx, `
		SELECT id, label, amount_cents, category, created_by, created_at
		FROM budget_entries WHERE id=$1
	`, entryID).Scan(&item.ID, &item.Label, &item.AmountCents, &item.Category, &item.CreatedBy, &item.CreatedAt)
	if err != nil {
		return BudgetEntry{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListBudgetEntries(ctx context.Context) ([]BudgetEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, amount_cents, category, created_by, created_at
		FROM budget_entries
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list budget entries: %w", err)
	}
	defer rows.Close()

	items := make([]BudgetEntry, 0)
	for rows.Next() {
		var item BudgetEntry
		if err := rows.Scan(&item.ID, &item.Label, &item.AmountCents, &item.Category, &item.CreatedBy, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan budget entry: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate budget entries: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) DeleteBudgetEntry(ctx context.Context, entryID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM budget_entries WHERE id=$1`, entryID)
	if err != nil {
		return fmt.Errorf("delete budget entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) BudgetTotalsByCategory(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT category, COALESCE(SUM(amount_cents), 0) FROM budget_entries GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("budget totals: %w", err)
	}
	defer rows.Close()

	totals := map[string]int64{}
	for rows.Next() {
		var category string
		var total int64
		if err := rows.Scan(&category, &total); err != nil {
			return nil, fmt.Errorf("scan budget total: %w", err)
		}
		totals[category] = total
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate budget totals: %w", err)
	}
	return totals, nil
}
