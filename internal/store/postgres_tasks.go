package store

import (
	"context"
	"encoding/json"
	"fmt"
)

const taskColumns = `id, title, description, status, priority, visibility, owner_id, assignee_id, due_date, tags, created_at`

func (s *PostgresStore) InsertTask(ctx context.Context, item Task) error {
	tags, err := encodeStrings(item.Tags)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, title, description, status, priority, visibility, owner_id, assignee_id, due_date, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, item.ID, item.Title, item.Description, item.Status, item.Priority, item.Visibility,
		item.OwnerID, item.AssigneeID, item.DueDate, tags)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func scanTask(row rowScanner) (Task, error) {
	var item Task
	var tags []byte
	err := row.Scan(&item.ID, &item.Title, &item.Description, &item.Status, &item.Priority,
		&item.Visibility, &item.OwnerID, &item.AssigneeID, &item.DueDate, &tags, &item.CreatedAt)
	if err != nil {
		return Task{}, err
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &item.Tags); err != nil {
			return Task{}, fmt.Errorf("decode tags: %w", err)
		}
	}
	return item, nil
}

func (s *PostgresStore) GetTask(ctx context.Context, taskID string) (Task, error) {
	return scanTask(s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=$1`, taskID))
}

func (s *PostgresStore) ListTeamTasks(ctx context.Context) ([]Task, error) {
	return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE visibility='team' ORDER BY created_at DESC`)
}

// ListMemberTasks returns tasks the member owns or is assigned to,
// regardless of visibility.
func (s *PostgresStore) ListMemberTasks(ctx context.Context, memberID string) ([]Task, error) {
	return s.queryTasks(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE owner_id=$1 OR assignee_id=$1
		ORDER BY created_at DESC
	`, memberID)
}

func (s *PostgresStore) ListRecentTasks(ctx context.Context, limit int) ([]Task, error) {
	return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at DESC LIMIT $1`, limit)
}

func (s *PostgresStore) queryTasks(ctx context.Context, query string, args ...any) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	items := make([]Task, 0)
	for rows.Next() {
		item, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateTask(ctx context.Context, item Task) error {
	tags, err := encodeStrings(item.Tags)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE tasks
		SET title=$2, description=$3, status=$4, priority=$5, visibility=$6, assignee_id=$7, due_date=$8, tags=$9
		WHERE id=$1
	`, item.ID, item.Title, item.Description, item.Status, item.Priority, item.Visibility,
		item.AssigneeID, item.DueDate, tags)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateTaskStatus(ctx context.Context, taskID, status string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE tasks SET status=$2 WHERE id=$1`, taskID, status)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	return nil
}

// DeleteTask removes a task and its comments in one transaction,
// comments first.
func (s *PostgresStore) DeleteTask(ctx context.Context, taskID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin task delete tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM task_comments WHERE task_id=$1`, taskID); err != nil {
		return fmt.Errorf("delete task comments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=$1`, taskID); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit task delete tx: %w", err)
	}
	return nil
}

// ---- comments -------------------------------------------------------------

func (s *PostgresStore) InsertComment(ctx context.Context, item Comment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_comments (id, task_id, author_id, content)
		VALUES ($1, $2, $3, $4)
	`, item.ID, item.TaskID, item.AuthorID, item.Content)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTaskComments(ctx context.Context, taskID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, author_id, content, created_at
		FROM task_comments
		WHERE task_id=$1
		ORDER BY created_at ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		var item Comment
		if err := rows.Scan(&item.ID, &item.TaskID, &item.AuthorID, &item.Content, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) TaskStatusCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks WHERE visibility='team' GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("task status counts: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	return counts, nil
}
