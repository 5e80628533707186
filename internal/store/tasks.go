package store

import (
	"context"
	"fmt"
	"time"
)

func (s *PostgresStore) CreateTask(ctx context.Context, task Task) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, project_id, title, description, status, priority, due_date, created_by, created_by_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, task.ID, task.ProjectID, task.Title, task.Description, task.Status, task.Priority, task.DueDate, task.CreatedBy, task.CreatedByName)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTask(ctx context.Context, taskID string) (Task, error) {
	var item Task
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, title, COALESCE(description, ''), status, priority, due_date,
			COALESCE(created_by, ''), COALESCE(created_by_name, ''), created_at, updated_at
		FROM tasks
		WHERE id=$1
	`, taskID).Scan(
		&item.ID,
		&item.ProjectID,
		&item.Title,
		&item.Description,
		&item.Status,
		&item.Priority,
		&item.DueDate,
		&item.CreatedBy,
		&item.CreatedByName,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return Task{}, err
	}

	item.Assignees, err = s.listTaskUserRefs(ctx, "task_assignees", taskID)
	if err != nil {
		return Task{}, err
	}
	item.Watchers, err = s.listTaskUserRefs(ctx, "task_watchers", taskID)
	if err != nil {
		return Task{}, err
	}
	return item, nil
}

func (s *PostgresStore) listTaskUserRefs(ctx context.Context, table, taskID string) ([]UserRef, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT m.user_id, u.display_name
		FROM %s m
		JOIN users u ON u.id = m.user_id
		WHERE m.task_id=$1
		ORDER BY m.added_at ASC
	`, table), taskID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	items := make([]UserRef, 0)
	for rows.Next() {
		var ref UserRef
		if err := rows.Scan(&ref.ID, &ref.Name); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		items = append(items, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return items, nil
}

func (s *PostgresStore) ListProjectTasks(ctx context.Context, projectID string) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, title, COALESCE(description, ''), status, priority, due_date,
			COALESCE(created_by, ''), COALESCE(created_by_name, ''), created_at, updated_at
		FROM tasks
		WHERE project_id=$1
		ORDER BY created_at DESC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project tasks: %w", err)
	}
	defer rows.Close()

	items := make([]Task, 0)
	for rows.Next() {
		var item Task
		if err := rows.Scan(
			&item.ID,
			&item.ProjectID,
			&item.Title,
			&item.Description,
			&item.Status,
			&item.Priority,
			&item.DueDate,
			&item.CreatedBy,
			&item.CreatedByName,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return items, nil
}

// UpdateTaskFields persists the scalar task fields in one statement. Assignee
// changes go through Add/RemoveTaskAssignee so concurrent writers never clobber
// each other's set operations.
func (s *PostgresStore) UpdateTaskFields(ctx context.Context, taskID, title, description, status, priority string, dueDate *time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET title=$2, description=$3, status=$4, priority=$5, due_date=$6, updated_at=NOW()
		WHERE id=$1
	`, taskID, title, description, status, priority, dueDate)
	if err != nil {
		return fmt.Errorf("update task fields: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteTask(ctx context.Context, taskID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id=$1`, taskID)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete task rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) AddTaskAssignee(ctx context.Context, taskID, userID string) (bool, error) {
	return s.addTaskUser(ctx, "task_assignees", taskID, userID)
}

func (s *PostgresStore) RemoveTaskAssignee(ctx context.Context, taskID, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM task_assignees WHERE task_id=$1 AND user_id=$2`, taskID, userID)
	if err != nil {
		return fmt.Errorf("remove task assignee: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddTaskWatcher(ctx context.Context, taskID, userID string) (bool, error) {
	return s.addTaskUser(ctx, "task_watchers", taskID, userID)
}

func (s *PostgresStore) RemoveTaskWatcher(ctx context.Context, taskID, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM task_watchers WHERE task_id=$1 AND user_id=$2`, taskID, userID)
	if err != nil {
		return fmt.Errorf("remove task watcher: %w", err)
	}
	return nil
}

func (s *PostgresStore) addTaskUser(ctx context.Context, table, taskID, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (task_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (task_id, user_id) DO NOTHING
	`, table), taskID, userID)
	if err != nil {
		return false, fmt.Errorf("insert into %s: %w", table, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert into %s rows: %w", table, err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) CountActiveTasksAssignedTo(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM task_assignees ta
		JOIN tasks t ON t.id = ta.task_id
		WHERE ta.user_id=$1 AND t.status <> 'done'
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active tasks: %w", err)
	}
	return count, nil
}

// AnonymizeTasksBy clears the creator reference on the user's tasks, stamping
// the static former-user name. A second run matches zero rows.
func (s *PostgresStore) AnonymizeTasksBy(ctx context.Context, userID, stamp string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET created_by=NULL, created_by_name=$2 WHERE created_by=$1
	`, userID, stamp)
	if err != nil {
		return fmt.Errorf("anonymize tasks: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveUserFromAllTasks(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM task_assignees WHERE user_id=$1`, userID); err != nil {
		return fmt.Errorf("remove user assignments: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM task_watchers WHERE user_id=$1`, userID); err != nil {
		return fmt.Errorf("remove user watches: %w", err)
	}
	return nil
}
