package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) CreateWorkspace(ctx context.Context, workspace Workspace) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workspaces (id, name, context_type, context_id, owner_id, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, workspace.ID, workspace.Name, string(workspace.Context.Kind), workspace.Context.ReferentID(), workspace.OwnerID, workspace.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert workspace: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetWorkspace(ctx context.Context, workspaceID string) (Workspace, error) {
	var item Workspace
	var contextType, contextID string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, context_type, context_id, owner_id, created_by, created_at
		FROM workspaces
		WHERE id=$1
	`, workspaceID).Scan(&item.ID, &item.Name, &contextType, &contextID, &item.OwnerID, &item.CreatedBy, &item.CreatedAt)
	if err != nil {
		return Workspace{}, err
	}
	item.Context, err = ParseContext(contextType, contextID)
	if err != nil {
		return Workspace{}, fmt.Errorf("workspace %s: %w", workspaceID, err)
	}
	return item, nil
}

// WorkspaceForProject resolves the owning workspace of a project.
func (s *PostgresStore) WorkspaceForProject(ctx context.Context, projectID string) (Workspace, error) {
	var workspaceID string
	err := s.db.QueryRowContext(ctx, `
		SELECT workspace_id FROM projects WHERE id=$1
	`, projectID).Scan(&workspaceID)
	if err != nil {
		return Workspace{}, err
	}
	return s.GetWorkspace(ctx, workspaceID)
}

// WorkspaceForTask resolves the owning workspace transitively: task, project,
// workspace.
func (s *PostgresStore) WorkspaceForTask(ctx context.Context, taskID string) (Workspace, error) {
	var projectID string
	err := s.db.QueryRowContext(ctx, `
		SELECT project_id FROM tasks WHERE id=$1
	`, taskID).Scan(&projectID)
	if err != nil {
		return Workspace{}, err
	}
	return s.WorkspaceForProject(ctx, projectID)
}

func (s *PostgresStore) IsWorkspaceMember(ctx context.Context, workspaceID, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM workspace_members WHERE workspace_id=$1 AND user_id=$2)
	`, workspaceID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check workspace member: %w", err)
	}
	return exists, nil
}

// AddWorkspaceMember is an add-to-set insert. Returns true when the user was
// newly added, false when already present; existing members are never touched.
func (s *PostgresStore) AddWorkspaceMember(ctx context.Context, workspaceID, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO workspace_members (workspace_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (workspace_id, user_id) DO NOTHING
	`, workspaceID, userID)
	if err != nil {
		return false, fmt.Errorf("add workspace member: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add workspace member rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListWorkspaceMembers(ctx context.Context, workspaceID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM workspace_members WHERE workspace_id=$1 ORDER BY added_at ASC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list workspace members: %w", err)
	}
	defer rows.Close()

	items := make([]string, 0)
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan workspace member: %w", err)
		}
		items = append(items, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workspace members: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountWorkspacesOwnedBy(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM workspaces WHERE created_by=$1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count owned workspaces: %w", err)
	}
	return count, nil
}

// DeleteWorkspacesCreatedBy hard-deletes the user's own workspaces along with
// their membership rows. Projects and tasks inside are removed by cascade.
func (s *PostgresStore) DeleteWorkspacesCreatedBy(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM workspaces WHERE created_by=$1`, userID)
	if err != nil {
		return fmt.Errorf("delete created workspaces: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveUserFromAllWorkspaces(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM workspace_members WHERE user_id=$1`, userID)
	if err != nil {
		return fmt.Errorf("remove user from workspaces: %w", err)
	}
	return nil
}
