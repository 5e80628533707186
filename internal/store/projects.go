package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) CreateProject(ctx context.Context, project Project) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, workspace_id, name, description, owner_id, owner_name)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, project.ID, project.WorkspaceID, project.Name, project.Description, project.OwnerID, project.OwnerName)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProject(ctx context.Context, projectID string) (Project, error) {
	var item Project
	err := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, name, COALESCE(description, ''), COALESCE(owner_id, ''), COALESCE(owner_name, ''), created_at
		FROM projects
		WHERE id=$1
	`, projectID).Scan(&item.ID, &item.WorkspaceID, &item.Name, &item.Description, &item.OwnerID, &item.OwnerName, &item.CreatedAt)
	if err != nil {
		return Project{}, err
	}
	return item, nil
}

func (s *PostgresStore) AddProjectMember(ctx context.Context, projectID, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO project_members (project_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (project_id, user_id) DO NOTHING
	`, projectID, userID)
	if err != nil {
		return false, fmt.Errorf("add project member: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add project member rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) IsProjectMember(ctx context.Context, projectID, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM project_members WHERE project_id=$1 AND user_id=$2)
	`, projectID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check project member: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) CountProjectsCreatedBy(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects WHERE owner_id=$1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count created projects: %w", err)
	}
	return count, nil
}

// AnonymizeProjectsBy clears the user reference on projects the user owns
// inside surviving workspaces, stamping the static former-user name.
func (s *PostgresStore) AnonymizeProjectsBy(ctx context.Context, userID, stamp string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE projects SET owner_id=NULL, owner_name=$2 WHERE owner_id=$1
	`, userID, stamp)
	if err != nil {
		return fmt.Errorf("anonymize projects: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveUserFromAllProjects(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM project_members WHERE user_id=$1`, userID)
	if err != nil {
		return fmt.Errorf("remove user from projects: %w", err)
	}
	return nil
}
