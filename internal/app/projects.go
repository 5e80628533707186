package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"taskloom/api/internal/store"
	"taskloom/api/internal/util"
)

func (s *Service) CreateProject(ctx context.Context, session Session, input CreateProjectInput) (map[string]any, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Project name is required", nil)
	}
	workspace, err := s.store.GetWorkspace(ctx, input.WorkspaceID)
	if err != nil {
		return nil, err
	}
	if err := s.requireWorkspaceAccess(ctx, workspace, session.UserID); err != nil {
		return nil, err
	}

	project := store.Project{
		ID:          util.NewID("prj"),
		WorkspaceID: workspace.ID,
		Name:        name,
		Description: input.Description,
		OwnerID:     session.UserID,
		OwnerName:   session.UserName,
	}
	if err := s.store.CreateProject(ctx, project); err != nil {
		return nil, err
	}
	return projectPayload(project), nil
}

func (s *Service) GetProject(ctx context.Context, session Session, projectID string) (map[string]any, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.requireProjectAccess(ctx, project, session.UserID); err != nil {
		return nil, err
	}
	return projectPayload(project), nil
}

// AddProjectMember adds a user to a project and repairs the workspace member
// set so the project-membership invariant holds transitively.
func (s *Service) AddProjectMember(ctx context.Context, session Session, projectID, userID string) error {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if err := s.requireProjectAccess(ctx, project, session.UserID); err != nil {
		return err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "User not found", map[string]any{"userId": userID})
		}
		return err
	}
	if user.Deleted {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "User not found", map[string]any{"userId": userID})
	}

	added, err := s.store.AddProjectMember(ctx, projectID, userID)
	if err != nil {
		return err
	}
	if !added {
		return nil
	}

	runEffects(ctx, []effect{
		{name: "workspace membership repair", run: func(ctx context.Context) error {
			return s.EnsureWorkspaceMemberForProject(ctx, userID, projectID)
		}},
		{name: "membership notification", run: func(ctx context.Context) error {
			s.notifier.ProjectMemberAdded(ctx, s.actor(session), project, userID)
			return nil
		}},
	})
	return nil
}

func projectPayload(project store.Project) map[string]any {
	return map[string]any{
		"id":          project.ID,
		"workspaceId": project.WorkspaceID,
		"name":        project.Name,
		"description": project.Description,
		"ownerId":     project.OwnerID,
		"owner":       project.OwnerName,
		"createdAt":   project.CreatedAt,
	}
}
