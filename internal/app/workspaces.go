package app

import (
	"context"
	"net/http"
	"strings"

	"taskloom/api/internal/rbac"
	"taskloom/api/internal/store"
	"taskloom/api/internal/util"
)

func (s *Service) CreateWorkspace(ctx context.Context, session Session, input CreateWorkspaceInput) (map[string]any, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Workspace name is required", nil)
	}

	var workspaceContext store.Context
	switch store.ContextKind(input.ContextType) {
	case store.ContextPersonal:
		space, err := s.store.GetPersonalSpace(ctx, session.UserID)
		if err != nil {
			return nil, err
		}
		workspaceContext = store.PersonalContext(space.ID)
	case store.ContextOrganization:
		if input.OrganizationID == "" {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "organizationId is required for organization workspaces", nil)
		}
		if _, err := s.requireOrgRole(ctx, input.OrganizationID, session.UserID, rbac.ActionRead); err != nil {
			return nil, err
		}
		workspaceContext = store.OrganizationContext(input.OrganizationID)
	default:
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "contextType must be personal or organization", map[string]any{"contextType": input.ContextType})
	}

	workspace := store.Workspace{
		ID:        util.NewID("wsp"),
		Name:      name,
		Context:   workspaceContext,
		OwnerID:   session.UserID,
		CreatedBy: session.UserID,
	}
	if err := s.store.CreateWorkspace(ctx, workspace); err != nil {
		return nil, err
	}
	return workspacePayload(workspace), nil
}

func (s *Service) GetWorkspace(ctx context.Context, session Session, workspaceID string) (map[string]any, error) {
	workspace, err := s.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if err := s.requireWorkspaceAccess(ctx, workspace, session.UserID); err != nil {
		return nil, err
	}
	return workspacePayload(workspace), nil
}

func (s *Service) ListWorkspaceMembers(ctx context.Context, session Session, workspaceID string) ([]string, error) {
	workspace, err := s.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if err := s.requireWorkspaceAccess(ctx, workspace, session.UserID); err != nil {
		return nil, err
	}
	return s.store.ListWorkspaceMembers(ctx, workspaceID)
}

func workspacePayload(workspace store.Workspace) map[string]any {
	return map[string]any{
		"id":          workspace.ID,
		"name":        workspace.Name,
		"contextType": string(workspace.Context.Kind),
		"contextId":   workspace.Context.ReferentID(),
		"ownerId":     workspace.OwnerID,
		"createdBy":   workspace.CreatedBy,
		"createdAt":   workspace.CreatedAt,
	}
}
