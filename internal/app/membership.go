package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"taskloom/api/internal/store"
)

// EnsureWorkspaceMemberForTask resolves the owning workspace of a task and
// adds the user to its member set when they are neither the owner nor already
// a member. Best-effort repair: a dangling task or project reference is logged
// and treated as a no-op, never surfaced to the caller whose primary mutation
// already succeeded.
func (s *Service) EnsureWorkspaceMemberForTask(ctx context.Context, userID, taskID string) error {
	workspace, err := s.store.WorkspaceForTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Printf("membership: workspace for task %s not found, skipping repair", taskID)
			return nil
		}
		return fmt.Errorf("resolve workspace for task %s: %w", taskID, err)
	}
	return s.ensureWorkspaceMember(ctx, userID, workspace)
}

// EnsureWorkspaceMemberForProject is EnsureWorkspaceMemberForTask one level up
// the containment chain.
func (s *Service) EnsureWorkspaceMemberForProject(ctx context.Context, userID, projectID string) error {
	workspace, err := s.store.WorkspaceForProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Printf("membership: workspace for project %s not found, skipping repair", projectID)
			return nil
		}
		return fmt.Errorf("resolve workspace for project %s: %w", projectID, err)
	}
	return s.ensureWorkspaceMember(ctx, userID, workspace)
}

// EnsureWorkspaceMembersForTask applies the same repair to a set of users,
// each independently. One user failing does not stop the rest.
func (s *Service) EnsureWorkspaceMembersForTask(ctx context.Context, userIDs []string, taskID string) error {
	for _, userID := range userIDs {
		if err := s.EnsureWorkspaceMemberForTask(ctx, userID, taskID); err != nil {
			log.Printf("membership: ensure %s on task %s workspace: %v", userID, taskID, err)
		}
	}
	return nil
}

func (s *Service) ensureWorkspaceMember(ctx context.Context, userID string, workspace store.Workspace) error {
	if userID == "" || userID == workspace.OwnerID {
		return nil
	}
	added, err := s.store.AddWorkspaceMember(ctx, workspace.ID, userID)
	if err != nil {
		return fmt.Errorf("add workspace member %s to %s: %w", userID, workspace.ID, err)
	}
	if added {
		log.Printf("membership: added %s to workspace %s", userID, workspace.ID)
	}
	return nil
}
