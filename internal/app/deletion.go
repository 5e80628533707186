package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
)

// formerUserStamp replaces the display name on anonymized actor references.
// The stamp is static so a rerun of anonymization matches zero rows.
const formerUserStamp = "Former User"

// AssessDeletion reports what deleting the account would touch. Owning an
// organization is the only hard blocker; the data-impact numbers are
// informational because those records are anonymized, not deleted.
func (s *Service) AssessDeletion(ctx context.Context, session Session) (map[string]any, error) {
	owned, err := s.store.ListOwnedOrganizations(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	activeTasks, err := s.store.CountActiveTasksAssignedTo(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	comments, err := s.store.CountCommentsBy(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	createdProjects, err := s.store.CountProjectsCreatedBy(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	taskActivities, err := s.store.CountActivitiesBy(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	ownedWorkspaces, err := s.store.CountWorkspacesOwnedBy(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	blockingFactors := make([]string, 0, 1)
	if len(owned) > 0 {
		blockingFactors = append(blockingFactors, fmt.Sprintf("Must transfer ownership of %d organization(s)", len(owned)))
	}

	ownedPayload := make([]map[string]any, 0, len(owned))
	for _, org := range owned {
		ownedPayload = append(ownedPayload, orgPayload(org))
	}

	return map[string]any{
		"canDelete":          len(blockingFactors) == 0,
		"blockingFactors":    blockingFactors,
		"ownedOrganizations": ownedPayload,
		"dataImpact": map[string]any{
			"activeTasks":     activeTasks,
			"comments":        comments,
			"createdProjects": createdProjects,
			"taskActivities":  taskActivities,
			"ownedWorkspaces": ownedWorkspaces,
		},
	}, nil
}

// TransferOrganizationOwnership reassigns the owner and swaps the member
// roles in one store transaction: the target becomes owner, the former owner
// drops to admin. The store matches on the current owner id, so a concurrent
// transfer loses cleanly with no partial state.
func (s *Service) TransferOrganizationOwnership(ctx context.Context, session Session, orgID, toUserID string) error {
	org, err := s.store.GetOrganization(ctx, orgID)
	if err != nil {
		return err
	}
	if org.OwnerID != session.UserID {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Only the current owner can transfer ownership", nil)
	}
	if toUserID == session.UserID {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Cannot transfer ownership to yourself", nil)
	}
	if _, err := s.store.GetOrganizationMember(ctx, orgID, toUserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Target must be an existing organization member", map[string]any{"userId": toUserID})
		}
		return err
	}

	transferred, err := s.store.TransferOrganizationOwnership(ctx, orgID, session.UserID, toUserID)
	if err != nil {
		return err
	}
	if !transferred {
		return domainError(http.StatusConflict, "OWNERSHIP_CHANGED", "Ownership changed concurrently, retry", nil)
	}

	runEffects(ctx, []effect{
		{name: "ownership notification", run: func(ctx context.Context) error {
			s.notifier.OrgRoleChanged(ctx, s.actor(session), org, toUserID, "owner")
			return nil
		}},
	})
	return nil
}

// DeleteAccount soft-deletes the caller. The owned-organization count is
// re-checked immediately before the destructive steps, guarding against an
// organization created after the assessment. The soft delete itself is a
// conditional update on NOT deleted, so a rerun or a racing second request
// sees a no-op and still walks the idempotent cleanup chain.
func (s *Service) DeleteAccount(ctx context.Context, session Session) error {
	ownedCount, err := s.store.CountOwnedOrganizations(ctx, session.UserID)
	if err != nil {
		return err
	}
	if ownedCount > 0 {
		return domainError(http.StatusConflict, "DELETION_BLOCKED", "Account deletion is blocked", map[string]any{
			"blockingFactors": []string{fmt.Sprintf("Must transfer ownership of %d organization(s)", ownedCount)},
		})
	}

	if _, err := s.store.SoftDeleteUser(ctx, session.UserID); err != nil {
		return err
	}

	userID := session.UserID
	runEffects(ctx, []effect{
		{name: "anonymize tasks", run: func(ctx context.Context) error {
			return s.store.AnonymizeTasksBy(ctx, userID, formerUserStamp)
		}},
		{name: "anonymize comments", run: func(ctx context.Context) error {
			return s.store.AnonymizeCommentsBy(ctx, userID, formerUserStamp)
		}},
		{name: "anonymize activities", run: func(ctx context.Context) error {
			return s.store.AnonymizeActivitiesBy(ctx, userID, formerUserStamp)
		}},
		{name: "anonymize projects", run: func(ctx context.Context) error {
			return s.store.AnonymizeProjectsBy(ctx, userID, formerUserStamp)
		}},
		{name: "anonymize sent notifications", run: func(ctx context.Context) error {
			return s.store.AnonymizeNotificationsFrom(ctx, userID, formerUserStamp)
		}},
		{name: "remove organization memberships", run: func(ctx context.Context) error {
			return s.store.RemoveUserFromAllOrganizations(ctx, userID)
		}},
		{name: "remove task memberships", run: func(ctx context.Context) error {
			return s.store.RemoveUserFromAllTasks(ctx, userID)
		}},
		{name: "remove project memberships", run: func(ctx context.Context) error {
			return s.store.RemoveUserFromAllProjects(ctx, userID)
		}},
		{name: "remove workspace memberships", run: func(ctx context.Context) error {
			return s.store.RemoveUserFromAllWorkspaces(ctx, userID)
		}},
		{name: "delete personal space", run: func(ctx context.Context) error {
			return s.store.DeletePersonalSpaceFor(ctx, userID)
		}},
		{name: "delete created workspaces", run: func(ctx context.Context) error {
			return s.store.DeleteWorkspacesCreatedBy(ctx, userID)
		}},
		{name: "delete received notifications", run: func(ctx context.Context) error {
			return s.store.DeleteNotificationsForRecipient(ctx, userID)
		}},
		{name: "revoke sessions", run: func(ctx context.Context) error {
			return s.sessions.RevokeAllForUser(ctx, userID)
		}},
	})
	return nil
}
