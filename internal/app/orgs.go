package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"taskloom/api/internal/rbac"
	"taskloom/api/internal/store"
	"taskloom/api/internal/util"
)

func (s *Service) CreateOrganization(ctx context.Context, session Session, input CreateOrganizationInput) (map[string]any, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Organization name is required", nil)
	}
	slug := strings.ToLower(strings.TrimSpace(input.Slug))
	if slug == "" {
		slug = util.Slugify(name)
	}

	org := store.Organization{
		ID:      util.NewID("org"),
		Name:    name,
		Slug:    slug,
		OwnerID: session.UserID,
	}
	if err := s.store.CreateOrganization(ctx, org); err != nil {
		return nil, err
	}
	return orgPayload(org), nil
}

func (s *Service) GetOrganization(ctx context.Context, session Session, orgID string) (map[string]any, error) {
	org, err := s.store.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireOrgRole(ctx, orgID, session.UserID, rbac.ActionRead); err != nil {
		return nil, err
	}
	return orgPayload(org), nil
}

func (s *Service) ListOrganizationMembers(ctx context.Context, session Session, orgID string) ([]map[string]any, error) {
	if _, err := s.requireOrgRole(ctx, orgID, session.UserID, rbac.ActionRead); err != nil {
		return nil, err
	}
	members, err := s.store.ListOrganizationMembers(ctx, orgID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(members))
	for _, member := range members {
		items = append(items, map[string]any{
			"userId":   member.UserID,
			"role":     member.Role,
			"joinedAt": member.JoinedAt,
		})
	}
	return items, nil
}

// AddOrganizationMember adds (or re-adds, as a no-op) a member. Membership is
// a set operation against the member table, so racing adders cannot produce
// duplicates; only the winning insert notifies.
func (s *Service) AddOrganizationMember(ctx context.Context, session Session, orgID, userID, role string) error {
	org, err := s.store.GetOrganization(ctx, orgID)
	if err != nil {
		return err
	}
	if _, err := s.requireOrgRole(ctx, orgID, session.UserID, rbac.ActionInviteMember); err != nil {
		return err
	}
	normalized := rbac.Normalize(role)
	if normalized == rbac.RoleOwner {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Ownership is assigned via transfer, not invitation", nil)
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

	added, err := s.store.AddOrganizationMember(ctx, orgID, userID, string(normalized))
	if err != nil {
		return err
	}
	if !added {
		return nil
	}

	runEffects(ctx, []effect{
		{name: "membership notification", run: func(ctx context.Context) error {
			s.notifier.OrgMemberAdded(ctx, s.actor(session), org, userID)
			return nil
		}},
	})
	return nil
}

func (s *Service) UpdateOrganizationMemberRole(ctx context.Context, session Session, orgID, userID, role string) error {
	org, err := s.store.GetOrganization(ctx, orgID)
	if err != nil {
		return err
	}
	if _, err := s.requireOrgRole(ctx, orgID, session.UserID, rbac.ActionChangeRole); err != nil {
		return err
	}
	normalized := rbac.Normalize(role)
	if normalized == rbac.RoleOwner {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Ownership is assigned via transfer, not role edits", nil)
	}
	if userID == org.OwnerID {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "The owner's role changes only through ownership transfer", nil)
	}

	updated, err := s.store.UpdateOrganizationMemberRole(ctx, orgID, userID, string(normalized))
	if err != nil {
		return err
	}
	if !updated {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Member not found", nil)
	}

	runEffects(ctx, []effect{
		{name: "role notification", run: func(ctx context.Context) error {
			s.notifier.OrgRoleChanged(ctx, s.actor(session), org, userID, string(normalized))
			return nil
		}},
	})
	return nil
}

func (s *Service) RemoveOrganizationMember(ctx context.Context, session Session, orgID, userID string) error {
	org, err := s.store.GetOrganization(ctx, orgID)
	if err != nil {
		return err
	}
	if userID != session.UserID {
		if _, err := s.requireOrgRole(ctx, orgID, session.UserID, rbac.ActionRemoveMember); err != nil {
			return err
		}
	}
	if userID == org.OwnerID {
		return domainError(http.StatusConflict, "OWNERSHIP_BLOCKED", "Transfer ownership before removing the owner", nil)
	}
	return s.store.RemoveOrganizationMember(ctx, orgID, userID)
}

// requireOrgRole resolves the caller's membership and checks it against the
// permission table. A non-member gets the same forbidden error as an
// under-privileged member.
func (s *Service) requireOrgRole(ctx context.Context, orgID, userID string, action rbac.Action) (rbac.Role, error) {
	member, err := s.store.GetOrganizationMember(ctx, orgID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domainError(http.StatusForbidden, "FORBIDDEN", "Not an organization member", nil)
		}
		return "", err
	}
	role := rbac.Normalize(member.Role)
	if !rbac.Can(role, action) {
		return "", domainError(http.StatusForbidden, "FORBIDDEN", "Role does not permit this action", map[string]any{"role": string(role)})
	}
	return role, nil
}

func orgPayload(org store.Organization) map[string]any {
	return map[string]any{
		"id":        org.ID,
		"name":      org.Name,
		"slug":      org.Slug,
		"ownerId":   org.OwnerID,
		"createdAt": org.CreatedAt,
	}
}
