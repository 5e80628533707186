package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (s *PostgresStore) CreateOrganization(ctx context.Context, org Organization) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create organization: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO organizations (id, name, slug, owner_id)
		VALUES ($1, $2, $3, $4)
	`, org.ID, org.Name, org.Slug, org.OwnerID); err != nil {
		return fmt.Errorf("insert organization: %w", err)
	}

	// The owner is always present in the member set with role owner.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO organization_members (org_id, user_id, role)
		VALUES ($1, $2, 'owner')
	`, org.ID, org.OwnerID); err != nil {
		return fmt.Errorf("insert owner membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create organization: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetOrganization(ctx context.Context, orgID string) (Organization, error) {
	var item Organization
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, owner_id, created_at, updated_at
		FROM organizations
		WHERE id=$1
	`, orgID).Scan(&item.ID, &item.Name, &item.Slug, &item.OwnerID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Organization{}, err
	}
	return item, nil
}

func (s *PostgresStore) GetOrganizationMember(ctx context.Context, orgID, userID string) (OrgMember, error) {
	var item OrgMember
	err := s.db.QueryRowContext(ctx, `
		SELECT org_id, user_id, role, joined_at
		FROM organization_members
		WHERE org_id=$1 AND user_id=$2
	`, orgID, userID).Scan(&item.OrgID, &item.UserID, &item.Role, &item.JoinedAt)
	if err != nil {
		return OrgMember{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListOrganizationMembers(ctx context.Context, orgID string) ([]OrgMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT org_id, user_id, role, joined_at
		FROM organization_members
		WHERE org_id=$1
		ORDER BY joined_at ASC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list organization members: %w", err)
	}
	defer rows.Close()

	items := make([]OrgMember, 0)
	for rows.Next() {
		var item OrgMember
		if err := rows.Scan(&item.OrgID, &item.UserID, &item.Role, &item.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan organization member: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate organization members: %w", err)
	}
	return items, nil
}

// AddOrganizationMember appends a member with add-to-set semantics. Returns
// true when the row was inserted, false when the user was already a member.
func (s *PostgresStore) AddOrganizationMember(ctx context.Context, orgID, userID, role string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO organization_members (org_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (org_id, user_id) DO NOTHING
	`, orgID, userID, role)
	if err != nil {
		return false, fmt.Errorf("add organization member: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add organization member rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) UpdateOrganizationMemberRole(ctx context.Context, orgID, userID, role string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE organization_members SET role=$3 WHERE org_id=$1 AND user_id=$2
	`, orgID, userID, role)
	if err != nil {
		return false, fmt.Errorf("update member role: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update member role rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) RemoveOrganizationMember(ctx context.Context, orgID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM organization_members WHERE org_id=$1 AND user_id=$2
	`, orgID, userID)
	if err != nil {
		return fmt.Errorf("remove organization member: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListOwnedOrganizations(ctx context.Context, userID string) ([]Organization, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, slug, owner_id, created_at, updated_at
		FROM organizations
		WHERE owner_id=$1
		ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list owned organizations: %w", err)
	}
	defer rows.Close()

	items := make([]Organization, 0)
	for rows.Next() {
		var item Organization
		if err := rows.Scan(&item.ID, &item.Name, &item.Slug, &item.OwnerID, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan owned organization: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate owned organizations: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountOwnedOrganizations(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM organizations WHERE owner_id=$1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count owned organizations: %w", err)
	}
	return count, nil
}

// TransferOrganizationOwnership reassigns the owner in one transaction. The
// organizations update is matched on the current owner so a concurrent
// transfer loses cleanly: zero rows means the caller's view was stale and
// nothing changes. Returns false in that case.
func (s *PostgresStore) TransferOrganizationOwnership(ctx context.Context, orgID, fromUserID, toUserID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin ownership transfer: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE organizations SET owner_id=$3, updated_at=NOW()
		WHERE id=$1 AND owner_id=$2
	`, orgID, fromUserID, toUserID)
	if err != nil {
		return false, fmt.Errorf("reassign owner: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reassign owner rows: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	promoted, err := tx.ExecContext(ctx, `
		UPDATE organization_members SET role='owner' WHERE org_id=$1 AND user_id=$2
	`, orgID, toUserID)
	if err != nil {
		return false, fmt.Errorf("promote new owner: %w", err)
	}
	promotedRows, err := promoted.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("promote new owner rows: %w", err)
	}
	if promotedRows == 0 {
		// Target left the organization between check and transfer; abort whole.
		return false, errors.New("target is not a member")
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE organization_members SET role='admin' WHERE org_id=$1 AND user_id=$2
	`, orgID, fromUserID); err != nil {
		return false, fmt.Errorf("demote former owner: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit ownership transfer: %w", err)
	}
	return true, nil
}

// RemoveUserFromAllOrganizations strips the user's memberships everywhere.
// Callers must have transferred or verified zero owned organizations first.
func (s *PostgresStore) RemoveUserFromAllOrganizations(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM organization_members WHERE user_id=$1`, userID)
	if err != nil {
		return fmt.Errorf("remove user from organizations: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePersonalSpace(ctx context.Context, space PersonalSpace) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO personal_spaces (id, user_id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO NOTHING
	`, space.ID, space.UserID, space.Name)
	if err != nil {
		return fmt.Errorf("insert personal space: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPersonalSpace(ctx context.Context, userID string) (PersonalSpace, error) {
	var item PersonalSpace
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, created_at FROM personal_spaces WHERE user_id=$1
	`, userID).Scan(&item.ID, &item.UserID, &item.Name, &item.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return PersonalSpace{}, err
	}
	if err != nil {
		return PersonalSpace{}, fmt.Errorf("get personal space: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) DeletePersonalSpaceFor(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM personal_spaces WHERE user_id=$1`, userID)
	if err != nil {
		return fmt.Errorf("delete personal space: %w", err)
	}
	return nil
}
