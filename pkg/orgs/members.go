package orgs

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platemill/platemill/pkg/authz"
)

// ListMembers retrieves all members of an organization.
func (s *PostgresService) ListMembers(ctx context.Context, orgID int64) ([]*Member, error) {
	query := `
		SELECT m.id, m.organization_id, m.user_id, m.role, m.status, m.invited_by,
		       m.joined_at, m.created_at, u.username, u.email
		FROM memberships m
		JOIN users u ON u.id = m.user_id
		WHERE m.organization_id = $1
		ORDER BY m.created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		member := &Member{}
		var email sql.NullString
		if err := rows.Scan(
			&member.ID, &member.OrganizationID, &member.UserID, &member.Role, &member.Status,
			&member.InvitedBy, &member.JoinedAt, &member.CreatedAt, &member.Username, &email,
		); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		member.Email = email.String
		members = append(members, member)
	}
	return members, rows.Err()
}

// GetMember retrieves a specific member.
func (s *PostgresService) GetMember(ctx context.Context, orgID, userID int64) (*Member, error) {
	query := `
		SELECT m.id, m.organization_id, m.user_id, m.role, m.status, m.invited_by,
		       m.joined_at, m.created_at, u.username, u.email
		FROM memberships m
		JOIN users u ON u.id = m.user_id
		WHERE m.organization_id = $1 AND m.user_id = $2
	`
	member := &Member{}
	var email sql.NullString
	err := s.db.QueryRowContext(ctx, query, orgID, userID).Scan(
		&member.ID, &member.OrganizationID, &member.UserID, &member.Role, &member.Status,
		&member.InvitedBy, &member.JoinedAt, &member.CreatedAt, &member.Username, &email,
	)
	if err == sql.ErrNoRows {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	member.Email = email.String
	return member, nil
}

// AddMember adds a user to an organization with the given role.
func (s *PostgresService) AddMember(ctx context.Context, orgID, userID int64, role authz.Role, invitedBy *int64) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", authz.ErrInvalidInput, role)
	}

	query := `
		INSERT INTO memberships (organization_id, user_id, role, status, invited_by)
		VALUES ($1, $2, $3, 'approved', $4)
		ON CONFLICT (organization_id, user_id) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query, orgID, userID, role, invitedBy)
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrMemberExists
	}
	return nil
}

// UpdateMemberRole changes a member's role. Demoting the organization's
// final owner is rejected; the check and the update share a transaction
// so a concurrent demotion cannot slip through.
func (s *PostgresService) UpdateMemberRole(ctx context.Context, orgID, userID int64, role authz.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", authz.ErrInvalidInput, role)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if role != authz.RoleOwner {
		if err := guardLastOwner(ctx, tx, orgID, userID); err != nil {
			return err
		}
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE memberships SET role = $1 WHERE organization_id = $2 AND user_id = $3`,
		role, orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrMemberNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// SetMemberStatus suspends or re-approves a membership. Suspending the
// final owner is rejected for the same reason demoting them is.
func (s *PostgresService) SetMemberStatus(ctx context.Context, orgID, userID int64, status MembershipStatus) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if status != MembershipApproved {
		if err := guardLastOwner(ctx, tx, orgID, userID); err != nil {
			return err
		}
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE memberships SET status = $1 WHERE organization_id = $2 AND user_id = $3`,
		status, orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to set member status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrMemberNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// RemoveMember unlinks a user from an organization. The final owner
// cannot be removed.
func (s *PostgresService) RemoveMember(ctx context.Context, orgID, userID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := guardLastOwner(ctx, tx, orgID, userID); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx,
		`DELETE FROM memberships WHERE organization_id = $1 AND user_id = $2`, orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrMemberNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// HighestRole returns the most privileged approved role the user holds
// across all organizations, or an empty role for users with no approved
// memberships. Privilege comparison uses Role.Rank so an unknown role in
// storage can never outrank a known one.
func (s *PostgresService) HighestRole(ctx context.Context, userID int64) (authz.Role, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role FROM memberships WHERE user_id = $1 AND status = 'approved'`, userID)
	if err != nil {
		return "", fmt.Errorf("failed to query roles: %w", err)
	}
	defer rows.Close()

	var highest authz.Role
	for rows.Next() {
		var role authz.Role
		if err := rows.Scan(&role); err != nil {
			return "", fmt.Errorf("failed to scan role: %w", err)
		}
		if role.Rank() > highest.Rank() {
			highest = role
		}
	}
	return highest, rows.Err()
}

// guardLastOwner fails when userID is the only remaining active owner of
// the organization. Rows are locked so concurrent demotions serialize.
func guardLastOwner(ctx context.Context, tx *sql.Tx, orgID, userID int64) error {
	query := `
		SELECT user_id
		FROM memberships
		WHERE organization_id = $1 AND role = 'owner' AND status = 'approved' AND user_id != $2
		FOR UPDATE
	`
	rows, err := tx.QueryContext(ctx, query, orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to count owners: %w", err)
	}
	otherOwners := 0
	for rows.Next() {
		otherOwners++
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("failed to count owners: %w", err)
	}
	rows.Close()

	var isOwner bool
	err = tx.QueryRowContext(ctx,
		`SELECT role = 'owner' AND status = 'approved' FROM memberships WHERE organization_id = $1 AND user_id = $2`,
		orgID, userID).Scan(&isOwner)
	if err == sql.ErrNoRows {
		return ErrMemberNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check member role: %w", err)
	}

	if isOwner && otherOwners == 0 {
		return errLastOwner()
	}
	return nil
}
