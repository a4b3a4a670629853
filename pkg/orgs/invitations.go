package orgs

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/platemill/platemill/pkg/authz"
)

// DefaultInvitationTTL is how long an invitation stays acceptable.
const DefaultInvitationTTL = 7 * 24 * time.Hour

const invitationColumns = `id, organization_id, email, role, token, invited_by, expires_at, accepted_at, revoked_at, created_at`

// CreateInvitation issues an invitation for an email address to join an
// organization with the given role.
func (s *PostgresService) CreateInvitation(ctx context.Context, orgID int64, email string, role authz.Role, invitedBy int64) (*Invitation, error) {
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", authz.ErrInvalidInput)
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", authz.ErrInvalidInput, role)
	}

	token, err := generateInvitationToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate invitation token: %w", err)
	}

	query := `
		INSERT INTO invitations (organization_id, email, role, token, invited_by, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + invitationColumns
	row := s.db.QueryRowContext(ctx, query,
		orgID, email, role, token, invitedBy, time.Now().Add(DefaultInvitationTTL))
	inv, err := scanInvitation(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}
	return inv, nil
}

// GetInvitation looks up an invitation by its token.
func (s *PostgresService) GetInvitation(ctx context.Context, token string) (*Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE token = $1 AND revoked_at IS NULL`
	inv, err := scanInvitation(s.db.QueryRowContext(ctx, query, token))
	if err == sql.ErrNoRows {
		return nil, ErrInvitationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return inv, nil
}

// AcceptInvitation redeems an invitation on behalf of userID, creating a
// membership with the invited role. Expired or already-accepted
// invitations are rejected.
func (s *PostgresService) AcceptInvitation(ctx context.Context, token string, userID int64) (*Member, error) {
	inv, err := s.GetInvitation(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv.AcceptedAt != nil {
		return nil, ErrInvitationNotFound
	}
	if time.Now().After(inv.ExpiresAt) {
		return nil, ErrInvitationExpired
	}

	if err := s.AddMember(ctx, inv.OrganizationID, userID, inv.Role, &inv.InvitedBy); err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE invitations SET accepted_at = NOW() WHERE id = $1`, inv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark invitation accepted: %w", err)
	}

	return s.GetMember(ctx, inv.OrganizationID, userID)
}

// RevokeInvitation withdraws a pending invitation.
func (s *PostgresService) RevokeInvitation(ctx context.Context, orgID, invitationID int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE invitations SET revoked_at = NOW() WHERE id = $1 AND organization_id = $2 AND accepted_at IS NULL AND revoked_at IS NULL`,
		invitationID, orgID)
	if err != nil {
		return fmt.Errorf("failed to revoke invitation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrInvitationNotFound
	}
	return nil
}

// CleanupExpiredInvitations deletes invitations past their expiry that
// were never accepted. Returns the number removed.
func (s *PostgresService) CleanupExpiredInvitations(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM invitations WHERE expires_at < NOW() AND accepted_at IS NULL`)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup invitations: %w", err)
	}
	return result.RowsAffected()
}

func scanInvitation(row *sql.Row) (*Invitation, error) {
	inv := &Invitation{}
	var acceptedAt, revokedAt sql.NullTime
	err := row.Scan(
		&inv.ID, &inv.OrganizationID, &inv.Email, &inv.Role, &inv.Token,
		&inv.InvitedBy, &inv.ExpiresAt, &acceptedAt, &revokedAt, &inv.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if acceptedAt.Valid {
		inv.AcceptedAt = &acceptedAt.Time
	}
	if revokedAt.Valid {
		inv.RevokedAt = &revokedAt.Time
	}
	return inv, nil
}

func generateInvitationToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
