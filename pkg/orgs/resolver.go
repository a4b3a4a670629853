package orgs

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platemill/platemill/pkg/authz"
)

// Resolver answers membership lookups for the permission evaluator from
// the memberships table. Pending and suspended memberships resolve to
// nil so the evaluator treats those users as non-members.
type Resolver struct {
	db *sql.DB
}

// NewResolver creates a membership resolver backed by db.
func NewResolver(db *sql.DB) *Resolver {
	return &Resolver{db: db}
}

// Resolve implements authz.MembershipResolver.
func (r *Resolver) Resolve(ctx context.Context, userID, organizationID int64) (*authz.Membership, error) {
	var role authz.Role
	err := r.db.QueryRowContext(ctx,
		`SELECT role FROM memberships WHERE user_id = $1 AND organization_id = $2 AND status = 'approved'`,
		userID, organizationID).Scan(&role)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve membership: %w", err)
	}
	if !role.Valid() {
		return nil, fmt.Errorf("membership %d/%d has unknown role %q", userID, organizationID, role)
	}
	return &authz.Membership{
		UserID:         userID,
		OrganizationID: organizationID,
		Role:           role,
	}, nil
}
