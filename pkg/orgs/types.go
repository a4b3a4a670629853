package orgs

import (
	"context"
	"errors"
	"time"

	"github.com/platemill/platemill/pkg/authz"
)

// OrgStatus represents organization status.
type OrgStatus string

const (
	OrgStatusActive    OrgStatus = "active"
	OrgStatusSuspended OrgStatus = "suspended"
	OrgStatusDeleted   OrgStatus = "deleted"
)

// MembershipStatus represents the state of a user's membership.
type MembershipStatus string

const (
	MembershipApproved  MembershipStatus = "approved"
	MembershipPending   MembershipStatus = "pending"
	MembershipSuspended MembershipStatus = "suspended"
)

// Organization is a tenant. All catalog data and memberships are scoped
// to exactly one organization.
type Organization struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	DisplayName string    `json:"display_name"`
	Description string    `json:"description,omitempty"`
	Status      OrgStatus `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Member is a user's membership in an organization, joined with display
// fields from the users table.
type Member struct {
	ID             int64            `json:"id"`
	OrganizationID int64            `json:"organization_id"`
	UserID         int64            `json:"user_id"`
	Role           authz.Role       `json:"role"`
	Status         MembershipStatus `json:"status"`
	InvitedBy      *int64           `json:"invited_by,omitempty"`
	JoinedAt       time.Time        `json:"joined_at"`
	CreatedAt      time.Time        `json:"created_at"`
	Username       string           `json:"username"`
	Email          string           `json:"email,omitempty"`
}

// Invitation is an offer for a user to join an organization with a role.
type Invitation struct {
	ID             int64      `json:"id"`
	OrganizationID int64      `json:"organization_id"`
	Email          string     `json:"email"`
	Role           authz.Role `json:"role"`
	Token          string     `json:"token,omitempty"`
	InvitedBy      int64      `json:"invited_by"`
	ExpiresAt      time.Time  `json:"expires_at"`
	AcceptedAt     *time.Time `json:"accepted_at,omitempty"`
	RevokedAt      *time.Time `json:"revoked_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Sentinel errors for membership operations.
var (
	ErrOrgNotFound        = errors.New("orgs: organization not found")
	ErrMemberNotFound     = errors.New("orgs: member not found")
	ErrMemberExists       = errors.New("orgs: member already exists")
	ErrInvitationNotFound = errors.New("orgs: invitation not found")
	ErrInvitationExpired  = errors.New("orgs: invitation expired")
)

// ErrLastOwner guards the invariant that an organization always retains
// at least one owner. Removing or demoting the final owner fails with a
// BusinessRuleError wrapping nothing else; check with IsLastOwner.
func errLastOwner() error {
	return authz.NewBusinessRuleError("last_owner",
		"organizations must retain at least one owner")
}

// IsLastOwner reports whether err is the last-owner guard firing.
func IsLastOwner(err error) bool {
	var bre *authz.BusinessRuleError
	if errors.As(err, &bre) {
		return bre.Rule == "last_owner"
	}
	return false
}

// Service is the organization and membership management interface.
type Service interface {
	// Organization CRUD
	CreateOrganization(ctx context.Context, org *Organization) error
	GetOrganization(ctx context.Context, id int64) (*Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (*Organization, error)
	ListOrganizations(ctx context.Context, userID int64) ([]*Organization, error)
	UpdateOrganization(ctx context.Context, org *Organization) error
	DeleteOrganization(ctx context.Context, id int64) error

	// Member management
	ListMembers(ctx context.Context, orgID int64) ([]*Member, error)
	GetMember(ctx context.Context, orgID, userID int64) (*Member, error)
	AddMember(ctx context.Context, orgID, userID int64, role authz.Role, invitedBy *int64) error
	UpdateMemberRole(ctx context.Context, orgID, userID int64, role authz.Role) error
	SetMemberStatus(ctx context.Context, orgID, userID int64, status MembershipStatus) error
	RemoveMember(ctx context.Context, orgID, userID int64) error
	HighestRole(ctx context.Context, userID int64) (authz.Role, error)

	// Invitation management
	CreateInvitation(ctx context.Context, orgID int64, email string, role authz.Role, invitedBy int64) (*Invitation, error)
	GetInvitation(ctx context.Context, token string) (*Invitation, error)
	AcceptInvitation(ctx context.Context, token string, userID int64) (*Member, error)
	RevokeInvitation(ctx context.Context, orgID, invitationID int64) error
	CleanupExpiredInvitations(ctx context.Context) (int64, error)
}
