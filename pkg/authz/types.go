package authz

import "context"

// Role is an organization-scoped privilege tier. Roles form a total order
// by privilege; use Rank and HasAtLeast for comparisons instead of relying
// on declaration order.
type Role string

const (
	RoleUser    Role = "user"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
	RoleOwner   Role = "owner"
)

// roleRanks defines the privilege ordering. Higher rank wins.
var roleRanks = map[Role]int{
	RoleUser:    1,
	RoleManager: 2,
	RoleAdmin:   3,
	RoleOwner:   4,
}

// Rank returns the privilege rank of the role, or -1 for unknown roles.
// Unknown roles must be rejected at the boundary that reads them; by the
// time a Role reaches the evaluator it is expected to be valid.
func (r Role) Rank() int {
	if rank, ok := roleRanks[r]; ok {
		return rank
	}
	return -1
}

// Valid reports whether the role is one of the known tiers.
func (r Role) Valid() bool {
	return r.Rank() > 0
}

// HasAtLeast reports whether the role ranks at or above required.
// Unknown roles never satisfy any requirement.
func (r Role) HasAtLeast(required Role) bool {
	ar, rr := r.Rank(), required.Rank()
	if ar < 0 || rr < 0 {
		return false
	}
	return ar >= rr
}

// AllRoles returns the known roles in ascending privilege order.
func AllRoles() []Role {
	return []Role{RoleUser, RoleManager, RoleAdmin, RoleOwner}
}

// SystemRole is an organization-independent platform operator flag.
// It is orthogonal to the organization Role and persisted separately.
type SystemRole string

const (
	SystemRoleNone SystemRole = ""
	SystemRoleDev  SystemRole = "dev"
)

// Action is an operation that can be performed on a resource.
type Action string

const (
	ActionCreate            Action = "create"
	ActionRead              Action = "read"
	ActionUpdate            Action = "update"
	ActionDelete            Action = "delete"
	ActionRestore           Action = "restore"
	ActionArchive           Action = "archive"
	ActionManageUsers       Action = "manage_users"
	ActionManageRoles       Action = "manage_roles"
	ActionManageBilling     Action = "manage_billing"
	ActionConfigureSettings Action = "configure_settings"
	ActionViewAnalytics     Action = "view_analytics"
	ActionExportData        Action = "export_data"
	ActionImpersonate       Action = "impersonate"
	ActionViewInternalData  Action = "view_internal_data"
	ActionManageStripe      Action = "manage_stripe"
	ActionViewLogs          Action = "view_logs"
	ActionDebugSystem       Action = "debug_system"
)

// Resource is a type of thing an action applies to.
type Resource string

const (
	ResourceOrganization Resource = "organization"
	ResourceProduct      Resource = "product"
	ResourceCombo        Resource = "combo"
	ResourceCategory     Resource = "category"
	ResourcePackaging    Resource = "packaging"
	ResourceStock        Resource = "stock"
	ResourceUser         Resource = "user"
	ResourceRole         Resource = "role"
	ResourceBilling      Resource = "billing"
	ResourceSettings     Resource = "settings"
	ResourceAnalytics    Resource = "analytics"
	ResourceInternalData Resource = "internal_data"
	ResourceStripeData   Resource = "stripe_data"
	ResourceSystemLogs   Resource = "system_logs"
	ResourceAuditLogs    Resource = "audit_logs"
)

// Permission is a (resource, action) capability pair. Permissions carry no
// identity of their own; they exist as entries in a Table.
type Permission struct {
	Resource Resource `json:"resource"`
	Action   Action   `json:"action"`
}

// String returns the canonical "resource:action" form.
func (p Permission) String() string {
	return string(p.Resource) + ":" + string(p.Action)
}

// Membership relates a user to one organization with that organization's
// role. Only active (non-suspended) memberships reach the evaluator; the
// resolver maps suspended rows to "not a member".
type Membership struct {
	UserID         int64 `json:"user_id"`
	OrganizationID int64 `json:"organization_id"`
	Role           Role  `json:"role"`
}

// MembershipResolver looks up a user's active membership in an organization.
//
// Resolve returns (nil, nil) when the user has no active membership; absence
// is a normal outcome, not an error. Errors are reserved for storage
// failures and must not be interpreted as deny.
type MembershipResolver interface {
	Resolve(ctx context.Context, userID, organizationID int64) (*Membership, error)
}

// Condition carries optional contextual requirements for a check. A nil
// Condition means the table lookup alone decides.
type Condition struct {
	RequireOwnership        bool  `json:"require_ownership,omitempty"`
	ResourceOwnerID         int64 `json:"resource_owner_id,omitempty"`
	RequireSameOrganization bool  `json:"require_same_organization,omitempty"`
	TargetOrganizationID    int64 `json:"target_organization_id,omitempty"`
}

// Check is a single permission evaluation request.
type Check struct {
	UserID         int64      `json:"user_id"`
	OrganizationID int64      `json:"organization_id"`
	Action         Action     `json:"action"`
	Resource       Resource   `json:"resource"`
	ResourceID     string     `json:"resource_id,omitempty"`
	SystemRole     SystemRole `json:"system_role,omitempty"`
	Condition      *Condition `json:"condition,omitempty"`
}

// Permission returns the (resource, action) pair the check asks about.
func (c Check) Permission() Permission {
	return Permission{Resource: c.Resource, Action: c.Action}
}

// Decision is the outcome of one evaluation. Denial is data, never an
// error. Reason is for logs and diagnostics, not end-user display.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Deny reasons. Stable strings so callers and tests can match on them.
const (
	ReasonNotAMember        = "not a member"
	ReasonInsufficientRole  = "insufficient role"
	ReasonNotResourceOwner  = "not resource owner"
	ReasonCrossOrganization = "cross-organization access"
	ReasonNotOperator       = "requires system operator"
)

// Allow builds a permitting decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny builds a refusing decision carrying the reason.
func Deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}
