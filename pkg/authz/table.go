package authz

import "sort"

// Table is an immutable mapping from role to the set of permissions that
// role may exercise. It is built once (normally at process start), shared
// freely across goroutines, and never mutated afterwards. Construct it
// explicitly and inject it into the Evaluator so tests can substitute
// alternate tables.
type Table struct {
	grants map[Role]map[Permission]struct{}
}

// NewTable builds a Table from per-role permission lists. The input is
// copied; later changes to the slices do not affect the table.
func NewTable(grants map[Role][]Permission) *Table {
	t := &Table{grants: make(map[Role]map[Permission]struct{}, len(grants))}
	for role, perms := range grants {
		set := make(map[Permission]struct{}, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
		}
		t.grants[role] = set
	}
	return t
}

// Allows reports whether the role holds the given permission.
func (t *Table) Allows(role Role, p Permission) bool {
	set, ok := t.grants[role]
	if !ok {
		return false
	}
	_, ok = set[p]
	return ok
}

// PermissionsFor returns the role's permissions sorted by their canonical
// string form. The returned slice is a copy.
func (t *Table) PermissionsFor(role Role) []Permission {
	set, ok := t.grants[role]
	if !ok {
		return nil
	}
	perms := make([]Permission, 0, len(set))
	for p := range set {
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool {
		return perms[i].String() < perms[j].String()
	})
	return perms
}

// catalogResources are the product-family resources managed day to day.
var catalogResources = []Resource{
	ResourceProduct,
	ResourceCombo,
	ResourceCategory,
	ResourcePackaging,
	ResourceStock,
}

// DefaultTable returns the built-in permission table.
//
// Each tier extends the one below it. The deliberate asymmetry: managers
// get full read/write on catalog resources but DELETE is reserved for
// admins and owners, and organization deletion plus billing management are
// owner-only. Read/write is delegated further down the hierarchy than
// destroy/configure.
func DefaultTable() *Table {
	user := []Permission{
		{ResourceOrganization, ActionRead},
	}
	for _, res := range catalogResources {
		user = append(user, Permission{res, ActionRead})
	}

	manager := append([]Permission{}, user...)
	for _, res := range catalogResources {
		manager = append(manager,
			Permission{res, ActionCreate},
			Permission{res, ActionUpdate},
			Permission{res, ActionArchive},
			Permission{res, ActionRestore},
		)
	}
	manager = append(manager,
		Permission{ResourceAnalytics, ActionViewAnalytics},
		Permission{ResourceSettings, ActionRead},
	)

	admin := append([]Permission{}, manager...)
	for _, res := range catalogResources {
		admin = append(admin, Permission{res, ActionDelete})
	}
	admin = append(admin,
		Permission{ResourceOrganization, ActionUpdate},
		Permission{ResourceUser, ActionRead},
		Permission{ResourceUser, ActionManageUsers},
		Permission{ResourceRole, ActionRead},
		Permission{ResourceRole, ActionManageRoles},
		Permission{ResourceSettings, ActionConfigureSettings},
		Permission{ResourceAnalytics, ActionExportData},
		Permission{ResourceBilling, ActionRead},
		Permission{ResourceAuditLogs, ActionRead},
	)

	owner := append([]Permission{}, admin...)
	owner = append(owner,
		Permission{ResourceOrganization, ActionDelete},
		Permission{ResourceBilling, ActionManageBilling},
	)

	return NewTable(map[Role][]Permission{
		RoleUser:    user,
		RoleManager: manager,
		RoleAdmin:   admin,
		RoleOwner:   owner,
	})
}
