package authz

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleRank(t *testing.T) {
	assert.Equal(t, 1, RoleUser.Rank())
	assert.Equal(t, 2, RoleManager.Rank())
	assert.Equal(t, 3, RoleAdmin.Rank())
	assert.Equal(t, 4, RoleOwner.Rank())
	assert.Equal(t, -1, Role("superuser").Rank())
	assert.Equal(t, -1, Role("").Rank())
}

func TestRoleHasAtLeast(t *testing.T) {
	tests := []struct {
		actual   Role
		required Role
		want     bool
	}{
		{RoleOwner, RoleUser, true},
		{RoleOwner, RoleOwner, true},
		{RoleAdmin, RoleManager, true},
		{RoleManager, RoleAdmin, false},
		{RoleUser, RoleOwner, false},
		{RoleUser, RoleUser, true},
		{Role("bogus"), RoleUser, false},
		{RoleOwner, Role("bogus"), false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_vs_%s", tt.actual, tt.required), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.actual.HasAtLeast(tt.required))
		})
	}
}

func TestDefaultTableMonotonicity(t *testing.T) {
	table := DefaultTable()
	roles := AllRoles()

	// Every permission granted to a lower role is granted to each higher
	// role. The destructive-action asymmetry restricts where permissions
	// first appear, never removes them further up, so the chain is a
	// strict superset chain with no exceptions.
	for i := 0; i < len(roles)-1; i++ {
		lower, higher := roles[i], roles[i+1]
		for _, perm := range table.PermissionsFor(lower) {
			assert.True(t, table.Allows(higher, perm),
				"%s holds %s but %s does not", lower, perm, higher)
		}
		assert.Greater(t,
			len(table.PermissionsFor(higher)),
			len(table.PermissionsFor(lower)),
			"%s should extend %s", higher, lower)
	}
}

func TestDefaultTableDestructiveAsymmetry(t *testing.T) {
	table := DefaultTable()

	t.Run("managers write but never delete catalog resources", func(t *testing.T) {
		for _, res := range catalogResources {
			assert.True(t, table.Allows(RoleManager, Permission{res, ActionCreate}))
			assert.True(t, table.Allows(RoleManager, Permission{res, ActionUpdate}))
			assert.False(t, table.Allows(RoleManager, Permission{res, ActionDelete}),
				"manager must not delete %s", res)
			assert.True(t, table.Allows(RoleAdmin, Permission{res, ActionDelete}))
			assert.True(t, table.Allows(RoleOwner, Permission{res, ActionDelete}))
		}
	})

	t.Run("organization destruction and billing are owner-only", func(t *testing.T) {
		for _, role := range []Role{RoleUser, RoleManager, RoleAdmin} {
			assert.False(t, table.Allows(role, Permission{ResourceOrganization, ActionDelete}))
			assert.False(t, table.Allows(role, Permission{ResourceBilling, ActionManageBilling}))
		}
		assert.True(t, table.Allows(RoleOwner, Permission{ResourceOrganization, ActionDelete}))
		assert.True(t, table.Allows(RoleOwner, Permission{ResourceBilling, ActionManageBilling}))
	})

	t.Run("plain users only read the organization", func(t *testing.T) {
		assert.True(t, table.Allows(RoleUser, Permission{ResourceOrganization, ActionRead}))
		for _, action := range []Action{ActionCreate, ActionUpdate, ActionDelete, ActionArchive, ActionRestore} {
			assert.False(t, table.Allows(RoleUser, Permission{ResourceOrganization, action}),
				"user must not %s organization", action)
		}
	})
}

func TestDefaultTableExcludesOperatorCapabilities(t *testing.T) {
	table := DefaultTable()
	policy := NewDevPolicy()

	// Operator-gated actions never appear in the organization table; they
	// are decided by the DevPolicy alone.
	for _, role := range AllRoles() {
		for _, perm := range table.PermissionsFor(role) {
			assert.False(t, policy.Governs(perm.Action),
				"%s grants operator-gated %s", role, perm)
		}
	}
}

func TestNewTableCopiesInput(t *testing.T) {
	perms := []Permission{{ResourceProduct, ActionRead}}
	table := NewTable(map[Role][]Permission{RoleUser: perms})

	perms[0] = Permission{ResourceProduct, ActionDelete}
	assert.True(t, table.Allows(RoleUser, Permission{ResourceProduct, ActionRead}))
	assert.False(t, table.Allows(RoleUser, Permission{ResourceProduct, ActionDelete}))
}

func TestPermissionsForUnknownRole(t *testing.T) {
	table := DefaultTable()
	require.Nil(t, table.PermissionsFor(Role("bogus")))
}
