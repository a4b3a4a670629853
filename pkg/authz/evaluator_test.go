package authz

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeResolver is an in-memory MembershipResolver for tests.
type fakeResolver struct {
	memberships map[string]*Membership
	err         error
	calls       int
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{memberships: make(map[string]*Membership)}
}

func (f *fakeResolver) add(userID, orgID int64, role Role) {
	f.memberships[fmt.Sprintf("%d/%d", userID, orgID)] = &Membership{
		UserID: userID, OrganizationID: orgID, Role: role,
	}
}

func (f *fakeResolver) Resolve(_ context.Context, userID, orgID int64) (*Membership, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.memberships[fmt.Sprintf("%d/%d", userID, orgID)], nil
}

func TestEvaluateMembershipOutcomes(t *testing.T) {
	ctx := context.Background()
	resolver := newFakeResolver()
	resolver.add(1, 10, RoleManager)
	eval := NewEvaluator(resolver, nil, nil)

	t.Run("manager updates product", func(t *testing.T) {
		decision, err := eval.Evaluate(ctx, Check{UserID: 1, OrganizationID: 10, Action: ActionUpdate, Resource: ResourceProduct})
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
	})

	t.Run("manager denied product delete", func(t *testing.T) {
		decision, err := eval.Evaluate(ctx, Check{UserID: 1, OrganizationID: 10, Action: ActionDelete, Resource: ResourceProduct})
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, ReasonInsufficientRole, decision.Reason)
	})

	t.Run("non-member denied in other organization", func(t *testing.T) {
		decision, err := eval.Evaluate(ctx, Check{UserID: 1, OrganizationID: 20, Action: ActionRead, Resource: ResourceProduct})
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, ReasonNotAMember, decision.Reason)
	})
}

func TestEvaluateDeterministic(t *testing.T) {
	ctx := context.Background()
	resolver := newFakeResolver()
	resolver.add(1, 10, RoleAdmin)
	eval := NewEvaluator(resolver, nil, nil)

	check := Check{UserID: 1, OrganizationID: 10, Action: ActionDelete, Resource: ResourceCombo}
	first, err := eval.Evaluate(ctx, check)
	require.NoError(t, err)
	second, err := eval.Evaluate(ctx, check)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEvaluateUserRoleOrganizationActions(t *testing.T) {
	ctx := context.Background()
	resolver := newFakeResolver()
	resolver.add(2, 10, RoleUser)
	eval := NewEvaluator(resolver, nil, nil)

	read, err := eval.Evaluate(ctx, Check{UserID: 2, OrganizationID: 10, Action: ActionRead, Resource: ResourceOrganization})
	require.NoError(t, err)
	assert.True(t, read.Allowed)

	for _, action := range []Action{ActionCreate, ActionUpdate, ActionDelete, ActionArchive, ActionConfigureSettings, ActionManageUsers} {
		decision, err := eval.Evaluate(ctx, Check{UserID: 2, OrganizationID: 10, Action: action, Resource: ResourceOrganization})
		require.NoError(t, err)
		assert.False(t, decision.Allowed, "user should not %s organization", action)
	}
}

func TestEvaluateConditions(t *testing.T) {
	ctx := context.Background()
	resolver := newFakeResolver()
	resolver.add(1, 10, RoleManager)
	resolver.add(2, 10, RoleOwner)
	resolver.add(3, 10, RoleAdmin)
	eval := NewEvaluator(resolver, nil, nil)

	t.Run("ownership required and satisfied", func(t *testing.T) {
		decision, err := eval.Evaluate(ctx, Check{
			UserID: 1, OrganizationID: 10, Action: ActionUpdate, Resource: ResourceProduct,
			Condition: &Condition{RequireOwnership: true, ResourceOwnerID: 1},
		})
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
	})

	t.Run("ownership required and missed", func(t *testing.T) {
		decision, err := eval.Evaluate(ctx, Check{
			UserID: 1, OrganizationID: 10, Action: ActionUpdate, Resource: ResourceProduct,
			Condition: &Condition{RequireOwnership: true, ResourceOwnerID: 99},
		})
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, ReasonNotResourceOwner, decision.Reason)
	})

	t.Run("same organization required and missed", func(t *testing.T) {
		decision, err := eval.Evaluate(ctx, Check{
			UserID: 1, OrganizationID: 10, Action: ActionUpdate, Resource: ResourceProduct,
			Condition: &Condition{RequireSameOrganization: true, TargetOrganizationID: 20},
		})
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, ReasonCrossOrganization, decision.Reason)
	})

	t.Run("owner bypasses every condition", func(t *testing.T) {
		decision, err := eval.Evaluate(ctx, Check{
			UserID: 2, OrganizationID: 10, Action: ActionUpdate, Resource: ResourceProduct,
			Condition: &Condition{
				RequireOwnership: true, ResourceOwnerID: 99,
				RequireSameOrganization: true, TargetOrganizationID: 20,
			},
		})
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
	})

	t.Run("owner bypass requires the base permission", func(t *testing.T) {
		// Impersonate is operator-gated; an owner without the DEV flag is
		// denied regardless of conditions.
		decision, err := eval.Evaluate(ctx, Check{
			UserID: 2, OrganizationID: 10, Action: ActionImpersonate, Resource: ResourceUser,
			Condition: &Condition{RequireOwnership: true, ResourceOwnerID: 99},
		})
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
	})

	t.Run("admin remains subject to conditions", func(t *testing.T) {
		decision, err := eval.Evaluate(ctx, Check{
			UserID: 3, OrganizationID: 10, Action: ActionUpdate, Resource: ResourceProduct,
			Condition: &Condition{RequireOwnership: true, ResourceOwnerID: 99},
		})
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, ReasonNotResourceOwner, decision.Reason)
	})
}

func TestEvaluateMalformedInput(t *testing.T) {
	ctx := context.Background()
	eval := NewEvaluator(newFakeResolver(), nil, nil)

	tests := []struct {
		name  string
		check Check
	}{
		{"missing user id", Check{OrganizationID: 10, Action: ActionRead, Resource: ResourceProduct}},
		{"missing organization id", Check{UserID: 1, Action: ActionRead, Resource: ResourceProduct}},
		{"missing action", Check{UserID: 1, OrganizationID: 10, Resource: ResourceProduct}},
		{"missing resource", Check{UserID: 1, OrganizationID: 10, Action: ActionRead}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eval.Evaluate(ctx, tt.check)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidInput))
		})
	}
}

func TestEvaluateResolverFailurePropagates(t *testing.T) {
	ctx := context.Background()
	resolver := newFakeResolver()
	resolver.err = errors.New("connection refused")
	eval := NewEvaluator(resolver, nil, nil)

	_, err := eval.Evaluate(ctx, Check{UserID: 1, OrganizationID: 10, Action: ActionRead, Resource: ResourceProduct})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidInput))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestEvaluateOperatorGated(t *testing.T) {
	ctx := context.Background()
	resolver := newFakeResolver()
	resolver.add(1, 10, RoleOwner)
	eval := NewEvaluator(resolver, nil, nil)

	t.Run("dev user allowed without membership", func(t *testing.T) {
		decision, err := eval.Evaluate(ctx, Check{
			UserID: 42, Action: ActionViewLogs, Resource: ResourceSystemLogs,
			SystemRole: SystemRoleDev,
		})
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Zero(t, resolver.calls, "operator checks must not touch the resolver")
	})

	t.Run("owner without dev flag denied", func(t *testing.T) {
		decision, err := eval.Evaluate(ctx, Check{
			UserID: 1, OrganizationID: 10, Action: ActionViewInternalData, Resource: ResourceInternalData,
		})
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, ReasonNotOperator, decision.Reason)
	})
}

func TestHasAnyHasAll(t *testing.T) {
	ctx := context.Background()
	resolver := newFakeResolver()
	resolver.add(1, 10, RoleManager)
	eval := NewEvaluator(resolver, nil, nil)

	readProduct := Check{UserID: 1, OrganizationID: 10, Action: ActionRead, Resource: ResourceProduct}
	deleteProduct := Check{UserID: 1, OrganizationID: 10, Action: ActionDelete, Resource: ResourceProduct}

	anyAllowed, err := eval.HasAny(ctx, []Check{deleteProduct, readProduct})
	require.NoError(t, err)
	assert.True(t, anyAllowed)

	anyAllowed, err = eval.HasAny(ctx, []Check{deleteProduct})
	require.NoError(t, err)
	assert.False(t, anyAllowed)

	allAllowed, err := eval.HasAll(ctx, []Check{readProduct, deleteProduct})
	require.NoError(t, err)
	assert.False(t, allAllowed)

	allAllowed, err = eval.HasAll(ctx, []Check{readProduct})
	require.NoError(t, err)
	assert.True(t, allAllowed)

	t.Run("errors propagate", func(t *testing.T) {
		_, err := eval.HasAny(ctx, []Check{{UserID: 0}})
		assert.True(t, errors.Is(err, ErrInvalidInput))
		_, err = eval.HasAll(ctx, []Check{{UserID: 0}})
		assert.True(t, errors.Is(err, ErrInvalidInput))
	})
}
