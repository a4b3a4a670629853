package authz

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedEvaluatorCachesUnconditionalChecks(t *testing.T) {
	ctx := context.Background()
	resolver := newFakeResolver()
	resolver.add(1, 10, RoleManager)
	cached := NewCachedEvaluator(
		NewEvaluator(resolver, nil, nil),
		NewMemoryDecisionCache(64, time.Minute),
		time.Minute,
	)

	check := Check{UserID: 1, OrganizationID: 10, Action: ActionRead, Resource: ResourceProduct}

	first, err := cached.Evaluate(ctx, check)
	require.NoError(t, err)
	assert.True(t, first.Allowed)
	assert.Equal(t, 1, resolver.calls)

	second, err := cached.Evaluate(ctx, check)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, resolver.calls, "second evaluation should hit the cache")
}

func TestCachedEvaluatorSkipsConditionalChecks(t *testing.T) {
	ctx := context.Background()
	resolver := newFakeResolver()
	resolver.add(1, 10, RoleManager)
	cached := NewCachedEvaluator(
		NewEvaluator(resolver, nil, nil),
		NewMemoryDecisionCache(64, time.Minute),
		time.Minute,
	)

	check := Check{
		UserID: 1, OrganizationID: 10, Action: ActionUpdate, Resource: ResourceProduct,
		Condition: &Condition{RequireOwnership: true, ResourceOwnerID: 1},
	}

	for i := 0; i < 3; i++ {
		_, err := cached.Evaluate(ctx, check)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, resolver.calls, "conditional checks must never be cached")
}

func TestCachedEvaluatorInvalidateUser(t *testing.T) {
	ctx := context.Background()
	resolver := newFakeResolver()
	resolver.add(1, 10, RoleManager)
	resolver.add(2, 10, RoleAdmin)
	cached := NewCachedEvaluator(
		NewEvaluator(resolver, nil, nil),
		NewMemoryDecisionCache(64, time.Minute),
		time.Minute,
	)

	check1 := Check{UserID: 1, OrganizationID: 10, Action: ActionRead, Resource: ResourceProduct}
	check2 := Check{UserID: 2, OrganizationID: 10, Action: ActionRead, Resource: ResourceProduct}

	_, err := cached.Evaluate(ctx, check1)
	require.NoError(t, err)
	_, err = cached.Evaluate(ctx, check2)
	require.NoError(t, err)
	require.Equal(t, 2, resolver.calls)

	require.NoError(t, cached.InvalidateUser(ctx, 1))

	_, err = cached.Evaluate(ctx, check1)
	require.NoError(t, err)
	assert.Equal(t, 3, resolver.calls, "user 1 should be re-resolved")

	_, err = cached.Evaluate(ctx, check2)
	require.NoError(t, err)
	assert.Equal(t, 3, resolver.calls, "user 2 should still be cached")
}

func TestCachedEvaluatorDisabledTTL(t *testing.T) {
	ctx := context.Background()
	resolver := newFakeResolver()
	resolver.add(1, 10, RoleManager)
	cached := NewCachedEvaluator(
		NewEvaluator(resolver, nil, nil),
		NewMemoryDecisionCache(64, time.Minute),
		0,
	)

	check := Check{UserID: 1, OrganizationID: 10, Action: ActionRead, Resource: ResourceProduct}
	for i := 0; i < 2; i++ {
		_, err := cached.Evaluate(ctx, check)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, resolver.calls)
}
