package authz

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// DecisionCache stores evaluation results for a short TTL. Only
// unconditional checks are cached; conditional checks depend on per-request
// context and are always re-evaluated.
type DecisionCache interface {
	// Get returns the cached decision, or nil when absent or expired.
	Get(ctx context.Context, key string) (*Decision, error)

	// Set stores a decision under key for the given TTL.
	Set(ctx context.Context, key string, decision Decision, ttl time.Duration) error

	// InvalidateUser drops every cached decision for a user. Called after
	// role or status changes so stale allows do not outlive a demotion.
	InvalidateUser(ctx context.Context, userID int64) error
}

// cacheKey builds the cache key for a check. The user id leads the key so
// per-user invalidation can match on prefix.
func cacheKey(check Check) string {
	return fmt.Sprintf("authz:%d:%d:%s:%s:%s",
		check.UserID, check.OrganizationID, check.Resource, check.Action, check.SystemRole)
}

func userKeyPrefix(userID int64) string {
	return fmt.Sprintf("authz:%d:", userID)
}

// CachedEvaluator wraps an Evaluator with a DecisionCache. Cached entries
// observe the TTL as a staleness bound; membership changes should also call
// InvalidateUser for immediate effect.
type CachedEvaluator struct {
	inner *Evaluator
	cache DecisionCache
	ttl   time.Duration
}

// NewCachedEvaluator wraps eval with cache. A non-positive TTL disables
// caching entirely.
func NewCachedEvaluator(eval *Evaluator, cache DecisionCache, ttl time.Duration) *CachedEvaluator {
	return &CachedEvaluator{inner: eval, cache: cache, ttl: ttl}
}

// Evaluate returns the cached decision when available, otherwise delegates
// to the wrapped Evaluator. Cache failures are ignored for reads and
// writes; the evaluator remains the source of truth.
func (c *CachedEvaluator) Evaluate(ctx context.Context, check Check) (Decision, error) {
	cacheable := c.ttl > 0 && c.cache != nil && check.Condition == nil
	if cacheable {
		if cached, err := c.cache.Get(ctx, cacheKey(check)); err == nil && cached != nil {
			return *cached, nil
		}
	}

	decision, err := c.inner.Evaluate(ctx, check)
	if err != nil {
		return Decision{}, err
	}

	if cacheable {
		_ = c.cache.Set(ctx, cacheKey(check), decision, c.ttl)
	}
	return decision, nil
}

// OperatorGated reports whether action is decided by the operator policy.
func (c *CachedEvaluator) OperatorGated(action Action) bool {
	return c.inner.OperatorGated(action)
}

// InvalidateUser drops cached decisions for a user.
func (c *CachedEvaluator) InvalidateUser(ctx context.Context, userID int64) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.InvalidateUser(ctx, userID)
}

// MemoryDecisionCache is an in-process DecisionCache backed by an
// expirable LRU. Suitable for single-instance deployments; multi-instance
// deployments should prefer the Redis cache so invalidation reaches every
// replica.
type MemoryDecisionCache struct {
	cache *lru.LRU[string, Decision]
}

// NewMemoryDecisionCache creates a memory cache holding up to maxEntries
// decisions for at most ttl each.
func NewMemoryDecisionCache(maxEntries int, ttl time.Duration) *MemoryDecisionCache {
	if maxEntries < 16 {
		maxEntries = 16
	}
	return &MemoryDecisionCache{
		cache: lru.NewLRU[string, Decision](maxEntries, nil, ttl),
	}
}

// Get returns the cached decision, or nil when absent.
func (m *MemoryDecisionCache) Get(_ context.Context, key string) (*Decision, error) {
	if decision, ok := m.cache.Get(key); ok {
		return &decision, nil
	}
	return nil, nil
}

// Set stores a decision. The per-entry TTL is fixed at construction; the
// ttl argument exists to satisfy DecisionCache and is ignored here.
func (m *MemoryDecisionCache) Set(_ context.Context, key string, decision Decision, _ time.Duration) error {
	m.cache.Add(key, decision)
	return nil
}

// InvalidateUser drops every entry whose key belongs to the user.
func (m *MemoryDecisionCache) InvalidateUser(_ context.Context, userID int64) error {
	prefix := userKeyPrefix(userID)
	for _, key := range m.cache.Keys() {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			m.cache.Remove(key)
		}
	}
	return nil
}

// TieredDecisionCache layers a fast local cache in front of a shared one.
// Local hits avoid the network; local misses consult the shared cache and
// backfill. Invalidation must reach both tiers, and multi-instance
// deployments still rely on the local TTL to bound staleness on replicas
// that did not observe the invalidation.
type TieredDecisionCache struct {
	local  DecisionCache
	shared DecisionCache
}

// NewTieredDecisionCache layers local in front of shared.
func NewTieredDecisionCache(local, shared DecisionCache) *TieredDecisionCache {
	return &TieredDecisionCache{local: local, shared: shared}
}

// Get consults the local tier first, then the shared tier.
func (t *TieredDecisionCache) Get(ctx context.Context, key string) (*Decision, error) {
	if decision, err := t.local.Get(ctx, key); err == nil && decision != nil {
		return decision, nil
	}
	decision, err := t.shared.Get(ctx, key)
	if err != nil || decision == nil {
		return nil, err
	}
	_ = t.local.Set(ctx, key, *decision, 0)
	return decision, nil
}

// Set stores the decision in both tiers.
func (t *TieredDecisionCache) Set(ctx context.Context, key string, decision Decision, ttl time.Duration) error {
	_ = t.local.Set(ctx, key, decision, ttl)
	return t.shared.Set(ctx, key, decision, ttl)
}

// InvalidateUser drops the user's decisions from both tiers.
func (t *TieredDecisionCache) InvalidateUser(ctx context.Context, userID int64) error {
	localErr := t.local.InvalidateUser(ctx, userID)
	if err := t.shared.InvalidateUser(ctx, userID); err != nil {
		return err
	}
	return localErr
}
