// Package cache keeps hot discount rule lists in Redis.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/storefront-promotions/internal/domain/discount"
	"github.com/xenking/storefront-promotions/internal/domain/promotion"
)

const keyPrefix = "promo:rules:auto:"

var _ promotion.RuleRepository = (*RuleCache)(nil)

// RuleCache caches the automatic rules of each tenant. Coupon lookups and
// usage updates always reach the wrapped repository so usage counts are
// never stale. Redis errors degrade to uncached reads.
type RuleCache struct {
	next   promotion.RuleRepository
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRuleCache wraps next. A non-positive ttl disables caching.
func NewRuleCache(next promotion.RuleRepository, client redis.UniversalClient, ttl time.Duration) *RuleCache {
	return &RuleCache{next: next, client: client, ttl: ttl}
}

// ListAutomatic returns the cached list when present. The list is cached
// regardless of now; the engine checks every rule's window itself.
func (c *RuleCache) ListAutomatic(ctx context.Context, tenantID string, now time.Time) ([]discount.Rule, error) {
	if c.ttl <= 0 {
		return c.next.ListAutomatic(ctx, tenantID, now)
	}
	lg := zctx.From(ctx)
	key := keyPrefix + tenantID

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var rules []discount.Rule
		if err := json.Unmarshal(data, &rules); err == nil {
			return rules, nil
		}
		lg.Warn("Dropping malformed cached rules", zap.String("tenant_id", tenantID))
	case !errors.Is(err, redis.Nil):
		lg.Warn("Rule cache read failed", zap.String("tenant_id", tenantID), zap.Error(err))
	}

	rules, err := c.next.ListAutomatic(ctx, tenantID, now)
	if err != nil {
		return nil, err
	}
	data, err = json.Marshal(rules)
	if err != nil {
		return nil, errors.Wrap(err, "marshal rules")
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		lg.Warn("Rule cache write failed", zap.String("tenant_id", tenantID), zap.Error(err))
	}
	return rules, nil
}

// FindByCode delegates to the wrapped repository.
func (c *RuleCache) FindByCode(ctx context.Context, tenantID, code string) (*discount.Rule, error) {
	return c.next.FindByCode(ctx, tenantID, code)
}

// ConsumeUsage delegates to the wrapped repository.
func (c *RuleCache) ConsumeUsage(ctx context.Context, tenantID, ruleID string) error {
	return c.next.ConsumeUsage(ctx, tenantID, ruleID)
}

// Invalidate drops the cached list of tenantID.
func (c *RuleCache) Invalidate(ctx context.Context, tenantID string) error {
	if err := c.client.Del(ctx, keyPrefix+tenantID).Err(); err != nil {
		return errors.Wrap(err, "invalidate rules")
	}
	return nil
}
