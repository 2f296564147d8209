package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arbflow/arbflow/internal/domain"
)

// opportunityTTL bounds staleness of the cached list between scan cycles.
const opportunityTTL = 30 * time.Second

// opportunityKeyPrefix namespaces every cached list variant (one key per
// filter combination).
const opportunityKeyPrefix = "opps:active:"

// OpportunityCache implements domain.OpportunityCache with JSON-serialized
// list snapshots keyed by the query filter. The scanner invalidates the whole
// namespace whenever a cycle persists new rows.
type OpportunityCache struct {
	rdb *redis.Client
}

// NewOpportunityCache creates an OpportunityCache backed by the given client.
func NewOpportunityCache(rdb *redis.Client) *OpportunityCache {
	return &OpportunityCache{rdb: rdb}
}

// GetActive returns the cached list for the given filter key, or
// domain.ErrNotFound on a miss.
func (oc *OpportunityCache) GetActive(ctx context.Context, key string) ([]domain.Opportunity, error) {
	data, err := oc.rdb.Get(ctx, opportunityKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get opportunities %s: %w", key, err)
	}

	var opps []domain.Opportunity
	if err := json.Unmarshal(data, &opps); err != nil {
		return nil, fmt.Errorf("redis: decode opportunities %s: %w", key, err)
	}
	return opps, nil
}

// SetActive stores the list snapshot for the given filter key.
func (oc *OpportunityCache) SetActive(ctx context.Context, key string, opps []domain.Opportunity) error {
	data, err := json.Marshal(opps)
	if err != nil {
		return fmt.Errorf("redis: marshal opportunities %s: %w", key, err)
	}
	if err := oc.rdb.Set(ctx, opportunityKeyPrefix+key, data, opportunityTTL).Err(); err != nil {
		return fmt.Errorf("redis: set opportunities %s: %w", key, err)
	}
	return nil
}

// Invalidate drops every cached list variant.
func (oc *OpportunityCache) Invalidate(ctx context.Context) error {
	iter := oc.rdb.Scan(ctx, 0, opportunityKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis: scan opportunity keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := oc.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis: invalidate opportunities: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.OpportunityCache = (*OpportunityCache)(nil)
