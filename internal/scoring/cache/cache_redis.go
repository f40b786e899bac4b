package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"riskgraph/internal/scoring/models"
	id "riskgraph/pkg/domain"
)

const scoreKeyPrefix = "risk:score:"

// Redis is the production cache for multi-instance deployments. Keys carry a
// TTL matching the score's validity window, so stale entries age out even if
// an invalidation is missed.
type Redis struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, now: time.Now}
}

func scoreKey(tenantID id.TenantID, entityID id.EntityID) string {
	return fmt.Sprintf("%s%s:%s", scoreKeyPrefix, tenantID, entityID)
}

func tenantPattern(tenantID id.TenantID) string {
	return fmt.Sprintf("%s%s:*", scoreKeyPrefix, tenantID)
}

func (r *Redis) Get(ctx context.Context, tenantID id.TenantID, entityID id.EntityID) (*models.Justification, error) {
	raw, err := r.client.Get(ctx, scoreKey(tenantID, entityID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("score cache get: %w", err)
	}
	var just models.Justification
	if err := json.Unmarshal(raw, &just); err != nil {
		return nil, fmt.Errorf("score cache decode: %w", err)
	}
	return &just, nil
}

func (r *Redis) Set(ctx context.Context, tenantID id.TenantID, just *models.Justification) error {
	raw, ttl, err := r.encode(just)
	if err != nil || ttl <= 0 {
		return err
	}
	if err := r.client.Set(ctx, scoreKey(tenantID, just.EntityID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("score cache set: %w", err)
	}
	return nil
}

// SetBatch pipelines all writes; a recalculation can commit thousands of
// scores at once.
func (r *Redis) SetBatch(ctx context.Context, tenantID id.TenantID, justs []*models.Justification) error {
	pipe := r.client.Pipeline()
	for _, just := range justs {
		raw, ttl, err := r.encode(just)
		if err != nil {
			return err
		}
		if ttl <= 0 {
			continue
		}
		pipe.Set(ctx, scoreKey(tenantID, just.EntityID), raw, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("score cache batch set: %w", err)
	}
	return nil
}

func (r *Redis) encode(just *models.Justification) ([]byte, time.Duration, error) {
	raw, err := json.Marshal(just)
	if err != nil {
		return nil, 0, fmt.Errorf("score cache encode: %w", err)
	}
	return raw, just.Score.ValidUntil.Sub(r.now()), nil
}

func (r *Redis) InvalidateEntity(ctx context.Context, tenantID id.TenantID, entityID id.EntityID) error {
	if err := r.client.Del(ctx, scoreKey(tenantID, entityID)).Err(); err != nil {
		return fmt.Errorf("score cache invalidate: %w", err)
	}
	return nil
}

// InvalidateTenant scans rather than tracking a key set; tenant-wide
// invalidation only happens on constraint changes and forced recalculations.
func (r *Redis) InvalidateTenant(ctx context.Context, tenantID id.TenantID) error {
	iter := r.client.Scan(ctx, 0, tenantPattern(tenantID), 256).Iterator()
	pipe := r.client.Pipeline()
	for iter.Next(ctx) {
		pipe.Del(ctx, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("score cache scan: %w", err)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("score cache tenant invalidate: %w", err)
	}
	return nil
}
