// Package cache holds computed justifications between recalculations so reads
// never pay for a graph traversal. Entries expire with the score's validity
// window and are invalidated eagerly on graph writes.
package cache

import (
	"context"

	"riskgraph/internal/scoring/models"
	id "riskgraph/pkg/domain"
)

// Cache is the score cache contract. Get returns nil with no error on a miss;
// expiry is the store's concern, driven by the score's valid_until.
type Cache interface {
	Get(ctx context.Context, tenantID id.TenantID, entityID id.EntityID) (*models.Justification, error)
	Set(ctx context.Context, tenantID id.TenantID, just *models.Justification) error
	SetBatch(ctx context.Context, tenantID id.TenantID, justs []*models.Justification) error

	InvalidateEntity(ctx context.Context, tenantID id.TenantID, entityID id.EntityID) error
	InvalidateTenant(ctx context.Context, tenantID id.TenantID) error
}
