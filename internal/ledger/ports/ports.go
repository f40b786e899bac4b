package ports

import (
	"context"
	"time"

	"riskgraph/internal/ledger/models"
	id "riskgraph/pkg/domain"
)

// Store persists ledger entries and maintains the current projection.
// Appends are atomic per call: either every entry lands and the projection
// reflects it, or nothing does.
type Store interface {
	// Append records entries and updates the current projection for each
	// touched entity in one atomic step.
	Append(ctx context.Context, tenantID id.TenantID, entries []*models.Entry) error
	// Current returns the projection for one entity, or sentinel.ErrNotFound
	// if it has never been scored.
	Current(ctx context.Context, tenantID id.TenantID, entityID id.EntityID) (*models.Current, error)
	// ListCurrent returns the projection for every scored entity.
	ListCurrent(ctx context.Context, tenantID id.TenantID) ([]*models.Current, error)
	// History returns the entity's entries newest-first, bounded by limit.
	History(ctx context.Context, tenantID id.TenantID, entityID id.EntityID, limit int) ([]*models.Entry, error)
	// HistorySince returns all tenant entries recorded at or after the cutoff,
	// oldest-first. Trend aggregation reads through this.
	HistorySince(ctx context.Context, tenantID id.TenantID, since time.Time) ([]*models.Entry, error)
}
