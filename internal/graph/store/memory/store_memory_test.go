package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskgraph/internal/graph/models"
	"riskgraph/internal/graph/ports"
	id "riskgraph/pkg/domain"
	"riskgraph/pkg/platform/sentinel"
)

func storedEntity(entityType models.EntityType, name string) *models.Entity {
	return &models.Entity{
		ID:          id.NewEntityID(),
		Type:        entityType,
		Name:        name,
		Status:      models.EntityStatusActive,
		CountryCode: "NL",
		Category:    "logistics",
		Criticality: 3,
	}
}

func TestEntityRoundTrip(t *testing.T) {
	store := New()
	ctx := context.Background()
	tenantID := id.NewTenantID()

	_, err := store.GetEntity(ctx, tenantID, id.NewEntityID())
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	vendor := storedEntity(models.EntityTypeVendor, "acme")
	require.NoError(t, store.UpsertEntity(ctx, tenantID, vendor))

	got, err := store.GetEntity(ctx, tenantID, vendor.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme", got.Name)

	// Reads hand out copies; mutating one must not leak into the store.
	got.Name = "mutated"
	again, err := store.GetEntity(ctx, tenantID, vendor.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme", again.Name)

	vendor.Status = models.EntityStatusArchived
	require.NoError(t, store.UpsertEntity(ctx, tenantID, vendor))

	list, err := store.ListEntities(ctx, tenantID, ports.EntityFilter{Status: models.EntityStatusArchived})
	require.NoError(t, err)
	require.Len(t, list, 1)

	list, err = store.ListEntities(ctx, tenantID, ports.EntityFilter{Type: models.EntityTypeTeam})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDependencyDirections(t *testing.T) {
	store := New()
	ctx := context.Background()
	tenantID := id.NewTenantID()

	a := storedEntity(models.EntityTypeVendor, "a")
	b := storedEntity(models.EntityTypeOrganization, "b")
	require.NoError(t, store.UpsertEntity(ctx, tenantID, a))
	require.NoError(t, store.UpsertEntity(ctx, tenantID, b))

	dep := &models.Dependency{
		ID:             id.NewDependencyID(),
		SourceEntityID: a.ID,
		TargetEntityID: b.ID,
		Type:           models.DependencySupplies,
		Layer:          models.LayerSupplyChain,
		Strength:       0.8,
	}
	require.NoError(t, store.UpsertDependency(ctx, tenantID, dep))

	out, err := store.ListDependencies(ctx, tenantID, a.ID, models.DirectionOutbound)
	require.NoError(t, err)
	require.Len(t, out, 1)

	in, err := store.ListDependencies(ctx, tenantID, a.ID, models.DirectionInbound)
	require.NoError(t, err)
	assert.Empty(t, in)

	both, err := store.ListDependencies(ctx, tenantID, b.ID, models.DirectionBoth)
	require.NoError(t, err)
	require.Len(t, both, 1)

	require.NoError(t, store.DeleteDependency(ctx, tenantID, dep.ID))
	require.ErrorIs(t, store.DeleteDependency(ctx, tenantID, dep.ID), sentinel.ErrNotFound)
}

func TestSnapshotIsolation(t *testing.T) {
	store := New()
	ctx := context.Background()
	tenantID := id.NewTenantID()

	a := storedEntity(models.EntityTypeVendor, "a")
	b := storedEntity(models.EntityTypeVessel, "b")
	require.NoError(t, store.UpsertEntity(ctx, tenantID, a))
	require.NoError(t, store.UpsertEntity(ctx, tenantID, b))
	require.NoError(t, store.UpsertDependency(ctx, tenantID, &models.Dependency{
		ID:             id.NewDependencyID(),
		SourceEntityID: a.ID,
		TargetEntityID: b.ID,
		Type:           models.DependencyDependsOn,
		Layer:          models.LayerSupplyChain,
		Strength:       0.5,
	}))

	snap, err := store.Snapshot(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.EntityCount())
	assert.Len(t, snap.Outbound(a.ID), 1)
	assert.Len(t, snap.Inbound(b.ID), 1)

	// Writes after the snapshot must not show through it.
	c := storedEntity(models.EntityTypeOrganization, "c")
	require.NoError(t, store.UpsertEntity(ctx, tenantID, c))
	assert.Equal(t, 2, snap.EntityCount())
	assert.Nil(t, snap.Entity(c.ID))

	// An unknown tenant gets an empty snapshot, not an error.
	empty, err := store.Snapshot(ctx, id.NewTenantID())
	require.NoError(t, err)
	assert.Equal(t, 0, empty.EntityCount())
}
