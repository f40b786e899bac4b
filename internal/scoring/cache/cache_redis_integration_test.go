//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskgraph/internal/scoring/models"
	id "riskgraph/pkg/domain"
	"riskgraph/pkg/testutil/containers"
)

func validJustification(entityID id.EntityID, score float64) *models.Justification {
	now := time.Now().UTC()
	return &models.Justification{
		EntityID: entityID,
		Score: models.RiskScore{
			EntityID:     entityID,
			OverallScore: score,
			RiskLevel:    models.DefaultThresholds().Level(score),
			CalculatedAt: now,
			ValidUntil:   now.Add(time.Hour),
		},
		ConfidenceLevel: 1.0,
	}
}

func TestRedisCacheRoundTrip(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()

	c := NewRedis(rc.Client)
	tenantID := id.NewTenantID()
	entityID := id.NewEntityID()

	got, err := c.Get(ctx, tenantID, entityID)
	require.NoError(t, err)
	assert.Nil(t, got, "miss returns nil without error")

	require.NoError(t, c.Set(ctx, tenantID, validJustification(entityID, 61)))

	got, err = c.Get(ctx, tenantID, entityID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.InDelta(t, 61, got.Score.OverallScore, 0.001)
	assert.Equal(t, models.RiskLevelHigh, got.Score.RiskLevel)

	require.NoError(t, c.InvalidateEntity(ctx, tenantID, entityID))
	got, err = c.Get(ctx, tenantID, entityID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisCacheTenantInvalidation(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()

	c := NewRedis(rc.Client)
	tenantA := id.NewTenantID()
	tenantB := id.NewTenantID()

	entities := []id.EntityID{id.NewEntityID(), id.NewEntityID(), id.NewEntityID()}
	var justs []*models.Justification
	for _, entityID := range entities {
		justs = append(justs, validJustification(entityID, 30))
	}
	require.NoError(t, c.SetBatch(ctx, tenantA, justs))
	require.NoError(t, c.Set(ctx, tenantB, validJustification(entities[0], 90)))

	require.NoError(t, c.InvalidateTenant(ctx, tenantA))

	for _, entityID := range entities {
		got, err := c.Get(ctx, tenantA, entityID)
		require.NoError(t, err)
		assert.Nil(t, got)
	}

	// The other tenant's entry survives.
	got, err := c.Get(ctx, tenantB, entities[0])
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.InDelta(t, 90, got.Score.OverallScore, 0.001)
}
