//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskgraph/internal/ledger/models"
	scoringmodels "riskgraph/internal/scoring/models"
	id "riskgraph/pkg/domain"
	"riskgraph/pkg/platform/sentinel"
	"riskgraph/pkg/testutil/containers"
)

func computedEntry(entityID id.EntityID, score float64, at time.Time) *models.Entry {
	return &models.Entry{
		ID:       uuid.New(),
		EntityID: entityID,
		Kind:     models.EntryJustificationComputed,
		Justification: &scoringmodels.Justification{
			EntityID: entityID,
			Score: scoringmodels.RiskScore{
				EntityID:     entityID,
				OverallScore: score,
				RiskLevel:    scoringmodels.DefaultThresholds().Level(score),
				CalculatedAt: at,
				ValidUntil:   at.Add(time.Hour),
			},
			ConfidenceLevel: 1.0,
		},
		RecordedAt: at,
	}
}

func TestStoreAppendAndProject(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	ctx := context.Background()

	store := New(pg.DB)
	require.NoError(t, store.Migrate(ctx))

	tenantID := id.NewTenantID()
	entityID := id.NewEntityID()
	base := time.Now().UTC().Truncate(time.Microsecond)

	_, err := store.Current(ctx, tenantID, entityID)
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	require.NoError(t, store.Append(ctx, tenantID, []*models.Entry{
		computedEntry(entityID, 42, base),
	}))

	cur, err := store.Current(ctx, tenantID, entityID)
	require.NoError(t, err)
	assert.Equal(t, entityID, cur.EntityID)
	assert.InDelta(t, 42, cur.Justification.Score.OverallScore, 0.001)
	assert.Nil(t, cur.Justification.Override)

	// Apply an override; the projection folds it into override_info.
	require.NoError(t, store.Append(ctx, tenantID, []*models.Entry{{
		ID:       uuid.New(),
		EntityID: entityID,
		Kind:     models.EntryOverrideApplied,
		Override: &scoringmodels.Override{
			Score:     77,
			Reason:    "regulator finding",
			Author:    "analyst@example.com",
			Timestamp: base.Add(time.Minute),
		},
		RecordedAt: base.Add(time.Minute),
	}}))

	cur, err = store.Current(ctx, tenantID, entityID)
	require.NoError(t, err)
	require.NotNil(t, cur.Justification.Override)
	assert.InDelta(t, 77, cur.Justification.Override.Score, 0.001)
	assert.InDelta(t, 77, cur.EffectiveScore(), 0.001)

	// Clearing removes override_info without touching the computed score.
	require.NoError(t, store.Append(ctx, tenantID, []*models.Entry{{
		ID:         uuid.New(),
		EntityID:   entityID,
		Kind:       models.EntryOverrideCleared,
		RecordedAt: base.Add(2 * time.Minute),
	}}))

	cur, err = store.Current(ctx, tenantID, entityID)
	require.NoError(t, err)
	assert.Nil(t, cur.Justification.Override)
	assert.InDelta(t, 42, cur.EffectiveScore(), 0.001)

	history, err := store.History(ctx, tenantID, entityID, 10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, models.EntryOverrideCleared, history[0].Kind)
	assert.Equal(t, models.EntryJustificationComputed, history[2].Kind)

	since, err := store.HistorySince(ctx, tenantID, base.Add(30*time.Second))
	require.NoError(t, err)
	require.Len(t, since, 2)
	assert.Equal(t, models.EntryOverrideApplied, since[0].Kind)
}

func TestStoreTenantIsolation(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	ctx := context.Background()

	store := New(pg.DB)
	require.NoError(t, store.Migrate(ctx))

	tenantA := id.NewTenantID()
	tenantB := id.NewTenantID()
	entityID := id.NewEntityID()
	now := time.Now().UTC()

	require.NoError(t, store.Append(ctx, tenantA, []*models.Entry{
		computedEntry(entityID, 10, now),
	}))

	_, err := store.Current(ctx, tenantB, entityID)
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	list, err := store.ListCurrent(ctx, tenantB)
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = store.ListCurrent(ctx, tenantA)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
