package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ledgermemory "riskgraph/internal/ledger/store/memory"
	scoringmetrics "riskgraph/internal/scoring/metrics"
	scoringmodels "riskgraph/internal/scoring/models"
	id "riskgraph/pkg/domain"
	dErrors "riskgraph/pkg/domain-errors"
	"riskgraph/pkg/platform/audit"
	"riskgraph/pkg/platform/audit/publisher"
	auditmemory "riskgraph/pkg/platform/audit/store/memory"
	"riskgraph/pkg/requestcontext"
)

var ledgerMetrics = scoringmetrics.New()

func newTestService(t *testing.T) (*Service, *auditmemory.Store) {
	t.Helper()
	sink := auditmemory.New()
	return New(ledgermemory.New(), publisher.NewDirect(sink), slog.Default(), ledgerMetrics), sink
}

func testContext(now time.Time) context.Context {
	ctx := requestcontext.WithActor(context.Background(), "analyst@example.com")
	return requestcontext.WithTime(ctx, now)
}

func computedJustification(entityID id.EntityID, score float64, at time.Time) *scoringmodels.Justification {
	return &scoringmodels.Justification{
		EntityID: entityID,
		Score: scoringmodels.RiskScore{
			EntityID:     entityID,
			OverallScore: score,
			RiskLevel:    scoringmodels.DefaultThresholds().Level(score),
			CalculatedAt: at,
			ValidUntil:   at.Add(time.Hour),
		},
		ConfidenceLevel: 1,
	}
}

func TestOverride(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := testContext(now)

	t.Run("overriding an unscored entity is not found", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Override(ctx, id.NewTenantID(), id.NewEntityID(), 80, "ops incident")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("reason is mandatory", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Override(ctx, id.NewTenantID(), id.NewEntityID(), 80, "")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("score outside the scale is rejected", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Override(ctx, id.NewTenantID(), id.NewEntityID(), 101, "typo")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("override shadows the computed score and is audited", func(t *testing.T) {
		svc, sink := newTestService(t)
		tenantID := id.NewTenantID()
		entityID := id.NewEntityID()

		_, err := svc.CommitBatch(ctx, tenantID, []*scoringmodels.Justification{
			computedJustification(entityID, 30, now),
		})
		require.NoError(t, err)

		cur, err := svc.Override(ctx, tenantID, entityID, 85, "regulator inquiry pending")
		require.NoError(t, err)
		require.NotNil(t, cur.Justification.Override)
		assert.Equal(t, 85.0, cur.EffectiveScore())
		assert.Equal(t, 30.0, cur.Justification.Score.OverallScore)
		assert.Equal(t, "analyst@example.com", cur.Justification.Override.Author)

		events := sink.Events()
		require.Len(t, events, 1)
		assert.Equal(t, audit.ActionOverride, events[0].Action)
		assert.Equal(t, entityID.String(), events[0].ResourceID)
	})
}

func TestCommitBatch(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := testContext(now)

	t.Run("recalculation clears active overrides and reports the count", func(t *testing.T) {
		svc, _ := newTestService(t)
		tenantID := id.NewTenantID()
		overridden := id.NewEntityID()
		plain := id.NewEntityID()

		_, err := svc.CommitBatch(ctx, tenantID, []*scoringmodels.Justification{
			computedJustification(overridden, 30, now),
			computedJustification(plain, 50, now),
		})
		require.NoError(t, err)

		_, err = svc.Override(ctx, tenantID, overridden, 90, "temporary pin")
		require.NoError(t, err)

		later := testContext(now.Add(time.Hour))
		cleared, err := svc.CommitBatch(later, tenantID, []*scoringmodels.Justification{
			computedJustification(overridden, 35, now.Add(time.Hour)),
			computedJustification(plain, 55, now.Add(time.Hour)),
		})
		require.NoError(t, err)
		assert.Equal(t, 1, cleared)

		cur, err := svc.Current(later, tenantID, overridden)
		require.NoError(t, err)
		assert.Nil(t, cur.Justification.Override)
		assert.Equal(t, 35.0, cur.EffectiveScore())
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		svc, _ := newTestService(t)
		cleared, err := svc.CommitBatch(ctx, id.NewTenantID(), nil)
		require.NoError(t, err)
		assert.Zero(t, cleared)
	})
}

func TestHistory(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := testContext(now)
	svc, _ := newTestService(t)
	tenantID := id.NewTenantID()
	entityID := id.NewEntityID()

	_, err := svc.CommitBatch(ctx, tenantID, []*scoringmodels.Justification{
		computedJustification(entityID, 30, now),
	})
	require.NoError(t, err)
	_, err = svc.Override(ctx, tenantID, entityID, 70, "watchlist hit")
	require.NoError(t, err)

	t.Run("chronological with every kind recorded", func(t *testing.T) {
		entries, err := svc.History(ctx, tenantID, entityID, 10)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "justification_computed", string(entries[0].Kind))
		assert.Equal(t, "override_applied", string(entries[1].Kind))
		assert.False(t, entries[1].RecordedAt.Before(entries[0].RecordedAt))
	})

	t.Run("unscored entity is not found", func(t *testing.T) {
		_, err := svc.History(ctx, tenantID, id.NewEntityID(), 10)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestSummarizeAndTrends(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := testContext(now)
	svc, _ := newTestService(t)
	tenantID := id.NewTenantID()

	high := id.NewEntityID()
	medium := id.NewEntityID()
	low := id.NewEntityID()
	_, err := svc.CommitBatch(ctx, tenantID, []*scoringmodels.Justification{
		computedJustification(high, 80, now),
		computedJustification(medium, 40, now),
		computedJustification(low, 5, now),
	})
	require.NoError(t, err)
	_, err = svc.Override(ctx, tenantID, low, 20, "pending review")
	require.NoError(t, err)

	t.Run("summary counts levels and overrides", func(t *testing.T) {
		summary, err := svc.Summarize(ctx, tenantID, 2)
		require.NoError(t, err)
		assert.Equal(t, 3, summary.TotalEntities)
		assert.Equal(t, 1, summary.ByLevel[scoringmodels.RiskLevelCritical])
		assert.Equal(t, 1, summary.ByLevel[scoringmodels.RiskLevelMedium])
		assert.Equal(t, 1, summary.OverrideCount)
		// Effective scores: 80, 40, 20 (override).
		assert.InDelta(t, (80.0+40.0+20.0)/3, summary.AverageScore, 0.001)
		require.Len(t, summary.HighestRisk, 2)
		assert.Equal(t, high, summary.HighestRisk[0].EntityID)
	})

	t.Run("trends bucket by day", func(t *testing.T) {
		points, err := svc.Trends(ctx, tenantID, 7*24*time.Hour)
		require.NoError(t, err)
		require.Len(t, points, 1)
		assert.Equal(t, "2026-03-01", points[0].Date)
		assert.Equal(t, 3, points[0].Computations)
		assert.Equal(t, 1, points[0].Overrides)
		assert.InDelta(t, (80.0+40.0+5.0)/3, points[0].AverageScore, 0.001)
	})
}
