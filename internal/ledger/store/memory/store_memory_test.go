package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskgraph/internal/ledger/models"
	scoringmodels "riskgraph/internal/scoring/models"
	id "riskgraph/pkg/domain"
	"riskgraph/pkg/platform/sentinel"
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
				CalculatedAt: at,
				ValidUntil:   at.Add(time.Hour),
			},
			ConfidenceLevel: 1,
		},
		RecordedAt: at,
	}
}

func TestStoreProjection(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("unknown entity is not found", func(t *testing.T) {
		s := New()
		_, err := s.Current(ctx, id.NewTenantID(), id.NewEntityID())
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("latest computed entry wins", func(t *testing.T) {
		s := New()
		tenantID := id.NewTenantID()
		entityID := id.NewEntityID()

		require.NoError(t, s.Append(ctx, tenantID, []*models.Entry{
			computedEntry(entityID, 10, now),
			computedEntry(entityID, 20, now.Add(time.Hour)),
		}))

		cur, err := s.Current(ctx, tenantID, entityID)
		require.NoError(t, err)
		assert.Equal(t, 20.0, cur.Justification.Score.OverallScore)
	})

	t.Run("returned projection is a copy", func(t *testing.T) {
		s := New()
		tenantID := id.NewTenantID()
		entityID := id.NewEntityID()
		require.NoError(t, s.Append(ctx, tenantID, []*models.Entry{computedEntry(entityID, 10, now)}))

		cur, err := s.Current(ctx, tenantID, entityID)
		require.NoError(t, err)
		cur.Justification.Score.OverallScore = 99

		again, err := s.Current(ctx, tenantID, entityID)
		require.NoError(t, err)
		assert.Equal(t, 10.0, again.Justification.Score.OverallScore)
	})

	t.Run("history respects the limit", func(t *testing.T) {
		s := New()
		tenantID := id.NewTenantID()
		entityID := id.NewEntityID()
		for i := 0; i < 5; i++ {
			require.NoError(t, s.Append(ctx, tenantID, []*models.Entry{
				computedEntry(entityID, float64(i), now.Add(time.Duration(i)*time.Minute)),
			}))
		}

		entries, err := s.History(ctx, tenantID, entityID, 3)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, 4.0, entries[0].Justification.Score.OverallScore)
	})
}

func TestStoreConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New()
	tenantID := id.NewTenantID()

	const writers = 16
	var wg sync.WaitGroup
	entityIDs := make([]id.EntityID, writers)
	for i := range entityIDs {
		entityIDs[i] = id.NewEntityID()
	}
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(entityID id.EntityID) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = s.Append(ctx, tenantID, []*models.Entry{
					computedEntry(entityID, float64(j), now.Add(time.Duration(j)*time.Second)),
				})
			}
		}(entityIDs[i])
	}
	wg.Wait()

	current, err := s.ListCurrent(ctx, tenantID)
	require.NoError(t, err)
	assert.Len(t, current, writers)
	for _, cur := range current {
		assert.Equal(t, 19.0, cur.Justification.Score.OverallScore)
	}
}
