// Package service owns the score ledger's write rules: overrides require an
// existing score and a reason, recalculated batches land atomically, and
// every override is audited.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"riskgraph/internal/ledger/models"
	"riskgraph/internal/ledger/ports"
	scoringmetrics "riskgraph/internal/scoring/metrics"
	scoringmodels "riskgraph/internal/scoring/models"
	id "riskgraph/pkg/domain"
	dErrors "riskgraph/pkg/domain-errors"
	"riskgraph/pkg/platform/audit"
	"riskgraph/pkg/platform/audit/publisher"
	"riskgraph/pkg/platform/sentinel"
	"riskgraph/pkg/requestcontext"
)

type Service struct {
	store   ports.Store
	audit   publisher.Publisher
	logger  *slog.Logger
	metrics *scoringmetrics.Metrics
}

func New(store ports.Store, auditPub publisher.Publisher, logger *slog.Logger, m *scoringmetrics.Metrics) *Service {
	return &Service{store: store, audit: auditPub, logger: logger, metrics: m}
}

// Current returns the latest justification for an entity, override included.
func (s *Service) Current(ctx context.Context, tenantID id.TenantID, entityID id.EntityID) (*models.Current, error) {
	cur, err := s.store.Current(ctx, tenantID, entityID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "entity %s has no recorded score", entityID)
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get current score")
	}
	return cur, nil
}

func (s *Service) ListCurrent(ctx context.Context, tenantID id.TenantID) ([]*models.Current, error) {
	out, err := s.store.ListCurrent(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list current scores")
	}
	return out, nil
}

// History returns the entity's most recent ledger entries in chronological
// order. The store fetches newest-first so the limit keeps the latest
// entries; the slice is reversed before returning.
func (s *Service) History(ctx context.Context, tenantID id.TenantID, entityID id.EntityID, limit int) ([]*models.Entry, error) {
	entries, err := s.store.History(ctx, tenantID, entityID, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "ledger history")
	}
	if len(entries) == 0 {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "entity %s has no recorded score", entityID)
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Override pins the entity's effective score to a manual value until the next
// recalculation. The entity must have been scored at least once; the reason
// is mandatory and lands in both the ledger and the audit trail.
func (s *Service) Override(ctx context.Context, tenantID id.TenantID, entityID id.EntityID, score float64, reason string) (*models.Current, error) {
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "override reason is required")
	}
	if score < 0 || score > 100 {
		return nil, dErrors.Newf(dErrors.CodeValidation, "override score %.2f outside [0, 100]", score)
	}

	cur, err := s.Current(ctx, tenantID, entityID)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	override := &scoringmodels.Override{
		Score:     score,
		Reason:    reason,
		Author:    requestcontext.Actor(ctx),
		Timestamp: now,
	}
	entry := &models.Entry{
		ID:         uuid.New(),
		TenantID:   tenantID,
		EntityID:   entityID,
		Kind:       models.EntryOverrideApplied,
		Override:   override,
		RecordedAt: now,
	}
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.Append(ctx, tenantID, []*models.Entry{entry}); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "append override")
	}

	cur.Justification.Override = override
	cur.UpdatedAt = now
	s.metrics.IncrementOverridesApplied()
	s.emitOverride(ctx, tenantID, entityID, cur.Justification.Score.OverallScore, override)
	return cur, nil
}

// CommitBatch lands a recalculation's justifications atomically. Any active
// override on a recalculated entity is cleared: a fresh computation always
// supersedes a manual pin. Returns how many overrides were cleared.
func (s *Service) CommitBatch(ctx context.Context, tenantID id.TenantID, justs []*scoringmodels.Justification) (int, error) {
	if len(justs) == 0 {
		return 0, nil
	}
	now := requestcontext.Now(ctx)

	cleared := 0
	entries := make([]*models.Entry, 0, len(justs))
	for _, just := range justs {
		cur, err := s.store.Current(ctx, tenantID, just.EntityID)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return 0, dErrors.Wrap(err, dErrors.CodeInternal, "check active override")
		}
		if cur != nil && cur.Justification.Override != nil {
			cleared++
			entries = append(entries, &models.Entry{
				ID:         uuid.New(),
				TenantID:   tenantID,
				EntityID:   just.EntityID,
				Kind:       models.EntryOverrideCleared,
				RecordedAt: now,
			})
		}
		entries = append(entries, &models.Entry{
			ID:            uuid.New(),
			TenantID:      tenantID,
			EntityID:      just.EntityID,
			Kind:          models.EntryJustificationComputed,
			Justification: just,
			RecordedAt:    now,
		})
	}

	if err := s.store.Append(ctx, tenantID, entries); err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "commit recalculation batch")
	}
	return cleared, nil
}

// Summary aggregates the tenant's current scores by risk level.
type Summary struct {
	TotalEntities int                             `json:"total_entities"`
	ByLevel       map[scoringmodels.RiskLevel]int `json:"by_level"`
	AverageScore  float64                         `json:"average_score"`
	OverrideCount int                             `json:"override_count"`
	HighestRisk   []*models.Current               `json:"highest_risk"`
}

// Summarize folds the current projection into level counts and the top
// scorers. topN bounds the highest-risk list.
func (s *Service) Summarize(ctx context.Context, tenantID id.TenantID, topN int) (*Summary, error) {
	current, err := s.ListCurrent(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if topN <= 0 {
		topN = 10
	}

	summary := &Summary{ByLevel: make(map[scoringmodels.RiskLevel]int)}
	var total float64
	for _, cur := range current {
		summary.TotalEntities++
		summary.ByLevel[cur.Justification.Score.RiskLevel]++
		total += cur.EffectiveScore()
		if cur.Justification.Override != nil {
			summary.OverrideCount++
		}
	}
	if summary.TotalEntities > 0 {
		summary.AverageScore = total / float64(summary.TotalEntities)
	}

	sort.Slice(current, func(i, j int) bool {
		return current[i].EffectiveScore() > current[j].EffectiveScore()
	})
	if len(current) > topN {
		current = current[:topN]
	}
	summary.HighestRisk = current
	return summary, nil
}

// TrendPoint is one day's aggregate of computed scores.
type TrendPoint struct {
	Date         string  `json:"date"`
	AverageScore float64 `json:"average_score"`
	Computations int     `json:"computations"`
	Overrides    int     `json:"overrides"`
}

// Trends buckets the tenant's ledger by calendar day (UTC) over the window.
func (s *Service) Trends(ctx context.Context, tenantID id.TenantID, window time.Duration) ([]TrendPoint, error) {
	since := requestcontext.Now(ctx).Add(-window)
	entries, err := s.store.HistorySince(ctx, tenantID, since)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "ledger trends")
	}

	type bucket struct {
		total        float64
		computations int
		overrides    int
	}
	buckets := make(map[string]*bucket)
	var days []string
	for _, entry := range entries {
		day := entry.RecordedAt.UTC().Format("2006-01-02")
		b, ok := buckets[day]
		if !ok {
			b = &bucket{}
			buckets[day] = b
			days = append(days, day)
		}
		switch entry.Kind {
		case models.EntryJustificationComputed:
			b.total += entry.Justification.Score.OverallScore
			b.computations++
		case models.EntryOverrideApplied:
			b.overrides++
		}
	}

	sort.Strings(days)
	out := make([]TrendPoint, 0, len(days))
	for _, day := range days {
		b := buckets[day]
		point := TrendPoint{Date: day, Computations: b.computations, Overrides: b.overrides}
		if b.computations > 0 {
			point.AverageScore = b.total / float64(b.computations)
		}
		out = append(out, point)
	}
	return out, nil
}

func (s *Service) emitOverride(ctx context.Context, tenantID id.TenantID, entityID id.EntityID, computedScore float64, override *scoringmodels.Override) {
	after, err := json.Marshal(override)
	if err != nil {
		s.logger.Error("encode override audit payload", "error", err)
		return
	}
	before, _ := json.Marshal(map[string]float64{"overall_score": computedScore})
	event := audit.Event{
		Timestamp:    requestcontext.Now(ctx),
		TenantID:     tenantID,
		Actor:        requestcontext.Actor(ctx),
		Action:       audit.ActionOverride,
		ResourceType: "risk_score",
		ResourceID:   entityID.String(),
		Before:       before,
		After:        after,
	}
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.Error("emit audit event", "action", event.Action, "error", err)
	}
}
