// Package handler exposes the risk surface over HTTP: summaries, trends,
// per-entity scores with justifications, recalculation, and overrides.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	ledgermodels "riskgraph/internal/ledger/models"
	ledgerservice "riskgraph/internal/ledger/service"
	"riskgraph/internal/recalc"
	"riskgraph/internal/scoring/cache"
	"riskgraph/internal/scoring/metrics"
	"riskgraph/internal/scoring/models"
	id "riskgraph/pkg/domain"
	dErrors "riskgraph/pkg/domain-errors"
	"riskgraph/pkg/platform/httputil"
	"riskgraph/pkg/requestcontext"
)

// Ledger is the score-ledger surface the handler needs.
type Ledger interface {
	Current(ctx context.Context, tenantID id.TenantID, entityID id.EntityID) (*ledgermodels.Current, error)
	History(ctx context.Context, tenantID id.TenantID, entityID id.EntityID, limit int) ([]*ledgermodels.Entry, error)
	Override(ctx context.Context, tenantID id.TenantID, entityID id.EntityID, score float64, reason string) (*ledgermodels.Current, error)
	Summarize(ctx context.Context, tenantID id.TenantID, topN int) (*ledgerservice.Summary, error)
	Trends(ctx context.Context, tenantID id.TenantID, window time.Duration) ([]ledgerservice.TrendPoint, error)
}

// Recalculator triggers scoring passes.
type Recalculator interface {
	Recalculate(ctx context.Context, tenantID id.TenantID, entityIDs []id.EntityID, force bool) (*recalc.Result, error)
}

type Handler struct {
	ledger  Ledger
	recalc  Recalculator
	cache   cache.Cache
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func New(ledger Ledger, recalculator Recalculator, scoreCache cache.Cache, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		ledger:  ledger,
		recalc:  recalculator,
		cache:   scoreCache,
		logger:  logger,
		metrics: m,
	}
}

// Register mounts the risk routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/risks", func(r chi.Router) {
		r.Get("/summary", h.handleSummary)
		r.Get("/trends", h.handleTrends)
		r.Post("/calculate", h.handleCalculate)
		r.Get("/entity/{entityID}", h.handleEntityScore)
		r.Get("/entity/{entityID}/history", h.handleEntityHistory)
		r.Get("/entity/{entityID}/justification", h.handleEntityJustification)
		r.Post("/justification/{entityID}/override", h.handleOverride)
	})
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	topN := 0
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "top must be a non-negative integer"))
			return
		}
		topN = n
	}
	summary, err := h.ledger.Summarize(ctx, requestcontext.TenantID(ctx), topN)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleTrends(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 365 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "days must be within [1,365]"))
			return
		}
		days = n
	}
	points, err := h.ledger.Trends(ctx, requestcontext.TenantID(ctx), time.Duration(days)*24*time.Hour)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"trends": points, "days": days})
}

// CalculateRequest triggers a scoring pass. An empty entity_ids list scores
// the whole graph; force_recalculate bypasses score validity windows.
type CalculateRequest struct {
	EntityIDs        []string `json:"entity_ids,omitempty"`
	ForceRecalculate bool     `json:"force_recalculate,omitempty"`
}

func (h *Handler) handleCalculate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.Decode[CalculateRequest](r, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var entityIDs []id.EntityID
	for _, raw := range req.EntityIDs {
		entityID, err := id.ParseEntityID(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid entity id"))
			return
		}
		entityIDs = append(entityIDs, entityID)
	}

	result, err := h.recalc.Recalculate(ctx, requestcontext.TenantID(ctx), entityIDs, req.ForceRecalculate)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// scoreResponse is the read shape for an entity score: the effective record,
// plus the override metadata when one shadows the computed value.
type scoreResponse struct {
	models.RiskScore
	Override *models.Override `json:"override_info,omitempty"`
}

func newScoreResponse(just *models.Justification) scoreResponse {
	return scoreResponse{
		RiskScore: just.EffectiveRiskScore(models.DefaultThresholds()),
		Override:  just.Override,
	}
}

// handleEntityScore serves the current effective score, preferring the cache.
// A cache miss or error falls through to the ledger projection. An active
// override shadows the computed value until the next recalculation.
func (h *Handler) handleEntityScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := requestcontext.TenantID(ctx)
	entityID, err := id.ParseEntityID(chi.URLParam(r, "entityID"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid entity id"))
		return
	}

	if h.cache != nil {
		cached, err := h.cache.Get(ctx, tenantID, entityID)
		if err != nil {
			h.logger.WarnContext(ctx, "score cache read failed", "entity_id", entityID, "error", err)
		} else if cached != nil {
			h.metrics.IncrementCacheHits()
			httputil.WriteJSON(w, http.StatusOK, newScoreResponse(cached))
			return
		}
		h.metrics.IncrementCacheMisses()
	}

	cur, err := h.ledger.Current(ctx, tenantID, entityID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newScoreResponse(cur.Justification))
}

func (h *Handler) handleEntityHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entityID, err := id.ParseEntityID(chi.URLParam(r, "entityID"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid entity id"))
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be within [1,1000]"))
			return
		}
		limit = n
	}
	entries, err := h.ledger.History(ctx, requestcontext.TenantID(ctx), entityID, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"history": entries, "count": len(entries)})
}

// handleEntityJustification serves the full factor breakdown behind the
// current score, always from the ledger so overrides are visible.
func (h *Handler) handleEntityJustification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entityID, err := id.ParseEntityID(chi.URLParam(r, "entityID"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid entity id"))
		return
	}
	cur, err := h.ledger.Current(ctx, requestcontext.TenantID(ctx), entityID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cur.Justification)
}

// OverrideRequest replaces a computed score with a manual value. The reason
// is mandatory and lands in the audit trail.
type OverrideRequest struct {
	NewScore float64 `json:"new_score"`
	Reason   string  `json:"reason"`
}

func (h *Handler) handleOverride(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := requestcontext.TenantID(ctx)
	entityID, err := id.ParseEntityID(chi.URLParam(r, "entityID"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid entity id"))
		return
	}
	req, err := httputil.Decode[OverrideRequest](r, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	cur, err := h.ledger.Override(ctx, tenantID, entityID, req.NewScore, req.Reason)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	// Refresh the cache with the overridden justification so reads serve
	// the override immediately. Invalidate first: a refresh that skips an
	// already-expired entry must not leave the stale one behind.
	if h.cache != nil {
		if err := h.cache.InvalidateEntity(ctx, tenantID, entityID); err != nil && !errors.Is(err, context.Canceled) {
			h.logger.WarnContext(ctx, "score cache invalidation failed", "entity_id", entityID, "error", err)
		} else if err := h.cache.Set(ctx, tenantID, cur.Justification); err != nil && !errors.Is(err, context.Canceled) {
			h.logger.WarnContext(ctx, "score cache refresh failed", "entity_id", entityID, "error", err)
		}
	}
	httputil.WriteJSON(w, http.StatusOK, cur.Justification)
}
