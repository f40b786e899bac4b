// Package recalc coordinates full-tenant risk recalculations: one snapshot,
// a bounded worker pool scoring every active entity, and an atomic commit of
// the resulting justifications.
package recalc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	graphmodels "riskgraph/internal/graph/models"
	graphports "riskgraph/internal/graph/ports"
	"riskgraph/internal/ledger/service"
	"riskgraph/internal/scoring"
	"riskgraph/internal/scoring/cache"
	scoringmodels "riskgraph/internal/scoring/models"
	id "riskgraph/pkg/domain"
	dErrors "riskgraph/pkg/domain-errors"
	"riskgraph/pkg/platform/audit"
	"riskgraph/pkg/platform/audit/publisher"
	"riskgraph/pkg/requestcontext"
)

var tracer = otel.Tracer("riskgraph.recalc")

// Result summarizes one completed recalculation.
type Result struct {
	TenantID         id.TenantID   `json:"tenant_id"`
	EntitiesScored   int           `json:"entities_scored"`
	EntitiesSkipped  int           `json:"entities_skipped"`
	OverridesCleared int           `json:"overrides_cleared"`
	Duration         time.Duration `json:"duration"`
	StartedAt        time.Time     `json:"started_at"`
}

// Coordinator runs at most one recalculation per tenant at a time. A second
// request while one is in flight is rejected, not queued; the caller retries
// once the running pass lands.
type Coordinator struct {
	graph   graphports.Store
	engine  *scoring.Engine
	configs *scoring.ConfigStore
	cache   cache.Cache
	ledger  *service.Service
	audit   publisher.Publisher
	logger  *slog.Logger
	metrics *Metrics
	workers int
	timeout time.Duration

	mu       sync.Mutex
	inFlight map[id.TenantID]bool
}

func New(graph graphports.Store, engine *scoring.Engine, configs *scoring.ConfigStore, scoreCache cache.Cache, ledger *service.Service, auditPub publisher.Publisher, logger *slog.Logger, m *Metrics, workers int, timeout time.Duration) *Coordinator {
	if workers <= 0 {
		workers = 4
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Coordinator{
		graph:    graph,
		engine:   engine,
		configs:  configs,
		cache:    scoreCache,
		ledger:   ledger,
		audit:    auditPub,
		logger:   logger,
		metrics:  m,
		workers:  workers,
		timeout:  timeout,
		inFlight: make(map[id.TenantID]bool),
	}
}

// Recalculate scores the tenant's active entities. A non-empty entityIDs
// restricts the pass to that subset; nil means the whole graph. With force
// set, entities whose current score is still within its validity window are
// recalculated anyway; otherwise they are skipped.
func (c *Coordinator) Recalculate(ctx context.Context, tenantID id.TenantID, entityIDs []id.EntityID, force bool) (*Result, error) {
	if !c.acquire(tenantID) {
		c.metrics.IncrementRejected()
		return nil, dErrors.Newf(dErrors.CodeRecalculationInProgress, "recalculation already running for tenant %s", tenantID)
	}
	defer c.release(tenantID)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "recalc.Recalculate",
		trace.WithAttributes(
			attribute.String("tenant_id", tenantID.String()),
			attribute.Bool("force", force),
		),
	)
	defer span.End()

	started := requestcontext.Now(ctx)
	result, err := c.run(ctx, tenantID, entityIDs, force, started)
	if err != nil {
		c.metrics.IncrementFailed()
		return nil, translateCtxErr(err)
	}
	result.Duration = time.Since(started)
	span.SetAttributes(
		attribute.Int("entities_scored", result.EntitiesScored),
		attribute.Int("entities_skipped", result.EntitiesSkipped),
	)
	c.metrics.ObserveRun(result.EntitiesScored, result.Duration)
	c.emit(ctx, tenantID, result)

	c.logger.InfoContext(ctx, "recalculation complete",
		"tenant_id", tenantID,
		"scored", result.EntitiesScored,
		"skipped", result.EntitiesSkipped,
		"overrides_cleared", result.OverridesCleared,
		"duration", result.Duration,
	)
	return result, nil
}

func (c *Coordinator) run(ctx context.Context, tenantID id.TenantID, entityIDs []id.EntityID, force bool, started time.Time) (*Result, error) {
	snap, err := c.graph.Snapshot(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "snapshot graph")
	}
	cfg := c.configs.Get(tenantID)

	targets, skipped, err := c.selectTargets(ctx, tenantID, snap, entityIDs, force)
	if err != nil {
		return nil, err
	}

	// Score in parallel, commit once. Workers only compute; nothing is
	// persisted until every target has a justification.
	results := make([]*scoringmodels.Justification, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, entity := range targets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			just, err := c.engine.Score(snap, entity.ID, cfg)
			if err != nil {
				return err
			}
			results[i] = just
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	cleared, err := c.ledger.CommitBatch(ctx, tenantID, results)
	if err != nil {
		return nil, err
	}
	if err := c.cache.SetBatch(ctx, tenantID, results); err != nil {
		// The ledger is the source of truth; a failed cache write only
		// costs the next read a recomputation.
		c.logger.WarnContext(ctx, "score cache batch write failed", "tenant_id", tenantID, "error", err)
	}

	return &Result{
		TenantID:         tenantID,
		EntitiesScored:   len(targets),
		EntitiesSkipped:  skipped,
		OverridesCleared: cleared,
		StartedAt:        started,
	}, nil
}

// selectTargets picks the active entities to score. Without force, entities
// whose current score has not expired are skipped. An explicit entityIDs
// subset must reference entities present in the snapshot.
func (c *Coordinator) selectTargets(ctx context.Context, tenantID id.TenantID, snap *graphmodels.Snapshot, entityIDs []id.EntityID, force bool) ([]*graphmodels.Entity, int, error) {
	candidates := snap.Entities()
	if len(entityIDs) > 0 {
		candidates = candidates[:0:0]
		for _, entityID := range entityIDs {
			entity := snap.Entity(entityID)
			if entity == nil {
				return nil, 0, dErrors.Newf(dErrors.CodeNotFound, "entity %s not found", entityID)
			}
			candidates = append(candidates, entity)
		}
	}

	var targets []*graphmodels.Entity
	skipped := 0
	now := requestcontext.Now(ctx)
	for _, entity := range candidates {
		if entity.IsArchived() {
			continue
		}
		if !force {
			cur, err := c.ledger.Current(ctx, tenantID, entity.ID)
			if err != nil && !dErrors.HasCode(err, dErrors.CodeNotFound) {
				return nil, 0, err
			}
			if cur != nil && now.Before(cur.Justification.Score.ValidUntil) {
				skipped++
				continue
			}
		}
		targets = append(targets, entity)
	}
	return targets, skipped, nil
}

func (c *Coordinator) acquire(tenantID id.TenantID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight[tenantID] {
		return false
	}
	c.inFlight[tenantID] = true
	return true
}

func (c *Coordinator) release(tenantID id.TenantID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, tenantID)
}

func translateCtxErr(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "recalculation timed out")
	case errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeCancelled, "recalculation cancelled")
	default:
		return err
	}
}

func (c *Coordinator) emit(ctx context.Context, tenantID id.TenantID, result *Result) {
	after, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("encode recalculation audit payload", "error", err)
		return
	}
	event := audit.Event{
		Timestamp:    requestcontext.Now(ctx),
		TenantID:     tenantID,
		Actor:        requestcontext.Actor(ctx),
		Action:       audit.ActionRecalculate,
		ResourceType: "tenant_graph",
		ResourceID:   tenantID.String(),
		After:        after,
	}
	if err := c.audit.Emit(ctx, event); err != nil {
		c.logger.Error("emit audit event", "action", event.Action, "error", err)
	}
}
