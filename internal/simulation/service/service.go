// Package service owns scenario and chain lifecycles: validation, the
// draft/running/completed transitions, the exclusive running guard, and audit
// emission. The engine itself stays pure.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	graphports "riskgraph/internal/graph/ports"
	"riskgraph/internal/scoring"
	"riskgraph/internal/simulation"
	"riskgraph/internal/simulation/metrics"
	"riskgraph/internal/simulation/models"
	"riskgraph/internal/simulation/ports"
	id "riskgraph/pkg/domain"
	dErrors "riskgraph/pkg/domain-errors"
	"riskgraph/pkg/platform/audit"
	"riskgraph/pkg/platform/audit/publisher"
	"riskgraph/pkg/platform/sentinel"
	"riskgraph/pkg/requestcontext"
)

var tracer = otel.Tracer("riskgraph.simulation")

type Service struct {
	store   ports.Store
	graph   graphports.Store
	engine  *simulation.Engine
	configs *scoring.ConfigStore
	audit   publisher.Publisher
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func New(store ports.Store, graph graphports.Store, engine *simulation.Engine, configs *scoring.ConfigStore, auditPub publisher.Publisher, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		store:   store,
		graph:   graph,
		engine:  engine,
		configs: configs,
		audit:   auditPub,
		logger:  logger,
		metrics: m,
	}
}

func (s *Service) GetScenario(ctx context.Context, tenantID id.TenantID, scenarioID id.ScenarioID) (*models.Scenario, error) {
	scenario, err := s.store.GetScenario(ctx, tenantID, scenarioID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "scenario %s not found", scenarioID)
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get scenario")
	}
	return scenario, nil
}

func (s *Service) ListScenarios(ctx context.Context, tenantID id.TenantID, status models.ScenarioStatus) ([]*models.Scenario, error) {
	scenarios, err := s.store.ListScenarios(ctx, tenantID, status)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list scenarios")
	}
	return scenarios, nil
}

// CreateScenario validates and stores a new draft. The trigger entity must
// exist in the live graph at creation time.
func (s *Service) CreateScenario(ctx context.Context, tenantID id.TenantID, scenario *models.Scenario) (*models.Scenario, error) {
	now := requestcontext.Now(ctx)
	scenario.ID = id.NewScenarioID()
	scenario.Status = models.ScenarioStatusDraft
	scenario.Results = nil
	scenario.CreatedAt = now
	scenario.UpdatedAt = now

	if err := scenario.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.graph.GetEntity(ctx, tenantID, scenario.TriggerEntityID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "trigger entity %s not found", scenario.TriggerEntityID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "check trigger entity")
	}
	if err := s.store.UpsertScenario(ctx, tenantID, scenario); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "store scenario")
	}
	return scenario, nil
}

// Run executes the scenario against a fresh snapshot. Rejects with
// ScenarioBusy while another run holds the running flag; any failure lands
// the scenario in failed with no partial results.
func (s *Service) Run(ctx context.Context, tenantID id.TenantID, scenarioID id.ScenarioID) (*models.Scenario, error) {
	acquired, err := s.store.TryMarkRunning(ctx, tenantID, scenarioID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "scenario %s not found", scenarioID)
	}
	if errors.Is(err, sentinel.ErrInvalidState) {
		return nil, dErrors.Newf(dErrors.CodeConflict, "scenario %s cannot run from its current status", scenarioID)
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "mark scenario running")
	}
	if !acquired {
		s.metrics.IncrementRejected()
		return nil, dErrors.Newf(dErrors.CodeScenarioBusy, "scenario %s is already running", scenarioID)
	}

	scenario, err := s.store.GetScenario(ctx, tenantID, scenarioID)
	if err != nil {
		// The running flag is already held; drop it or the scenario
		// stays stuck until a manual reset.
		if relErr := s.store.ReleaseRunning(ctx, tenantID, scenarioID, models.ScenarioStatusFailed); relErr != nil {
			s.logger.ErrorContext(ctx, "release running scenario", "scenario_id", scenarioID, "error", relErr)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load running scenario")
	}

	ctx, span := tracer.Start(ctx, "simulation.Run",
		trace.WithAttributes(
			attribute.String("scenario_id", scenarioID.String()),
			attribute.String("scenario_type", string(scenario.Type)),
		),
	)
	defer span.End()

	started := time.Now()
	results, runErr := s.execute(ctx, tenantID, scenario)
	if runErr != nil {
		scenario.Status = models.ScenarioStatusFailed
		scenario.UpdatedAt = requestcontext.Now(ctx)
		if storeErr := s.store.UpsertScenario(ctx, tenantID, scenario); storeErr != nil {
			s.logger.ErrorContext(ctx, "persist failed scenario", "scenario_id", scenarioID, "error", storeErr)
		}
		s.metrics.IncrementFailures()
		return nil, translateRunErr(runErr)
	}

	scenario.Status = models.ScenarioStatusCompleted
	scenario.Results = results
	scenario.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.UpsertScenario(ctx, tenantID, scenario); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist scenario results")
	}

	span.SetAttributes(attribute.Int("affected_entities", len(results.AffectedEntities)))
	s.metrics.ObserveRun(len(results.AffectedEntities), time.Since(started))
	s.emit(ctx, tenantID, audit.ActionScenarioRun, "scenario", scenarioID.String(), results)

	s.logger.InfoContext(ctx, "scenario run complete",
		"scenario_id", scenarioID,
		"affected", len(results.AffectedEntities),
		"total_risk_change", results.TotalRiskChange,
	)
	return scenario, nil
}

func (s *Service) execute(ctx context.Context, tenantID id.TenantID, scenario *models.Scenario) (*models.ScenarioResults, error) {
	snap, err := s.graph.Snapshot(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "snapshot graph")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	results, err := s.engine.Run(snap, scenario, s.configs.Get(tenantID), requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	// Cancellation after compute still discards: the caller asked us to stop.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Archive moves a completed scenario to its terminal state, attaching
// retrospective notes.
func (s *Service) Archive(ctx context.Context, tenantID id.TenantID, scenarioID id.ScenarioID, outcomeNotes, lessonsLearned string) (*models.Scenario, error) {
	scenario, err := s.GetScenario(ctx, tenantID, scenarioID)
	if err != nil {
		return nil, err
	}
	if !scenario.Archivable() {
		return nil, dErrors.Newf(dErrors.CodeConflict, "scenario %s must be completed before archiving", scenarioID)
	}
	scenario.Status = models.ScenarioStatusArchived
	scenario.OutcomeNotes = outcomeNotes
	scenario.LessonsLearned = lessonsLearned
	scenario.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.UpsertScenario(ctx, tenantID, scenario); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "archive scenario")
	}
	s.emit(ctx, tenantID, audit.ActionScenarioArchive, "scenario", scenarioID.String(), nil)
	return scenario, nil
}

func (s *Service) GetChain(ctx context.Context, tenantID id.TenantID, chainID id.ChainID) (*models.ScenarioChain, error) {
	chain, err := s.store.GetChain(ctx, tenantID, chainID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "scenario chain %s not found", chainID)
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get scenario chain")
	}
	return chain, nil
}

func (s *Service) ListChains(ctx context.Context, tenantID id.TenantID) ([]*models.ScenarioChain, error) {
	chains, err := s.store.ListChains(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list scenario chains")
	}
	return chains, nil
}

func (s *Service) CreateChain(ctx context.Context, tenantID id.TenantID, chain *models.ScenarioChain) (*models.ScenarioChain, error) {
	now := requestcontext.Now(ctx)
	chain.ID = id.NewChainID()
	chain.CreatedAt = now
	chain.UpdatedAt = now

	if err := chain.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.graph.GetEntity(ctx, tenantID, chain.TriggerEntityID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "trigger entity %s not found", chain.TriggerEntityID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "check trigger entity")
	}
	if err := s.store.UpsertChain(ctx, tenantID, chain); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "store scenario chain")
	}
	return chain, nil
}

// SimulateChain runs the chain against a fresh snapshot. Chains hold no
// running flag: simulations are pure reads and may overlap freely.
func (s *Service) SimulateChain(ctx context.Context, tenantID id.TenantID, chainID id.ChainID, maxDepth int) (*models.ChainSimulationResult, error) {
	chain, err := s.GetChain(ctx, tenantID, chainID)
	if err != nil {
		return nil, err
	}
	if chain.Archived {
		return nil, dErrors.Newf(dErrors.CodeConflict, "scenario chain %s is archived", chainID)
	}

	ctx, span := tracer.Start(ctx, "simulation.SimulateChain",
		trace.WithAttributes(
			attribute.String("chain_id", chainID.String()),
			attribute.Int("max_depth", maxDepth),
		),
	)
	defer span.End()

	snap, err := s.graph.Snapshot(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "snapshot graph")
	}
	result, err := s.engine.SimulateChain(snap, chain, maxDepth, s.configs.Get(tenantID), requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, translateRunErr(err)
	}

	s.metrics.IncrementChainSimulations()
	s.emit(ctx, tenantID, audit.ActionChainSimulate, "scenario_chain", chainID.String(), result)
	return result, nil
}

func translateRunErr(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "simulation timed out")
	case errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeCancelled, "simulation cancelled")
	default:
		return err
	}
}

func (s *Service) emit(ctx context.Context, tenantID id.TenantID, action, resourceType, resourceID string, payload any) {
	event := audit.Event{
		Timestamp:    requestcontext.Now(ctx),
		TenantID:     tenantID,
		Actor:        requestcontext.Actor(ctx),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
	if payload != nil {
		after, err := json.Marshal(payload)
		if err != nil {
			s.logger.Error("encode audit payload", "action", action, "error", err)
			return
		}
		event.After = after
	}
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.Error("emit audit event", "action", action, "error", err)
	}
}
