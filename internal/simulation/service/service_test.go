package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	graphmodels "riskgraph/internal/graph/models"
	"riskgraph/internal/graph/registry"
	graphmemory "riskgraph/internal/graph/store/memory"
	"riskgraph/internal/scoring"
	"riskgraph/internal/simulation"
	"riskgraph/internal/simulation/metrics"
	"riskgraph/internal/simulation/models"
	simmemory "riskgraph/internal/simulation/store/memory"
	id "riskgraph/pkg/domain"
	dErrors "riskgraph/pkg/domain-errors"
	"riskgraph/pkg/platform/audit/publisher"
	auditmemory "riskgraph/pkg/platform/audit/store/memory"
	"riskgraph/pkg/platform/sentinel"
	"riskgraph/pkg/requestcontext"
)

var simMetrics = metrics.New()

type fixture struct {
	svc      *Service
	store    *simmemory.Store
	graph    *graphmemory.Store
	sink     *auditmemory.Store
	tenantID id.TenantID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg, err := registry.New()
	require.NoError(t, err)

	graph := graphmemory.New()
	store := simmemory.New()
	sink := auditmemory.New()
	engine := simulation.NewEngine(scoring.NewEngine(scoring.NewJurisdictionTable(nil), reg))
	svc := New(store, graph, engine, scoring.NewConfigStore(), publisher.NewDirect(sink), slog.Default(), simMetrics)
	return &fixture{svc: svc, store: store, graph: graph, sink: sink, tenantID: id.NewTenantID()}
}

func (f *fixture) addEntity(t *testing.T, name string) *graphmodels.Entity {
	t.Helper()
	entity := &graphmodels.Entity{
		ID:          id.NewEntityID(),
		Type:        graphmodels.EntityTypeOrganization,
		Name:        name,
		Status:      graphmodels.EntityStatusActive,
		Criticality: 3,
	}
	require.NoError(t, f.graph.UpsertEntity(context.Background(), f.tenantID, entity))
	return entity
}

func (f *fixture) addEdge(t *testing.T, source, target *graphmodels.Entity) {
	t.Helper()
	require.NoError(t, f.graph.UpsertDependency(context.Background(), f.tenantID, &graphmodels.Dependency{
		ID:             id.NewDependencyID(),
		SourceEntityID: source.ID,
		TargetEntityID: target.ID,
		Type:           graphmodels.DependencySupplies,
		Layer:          graphmodels.LayerSupplyChain,
		Strength:       1.0,
	}))
}

func (f *fixture) draftScenario(t *testing.T, trigger *graphmodels.Entity) *models.Scenario {
	t.Helper()
	scenario, err := f.svc.CreateScenario(testCtx(), f.tenantID, &models.Scenario{
		Type:            models.ScenarioConstraintChange,
		Name:            "sanctions drill",
		Hypothesis:      trigger.Name + " becomes sanctioned",
		TriggerEntityID: trigger.ID,
	})
	require.NoError(t, err)
	return scenario
}

// flakyScenarioStore fails a configurable number of GetScenario calls before
// delegating to the in-memory store.
type flakyScenarioStore struct {
	*simmemory.Store
	failGets int
}

func (s *flakyScenarioStore) GetScenario(ctx context.Context, tenantID id.TenantID, scenarioID id.ScenarioID) (*models.Scenario, error) {
	if s.failGets > 0 {
		s.failGets--
		return nil, sentinel.ErrUnavailable
	}
	return s.Store.GetScenario(ctx, tenantID, scenarioID)
}

func testCtx() context.Context {
	ctx := requestcontext.WithActor(context.Background(), "analyst")
	return requestcontext.WithTime(ctx, time.Now().UTC())
}

func TestScenarioLifecycle(t *testing.T) {
	t.Run("create rejects a missing trigger entity", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.CreateScenario(testCtx(), f.tenantID, &models.Scenario{
			Type:            models.ScenarioWhatIf,
			Name:            "ghost",
			Hypothesis:      "missing trigger",
			TriggerEntityID: id.NewEntityID(),
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("run completes a draft and stores immutable results", func(t *testing.T) {
		f := newFixture(t)
		trigger := f.addEntity(t, "acme")
		f.addEdge(t, trigger, f.addEntity(t, "dependent"))
		scenario := f.draftScenario(t, trigger)

		ran, err := f.svc.Run(testCtx(), f.tenantID, scenario.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ScenarioStatusCompleted, ran.Status)
		require.NotNil(t, ran.Results)
		assert.NotEmpty(t, ran.Results.AffectedEntities)

		// A re-run replaces, not mutates: the stored results pointer changes.
		again, err := f.svc.Run(testCtx(), f.tenantID, scenario.ID)
		require.NoError(t, err)
		assert.NotSame(t, ran.Results, again.Results)
	})

	t.Run("running scenario rejects a concurrent run", func(t *testing.T) {
		f := newFixture(t)
		trigger := f.addEntity(t, "acme")
		scenario := f.draftScenario(t, trigger)

		acquired, err := f.store.TryMarkRunning(context.Background(), f.tenantID, scenario.ID)
		require.NoError(t, err)
		require.True(t, acquired)

		_, err = f.svc.Run(testCtx(), f.tenantID, scenario.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeScenarioBusy))
	})

	t.Run("load failure after acquiring the run flag lands in failed", func(t *testing.T) {
		reg, err := registry.New()
		require.NoError(t, err)
		graph := graphmemory.New()
		store := &flakyScenarioStore{Store: simmemory.New()}
		engine := simulation.NewEngine(scoring.NewEngine(scoring.NewJurisdictionTable(nil), reg))
		svc := New(store, graph, engine, scoring.NewConfigStore(), publisher.NewDirect(auditmemory.New()), slog.Default(), simMetrics)

		tenantID := id.NewTenantID()
		trigger := &graphmodels.Entity{
			ID:          id.NewEntityID(),
			Type:        graphmodels.EntityTypeOrganization,
			Name:        "acme",
			Status:      graphmodels.EntityStatusActive,
			Criticality: 3,
		}
		require.NoError(t, graph.UpsertEntity(context.Background(), tenantID, trigger))
		scenario, err := svc.CreateScenario(testCtx(), tenantID, &models.Scenario{
			Type:            models.ScenarioWhatIf,
			Name:            "flaky load",
			Hypothesis:      "store hiccup during run",
			TriggerEntityID: trigger.ID,
		})
		require.NoError(t, err)

		store.failGets = 1
		_, err = svc.Run(testCtx(), tenantID, scenario.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))

		stored, err := store.GetScenario(context.Background(), tenantID, scenario.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ScenarioStatusFailed, stored.Status)

		// Not stuck in running: a rerun is rejected for its status, not as busy.
		_, err = svc.Run(testCtx(), tenantID, scenario.ID)
		require.Error(t, err)
		assert.False(t, dErrors.HasCode(err, dErrors.CodeScenarioBusy))
	})

	t.Run("archived scenario cannot run", func(t *testing.T) {
		f := newFixture(t)
		trigger := f.addEntity(t, "acme")
		scenario := f.draftScenario(t, trigger)

		_, err := f.svc.Run(testCtx(), f.tenantID, scenario.ID)
		require.NoError(t, err)
		_, err = f.svc.Archive(testCtx(), f.tenantID, scenario.ID, "drill complete", "tighten supplier vetting")
		require.NoError(t, err)

		_, err = f.svc.Run(testCtx(), f.tenantID, scenario.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("archive requires completion", func(t *testing.T) {
		f := newFixture(t)
		trigger := f.addEntity(t, "acme")
		scenario := f.draftScenario(t, trigger)

		_, err := f.svc.Archive(testCtx(), f.tenantID, scenario.ID, "", "")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("run and archive are audited", func(t *testing.T) {
		f := newFixture(t)
		trigger := f.addEntity(t, "acme")
		scenario := f.draftScenario(t, trigger)

		_, err := f.svc.Run(testCtx(), f.tenantID, scenario.ID)
		require.NoError(t, err)
		_, err = f.svc.Archive(testCtx(), f.tenantID, scenario.ID, "done", "")
		require.NoError(t, err)

		actions := make(map[string]int)
		for _, ev := range f.sink.Events() {
			actions[ev.Action]++
		}
		assert.Equal(t, 1, actions["scenario.run"])
		assert.Equal(t, 1, actions["scenario.archive"])
	})
}

func TestChainLifecycle(t *testing.T) {
	f := newFixture(t)
	trigger := f.addEntity(t, "port operator")
	downstream := f.addEntity(t, "importer")
	require.NoError(t, f.graph.UpsertDependency(context.Background(), f.tenantID, &graphmodels.Dependency{
		ID:             id.NewDependencyID(),
		SourceEntityID: trigger.ID,
		TargetEntityID: downstream.ID,
		Type:           graphmodels.DependencySupplies,
		Layer:          graphmodels.LayerSupplyChain,
		Strength:       1.0,
	}))

	chain, err := f.svc.CreateChain(testCtx(), f.tenantID, &models.ScenarioChain{
		Name:            "port closure",
		TriggerEvent:    "storm damage closes the port",
		TriggerEntityID: trigger.ID,
		Effects: []models.ChainEffect{
			{SequenceOrder: 1, EffectType: models.EffectScoreShock, TargetEntityID: trigger.ID, DelayDays: 0, Probability: 1.0, ImpactScore: 30},
			{SequenceOrder: 2, EffectType: models.EffectDependencyFailure, TargetEntityID: downstream.ID, DelayDays: 7, Probability: 0.6, ImpactScore: 20},
		},
	})
	require.NoError(t, err)

	t.Run("simulate produces a timeline and audits", func(t *testing.T) {
		result, err := f.svc.SimulateChain(testCtx(), f.tenantID, chain.ID, -1)
		require.NoError(t, err)
		assert.Equal(t, simulation.DefaultChainMaxDepth, result.MaxDepth)
		require.Len(t, result.Timeline, 2)
		assert.Equal(t, 7, result.Timeline[1].Day)

		var audited bool
		for _, ev := range f.sink.Events() {
			if ev.Action == "chain.simulate" && ev.ResourceID == chain.ID.String() {
				audited = true
			}
		}
		assert.True(t, audited)
	})

	t.Run("unknown chain", func(t *testing.T) {
		_, err := f.svc.SimulateChain(testCtx(), f.tenantID, id.NewChainID(), 0)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("invalid effect probability is rejected at create", func(t *testing.T) {
		_, err := f.svc.CreateChain(testCtx(), f.tenantID, &models.ScenarioChain{
			Name:            "bad chain",
			TriggerEvent:    "x",
			TriggerEntityID: trigger.ID,
			Effects: []models.ChainEffect{
				{SequenceOrder: 1, EffectType: models.EffectScoreShock, TargetEntityID: trigger.ID, Probability: 1.5, ImpactScore: 10},
			},
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}
