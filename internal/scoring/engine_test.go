package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	graphmodels "riskgraph/internal/graph/models"
	"riskgraph/internal/graph/registry"
	"riskgraph/internal/scoring/models"
	id "riskgraph/pkg/domain"
	dErrors "riskgraph/pkg/domain-errors"
)

var testTakenAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testEngine(t *testing.T, jurisdictions map[string]float64) *Engine {
	t.Helper()
	reg, err := registry.New()
	require.NoError(t, err)
	return NewEngine(NewJurisdictionTable(jurisdictions), reg)
}

func testEntity(name string, opts ...func(*graphmodels.Entity)) *graphmodels.Entity {
	e := &graphmodels.Entity{
		ID:          id.NewEntityID(),
		Type:        graphmodels.EntityTypeOrganization,
		Name:        name,
		Status:      graphmodels.EntityStatusActive,
		Criticality: 3,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func withCountry(code string) func(*graphmodels.Entity) {
	return func(e *graphmodels.Entity) { e.CountryCode = code }
}

func withStatus(st graphmodels.EntityStatus) func(*graphmodels.Entity) {
	return func(e *graphmodels.Entity) { e.Status = st }
}

func testEdge(source, target *graphmodels.Entity, strength float64, critical bool) *graphmodels.Dependency {
	return &graphmodels.Dependency{
		ID:             id.NewDependencyID(),
		SourceEntityID: source.ID,
		TargetEntityID: target.ID,
		Type:           graphmodels.DependencySupplies,
		Layer:          graphmodels.LayerSupplyChain,
		Strength:       strength,
		IsCritical:     critical,
	}
}

func testConstraint(name string, severity graphmodels.Severity, weight float64, mandatory bool) *graphmodels.Constraint {
	return &graphmodels.Constraint{
		ID:            id.NewConstraintID(),
		Type:          graphmodels.ConstraintSanction,
		Name:          name,
		Severity:      severity,
		EffectiveDate: testTakenAt.Add(-24 * time.Hour),
		RiskWeight:    weight,
		IsMandatory:   mandatory,
	}
}

func snapshotOf(entities []*graphmodels.Entity, deps []*graphmodels.Dependency, constraints []*graphmodels.Constraint) *graphmodels.Snapshot {
	return graphmodels.NewSnapshot(id.NewTenantID(), testTakenAt, entities, deps, constraints)
}

func TestEngineScore(t *testing.T) {
	t.Run("entity with no constraints, edges, or country scores zero", func(t *testing.T) {
		engine := testEngine(t, nil)
		entity := testEntity("isolated")
		snap := snapshotOf([]*graphmodels.Entity{entity}, nil, nil)

		just, err := engine.Score(snap, entity.ID, DefaultConfig())
		require.NoError(t, err)
		assert.Zero(t, just.Score.OverallScore)
		assert.Equal(t, models.RiskLevelMinimal, just.Score.RiskLevel)
		assert.Empty(t, just.ConstraintImpacts)
		assert.Empty(t, just.DependencyImpacts)
	})

	t.Run("unknown entity", func(t *testing.T) {
		engine := testEngine(t, nil)
		snap := snapshotOf(nil, nil, nil)

		_, err := engine.Score(snap, id.NewEntityID(), DefaultConfig())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("mandatory critical constraint dominates", func(t *testing.T) {
		engine := testEngine(t, nil)
		entity := testEntity("sanctioned", withCountry("RU"))
		c := testConstraint("embargo", graphmodels.SeverityCritical, 9, true)
		snap := snapshotOf([]*graphmodels.Entity{entity}, nil, []*graphmodels.Constraint{c})

		just, err := engine.Score(snap, entity.ID, DefaultConfig())
		require.NoError(t, err)

		// 100*(1-e^(-0.15 * 1.0*9*1.5)) = 86.8
		assert.InDelta(t, 86.8, just.Score.ConstraintScore, 0.1)
		require.Len(t, just.ConstraintImpacts, 1)
		assert.True(t, just.ConstraintImpacts[0].IsMandatory)
	})

	t.Run("expired constraint does not apply", func(t *testing.T) {
		engine := testEngine(t, nil)
		entity := testEntity("formerly restricted")
		c := testConstraint("lapsed embargo", graphmodels.SeverityCritical, 9, true)
		expiry := testTakenAt.Add(-time.Hour)
		c.ExpiryDate = &expiry
		snap := snapshotOf([]*graphmodels.Entity{entity}, nil, []*graphmodels.Constraint{c})

		just, err := engine.Score(snap, entity.ID, DefaultConfig())
		require.NoError(t, err)
		assert.Zero(t, just.Score.ConstraintScore)
	})

	t.Run("risk propagates from supplier to dependent", func(t *testing.T) {
		engine := testEngine(t, nil)
		supplier := testEntity("supplier")
		dependent := testEntity("dependent")
		c := testConstraint("supplier sanctions", graphmodels.SeverityCritical, 9, true)
		c.EntityTypes = []graphmodels.EntityType{graphmodels.EntityTypeOrganization}
		edge := testEdge(supplier, dependent, 1.0, false)

		snap := snapshotOf([]*graphmodels.Entity{supplier, dependent}, []*graphmodels.Dependency{edge}, []*graphmodels.Constraint{c})

		cfg := DefaultConfig()
		supplierJust, err := engine.Score(snap, supplier.ID, cfg)
		require.NoError(t, err)
		dependentJust, err := engine.Score(snap, dependent.ID, cfg)
		require.NoError(t, err)

		// Propagation: dep = intrinsic(supplier) * decay * strength * layer weight.
		intrinsic := cfg.Weights.Constraint * supplierJust.Score.ConstraintScore
		assert.InDelta(t, intrinsic*cfg.Decay, dependentJust.Score.DependencyScore, 0.01)
		assert.Greater(t, dependentJust.Score.OverallScore, 0.0)

		require.Len(t, dependentJust.DependencyImpacts, 1)
		assert.Equal(t, supplier.ID, dependentJust.DependencyImpacts[0].SourceEntityID)
		assert.Equal(t, 1, dependentJust.DependencyImpacts[0].Depth)

		// No edge points at the supplier, so nothing propagates to it.
		assert.Zero(t, supplierJust.Score.DependencyScore)
	})

	t.Run("critical edges double the propagated contribution", func(t *testing.T) {
		engine := testEngine(t, nil)
		supplier := testEntity("supplier")
		plain := testEntity("plain dependent")
		critical := testEntity("critical dependent")
		c := testConstraint("supplier sanctions", graphmodels.SeverityHigh, 5, false)
		edges := []*graphmodels.Dependency{
			testEdge(supplier, plain, 0.5, false),
			testEdge(supplier, critical, 0.5, true),
		}
		snap := snapshotOf([]*graphmodels.Entity{supplier, plain, critical}, edges, []*graphmodels.Constraint{c})

		cfg := DefaultConfig()
		plainJust, err := engine.Score(snap, plain.ID, cfg)
		require.NoError(t, err)
		criticalJust, err := engine.Score(snap, critical.ID, cfg)
		require.NoError(t, err)

		assert.InDelta(t, 2*plainJust.Score.DependencyScore, criticalJust.Score.DependencyScore, 0.01)
	})

	t.Run("propagation decays with depth and stops at max depth", func(t *testing.T) {
		engine := testEngine(t, nil)
		// chain: a -> b -> c -> d -> e; only a carries a constraint.
		a := testEntity("a", withCountry("KP"))
		b := testEntity("b")
		cEnt := testEntity("c")
		d := testEntity("d")
		e := testEntity("e")
		constraint := testConstraint("origin sanctions", graphmodels.SeverityCritical, 9, true)
		constraint.Countries = []string{"KP"}
		edges := []*graphmodels.Dependency{
			testEdge(a, b, 1.0, false),
			testEdge(b, cEnt, 1.0, false),
			testEdge(cEnt, d, 1.0, false),
			testEdge(d, e, 1.0, false),
		}
		snap := snapshotOf([]*graphmodels.Entity{a, b, cEnt, d, e}, edges, []*graphmodels.Constraint{constraint})

		cfg := DefaultConfig()
		var prev float64 = math.MaxFloat64
		for _, ent := range []*graphmodels.Entity{b, cEnt, d} {
			just, err := engine.Score(snap, ent.ID, cfg)
			require.NoError(t, err)
			assert.Greater(t, just.Score.DependencyScore, 0.0, ent.Name)
			assert.Less(t, just.Score.DependencyScore, prev, ent.Name)
			prev = just.Score.DependencyScore
		}

		// e is 4 hops from a; with MaxDepth 3 the source is out of reach
		// and confidence reflects the truncation.
		eJust, err := engine.Score(snap, e.ID, cfg)
		require.NoError(t, err)
		assert.Zero(t, eJust.Score.DependencyScore)
		assert.InDelta(t, 0.9, eJust.ConfidenceLevel, 0.001)
	})

	t.Run("cycles terminate", func(t *testing.T) {
		engine := testEngine(t, map[string]float64{"IR": 90})
		a := testEntity("a", withCountry("IR"))
		b := testEntity("b")
		edges := []*graphmodels.Dependency{
			testEdge(a, b, 0.8, false),
			testEdge(b, a, 0.8, false),
		}
		snap := snapshotOf([]*graphmodels.Entity{a, b}, edges, nil)

		just, err := engine.Score(snap, b.ID, DefaultConfig())
		require.NoError(t, err)
		assert.Greater(t, just.Score.DependencyScore, 0.0)
		require.Len(t, just.DependencyImpacts, 1)
	})

	t.Run("archived neighbors are excluded", func(t *testing.T) {
		engine := testEngine(t, map[string]float64{"SY": 95})
		supplier := testEntity("defunct supplier", withCountry("SY"), withStatus(graphmodels.EntityStatusArchived))
		dependent := testEntity("dependent")
		edge := testEdge(supplier, dependent, 1.0, true)
		snap := snapshotOf([]*graphmodels.Entity{supplier, dependent}, []*graphmodels.Dependency{edge}, nil)

		just, err := engine.Score(snap, dependent.ID, DefaultConfig())
		require.NoError(t, err)
		assert.Zero(t, just.Score.DependencyScore)
	})

	t.Run("unknown country lowers confidence instead of failing", func(t *testing.T) {
		engine := testEngine(t, map[string]float64{"US": 10})
		entity := testEntity("unmapped", withCountry("ZZ"))
		snap := snapshotOf([]*graphmodels.Entity{entity}, nil, nil)

		just, err := engine.Score(snap, entity.ID, DefaultConfig())
		require.NoError(t, err)
		assert.Zero(t, just.Score.CountryScore)
		assert.InDelta(t, 0.8, just.ConfidenceLevel, 0.001)

		var found bool
		for _, f := range just.Factors {
			if f.Category == "country" && f.Name == "insufficient data" {
				found = true
			}
		}
		assert.True(t, found, "expected an insufficient-data factor")
	})

	t.Run("country score contributes to overall", func(t *testing.T) {
		engine := testEngine(t, map[string]float64{"KP": 98})
		entity := testEntity("exposed", withCountry("KP"))
		snap := snapshotOf([]*graphmodels.Entity{entity}, nil, nil)

		cfg := DefaultConfig()
		just, err := engine.Score(snap, entity.ID, cfg)
		require.NoError(t, err)
		assert.InDelta(t, 98, just.Score.CountryScore, 0.001)
		assert.InDelta(t, cfg.Weights.Country*98, just.Score.OverallScore, 0.001)
		assert.InDelta(t, 1.0, just.ConfidenceLevel, 0.001)
	})

	t.Run("score carries validity window from snapshot time", func(t *testing.T) {
		engine := testEngine(t, nil)
		entity := testEntity("anything")
		snap := snapshotOf([]*graphmodels.Entity{entity}, nil, nil)

		cfg := DefaultConfig()
		just, err := engine.Score(snap, entity.ID, cfg)
		require.NoError(t, err)
		assert.Equal(t, testTakenAt, just.Score.CalculatedAt)
		assert.Equal(t, testTakenAt.Add(cfg.ScoreTTL), just.Score.ValidUntil)
	})

	t.Run("invalid weights are a calculation error", func(t *testing.T) {
		engine := testEngine(t, nil)
		entity := testEntity("anything")
		snap := snapshotOf([]*graphmodels.Entity{entity}, nil, nil)

		cfg := DefaultConfig()
		cfg.Weights.Constraint = math.NaN()
		_, err := engine.Score(snap, entity.ID, cfg)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeCalculation))
	})
}

func TestEngineScoreWithOverlay(t *testing.T) {
	engine := testEngine(t, nil)
	supplier := testEntity("supplier")
	dependent := testEntity("dependent")
	edge := testEdge(supplier, dependent, 1.0, false)
	snap := snapshotOf([]*graphmodels.Entity{supplier, dependent}, []*graphmodels.Dependency{edge}, nil)
	cfg := DefaultConfig()

	t.Run("extra constraints raise the target and its dependents", func(t *testing.T) {
		overlay := &Overlay{
			ExtraConstraints: map[id.EntityID][]*graphmodels.Constraint{
				supplier.ID: {testConstraint("hypothetical embargo", graphmodels.SeverityCritical, 9, true)},
			},
		}

		base, err := engine.Score(snap, dependent.ID, cfg)
		require.NoError(t, err)
		overlaid, err := engine.ScoreWithOverlay(snap, dependent.ID, cfg, overlay)
		require.NoError(t, err)

		assert.Zero(t, base.Score.OverallScore)
		assert.Greater(t, overlaid.Score.DependencyScore, 0.0)
	})

	t.Run("status change severs propagation", func(t *testing.T) {
		overlay := &Overlay{
			ExtraConstraints: map[id.EntityID][]*graphmodels.Constraint{
				supplier.ID: {testConstraint("hypothetical embargo", graphmodels.SeverityCritical, 9, true)},
			},
			StatusChanges: map[id.EntityID]graphmodels.EntityStatus{
				supplier.ID: graphmodels.EntityStatusArchived,
			},
		}

		overlaid, err := engine.ScoreWithOverlay(snap, dependent.ID, cfg, overlay)
		require.NoError(t, err)
		assert.Zero(t, overlaid.Score.DependencyScore)
	})

	t.Run("overlay does not touch the snapshot", func(t *testing.T) {
		before, err := engine.Score(snap, dependent.ID, cfg)
		require.NoError(t, err)
		assert.Zero(t, before.Score.OverallScore)
		assert.Equal(t, graphmodels.EntityStatusActive, snap.Entity(supplier.ID).Status)
	})
}
