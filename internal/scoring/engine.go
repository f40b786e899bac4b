// Package scoring computes constraint-exposure, dependency-propagated, and
// jurisdiction scores for graph entities and combines them into an overall
// risk score with a full factor-level justification.
package scoring

import (
	"math"

	graphmodels "riskgraph/internal/graph/models"
	"riskgraph/internal/graph/registry"
	"riskgraph/internal/scoring/models"
	id "riskgraph/pkg/domain"
	dErrors "riskgraph/pkg/domain-errors"
)

// Overlay layers hypothetical changes over a snapshot without mutating it.
// The simulation engine uses this to score "as if the hypothesis were true".
type Overlay struct {
	// ExtraConstraints apply to specific entities in addition to the
	// snapshot's own constraint set.
	ExtraConstraints map[id.EntityID][]*graphmodels.Constraint
	// StatusChanges replace entity statuses for applicability and traversal.
	StatusChanges map[id.EntityID]graphmodels.EntityStatus
}

func (o *Overlay) status(e *graphmodels.Entity) graphmodels.EntityStatus {
	if o != nil {
		if st, ok := o.StatusChanges[e.ID]; ok {
			return st
		}
	}
	return e.Status
}

func (o *Overlay) extra(entityID id.EntityID) []*graphmodels.Constraint {
	if o == nil {
		return nil
	}
	return o.ExtraConstraints[entityID]
}

// Engine is stateless; everything it needs arrives per call. The jurisdiction
// table and constraint-type registry are shared, read-only collaborators.
type Engine struct {
	jurisdictions *JurisdictionTable
	registry      *registry.Registry
}

func NewEngine(jurisdictions *JurisdictionTable, reg *registry.Registry) *Engine {
	return &Engine{jurisdictions: jurisdictions, registry: reg}
}

// Score computes the entity's full risk score against the snapshot.
// Compute-then-commit: the returned justification is complete or the call
// fails; nothing is persisted here.
func (e *Engine) Score(snap *graphmodels.Snapshot, entityID id.EntityID, cfg Config) (*models.Justification, error) {
	return e.ScoreWithOverlay(snap, entityID, cfg, nil)
}

// ScoreWithOverlay computes the entity's score with hypothetical changes
// layered over the snapshot.
func (e *Engine) ScoreWithOverlay(snap *graphmodels.Snapshot, entityID id.EntityID, cfg Config, overlay *Overlay) (*models.Justification, error) {
	entity := snap.Entity(entityID)
	if entity == nil {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "entity %s not found in snapshot", entityID)
	}
	if err := cfg.Normalize(); err != nil {
		return nil, wrapEntity(err, entityID)
	}

	confidence := 1.0
	var factors []models.RiskFactor

	constraintScore, constraintImpacts, err := e.constraintScore(snap, entity, cfg, overlay)
	if err != nil {
		return nil, wrapEntity(err, entityID)
	}
	for _, ci := range constraintImpacts {
		factors = append(factors, models.RiskFactor{
			Category: "constraint",
			Name:     ci.Name,
			Impact:   ci.Impact,
			Weight:   cfg.Weights.Constraint,
			Source:   ci.Type,
		})
	}

	dependencyScore, dependencyImpacts, truncated, err := e.dependencyScore(snap, entity, cfg, overlay)
	if err != nil {
		return nil, wrapEntity(err, entityID)
	}
	for _, di := range dependencyImpacts {
		factors = append(factors, models.RiskFactor{
			Category: "dependency",
			Name:     string(di.Layer),
			Impact:   di.Contribution,
			Weight:   cfg.Weights.Dependency,
			Source:   di.SourceEntityID.String(),
		})
	}
	if truncated {
		// Risk beyond the traversal horizon exists but was not measured.
		confidence -= 0.1
	}

	countryScore, countryKnown := e.countryScore(entity)
	if !countryKnown {
		confidence -= 0.2
		factors = append(factors, models.RiskFactor{
			Category: "country",
			Name:     "insufficient data",
			Impact:   0,
			Weight:   cfg.Weights.Country,
			Source:   entity.CountryCode,
		})
	} else if countryScore > 0 {
		factors = append(factors, models.RiskFactor{
			Category: "country",
			Name:     entity.CountryCode,
			Impact:   countryScore,
			Weight:   cfg.Weights.Country,
			Source:   "jurisdiction table",
		})
	}

	overall := cfg.Weights.Constraint*constraintScore +
		cfg.Weights.Dependency*dependencyScore +
		cfg.Weights.Country*countryScore
	if math.IsNaN(overall) || math.IsInf(overall, 0) {
		return nil, wrapEntity(dErrors.New(dErrors.CodeCalculation, "overall score is not finite"), entityID)
	}
	overall = clamp(overall, 0, 100)

	if confidence < 0.3 {
		confidence = 0.3
	}

	calculatedAt := snap.TakenAt()
	score := models.RiskScore{
		EntityID:        entityID,
		OverallScore:    overall,
		RiskLevel:       cfg.Thresholds.Level(overall),
		ConstraintScore: constraintScore,
		DependencyScore: dependencyScore,
		CountryScore:    countryScore,
		CalculatedAt:    calculatedAt,
		ValidUntil:      calculatedAt.Add(cfg.ScoreTTL),
	}
	return &models.Justification{
		EntityID:          entityID,
		Score:             score,
		Factors:           factors,
		ConstraintImpacts: constraintImpacts,
		DependencyImpacts: dependencyImpacts,
		ConfidenceLevel:   confidence,
	}, nil
}

// constraintScore sums severity-, weight-, and mandate-scaled contributions
// of applicable constraints, saturating at 100 so one critical mandatory
// constraint dominates without ever overflowing the scale.
func (e *Engine) constraintScore(snap *graphmodels.Snapshot, entity *graphmodels.Entity, cfg Config, overlay *Overlay) (float64, []models.ConstraintImpact, error) {
	applicable := snap.ApplicableConstraints(entity)
	applicable = append(applicable, overlay.extra(entity.ID)...)

	var sum float64
	var impacts []models.ConstraintImpact
	for _, c := range applicable {
		if e.registry != nil && e.registry.Known(c.Type) {
			matched, err := e.registry.Matches(c.Type, entity)
			if err != nil {
				return 0, nil, err
			}
			if !matched {
				continue
			}
		}

		weight := cfg.SeverityWeight(c.Severity) * c.RiskWeight
		if c.IsMandatory {
			weight *= cfg.MandatoryMultiplier
		}
		sum += weight
		impacts = append(impacts, models.ConstraintImpact{
			ConstraintID: c.ID,
			Name:         c.Name,
			Type:         string(c.Type),
			Severity:     string(c.Severity),
			IsMandatory:  c.IsMandatory,
			Weight:       weight,
			Impact:       0, // filled once the saturated total is known
		})
	}
	if sum == 0 {
		return 0, impacts, nil
	}

	score := 100 * (1 - math.Exp(-cfg.SaturationK*sum))
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, nil, dErrors.New(dErrors.CodeCalculation, "constraint score is not finite")
	}
	// Attribute the saturated total back to each constraint pro rata.
	for i := range impacts {
		impacts[i].Impact = score * impacts[i].Weight / sum
	}
	return score, impacts, nil
}

// dependencyScore propagates neighbors' intrinsic risk along inbound edges
// with a bounded, decayed BFS. Returns the score, the per-edge impacts, and
// whether the traversal was truncated by the depth bound.
func (e *Engine) dependencyScore(snap *graphmodels.Snapshot, entity *graphmodels.Entity, cfg Config, overlay *Overlay) (float64, []models.DependencyImpact, bool, error) {
	type hop struct {
		entityID   id.EntityID
		depth      int
		pathWeight float64
	}

	visited := map[id.EntityID]bool{entity.ID: true}
	queue := []hop{{entityID: entity.ID, depth: 0, pathWeight: 1}}
	truncated := false

	var sum float64
	var impacts []models.DependencyImpact

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur.depth >= cfg.MaxDepth {
			if len(snap.Inbound(cur.entityID)) > 0 {
				truncated = true
			}
			continue
		}

		for _, edge := range snap.Inbound(cur.entityID) {
			neighbor := snap.Entity(edge.SourceEntityID)
			if neighbor == nil || visited[neighbor.ID] {
				continue
			}
			if overlay.status(neighbor) == graphmodels.EntityStatusArchived {
				continue
			}
			visited[neighbor.ID] = true

			depth := cur.depth + 1
			pathWeight := cur.pathWeight * cfg.Decay * edgeFactor(edge, cfg)
			intrinsic, err := e.intrinsicScore(snap, neighbor, cfg, overlay)
			if err != nil {
				return 0, nil, false, err
			}

			contribution := intrinsic * pathWeight
			if contribution > 0 {
				sum += contribution
				impacts = append(impacts, models.DependencyImpact{
					DependencyID:   edge.ID,
					SourceEntityID: neighbor.ID,
					Layer:          string(edge.Layer),
					Depth:          depth,
					Strength:       edge.Strength,
					IsCritical:     edge.IsCritical,
					Contribution:   contribution,
				})
			}
			queue = append(queue, hop{entityID: neighbor.ID, depth: depth, pathWeight: pathWeight})
		}
	}

	if math.IsNaN(sum) || math.IsInf(sum, 0) {
		return 0, nil, false, dErrors.New(dErrors.CodeCalculation, "dependency score is not finite")
	}
	return clamp(sum, 0, 100), impacts, truncated, nil
}

// intrinsicScore is the neighbor's own (non-propagated) risk: its weighted
// constraint and country components. Keeping propagation off the intrinsic
// value makes the BFS a single deterministic pass instead of a fixpoint.
func (e *Engine) intrinsicScore(snap *graphmodels.Snapshot, entity *graphmodels.Entity, cfg Config, overlay *Overlay) (float64, error) {
	constraintScore, _, err := e.constraintScore(snap, entity, cfg, overlay)
	if err != nil {
		return 0, err
	}
	countryScore, _ := e.countryScore(entity)
	return clamp(cfg.Weights.Constraint*constraintScore+cfg.Weights.Country*countryScore, 0, 100), nil
}

func (e *Engine) countryScore(entity *graphmodels.Entity) (float64, bool) {
	if entity.CountryCode == "" || e.jurisdictions == nil {
		return 0, false
	}
	return e.jurisdictions.Lookup(entity.CountryCode)
}

func edgeFactor(edge *graphmodels.Dependency, cfg Config) float64 {
	f := edge.Strength * cfg.LayerWeight(edge.Layer)
	if edge.IsCritical {
		f *= 2
	}
	return f
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func wrapEntity(err error, entityID id.EntityID) error {
	return dErrors.Wrap(err, dErrors.CodeOf(err), "score entity "+entityID.String())
}
