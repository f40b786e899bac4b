// Package simulation evaluates hypothetical perturbations against immutable
// graph snapshots: one-shot scenarios (before/after score deltas over the
// reachable set) and time-ordered scenario chains (expected-value impact
// timelines). Runs never mutate live graph state.
package simulation

import (
	"fmt"
	"sort"
	"time"

	graphmodels "riskgraph/internal/graph/models"
	"riskgraph/internal/scoring"
	"riskgraph/internal/simulation/models"
	id "riskgraph/pkg/domain"
	dErrors "riskgraph/pkg/domain-errors"
)

// Engine runs simulations. It owns no state; the scoring engine does the
// actual per-entity computation, with and without the hypothesis overlay.
type Engine struct {
	scorer *scoring.Engine
}

func NewEngine(scorer *scoring.Engine) *Engine {
	return &Engine{scorer: scorer}
}

// reachableEntity is one member of the affected set with its BFS depth from
// the trigger.
type reachableEntity struct {
	entity *graphmodels.Entity
	depth  int
}

// Run executes the scenario against the snapshot and returns its results.
// Read-only against the snapshot; the caller owns status transitions and
// persistence.
func (e *Engine) Run(snap *graphmodels.Snapshot, scenario *models.Scenario, cfg scoring.Config, runAt time.Time) (*models.ScenarioResults, error) {
	trigger := snap.Entity(scenario.TriggerEntityID)
	if trigger == nil {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "scenario %s: trigger entity %s not found", scenario.ID, scenario.TriggerEntityID)
	}

	overlay, err := buildOverlay(scenario, runAt)
	if err != nil {
		return nil, err
	}

	reachable := e.reachableSet(snap, trigger, scenario, cfg.MaxDepth)

	// A trigger with nothing downstream affects nothing: the hypothesis
	// only matters for what it can reach.
	if len(reachable) == 1 {
		return &models.ScenarioResults{
			RunAt:            runAt,
			SnapshotTakenAt:  snap.TakenAt(),
			AffectedEntities: []models.RiskChange{},
			TotalRiskChange:  0,
		}, nil
	}

	var changes []models.RiskChange
	var total float64
	for _, member := range reachable {
		baseline, err := e.scorer.Score(snap, member.entity.ID, cfg)
		if err != nil {
			return nil, wrapScenario(err, scenario.ID)
		}
		perturbed, err := e.scorer.ScoreWithOverlay(snap, member.entity.ID, cfg, overlay)
		if err != nil {
			return nil, wrapScenario(err, scenario.ID)
		}

		delta := perturbed.Score.OverallScore - baseline.Score.OverallScore
		if delta == 0 && member.depth > 0 {
			continue
		}
		impactType := models.ImpactDirect
		if member.depth > 1 {
			impactType = models.ImpactIndirect
		}
		changes = append(changes, models.RiskChange{
			EntityID:   member.entity.ID,
			EntityName: member.entity.Name,
			OldScore:   baseline.Score.OverallScore,
			NewScore:   perturbed.Score.OverallScore,
			Delta:      delta,
			Depth:      member.depth,
			ImpactType: impactType,
			Reason:     changeReason(scenario, member.depth, trigger.Name),
		})
		total += delta
	}

	sort.Slice(changes, func(i, j int) bool {
		if changes[i].Depth != changes[j].Depth {
			return changes[i].Depth < changes[j].Depth
		}
		return changes[i].EntityID.String() < changes[j].EntityID.String()
	})

	return &models.ScenarioResults{
		RunAt:            runAt,
		SnapshotTakenAt:  snap.TakenAt(),
		AffectedEntities: changes,
		TotalRiskChange:  total,
		Recommendations:  recommend(snap, changes),
	}, nil
}

// buildOverlay translates the scenario's hypothesis into score-time changes.
func buildOverlay(scenario *models.Scenario, runAt time.Time) (*scoring.Overlay, error) {
	overlay := &scoring.Overlay{
		ExtraConstraints: make(map[id.EntityID][]*graphmodels.Constraint),
		StatusChanges:    make(map[id.EntityID]graphmodels.EntityStatus),
	}

	switch scenario.Type {
	case models.ScenarioConstraintChange, models.ScenarioStressTest, models.ScenarioWhatIf, models.ScenarioCascadingEffect:
		overlay.ExtraConstraints[scenario.TriggerEntityID] = []*graphmodels.Constraint{
			hypotheticalConstraint(scenario, runAt),
		}
	case models.ScenarioEntityStatusChange:
		status := graphmodels.EntityStatus(stringParam(scenario, "new_status", string(graphmodels.EntityStatusInactive)))
		if _, err := graphmodels.ParseEntityStatus(string(status)); err != nil {
			return nil, err
		}
		overlay.StatusChanges[scenario.TriggerEntityID] = status
		// A non-active trigger also carries the hypothesis constraint so the
		// downstream delta reflects the distress, not just the removal.
		if status != graphmodels.EntityStatusArchived {
			overlay.ExtraConstraints[scenario.TriggerEntityID] = []*graphmodels.Constraint{
				hypotheticalConstraint(scenario, runAt),
			}
		}
	case models.ScenarioDependencyFailure:
		// The supplier drops out: treat as archived so its edges stop
		// propagating, without touching the live graph.
		overlay.StatusChanges[scenario.TriggerEntityID] = graphmodels.EntityStatusArchived
	default:
		return nil, dErrors.Newf(dErrors.CodeValidation, "invalid scenario type %q", scenario.Type)
	}
	return overlay, nil
}

func hypotheticalConstraint(scenario *models.Scenario, runAt time.Time) *graphmodels.Constraint {
	return &graphmodels.Constraint{
		ID:            id.NewConstraintID(),
		Type:          graphmodels.ConstraintType(stringParam(scenario, "constraint_type", string(graphmodels.ConstraintSanction))),
		Name:          scenario.Hypothesis,
		Severity:      graphmodels.Severity(stringParam(scenario, "severity", string(graphmodels.SeverityCritical))),
		EffectiveDate: runAt.Add(-time.Second),
		RiskWeight:    numberParam(scenario, "risk_weight", 10),
		IsMandatory:   boolParam(scenario, "is_mandatory", true),
	}
}

// reachableSet collects the trigger plus every entity reachable from it over
// outbound edges within maxDepth, honoring the scenario's type and layer
// filters. Order is deterministic: by depth, then entity id.
func (e *Engine) reachableSet(snap *graphmodels.Snapshot, trigger *graphmodels.Entity, scenario *models.Scenario, maxDepth int) []reachableEntity {
	typeFilter := make(map[graphmodels.EntityType]bool, len(scenario.AffectedTypes))
	for _, t := range scenario.AffectedTypes {
		typeFilter[t] = true
	}
	layerFilter := make(map[graphmodels.Layer]bool, len(scenario.AffectedLayers))
	for _, l := range scenario.AffectedLayers {
		layerFilter[l] = true
	}

	visited := map[id.EntityID]bool{trigger.ID: true}
	members := []reachableEntity{{entity: trigger, depth: 0}}
	frontier := []reachableEntity{{entity: trigger, depth: 0}}

	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		if cur.depth >= maxDepth {
			continue
		}
		edges := append([]*graphmodels.Dependency(nil), snap.Outbound(cur.entity.ID)...)
		sort.Slice(edges, func(i, j int) bool {
			return edges[i].TargetEntityID.String() < edges[j].TargetEntityID.String()
		})
		for _, edge := range edges {
			if len(layerFilter) > 0 && !layerFilter[edge.Layer] {
				continue
			}
			neighbor := snap.Entity(edge.TargetEntityID)
			if neighbor == nil || visited[neighbor.ID] || neighbor.IsArchived() {
				continue
			}
			visited[neighbor.ID] = true
			member := reachableEntity{entity: neighbor, depth: cur.depth + 1}
			frontier = append(frontier, member)
			if len(typeFilter) > 0 && !typeFilter[neighbor.Type] {
				continue
			}
			members = append(members, member)
		}
	}
	return members
}

func changeReason(scenario *models.Scenario, depth int, triggerName string) string {
	switch depth {
	case 0:
		return fmt.Sprintf("hypothesis applies directly: %s", scenario.Hypothesis)
	case 1:
		return fmt.Sprintf("directly depends on %s", triggerName)
	default:
		return fmt.Sprintf("transitively exposed to %s (%d hops)", triggerName, depth)
	}
}

// recommend derives playbook suggestions from which layers dominate the
// propagated deltas.
func recommend(snap *graphmodels.Snapshot, changes []models.RiskChange) []string {
	if len(changes) == 0 {
		return nil
	}

	layerDelta := make(map[graphmodels.Layer]float64)
	criticalEdges := 0
	for _, change := range changes {
		if change.Depth == 0 || change.Delta <= 0 {
			continue
		}
		for _, edge := range snap.Inbound(change.EntityID) {
			layerDelta[edge.Layer] += change.Delta
			if edge.IsCritical {
				criticalEdges++
			}
		}
	}

	var dominant graphmodels.Layer
	var max float64
	for _, layer := range graphmodels.Layers() {
		if layerDelta[layer] > max {
			max = layerDelta[layer]
			dominant = layer
		}
	}

	var out []string
	if dominant != "" {
		out = append(out, fmt.Sprintf("reduce concentration in layer %s: it carries the largest propagated risk increase", dominant))
		if dominant == graphmodels.LayerSupplyChain {
			out = append(out, "diversify suppliers for entities depending on the trigger")
		}
	}
	if criticalEdges > 0 {
		out = append(out, fmt.Sprintf("review %d critical dependencies in the affected set for fallback options", criticalEdges))
	}
	if len(changes) > 0 && changes[0].NewScore >= 75 {
		out = append(out, "trigger entity reaches critical risk under this hypothesis; prepare a mitigation plan before it materializes")
	}
	return out
}

func wrapScenario(err error, scenarioID id.ScenarioID) error {
	return dErrors.Wrap(err, dErrors.CodeOf(err), "scenario "+scenarioID.String())
}

func stringParam(s *models.Scenario, key, fallback string) string {
	if p, ok := s.Parameters[key]; ok && p.Kind == models.ParameterString && p.String != "" {
		return p.String
	}
	return fallback
}

func numberParam(s *models.Scenario, key string, fallback float64) float64 {
	if p, ok := s.Parameters[key]; ok && p.Kind == models.ParameterNumber {
		return p.Number
	}
	return fallback
}

func boolParam(s *models.Scenario, key string, fallback bool) bool {
	if p, ok := s.Parameters[key]; ok && p.Kind == models.ParameterBoolean {
		return p.Boolean
	}
	return fallback
}
