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

// DefaultChainMaxDepth bounds how many hops each effect propagates when the
// caller does not say otherwise.
const DefaultChainMaxDepth = 5

// SimulateChain plays the chain's effects in sequence order onto a simulated
// calendar. Each effect lands on day = cumulative delay_days, contributes its
// expected impact (probability x impact_score) to its target, and propagates
// a decayed share along outbound edges for up to maxDepth hops. maxDepth 0
// applies the listed effects with no propagation; a negative maxDepth selects
// the default. Identical inputs produce identical output: iteration orders
// are fixed and nothing is sampled.
func (e *Engine) SimulateChain(snap *graphmodels.Snapshot, chain *models.ScenarioChain, maxDepth int, cfg scoring.Config, simulatedAt time.Time) (*models.ChainSimulationResult, error) {
	if maxDepth < 0 {
		maxDepth = DefaultChainMaxDepth
	}
	if snap.Entity(chain.TriggerEntityID) == nil {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "chain %s: trigger entity %s not found", chain.ID, chain.TriggerEntityID)
	}

	effects := chain.OrderedEffects()

	type dayGroup struct {
		day     int
		applied []models.AppliedEffect
	}
	var (
		days        []*dayGroup
		dayIndex    = make(map[int]*dayGroup)
		impactByEnt = make(map[id.EntityID]float64)
		order       []id.EntityID
		depthByEnt  = make(map[id.EntityID]int)
		currentDay  int
		total       float64
	)
	record := func(entityID id.EntityID, impact float64, depth int) {
		if _, seen := impactByEnt[entityID]; !seen {
			order = append(order, entityID)
			depthByEnt[entityID] = depth
		}
		impactByEnt[entityID] += impact
		if depth < depthByEnt[entityID] {
			depthByEnt[entityID] = depth
		}
	}

	var trajectory []models.TrajectoryPoint
	for _, effect := range effects {
		target := snap.Entity(effect.TargetEntityID)
		if target == nil {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "chain %s: effect target %s not found", chain.ID, effect.TargetEntityID)
		}

		currentDay += effect.DelayDays
		expected := effect.Probability * effect.ImpactScore
		record(target.ID, expected, 0)
		total += expected

		// Downstream entities absorb a decayed share at each hop, up to
		// maxDepth hops out from the effect's target.
		propagated := 0
		type wavefront struct {
			entityID id.EntityID
			impact   float64
			depth    int
		}
		seen := map[id.EntityID]bool{target.ID: true}
		frontier := []wavefront{{entityID: target.ID, impact: expected}}
		for len(frontier) > 0 {
			cur := frontier[0]
			frontier = frontier[1:]
			if cur.depth >= maxDepth {
				continue
			}
			edges := append([]*graphmodels.Dependency(nil), snap.Outbound(cur.entityID)...)
			sort.Slice(edges, func(i, j int) bool {
				return edges[i].TargetEntityID.String() < edges[j].TargetEntityID.String()
			})
			for _, edge := range edges {
				neighbor := snap.Entity(edge.TargetEntityID)
				if neighbor == nil || neighbor.IsArchived() || seen[neighbor.ID] {
					continue
				}
				share := cur.impact * cfg.Decay * edgeShare(edge, cfg)
				if share == 0 {
					continue
				}
				seen[neighbor.ID] = true
				record(neighbor.ID, share, cur.depth+1)
				total += share
				propagated++
				frontier = append(frontier, wavefront{entityID: neighbor.ID, impact: share, depth: cur.depth + 1})
			}
		}

		group, ok := dayIndex[currentDay]
		if !ok {
			group = &dayGroup{day: currentDay}
			dayIndex[currentDay] = group
			days = append(days, group)
		}
		group.applied = append(group.applied, models.AppliedEffect{
			SequenceOrder:  effect.SequenceOrder,
			EffectType:     effect.EffectType,
			TargetEntityID: target.ID,
			EntityName:     target.Name,
			ExpectedImpact: expected,
			PropagatedTo:   propagated,
		})
		trajectory = append(trajectory, models.TrajectoryPoint{Day: currentDay, CumulativeImpact: total})
	}

	// Collapse trajectory points landing on the same day to the day's final
	// running sum.
	trajectory = collapseTrajectory(trajectory)

	sort.Slice(days, func(i, j int) bool { return days[i].day < days[j].day })
	timeline := make([]models.TimelineDay, len(days))
	for i, group := range days {
		timeline[i] = models.TimelineDay{Day: group.day, Effects: group.applied}
	}

	changes, err := e.chainChanges(snap, cfg, order, impactByEnt, depthByEnt, chain)
	if err != nil {
		return nil, err
	}

	return &models.ChainSimulationResult{
		ChainID:          chain.ID,
		MaxDepth:         maxDepth,
		SimulatedAt:      simulatedAt,
		SnapshotTakenAt:  snap.TakenAt(),
		Timeline:         timeline,
		RiskTrajectory:   trajectory,
		AffectedEntities: changes,
		TotalExpected:    total,
	}, nil
}

// chainChanges scores each affected entity against the snapshot and applies
// its accumulated expected impact on top, clamped to the scale.
func (e *Engine) chainChanges(snap *graphmodels.Snapshot, cfg scoring.Config, order []id.EntityID, impacts map[id.EntityID]float64, depths map[id.EntityID]int, chain *models.ScenarioChain) ([]models.RiskChange, error) {
	changes := make([]models.RiskChange, 0, len(order))
	for _, entityID := range order {
		baseline, err := e.scorer.Score(snap, entityID, cfg)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeOf(err), "chain "+chain.ID.String())
		}
		old := baseline.Score.OverallScore
		newScore := old + impacts[entityID]
		if newScore > 100 {
			newScore = 100
		}
		impactType := models.ImpactDirect
		if depths[entityID] > 1 {
			impactType = models.ImpactIndirect
		}
		entity := snap.Entity(entityID)
		changes = append(changes, models.RiskChange{
			EntityID:   entityID,
			EntityName: entity.Name,
			OldScore:   old,
			NewScore:   newScore,
			Delta:      newScore - old,
			Depth:      depths[entityID],
			ImpactType: impactType,
			Reason:     fmt.Sprintf("scenario chain %q: expected impact %.1f", chain.Name, impacts[entityID]),
		})
	}
	return changes, nil
}

func collapseTrajectory(points []models.TrajectoryPoint) []models.TrajectoryPoint {
	var out []models.TrajectoryPoint
	for _, p := range points {
		if len(out) > 0 && out[len(out)-1].Day == p.Day {
			out[len(out)-1].CumulativeImpact = p.CumulativeImpact
			continue
		}
		out = append(out, p)
	}
	return out
}

func edgeShare(edge *graphmodels.Dependency, cfg scoring.Config) float64 {
	share := edge.Strength * cfg.LayerWeight(edge.Layer)
	if edge.IsCritical {
		share *= 2
	}
	return share
}
