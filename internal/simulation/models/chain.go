package models

import (
	"sort"
	"time"

	id "riskgraph/pkg/domain"
	dErrors "riskgraph/pkg/domain-errors"
)

// EffectType classifies a chain effect.
type EffectType string

const (
	EffectConstraintApplied EffectType = "constraint_applied"
	EffectStatusChange      EffectType = "status_change"
	EffectDependencyFailure EffectType = "dependency_failure"
	EffectScoreShock        EffectType = "score_shock"
)

var validEffectTypes = map[EffectType]bool{
	EffectConstraintApplied: true,
	EffectStatusChange:      true,
	EffectDependencyFailure: true,
	EffectScoreShock:        true,
}

// ChainEffect is one step in a scenario chain, scheduled relative to the
// previous step by DelayDays.
type ChainEffect struct {
	SequenceOrder  int               `json:"sequence_order"`
	EffectType     EffectType        `json:"effect_type"`
	TargetEntityID id.EntityID       `json:"target_entity_id"`
	DelayDays      int               `json:"delay_days"`
	Probability    float64           `json:"probability"`
	ImpactScore    float64           `json:"impact_score"`
	Conditions     map[string]string `json:"conditions,omitempty"`
}

// ScenarioChain is a time-ordered sequence of effects triggered by one event.
type ScenarioChain struct {
	ID              id.ChainID    `json:"id"`
	Name            string        `json:"name"`
	TriggerEvent    string        `json:"trigger_event"`
	TriggerEntityID id.EntityID   `json:"trigger_entity_id"`
	Effects         []ChainEffect `json:"effects"`
	Archived        bool          `json:"archived"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

func (c *ScenarioChain) Validate() error {
	if c.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "chain name is required")
	}
	if c.TriggerEvent == "" {
		return dErrors.New(dErrors.CodeValidation, "chain trigger event is required")
	}
	if c.TriggerEntityID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "chain requires a trigger entity")
	}
	if len(c.Effects) == 0 {
		return dErrors.New(dErrors.CodeValidation, "chain requires at least one effect")
	}
	for i, eff := range c.Effects {
		if !validEffectTypes[eff.EffectType] {
			return dErrors.Newf(dErrors.CodeValidation, "effect %d: invalid effect type %q", i, eff.EffectType)
		}
		if eff.TargetEntityID.IsNil() {
			return dErrors.Newf(dErrors.CodeValidation, "effect %d: target entity is required", i)
		}
		if eff.Probability < 0 || eff.Probability > 1 {
			return dErrors.Newf(dErrors.CodeValidation, "effect %d: probability %.2f outside [0, 1]", i, eff.Probability)
		}
		if eff.DelayDays < 0 {
			return dErrors.Newf(dErrors.CodeValidation, "effect %d: delay days cannot be negative", i)
		}
		if eff.ImpactScore < 0 || eff.ImpactScore > 100 {
			return dErrors.Newf(dErrors.CodeValidation, "effect %d: impact score %.2f outside [0, 100]", i, eff.ImpactScore)
		}
	}
	return nil
}

// OrderedEffects returns the effects sorted by sequence order, ties broken by
// slice position so simulation order is stable.
func (c *ScenarioChain) OrderedEffects() []ChainEffect {
	out := make([]ChainEffect, len(c.Effects))
	copy(out, c.Effects)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SequenceOrder < out[j].SequenceOrder
	})
	return out
}

// AppliedEffect is one effect as it landed in the simulated timeline.
type AppliedEffect struct {
	SequenceOrder  int         `json:"sequence_order"`
	EffectType     EffectType  `json:"effect_type"`
	TargetEntityID id.EntityID `json:"target_entity_id"`
	EntityName     string      `json:"entity_name"`
	ExpectedImpact float64     `json:"expected_impact"`
	PropagatedTo   int         `json:"propagated_to"`
}

// TimelineDay groups the effects landing on one simulated day.
type TimelineDay struct {
	Day     int             `json:"day"`
	Effects []AppliedEffect `json:"effects"`
}

// TrajectoryPoint is the running sum of expected impact as of a simulated day.
type TrajectoryPoint struct {
	Day              int     `json:"day"`
	CumulativeImpact float64 `json:"cumulative_impact"`
}

// ChainSimulationResult is the deterministic output of one chain simulation.
type ChainSimulationResult struct {
	ChainID          id.ChainID        `json:"chain_id"`
	MaxDepth         int               `json:"max_depth"`
	SimulatedAt      time.Time         `json:"simulated_at"`
	SnapshotTakenAt  time.Time         `json:"snapshot_taken_at"`
	Timeline         []TimelineDay     `json:"timeline"`
	RiskTrajectory   []TrajectoryPoint `json:"risk_trajectory"`
	AffectedEntities []RiskChange      `json:"affected_entities"`
	TotalExpected    float64           `json:"total_expected_impact"`
}
