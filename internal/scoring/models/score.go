package models

import (
	"time"

	id "riskgraph/pkg/domain"
)

// RiskLevel buckets an overall score via the tenant's thresholds.
type RiskLevel string

const (
	RiskLevelCritical RiskLevel = "critical"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMinimal  RiskLevel = "minimal"
)

// Thresholds are the lower bounds for each level. A score below Low is
// minimal. Defaults follow the platform convention (75/50/25/10).
type Thresholds struct {
	Critical float64 `json:"critical"`
	High     float64 `json:"high"`
	Medium   float64 `json:"medium"`
	Low      float64 `json:"low"`
}

// DefaultThresholds returns the platform default level boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{Critical: 75, High: 50, Medium: 25, Low: 10}
}

// Level maps a score onto its risk level.
func (t Thresholds) Level(score float64) RiskLevel {
	switch {
	case score >= t.Critical:
		return RiskLevelCritical
	case score >= t.High:
		return RiskLevelHigh
	case score >= t.Medium:
		return RiskLevelMedium
	case score >= t.Low:
		return RiskLevelLow
	default:
		return RiskLevelMinimal
	}
}

// RiskScore is the derived score record for one entity. It is overwritten on
// every recalculation; history lives in the ledger.
type RiskScore struct {
	EntityID        id.EntityID `json:"entity_id"`
	OverallScore    float64     `json:"overall_score"`
	RiskLevel       RiskLevel   `json:"risk_level"`
	ConstraintScore float64     `json:"constraint_score"`
	DependencyScore float64     `json:"dependency_score"`
	CountryScore    float64     `json:"country_score"`
	CalculatedAt    time.Time   `json:"calculated_at"`
	ValidUntil      time.Time   `json:"valid_until"`
}

// RiskFactor is one named contributor surfaced in the justification.
type RiskFactor struct {
	Category string  `json:"category"`
	Name     string  `json:"name"`
	Impact   float64 `json:"impact"`
	Weight   float64 `json:"weight"`
	Source   string  `json:"source"`
}

// ConstraintImpact explains one applicable constraint's contribution.
type ConstraintImpact struct {
	ConstraintID id.ConstraintID `json:"constraint_id"`
	Name         string          `json:"name"`
	Type         string          `json:"type"`
	Severity     string          `json:"severity"`
	IsMandatory  bool            `json:"is_mandatory"`
	Weight       float64         `json:"weight"`
	Impact       float64         `json:"impact"`
}

// DependencyImpact explains one propagated neighbor contribution.
type DependencyImpact struct {
	DependencyID   id.DependencyID `json:"dependency_id"`
	SourceEntityID id.EntityID     `json:"source_entity_id"`
	Layer          string          `json:"layer"`
	Depth          int             `json:"depth"`
	Strength       float64         `json:"strength"`
	IsCritical     bool            `json:"is_critical"`
	Contribution   float64         `json:"contribution"`
}

// Override shadows a computed score until the next recalculation.
type Override struct {
	Score     float64   `json:"score"`
	Reason    string    `json:"reason"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
}

// Justification is the factor-level explanation backing a computed score.
// Created alongside every RiskScore computation; immutable once written.
type Justification struct {
	EntityID          id.EntityID        `json:"entity_id"`
	Score             RiskScore          `json:"score"`
	Factors           []RiskFactor       `json:"factors"`
	ConstraintImpacts []ConstraintImpact `json:"constraint_impacts,omitempty"`
	DependencyImpacts []DependencyImpact `json:"dependency_impacts,omitempty"`
	ConfidenceLevel   float64            `json:"confidence_level"`
	Override          *Override          `json:"override_info,omitempty"`
}

// EffectiveScore returns the override value when present, otherwise the
// computed overall score.
func (j *Justification) EffectiveScore() float64 {
	if j.Override != nil {
		return j.Override.Score
	}
	return j.Score.OverallScore
}

// EffectiveRiskScore returns the score record a reader should see: the
// computed record when no override is in place, otherwise a copy with the
// overall score replaced by the override value and the level re-bucketed.
func (j *Justification) EffectiveRiskScore(thresholds Thresholds) RiskScore {
	score := j.Score
	if j.Override != nil {
		score.OverallScore = j.Override.Score
		score.RiskLevel = thresholds.Level(score.OverallScore)
	}
	return score
}
