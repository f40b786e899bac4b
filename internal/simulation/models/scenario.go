// Package models defines hypothetical simulations: one-shot scenarios and
// time-ordered scenario chains. Results are immutable once computed; a re-run
// replaces the results pointer with a new value, never edits in place.
package models

import (
	"time"

	graphmodels "riskgraph/internal/graph/models"
	id "riskgraph/pkg/domain"
	dErrors "riskgraph/pkg/domain-errors"
)

// ScenarioType classifies the hypothesis being tested.
type ScenarioType string

const (
	ScenarioConstraintChange   ScenarioType = "constraint_change"
	ScenarioEntityStatusChange ScenarioType = "entity_status_change"
	ScenarioDependencyFailure  ScenarioType = "dependency_failure"
	ScenarioCascadingEffect    ScenarioType = "cascading_effect"
	ScenarioStressTest         ScenarioType = "stress_test"
	ScenarioWhatIf             ScenarioType = "what_if"
)

var validScenarioTypes = map[ScenarioType]bool{
	ScenarioConstraintChange:   true,
	ScenarioEntityStatusChange: true,
	ScenarioDependencyFailure:  true,
	ScenarioCascadingEffect:    true,
	ScenarioStressTest:         true,
	ScenarioWhatIf:             true,
}

// ScenarioStatus is the lifecycle state. Allowed transitions:
// draft -> running -> {completed, failed}; completed -> running (re-run);
// completed -> archived (terminal).
type ScenarioStatus string

const (
	ScenarioStatusDraft     ScenarioStatus = "draft"
	ScenarioStatusRunning   ScenarioStatus = "running"
	ScenarioStatusCompleted ScenarioStatus = "completed"
	ScenarioStatusArchived  ScenarioStatus = "archived"
	ScenarioStatusFailed    ScenarioStatus = "failed"
)

// ParseScenarioStatus validates a status filter at the trust boundary.
func ParseScenarioStatus(s string) (ScenarioStatus, error) {
	switch st := ScenarioStatus(s); st {
	case ScenarioStatusDraft, ScenarioStatusRunning, ScenarioStatusCompleted,
		ScenarioStatusArchived, ScenarioStatusFailed:
		return st, nil
	}
	return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown scenario status: %q", s)
}

// ParameterKind types a scenario parameter value.
type ParameterKind string

const (
	ParameterEntity     ParameterKind = "entity"
	ParameterConstraint ParameterKind = "constraint"
	ParameterNumber     ParameterKind = "number"
	ParameterBoolean    ParameterKind = "boolean"
	ParameterString     ParameterKind = "string"
)

// Parameter is one typed key-value pair. Exactly the field matching Kind is
// meaningful.
type Parameter struct {
	Kind         ParameterKind   `json:"kind"`
	EntityID     id.EntityID     `json:"entity_id,omitempty"`
	ConstraintID id.ConstraintID `json:"constraint_id,omitempty"`
	Number       float64         `json:"number,omitempty"`
	Boolean      bool            `json:"boolean,omitempty"`
	String       string          `json:"string,omitempty"`
}

// Scenario is a single hypothetical to evaluate against a graph snapshot.
type Scenario struct {
	ID              id.ScenarioID            `json:"id"`
	Type            ScenarioType             `json:"type"`
	Status          ScenarioStatus           `json:"status"`
	Name            string                   `json:"name"`
	Hypothesis      string                   `json:"hypothesis"`
	Parameters      map[string]Parameter     `json:"parameters,omitempty"`
	TriggerEntityID id.EntityID              `json:"trigger_entity_id"`
	AffectedTypes   []graphmodels.EntityType `json:"affected_entity_types,omitempty"`
	AffectedLayers  []graphmodels.Layer      `json:"affected_layers,omitempty"`
	Results         *ScenarioResults         `json:"results,omitempty"`
	OutcomeNotes    string                   `json:"outcome_notes,omitempty"`
	LessonsLearned  string                   `json:"lessons_learned,omitempty"`
	CreatedAt       time.Time                `json:"created_at"`
	UpdatedAt       time.Time                `json:"updated_at"`
}

func (s *Scenario) Validate() error {
	if s.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "scenario name is required")
	}
	if !validScenarioTypes[s.Type] {
		return dErrors.Newf(dErrors.CodeValidation, "invalid scenario type %q", s.Type)
	}
	if s.TriggerEntityID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "scenario requires a trigger entity")
	}
	if s.Hypothesis == "" {
		return dErrors.New(dErrors.CodeValidation, "scenario hypothesis is required")
	}
	return nil
}

// Runnable reports whether a run may start from the current status.
func (s *Scenario) Runnable() bool {
	return s.Status == ScenarioStatusDraft || s.Status == ScenarioStatusCompleted
}

// Archivable reports whether the scenario can move to archived.
func (s *Scenario) Archivable() bool {
	return s.Status == ScenarioStatusCompleted
}

// ImpactType distinguishes entities hit directly by the trigger from those
// reached through further propagation.
type ImpactType string

const (
	ImpactDirect   ImpactType = "direct"
	ImpactIndirect ImpactType = "indirect"
)

// RiskChange is one entity's before/after under the hypothesis.
type RiskChange struct {
	EntityID   id.EntityID `json:"entity_id"`
	EntityName string      `json:"entity_name"`
	OldScore   float64     `json:"old_score"`
	NewScore   float64     `json:"new_score"`
	Delta      float64     `json:"delta"`
	Depth      int         `json:"depth"`
	ImpactType ImpactType  `json:"impact_type"`
	Reason     string      `json:"reason"`
}

// ScenarioResults is the immutable output of one run.
type ScenarioResults struct {
	RunAt            time.Time    `json:"run_at"`
	SnapshotTakenAt  time.Time    `json:"snapshot_taken_at"`
	AffectedEntities []RiskChange `json:"affected_entities"`
	TotalRiskChange  float64      `json:"total_risk_change"`
	Recommendations  []string     `json:"recommendations,omitempty"`
}
