package models

import (
	"time"

	id "riskgraph/pkg/domain"
	dErrors "riskgraph/pkg/domain-errors"
)

// DependencyType is the closed set of relationship kinds between entities.
type DependencyType string

const (
	DependencyRequires      DependencyType = "requires"
	DependencyProvides      DependencyType = "provides"
	DependencyContractsWith DependencyType = "contracts_with"
	DependencyOwns          DependencyType = "owns"
	DependencyEmploys       DependencyType = "employs"
	DependencyFunds         DependencyType = "funds"
	DependencyRegulates     DependencyType = "regulates"
	DependencyPartnersWith  DependencyType = "partners_with"
	DependencySupplies      DependencyType = "supplies"
	DependencyDependsOn     DependencyType = "depends_on"
)

var validDependencyTypes = map[DependencyType]bool{
	DependencyRequires:      true,
	DependencyProvides:      true,
	DependencyContractsWith: true,
	DependencyOwns:          true,
	DependencyEmploys:       true,
	DependencyFunds:         true,
	DependencyRegulates:     true,
	DependencyPartnersWith:  true,
	DependencySupplies:      true,
	DependencyDependsOn:     true,
}

// ParseDependencyType validates the dependency type enum.
func ParseDependencyType(s string) (DependencyType, error) {
	t := DependencyType(s)
	if !validDependencyTypes[t] {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown dependency type: %q", s)
	}
	return t, nil
}

func (t DependencyType) IsValid() bool { return validDependencyTypes[t] }

// Layer is the dependency category. Each layer carries its own risk-weight
// multiplier in the tenant's scoring config.
type Layer string

const (
	LayerLegal       Layer = "legal"
	LayerFinancial   Layer = "financial"
	LayerOperational Layer = "operational"
	LayerHuman       Layer = "human"
	LayerAcademic    Layer = "academic"
	LayerTechnical   Layer = "technical"
	LayerSupplyChain Layer = "supply_chain"
	LayerRegulatory  Layer = "regulatory"
)

var validLayers = map[Layer]bool{
	LayerLegal:       true,
	LayerFinancial:   true,
	LayerOperational: true,
	LayerHuman:       true,
	LayerAcademic:    true,
	LayerTechnical:   true,
	LayerSupplyChain: true,
	LayerRegulatory:  true,
}

// ParseLayer validates the layer enum.
func ParseLayer(s string) (Layer, error) {
	l := Layer(s)
	if !validLayers[l] {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown dependency layer: %q", s)
	}
	return l, nil
}

func (l Layer) IsValid() bool { return validLayers[l] }

// Layers returns every known layer in a stable order, for summaries.
func Layers() []Layer {
	return []Layer{
		LayerLegal, LayerFinancial, LayerOperational, LayerHuman,
		LayerAcademic, LayerTechnical, LayerSupplyChain, LayerRegulatory,
	}
}

// Dependency is a directed, typed, layered edge between two entities.
//
// Invariants:
//   - Source and target reference existing, non-archived entities
//   - Strength is within [0,1]
//   - Source != Target (self-edges carry no propagation semantics)
type Dependency struct {
	ID             id.DependencyID `json:"id"`
	SourceEntityID id.EntityID     `json:"source_entity_id"`
	TargetEntityID id.EntityID     `json:"target_entity_id"`
	Type           DependencyType  `json:"dependency_type"`
	Layer          Layer           `json:"layer"`
	Strength       float64         `json:"strength"`
	IsCritical     bool            `json:"is_critical"`
	Description    string          `json:"description,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Validate enforces edge invariants that do not need graph context.
// Endpoint existence and archival checks live in the service, which can see
// the whole graph.
func (d *Dependency) Validate() error {
	if d.SourceEntityID.IsNil() || d.TargetEntityID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "dependency requires both source and target entity ids")
	}
	if d.SourceEntityID == d.TargetEntityID {
		return dErrors.New(dErrors.CodeValidation, "dependency cannot be a self-edge")
	}
	if !d.Type.IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "invalid dependency type: %q", d.Type)
	}
	if !d.Layer.IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "invalid dependency layer: %q", d.Layer)
	}
	if d.Strength < 0 || d.Strength > 1 {
		return dErrors.New(dErrors.CodeValidation, "dependency strength must be within [0,1]")
	}
	return nil
}

// Direction selects which edges to list relative to an entity.
type Direction string

const (
	DirectionOutbound Direction = "out"
	DirectionInbound  Direction = "in"
	DirectionBoth     Direction = "both"
)

// ParseDirection validates a direction query parameter, defaulting to both.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "":
		return DirectionBoth, nil
	case string(DirectionOutbound), string(DirectionInbound), string(DirectionBoth):
		return Direction(s), nil
	}
	return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown direction: %q", s)
}
