package models

import (
	"time"

	id "riskgraph/pkg/domain"
	dErrors "riskgraph/pkg/domain-errors"
)

// EntityType is the closed set of monitored entity kinds.
type EntityType string

const (
	EntityTypeIndividual   EntityType = "individual"
	EntityTypeOrganization EntityType = "organization"
	EntityTypeVessel       EntityType = "vessel"
	EntityTypeAircraft     EntityType = "aircraft"
	EntityTypeAIModel      EntityType = "ai_model"
	EntityTypeDataSystem   EntityType = "data_system"
	EntityTypeVendor       EntityType = "vendor"
	EntityTypeTeam         EntityType = "team"
	EntityTypeAsset        EntityType = "asset"
	EntityTypeOther        EntityType = "other"
)

var validEntityTypes = map[EntityType]bool{
	EntityTypeIndividual:   true,
	EntityTypeOrganization: true,
	EntityTypeVessel:       true,
	EntityTypeAircraft:     true,
	EntityTypeAIModel:      true,
	EntityTypeDataSystem:   true,
	EntityTypeVendor:       true,
	EntityTypeTeam:         true,
	EntityTypeAsset:        true,
	EntityTypeOther:        true,
}

// ParseEntityType validates the closed enum at trust boundaries.
func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(s)
	if !validEntityTypes[t] {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown entity type: %q", s)
	}
	return t, nil
}

func (t EntityType) IsValid() bool { return validEntityTypes[t] }

// EntityStatus tracks the entity lifecycle. Entities are archived rather than
// hard-deleted so dependencies and historical scores stay referentially intact.
type EntityStatus string

const (
	EntityStatusActive   EntityStatus = "active"
	EntityStatusInactive EntityStatus = "inactive"
	EntityStatusArchived EntityStatus = "archived"
	EntityStatusPending  EntityStatus = "pending"
)

// ParseEntityStatus validates the status enum.
func ParseEntityStatus(s string) (EntityStatus, error) {
	switch st := EntityStatus(s); st {
	case EntityStatusActive, EntityStatusInactive, EntityStatusArchived, EntityStatusPending:
		return st, nil
	}
	return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown entity status: %q", s)
}

func (s EntityStatus) IsValid() bool {
	switch s {
	case EntityStatusActive, EntityStatusInactive, EntityStatusArchived, EntityStatusPending:
		return true
	}
	return false
}

// Entity is a monitored organization, individual, system, or asset — a node
// in the risk graph.
//
// Invariants:
//   - Type is one of the closed entity type set
//   - Criticality is ordinal 1..5
//   - Archived entities may not gain new dependencies (enforced in service)
type Entity struct {
	ID          id.EntityID       `json:"id"`
	Type        EntityType        `json:"type"`
	Name        string            `json:"name"`
	Status      EntityStatus      `json:"status"`
	CountryCode string            `json:"country_code"`
	Category    string            `json:"category"`
	Subcategory string            `json:"subcategory,omitempty"`
	Criticality int               `json:"criticality"`
	Tags        []string          `json:"tags,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Validate enforces entity invariants before any store write.
func (e *Entity) Validate() error {
	if e.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "entity name is required")
	}
	if !e.Type.IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "invalid entity type: %q", e.Type)
	}
	if !e.Status.IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "invalid entity status: %q", e.Status)
	}
	if e.Criticality < 1 || e.Criticality > 5 {
		return dErrors.New(dErrors.CodeValidation, "criticality must be between 1 and 5")
	}
	return nil
}

// IsArchived reports whether the entity has left the live graph.
func (e *Entity) IsArchived() bool { return e.Status == EntityStatusArchived }
