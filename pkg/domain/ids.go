// Package domain holds typed identifiers and shared domain primitives.
//
// IDs are distinct uuid wrappers so the compiler rejects cross-type
// assignment (an EntityID can never be passed where a TenantID is expected).
// Construct via the ParseX functions at trust boundaries; direct casting
// bypasses validation.
package domain

import (
	"github.com/google/uuid"

	dErrors "riskgraph/pkg/domain-errors"
)

type (
	// TenantID scopes every graph read/write and recalculation.
	TenantID uuid.UUID
	// EntityID identifies a monitored entity (node in the risk graph).
	EntityID uuid.UUID
	// DependencyID identifies a directed, typed edge between two entities.
	DependencyID uuid.UUID
	// ConstraintID identifies a regulatory/contractual/policy rule record.
	ConstraintID uuid.UUID
	// ScenarioID identifies a one-shot hypothetical simulation.
	ScenarioID uuid.UUID
	// ChainID identifies a time-ordered scenario chain.
	ChainID uuid.UUID
)

func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s id cannot be empty", kind)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "invalid %s id: must be a UUID", kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s id cannot be the nil UUID", kind)
	}
	return u, nil
}

// ParseTenantID validates and returns a TenantID.
func ParseTenantID(s string) (TenantID, error) {
	u, err := parseUUID(s, "tenant")
	return TenantID(u), err
}

// ParseEntityID validates and returns an EntityID.
func ParseEntityID(s string) (EntityID, error) {
	u, err := parseUUID(s, "entity")
	return EntityID(u), err
}

// ParseDependencyID validates and returns a DependencyID.
func ParseDependencyID(s string) (DependencyID, error) {
	u, err := parseUUID(s, "dependency")
	return DependencyID(u), err
}

// ParseConstraintID validates and returns a ConstraintID.
func ParseConstraintID(s string) (ConstraintID, error) {
	u, err := parseUUID(s, "constraint")
	return ConstraintID(u), err
}

// ParseScenarioID validates and returns a ScenarioID.
func ParseScenarioID(s string) (ScenarioID, error) {
	u, err := parseUUID(s, "scenario")
	return ScenarioID(u), err
}

// ParseChainID validates and returns a ChainID.
func ParseChainID(s string) (ChainID, error) {
	u, err := parseUUID(s, "chain")
	return ChainID(u), err
}

// NewTenantID returns a fresh random TenantID.
func NewTenantID() TenantID { return TenantID(uuid.New()) }

// NewEntityID returns a fresh random EntityID.
func NewEntityID() EntityID { return EntityID(uuid.New()) }

// NewDependencyID returns a fresh random DependencyID.
func NewDependencyID() DependencyID { return DependencyID(uuid.New()) }

// NewConstraintID returns a fresh random ConstraintID.
func NewConstraintID() ConstraintID { return ConstraintID(uuid.New()) }

// NewScenarioID returns a fresh random ScenarioID.
func NewScenarioID() ScenarioID { return ScenarioID(uuid.New()) }

// NewChainID returns a fresh random ChainID.
func NewChainID() ChainID { return ChainID(uuid.New()) }

func (id TenantID) String() string     { return uuid.UUID(id).String() }
func (id EntityID) String() string     { return uuid.UUID(id).String() }
func (id DependencyID) String() string { return uuid.UUID(id).String() }
func (id ConstraintID) String() string { return uuid.UUID(id).String() }
func (id ScenarioID) String() string   { return uuid.UUID(id).String() }
func (id ChainID) String() string      { return uuid.UUID(id).String() }

func (id TenantID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id EntityID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id DependencyID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ConstraintID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ScenarioID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id ChainID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }

// MarshalText/UnmarshalText keep typed IDs transparent in JSON payloads.

func (id TenantID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id EntityID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id DependencyID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id ConstraintID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id ScenarioID) MarshalText() ([]byte, error)   { return []byte(id.String()), nil }
func (id ChainID) MarshalText() ([]byte, error)      { return []byte(id.String()), nil }

func (id *TenantID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = TenantID(u)
	return nil
}

func (id *EntityID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = EntityID(u)
	return nil
}

func (id *DependencyID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = DependencyID(u)
	return nil
}

func (id *ConstraintID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = ConstraintID(u)
	return nil
}

func (id *ScenarioID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = ScenarioID(u)
	return nil
}

func (id *ChainID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = ChainID(u)
	return nil
}
