package models

import (
	"strings"
	"time"

	id "riskgraph/pkg/domain"
	dErrors "riskgraph/pkg/domain-errors"
)

// ConstraintType is deliberately open: tenants register new categories at
// runtime (see graph/registry) instead of recompiling. Well-known values are
// provided for convenience only.
type ConstraintType string

const (
	ConstraintPolicy     ConstraintType = "policy"
	ConstraintRegulation ConstraintType = "regulation"
	ConstraintCompliance ConstraintType = "compliance"
	ConstraintSanction   ConstraintType = "sanction"
	ConstraintContract   ConstraintType = "contract"
	ConstraintLicense    ConstraintType = "license"
	ConstraintCustom     ConstraintType = "custom"
)

// Severity orders constraints by how strongly they contribute to risk.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// ParseSeverity validates the severity enum.
func ParseSeverity(s string) (Severity, error) {
	switch sev := Severity(s); sev {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return sev, nil
	}
	return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown severity: %q", s)
}

func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Constraint is a regulatory/contractual/policy rule with applicability
// filters. An empty filter set matches all values of that dimension.
type Constraint struct {
	ID            id.ConstraintID `json:"id"`
	Type          ConstraintType  `json:"type"`
	Name          string          `json:"name"`
	Severity      Severity        `json:"severity"`
	EntityTypes   []EntityType    `json:"entity_types,omitempty"`
	Countries     []string        `json:"countries,omitempty"`
	Categories    []string        `json:"categories,omitempty"`
	EffectiveDate time.Time       `json:"effective_date"`
	ExpiryDate    *time.Time      `json:"expiry_date,omitempty"`
	RiskWeight    float64         `json:"risk_weight"`
	IsMandatory   bool            `json:"is_mandatory"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Validate enforces constraint invariants before any store write. Type
// validity against the tenant registry is checked in the service.
func (c *Constraint) Validate() error {
	if c.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "constraint name is required")
	}
	if c.Type == "" {
		return dErrors.New(dErrors.CodeValidation, "constraint type is required")
	}
	if !c.Severity.IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "invalid severity: %q", c.Severity)
	}
	if c.RiskWeight < 0 || c.RiskWeight > 10 {
		return dErrors.New(dErrors.CodeValidation, "risk_weight must be within [0,10]")
	}
	if c.EffectiveDate.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "effective_date is required")
	}
	if c.ExpiryDate != nil && !c.ExpiryDate.After(c.EffectiveDate) {
		return dErrors.New(dErrors.CodeValidation, "expiry_date must be after effective_date")
	}
	for _, t := range c.EntityTypes {
		if !t.IsValid() {
			return dErrors.Newf(dErrors.CodeValidation, "invalid entity type in filter: %q", t)
		}
	}
	return nil
}

// InEffect reports whether now falls within [effective_date, expiry_date).
func (c *Constraint) InEffect(now time.Time) bool {
	if now.Before(c.EffectiveDate) {
		return false
	}
	if c.ExpiryDate != nil && !now.Before(*c.ExpiryDate) {
		return false
	}
	return true
}

// AppliesTo reports whether the constraint applies to the entity at now.
// The entity matches when its type/country/category is a member of the
// corresponding filter set, or the filter set is empty.
func (c *Constraint) AppliesTo(e *Entity, now time.Time) bool {
	if !c.InEffect(now) {
		return false
	}
	if len(c.EntityTypes) > 0 && !containsEntityType(c.EntityTypes, e.Type) {
		return false
	}
	if len(c.Countries) > 0 && !containsFold(c.Countries, e.CountryCode) {
		return false
	}
	if len(c.Categories) > 0 && !containsFold(c.Categories, e.Category) {
		return false
	}
	return true
}

func containsEntityType(set []EntityType, t EntityType) bool {
	for _, v := range set {
		if v == t {
			return true
		}
	}
	return false
}

func containsFold(set []string, s string) bool {
	for _, v := range set {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
