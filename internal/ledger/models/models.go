// Package models defines the score ledger: an append-only record of every
// computed justification and manual override, plus the current projection
// served to readers.
package models

import (
	"time"

	"github.com/google/uuid"

	scoringmodels "riskgraph/internal/scoring/models"
	id "riskgraph/pkg/domain"
	dErrors "riskgraph/pkg/domain-errors"
)

// EntryKind discriminates ledger entries.
type EntryKind string

const (
	// EntryJustificationComputed records a full recalculated justification.
	EntryJustificationComputed EntryKind = "justification_computed"
	// EntryOverrideApplied records a manual score override with its reason.
	EntryOverrideApplied EntryKind = "override_applied"
	// EntryOverrideCleared records an override being superseded by a
	// recalculation.
	EntryOverrideCleared EntryKind = "override_cleared"
)

// Entry is one immutable ledger record. Exactly one of Justification or
// Override is set, matching the kind; override_cleared carries neither.
type Entry struct {
	ID            uuid.UUID                    `json:"id"`
	TenantID      id.TenantID                  `json:"tenant_id"`
	EntityID      id.EntityID                  `json:"entity_id"`
	Kind          EntryKind                    `json:"kind"`
	Justification *scoringmodels.Justification `json:"justification,omitempty"`
	Override      *scoringmodels.Override      `json:"override,omitempty"`
	RecordedAt    time.Time                    `json:"recorded_at"`
}

// Validate enforces the kind/payload pairing before any append.
func (e *Entry) Validate() error {
	switch e.Kind {
	case EntryJustificationComputed:
		if e.Justification == nil {
			return dErrors.New(dErrors.CodeValidation, "computed entry requires a justification")
		}
	case EntryOverrideApplied:
		if e.Override == nil {
			return dErrors.New(dErrors.CodeValidation, "override entry requires an override")
		}
	case EntryOverrideCleared:
	default:
		return dErrors.Newf(dErrors.CodeValidation, "unknown ledger entry kind %q", e.Kind)
	}
	if e.EntityID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "ledger entry requires an entity id")
	}
	return nil
}

// Current is the read-side projection: the latest justification for an
// entity, with any active override attached.
type Current struct {
	EntityID      id.EntityID                  `json:"entity_id"`
	Justification *scoringmodels.Justification `json:"justification"`
	UpdatedAt     time.Time                    `json:"updated_at"`
}

// EffectiveScore returns the override value when one is active.
func (c *Current) EffectiveScore() float64 {
	return c.Justification.EffectiveScore()
}
