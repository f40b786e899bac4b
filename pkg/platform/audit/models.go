package audit

import (
	"encoding/json"
	"time"

	id "riskgraph/pkg/domain"
)

// Event is emitted from domain logic to capture every mutating or compute
// call. Keep it transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp    time.Time       `json:"timestamp"`
	TenantID     id.TenantID     `json:"tenant_id"`
	Actor        string          `json:"actor"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id"`
	Before       json.RawMessage `json:"before,omitempty"`
	After        json.RawMessage `json:"after,omitempty"`
}

// Actions emitted by the engine. Consumers key routing off these.
const (
	ActionEntityUpsert     = "entity.upsert"
	ActionEntityArchive    = "entity.archive"
	ActionDependencyUpsert = "dependency.upsert"
	ActionConstraintUpsert = "constraint.upsert"
	ActionRecalculate      = "risk.recalculate"
	ActionOverride         = "risk.override"
	ActionScenarioRun      = "scenario.run"
	ActionScenarioArchive  = "scenario.archive"
	ActionChainSimulate    = "chain.simulate"
)
