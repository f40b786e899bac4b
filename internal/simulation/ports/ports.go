package ports

import (
	"context"

	"riskgraph/internal/simulation/models"
	id "riskgraph/pkg/domain"
)

// Store persists scenarios and chains per tenant. TryMarkRunning is the
// concurrency guard: it atomically moves a runnable scenario into running and
// reports false when the scenario is already running.
type Store interface {
	GetScenario(ctx context.Context, tenantID id.TenantID, scenarioID id.ScenarioID) (*models.Scenario, error)
	ListScenarios(ctx context.Context, tenantID id.TenantID, status models.ScenarioStatus) ([]*models.Scenario, error)
	UpsertScenario(ctx context.Context, tenantID id.TenantID, scenario *models.Scenario) error
	// TryMarkRunning flips the scenario to running if and only if it is
	// currently runnable. Returns false without error when it is already
	// running; sentinel.ErrNotFound when the scenario does not exist;
	// sentinel.ErrInvalidState for other non-runnable statuses.
	TryMarkRunning(ctx context.Context, tenantID id.TenantID, scenarioID id.ScenarioID) (bool, error)
	// ReleaseRunning drops the running flag, landing the scenario in the
	// given status. A no-op when the scenario is not running.
	ReleaseRunning(ctx context.Context, tenantID id.TenantID, scenarioID id.ScenarioID, status models.ScenarioStatus) error

	GetChain(ctx context.Context, tenantID id.TenantID, chainID id.ChainID) (*models.ScenarioChain, error)
	ListChains(ctx context.Context, tenantID id.TenantID) ([]*models.ScenarioChain, error)
	UpsertChain(ctx context.Context, tenantID id.TenantID, chain *models.ScenarioChain) error
}
