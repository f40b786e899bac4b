// Package memory keeps scenarios and chains in process memory. The running
// guard is enforced under the store mutex, which makes TryMarkRunning an
// atomic compare-and-set.
package memory

import (
	"context"
	"sort"
	"sync"

	graphmodels "riskgraph/internal/graph/models"
	"riskgraph/internal/simulation/models"
	id "riskgraph/pkg/domain"
	"riskgraph/pkg/platform/sentinel"
)

type tenantSims struct {
	scenarios map[id.ScenarioID]*models.Scenario
	chains    map[id.ChainID]*models.ScenarioChain
}

type Store struct {
	mu      sync.RWMutex
	tenants map[id.TenantID]*tenantSims
}

func New() *Store {
	return &Store{tenants: make(map[id.TenantID]*tenantSims)}
}

func (s *Store) tenant(tenantID id.TenantID) *tenantSims {
	ts, ok := s.tenants[tenantID]
	if !ok {
		ts = &tenantSims{
			scenarios: make(map[id.ScenarioID]*models.Scenario),
			chains:    make(map[id.ChainID]*models.ScenarioChain),
		}
		s.tenants[tenantID] = ts
	}
	return ts
}

func (s *Store) GetScenario(_ context.Context, tenantID id.TenantID, scenarioID id.ScenarioID) (*models.Scenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ts, ok := s.tenants[tenantID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	scenario, ok := ts.scenarios[scenarioID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneScenario(scenario), nil
}

func (s *Store) ListScenarios(_ context.Context, tenantID id.TenantID, status models.ScenarioStatus) ([]*models.Scenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ts, ok := s.tenants[tenantID]
	if !ok {
		return nil, nil
	}
	var out []*models.Scenario
	for _, scenario := range ts.scenarios {
		if status != "" && scenario.Status != status {
			continue
		}
		out = append(out, cloneScenario(scenario))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpsertScenario(_ context.Context, tenantID id.TenantID, scenario *models.Scenario) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tenant(tenantID).scenarios[scenario.ID] = cloneScenario(scenario)
	return nil
}

func (s *Store) TryMarkRunning(_ context.Context, tenantID id.TenantID, scenarioID id.ScenarioID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts, ok := s.tenants[tenantID]
	if !ok {
		return false, sentinel.ErrNotFound
	}
	scenario, ok := ts.scenarios[scenarioID]
	if !ok {
		return false, sentinel.ErrNotFound
	}
	switch {
	case scenario.Status == models.ScenarioStatusRunning:
		return false, nil
	case !scenario.Runnable():
		return false, sentinel.ErrInvalidState
	}
	scenario.Status = models.ScenarioStatusRunning
	return true, nil
}

func (s *Store) ReleaseRunning(_ context.Context, tenantID id.TenantID, scenarioID id.ScenarioID, status models.ScenarioStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts, ok := s.tenants[tenantID]
	if !ok {
		return sentinel.ErrNotFound
	}
	scenario, ok := ts.scenarios[scenarioID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if scenario.Status == models.ScenarioStatusRunning {
		scenario.Status = status
	}
	return nil
}

func (s *Store) GetChain(_ context.Context, tenantID id.TenantID, chainID id.ChainID) (*models.ScenarioChain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ts, ok := s.tenants[tenantID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	chain, ok := ts.chains[chainID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneChain(chain), nil
}

func (s *Store) ListChains(_ context.Context, tenantID id.TenantID) ([]*models.ScenarioChain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ts, ok := s.tenants[tenantID]
	if !ok {
		return nil, nil
	}
	out := make([]*models.ScenarioChain, 0, len(ts.chains))
	for _, chain := range ts.chains {
		out = append(out, cloneChain(chain))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpsertChain(_ context.Context, tenantID id.TenantID, chain *models.ScenarioChain) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tenant(tenantID).chains[chain.ID] = cloneChain(chain)
	return nil
}

func cloneScenario(in *models.Scenario) *models.Scenario {
	out := *in
	if in.Parameters != nil {
		out.Parameters = make(map[string]models.Parameter, len(in.Parameters))
		for k, v := range in.Parameters {
			out.Parameters[k] = v
		}
	}
	out.AffectedTypes = append([]graphmodels.EntityType(nil), in.AffectedTypes...)
	out.AffectedLayers = append([]graphmodels.Layer(nil), in.AffectedLayers...)
	if in.Results != nil {
		results := *in.Results
		results.AffectedEntities = append([]models.RiskChange(nil), in.Results.AffectedEntities...)
		results.Recommendations = append([]string(nil), in.Results.Recommendations...)
		out.Results = &results
	}
	return &out
}

func cloneChain(in *models.ScenarioChain) *models.ScenarioChain {
	out := *in
	out.Effects = append([]models.ChainEffect(nil), in.Effects...)
	return &out
}
