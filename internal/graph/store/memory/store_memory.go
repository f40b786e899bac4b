// Package memory provides the in-memory graph store used by tests and
// single-process deployments. Postgres is the durable alternative.
package memory

import (
	"context"
	"sync"
	"time"

	"riskgraph/internal/graph/models"
	"riskgraph/internal/graph/ports"
	id "riskgraph/pkg/domain"
	"riskgraph/pkg/platform/sentinel"
)

type tenantGraph struct {
	entities     map[id.EntityID]*models.Entity
	dependencies map[id.DependencyID]*models.Dependency
	constraints  map[id.ConstraintID]*models.Constraint
}

// Store keeps one graph per tenant behind a single RWMutex. Snapshot holds
// the read lock just long enough to copy; everything downstream is lock-free.
type Store struct {
	mu      sync.RWMutex
	tenants map[id.TenantID]*tenantGraph
}

func New() *Store {
	return &Store{tenants: make(map[id.TenantID]*tenantGraph)}
}

func (s *Store) graph(tenantID id.TenantID) *tenantGraph {
	g, ok := s.tenants[tenantID]
	if !ok {
		g = &tenantGraph{
			entities:     make(map[id.EntityID]*models.Entity),
			dependencies: make(map[id.DependencyID]*models.Dependency),
			constraints:  make(map[id.ConstraintID]*models.Constraint),
		}
		s.tenants[tenantID] = g
	}
	return g
}

func (s *Store) GetEntity(_ context.Context, tenantID id.TenantID, entityID id.EntityID) (*models.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.tenants[tenantID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	e, ok := g.entities[entityID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneEntity(e), nil
}

func (s *Store) ListEntities(_ context.Context, tenantID id.TenantID, filter ports.EntityFilter) ([]*models.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.tenants[tenantID]
	if !ok {
		return nil, nil
	}
	var out []*models.Entity
	for _, e := range g.entities {
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		out = append(out, cloneEntity(e))
	}
	return out, nil
}

func (s *Store) UpsertEntity(_ context.Context, tenantID id.TenantID, entity *models.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.graph(tenantID).entities[entity.ID] = cloneEntity(entity)
	return nil
}

func (s *Store) GetDependency(_ context.Context, tenantID id.TenantID, depID id.DependencyID) (*models.Dependency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.tenants[tenantID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	d, ok := g.dependencies[depID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *Store) ListDependencies(_ context.Context, tenantID id.TenantID, entityID id.EntityID, direction models.Direction) ([]*models.Dependency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.tenants[tenantID]
	if !ok {
		return nil, nil
	}
	var out []*models.Dependency
	for _, d := range g.dependencies {
		outbound := d.SourceEntityID == entityID
		inbound := d.TargetEntityID == entityID
		switch direction {
		case models.DirectionOutbound:
			if !outbound {
				continue
			}
		case models.DirectionInbound:
			if !inbound {
				continue
			}
		default:
			if !outbound && !inbound {
				continue
			}
		}
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) ListAllDependencies(_ context.Context, tenantID id.TenantID) ([]*models.Dependency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.tenants[tenantID]
	if !ok {
		return nil, nil
	}
	out := make([]*models.Dependency, 0, len(g.dependencies))
	for _, d := range g.dependencies {
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) UpsertDependency(_ context.Context, tenantID id.TenantID, dep *models.Dependency) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *dep
	s.graph(tenantID).dependencies[dep.ID] = &cp
	return nil
}

func (s *Store) DeleteDependency(_ context.Context, tenantID id.TenantID, depID id.DependencyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.tenants[tenantID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if _, ok := g.dependencies[depID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(g.dependencies, depID)
	return nil
}

func (s *Store) GetConstraint(_ context.Context, tenantID id.TenantID, constraintID id.ConstraintID) (*models.Constraint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.tenants[tenantID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c, ok := g.constraints[constraintID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneConstraint(c), nil
}

func (s *Store) ListConstraints(_ context.Context, tenantID id.TenantID) ([]*models.Constraint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.tenants[tenantID]
	if !ok {
		return nil, nil
	}
	out := make([]*models.Constraint, 0, len(g.constraints))
	for _, c := range g.constraints {
		out = append(out, cloneConstraint(c))
	}
	return out, nil
}

func (s *Store) UpsertConstraint(_ context.Context, tenantID id.TenantID, constraint *models.Constraint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.graph(tenantID).constraints[constraint.ID] = cloneConstraint(constraint)
	return nil
}

func (s *Store) Snapshot(_ context.Context, tenantID id.TenantID) (*models.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now().UTC()
	g, ok := s.tenants[tenantID]
	if !ok {
		return models.NewSnapshot(tenantID, now, nil, nil, nil), nil
	}

	entities := make([]*models.Entity, 0, len(g.entities))
	for _, e := range g.entities {
		entities = append(entities, cloneEntity(e))
	}
	deps := make([]*models.Dependency, 0, len(g.dependencies))
	for _, d := range g.dependencies {
		cp := *d
		deps = append(deps, &cp)
	}
	constraints := make([]*models.Constraint, 0, len(g.constraints))
	for _, c := range g.constraints {
		constraints = append(constraints, cloneConstraint(c))
	}
	return models.NewSnapshot(tenantID, now, entities, deps, constraints), nil
}

func cloneEntity(e *models.Entity) *models.Entity {
	cp := *e
	if e.Tags != nil {
		cp.Tags = append([]string(nil), e.Tags...)
	}
	if e.Attributes != nil {
		cp.Attributes = make(map[string]string, len(e.Attributes))
		for k, v := range e.Attributes {
			cp.Attributes[k] = v
		}
	}
	return &cp
}

func cloneConstraint(c *models.Constraint) *models.Constraint {
	cp := *c
	if c.EntityTypes != nil {
		cp.EntityTypes = append([]models.EntityType(nil), c.EntityTypes...)
	}
	if c.Countries != nil {
		cp.Countries = append([]string(nil), c.Countries...)
	}
	if c.Categories != nil {
		cp.Categories = append([]string(nil), c.Categories...)
	}
	if c.ExpiryDate != nil {
		t := *c.ExpiryDate
		cp.ExpiryDate = &t
	}
	return &cp
}
