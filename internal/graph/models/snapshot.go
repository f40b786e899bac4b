package models

import (
	"time"

	id "riskgraph/pkg/domain"
)

// Snapshot is an immutable, point-in-time copy of one tenant's graph. It is
// taken under the store's lock and then consumed lock-free by scoring workers
// and simulations. Nothing here mutates after construction.
type Snapshot struct {
	tenantID    id.TenantID
	takenAt     time.Time
	entities    map[id.EntityID]*Entity
	outbound    map[id.EntityID][]*Dependency
	inbound     map[id.EntityID][]*Dependency
	constraints []*Constraint
}

// NewSnapshot builds the snapshot's adjacency indexes. Callers must hand over
// ownership of the passed values; the snapshot does not deep-copy them.
func NewSnapshot(tenantID id.TenantID, takenAt time.Time, entities []*Entity, deps []*Dependency, constraints []*Constraint) *Snapshot {
	s := &Snapshot{
		tenantID:    tenantID,
		takenAt:     takenAt,
		entities:    make(map[id.EntityID]*Entity, len(entities)),
		outbound:    make(map[id.EntityID][]*Dependency),
		inbound:     make(map[id.EntityID][]*Dependency),
		constraints: constraints,
	}
	for _, e := range entities {
		s.entities[e.ID] = e
	}
	for _, d := range deps {
		s.outbound[d.SourceEntityID] = append(s.outbound[d.SourceEntityID], d)
		s.inbound[d.TargetEntityID] = append(s.inbound[d.TargetEntityID], d)
	}
	return s
}

// TenantID returns the tenant this snapshot was taken for.
func (s *Snapshot) TenantID() id.TenantID { return s.tenantID }

// TakenAt returns the snapshot's point in time. All applicability checks
// against this snapshot use this instant, not the wall clock.
func (s *Snapshot) TakenAt() time.Time { return s.takenAt }

// Entity looks up an entity by id; nil when absent.
func (s *Snapshot) Entity(entityID id.EntityID) *Entity {
	return s.entities[entityID]
}

// Entities returns every entity in the snapshot. The returned slice is fresh;
// the pointed-to entities are shared and must not be mutated.
func (s *Snapshot) Entities() []*Entity {
	out := make([]*Entity, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, e)
	}
	return out
}

// EntityCount returns the number of entities in the snapshot.
func (s *Snapshot) EntityCount() int { return len(s.entities) }

// Outbound returns edges whose source is entityID.
func (s *Snapshot) Outbound(entityID id.EntityID) []*Dependency {
	return s.outbound[entityID]
}

// Inbound returns edges whose target is entityID.
func (s *Snapshot) Inbound(entityID id.EntityID) []*Dependency {
	return s.inbound[entityID]
}

// Dependencies returns every edge once.
func (s *Snapshot) Dependencies() []*Dependency {
	var out []*Dependency
	for _, edges := range s.outbound {
		out = append(out, edges...)
	}
	return out
}

// Constraints returns every constraint record in the snapshot.
func (s *Snapshot) Constraints() []*Constraint {
	return s.constraints
}

// ApplicableConstraints filters the snapshot's constraints down to those that
// apply to the entity at the snapshot instant.
func (s *Snapshot) ApplicableConstraints(e *Entity) []*Constraint {
	var out []*Constraint
	for _, c := range s.constraints {
		if c.AppliesTo(e, s.takenAt) {
			out = append(out, c)
		}
	}
	return out
}
