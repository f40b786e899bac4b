// Package service enforces the graph's referential rules on top of the pure
// data store: endpoint existence, archival protection, constraint type
// registration, score-cache invalidation, and audit emission.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"riskgraph/internal/graph/metrics"
	"riskgraph/internal/graph/models"
	"riskgraph/internal/graph/ports"
	"riskgraph/internal/graph/registry"
	id "riskgraph/pkg/domain"
	dErrors "riskgraph/pkg/domain-errors"
	"riskgraph/pkg/platform/audit"
	"riskgraph/pkg/platform/audit/publisher"
	"riskgraph/pkg/platform/sentinel"
	"riskgraph/pkg/requestcontext"
)

type Service struct {
	store       ports.Store
	registry    *registry.Registry
	invalidator ports.ScoreInvalidator
	audit       publisher.Publisher
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

func New(store ports.Store, reg *registry.Registry, invalidator ports.ScoreInvalidator, auditPub publisher.Publisher, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		store:       store,
		registry:    reg,
		invalidator: invalidator,
		audit:       auditPub,
		logger:      logger,
		metrics:     m,
	}
}

// GetEntity translates the store sentinel into a coded NotFound carrying the id.
func (s *Service) GetEntity(ctx context.Context, tenantID id.TenantID, entityID id.EntityID) (*models.Entity, error) {
	e, err := s.store.GetEntity(ctx, tenantID, entityID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "entity %s not found", entityID)
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get entity")
	}
	return e, nil
}

func (s *Service) ListEntities(ctx context.Context, tenantID id.TenantID, filter ports.EntityFilter) ([]*models.Entity, error) {
	entities, err := s.store.ListEntities(ctx, tenantID, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list entities")
	}
	return entities, nil
}

// UpsertEntity validates and writes the entity, assigning an id on create.
// The cached score for the entity is invalidated; its neighbors keep theirs
// until the next recalculation picks up the propagated change.
func (s *Service) UpsertEntity(ctx context.Context, tenantID id.TenantID, entity *models.Entity) (*models.Entity, error) {
	now := requestcontext.Now(ctx)

	var before *models.Entity
	if entity.ID.IsNil() {
		entity.ID = id.NewEntityID()
		entity.CreatedAt = now
	} else {
		existing, err := s.store.GetEntity(ctx, tenantID, entity.ID)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load existing entity")
		}
		if existing != nil {
			before = existing
			entity.CreatedAt = existing.CreatedAt
		} else {
			entity.CreatedAt = now
		}
	}
	entity.UpdatedAt = now

	if err := entity.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.UpsertEntity(ctx, tenantID, entity); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "upsert entity")
	}

	s.metrics.IncrementEntityWrites()
	s.invalidate(ctx, tenantID, entity.ID)
	s.emit(ctx, tenantID, audit.ActionEntityUpsert, "entity", entity.ID.String(), before, entity)
	return entity, nil
}

// ArchiveEntity moves the entity out of the live graph. Its edges stay in
// place for historical reads but stop propagating risk (the scoring engine
// skips archived neighbors).
func (s *Service) ArchiveEntity(ctx context.Context, tenantID id.TenantID, entityID id.EntityID) (*models.Entity, error) {
	entity, err := s.GetEntity(ctx, tenantID, entityID)
	if err != nil {
		return nil, err
	}
	if entity.IsArchived() {
		return nil, dErrors.Newf(dErrors.CodeConflict, "entity %s is already archived", entityID)
	}

	before := *entity
	entity.Status = models.EntityStatusArchived
	entity.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.UpsertEntity(ctx, tenantID, entity); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "archive entity")
	}

	s.invalidate(ctx, tenantID, entityID)
	s.emit(ctx, tenantID, audit.ActionEntityArchive, "entity", entityID.String(), &before, entity)
	return entity, nil
}

// UpsertDependency validates the edge and its endpoints. A missing endpoint
// is NotFound; an archived endpoint is InvalidEdge.
func (s *Service) UpsertDependency(ctx context.Context, tenantID id.TenantID, dep *models.Dependency) (*models.Dependency, error) {
	now := requestcontext.Now(ctx)

	if err := dep.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkEndpoint(ctx, tenantID, dep.SourceEntityID); err != nil {
		return nil, err
	}
	if err := s.checkEndpoint(ctx, tenantID, dep.TargetEntityID); err != nil {
		return nil, err
	}

	var before *models.Dependency
	if dep.ID.IsNil() {
		dep.ID = id.NewDependencyID()
		dep.CreatedAt = now
	} else {
		existing, err := s.store.GetDependency(ctx, tenantID, dep.ID)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load existing dependency")
		}
		if existing != nil {
			before = existing
			dep.CreatedAt = existing.CreatedAt
		} else {
			dep.CreatedAt = now
		}
	}
	dep.UpdatedAt = now

	if err := s.store.UpsertDependency(ctx, tenantID, dep); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "upsert dependency")
	}

	s.metrics.IncrementDependencyWrites()
	// An edge change shifts propagated risk at both endpoints.
	s.invalidate(ctx, tenantID, dep.SourceEntityID)
	s.invalidate(ctx, tenantID, dep.TargetEntityID)
	s.emit(ctx, tenantID, audit.ActionDependencyUpsert, "dependency", dep.ID.String(), before, dep)
	return dep, nil
}

func (s *Service) DeleteDependency(ctx context.Context, tenantID id.TenantID, depID id.DependencyID) error {
	dep, err := s.store.GetDependency(ctx, tenantID, depID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Newf(dErrors.CodeNotFound, "dependency %s not found", depID)
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "load dependency")
	}
	if err := s.store.DeleteDependency(ctx, tenantID, depID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "delete dependency")
	}

	s.invalidate(ctx, tenantID, dep.SourceEntityID)
	s.invalidate(ctx, tenantID, dep.TargetEntityID)
	s.emit(ctx, tenantID, audit.ActionDependencyUpsert, "dependency", depID.String(), dep, nil)
	return nil
}

func (s *Service) checkEndpoint(ctx context.Context, tenantID id.TenantID, entityID id.EntityID) error {
	e, err := s.store.GetEntity(ctx, tenantID, entityID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Newf(dErrors.CodeNotFound, "entity %s not found", entityID)
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "check edge endpoint")
	}
	if e.IsArchived() {
		return dErrors.Newf(dErrors.CodeInvalidEdge, "entity %s is archived and cannot anchor a dependency", entityID)
	}
	return nil
}

// ListDependencies returns edges touching entityID; NotFound when the entity
// does not exist (distinguishing "no edges" from "no entity").
func (s *Service) ListDependencies(ctx context.Context, tenantID id.TenantID, entityID id.EntityID, direction models.Direction) ([]*models.Dependency, error) {
	if _, err := s.GetEntity(ctx, tenantID, entityID); err != nil {
		return nil, err
	}
	deps, err := s.store.ListDependencies(ctx, tenantID, entityID, direction)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list dependencies")
	}
	return deps, nil
}

// UpsertConstraint validates the record and its type against the tenant
// registry. Constraint changes can re-score arbitrary entity subsets, so the
// whole tenant's score cache is flushed.
func (s *Service) UpsertConstraint(ctx context.Context, tenantID id.TenantID, constraint *models.Constraint) (*models.Constraint, error) {
	now := requestcontext.Now(ctx)

	if err := constraint.Validate(); err != nil {
		return nil, err
	}
	if !s.registry.Known(constraint.Type) {
		return nil, dErrors.Newf(dErrors.CodeValidation, "constraint type %q is not registered", constraint.Type)
	}

	var before *models.Constraint
	if constraint.ID.IsNil() {
		constraint.ID = id.NewConstraintID()
		constraint.CreatedAt = now
	} else {
		existing, err := s.store.GetConstraint(ctx, tenantID, constraint.ID)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load existing constraint")
		}
		if existing != nil {
			before = existing
			constraint.CreatedAt = existing.CreatedAt
		} else {
			constraint.CreatedAt = now
		}
	}
	constraint.UpdatedAt = now

	if err := s.store.UpsertConstraint(ctx, tenantID, constraint); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "upsert constraint")
	}

	s.metrics.IncrementConstraintWrites()
	if s.invalidator != nil {
		if err := s.invalidator.InvalidateTenant(ctx, tenantID); err != nil {
			s.logger.WarnContext(ctx, "tenant score cache invalidation failed",
				"tenant_id", tenantID,
				"error", err,
			)
		}
	}
	s.emit(ctx, tenantID, audit.ActionConstraintUpsert, "constraint", constraint.ID.String(), before, constraint)
	return constraint, nil
}

func (s *Service) ListConstraints(ctx context.Context, tenantID id.TenantID) ([]*models.Constraint, error) {
	constraints, err := s.store.ListConstraints(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list constraints")
	}
	return constraints, nil
}

// ListApplicableConstraints filters the tenant's constraints to those whose
// filter sets and registered type predicate both match the entity now.
func (s *Service) ListApplicableConstraints(ctx context.Context, tenantID id.TenantID, entityID id.EntityID) ([]*models.Constraint, error) {
	entity, err := s.GetEntity(ctx, tenantID, entityID)
	if err != nil {
		return nil, err
	}
	constraints, err := s.store.ListConstraints(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list constraints")
	}

	now := requestcontext.Now(ctx)
	var out []*models.Constraint
	for _, c := range constraints {
		if !c.AppliesTo(entity, now) {
			continue
		}
		matched, err := s.registry.Matches(c.Type, entity)
		if err != nil {
			s.logger.WarnContext(ctx, "constraint type predicate failed, treating as non-applicable",
				"constraint_id", c.ID,
				"error", err,
			)
			continue
		}
		if matched {
			out = append(out, c)
		}
	}
	return out, nil
}

// Snapshot returns an immutable point-in-time copy of the tenant's graph.
func (s *Service) Snapshot(ctx context.Context, tenantID id.TenantID) (*models.Snapshot, error) {
	snap, err := s.store.Snapshot(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "graph snapshot")
	}
	return snap, nil
}

// Registry exposes the tenant constraint-type registry for the handler.
func (s *Service) Registry() *registry.Registry { return s.registry }

func (s *Service) invalidate(ctx context.Context, tenantID id.TenantID, entityID id.EntityID) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.InvalidateEntity(ctx, tenantID, entityID); err != nil {
		s.logger.WarnContext(ctx, "score cache invalidation failed",
			"tenant_id", tenantID,
			"entity_id", entityID,
			"error", err,
		)
	}
}

func (s *Service) emit(ctx context.Context, tenantID id.TenantID, action, resourceType, resourceID string, before, after any) {
	if s.audit == nil {
		return
	}
	event := audit.Event{
		TenantID:     tenantID,
		Actor:        requestcontext.Actor(ctx),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
	if before != nil {
		if raw, err := json.Marshal(before); err == nil {
			event.Before = raw
		}
	}
	if after != nil {
		if raw, err := json.Marshal(after); err == nil {
			event.After = raw
		}
	}
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", action, "error", err)
	}
}
