// Package ports defines shared interfaces for the graph module.
// Interfaces are placed here when consumed by multiple services to avoid duplication.
package ports

import (
	"context"

	"riskgraph/internal/graph/models"
	id "riskgraph/pkg/domain"
)

// EntityFilter narrows ListEntities. Zero values match everything.
type EntityFilter struct {
	Type   models.EntityType
	Status models.EntityStatus
}

// Store is the graph source of truth: entities, dependencies, constraints.
// Pure data + query layer; referential rules live in the graph service.
// All reads return defensive copies; all writes replace whole records.
type Store interface {
	// GetEntity returns sentinel.ErrNotFound when the entity does not exist.
	GetEntity(ctx context.Context, tenantID id.TenantID, entityID id.EntityID) (*models.Entity, error)
	ListEntities(ctx context.Context, tenantID id.TenantID, filter EntityFilter) ([]*models.Entity, error)
	UpsertEntity(ctx context.Context, tenantID id.TenantID, entity *models.Entity) error

	GetDependency(ctx context.Context, tenantID id.TenantID, depID id.DependencyID) (*models.Dependency, error)
	// ListDependencies returns edges touching entityID in the given direction.
	ListDependencies(ctx context.Context, tenantID id.TenantID, entityID id.EntityID, direction models.Direction) ([]*models.Dependency, error)
	ListAllDependencies(ctx context.Context, tenantID id.TenantID) ([]*models.Dependency, error)
	UpsertDependency(ctx context.Context, tenantID id.TenantID, dep *models.Dependency) error
	DeleteDependency(ctx context.Context, tenantID id.TenantID, depID id.DependencyID) error

	GetConstraint(ctx context.Context, tenantID id.TenantID, constraintID id.ConstraintID) (*models.Constraint, error)
	ListConstraints(ctx context.Context, tenantID id.TenantID) ([]*models.Constraint, error)
	UpsertConstraint(ctx context.Context, tenantID id.TenantID, constraint *models.Constraint) error

	// Snapshot returns an immutable point-in-time copy of the tenant's graph,
	// taken under a brief exclusive read-lock.
	Snapshot(ctx context.Context, tenantID id.TenantID) (*models.Snapshot, error)
}

// ScoreInvalidator drops cached scores when the graph mutates underneath them.
type ScoreInvalidator interface {
	// InvalidateEntity drops the cached score for one entity.
	InvalidateEntity(ctx context.Context, tenantID id.TenantID, entityID id.EntityID) error
	// InvalidateTenant drops every cached score for the tenant (constraint
	// mutations can touch arbitrary subsets, so the whole tenant is flushed).
	InvalidateTenant(ctx context.Context, tenantID id.TenantID) error
}
