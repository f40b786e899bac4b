// Package postgres provides the durable graph store. Schema is managed by the
// migrations in schema.go; every row is tenant-scoped.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"riskgraph/internal/graph/models"
	"riskgraph/internal/graph/ports"
	id "riskgraph/pkg/domain"
	"riskgraph/pkg/platform/sentinel"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates the graph tables when missing.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("graph schema migration: %w", err)
	}
	return nil
}

const entityColumns = "id, type, name, status, country_code, category, subcategory, criticality, tags, attributes, created_at, updated_at"

func (s *Store) GetEntity(ctx context.Context, tenantID id.TenantID, entityID id.EntityID) (*models.Entity, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+entityColumns+" FROM graph_entities WHERE tenant_id = $1 AND id = $2",
		tenantID.String(), entityID.String(),
	)
	e, err := scanEntity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return e, err
}

func (s *Store) ListEntities(ctx context.Context, tenantID id.TenantID, filter ports.EntityFilter) ([]*models.Entity, error) {
	query := "SELECT " + entityColumns + " FROM graph_entities WHERE tenant_id = $1"
	args := []any{tenantID.String()}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var out []*models.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) UpsertEntity(ctx context.Context, tenantID id.TenantID, entity *models.Entity) error {
	tags, err := json.Marshal(entity.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	attrs, err := json.Marshal(entity.Attributes)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO graph_entities (tenant_id, id, type, name, status, country_code, category, subcategory, criticality, tags, attributes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			type = EXCLUDED.type,
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			country_code = EXCLUDED.country_code,
			category = EXCLUDED.category,
			subcategory = EXCLUDED.subcategory,
			criticality = EXCLUDED.criticality,
			tags = EXCLUDED.tags,
			attributes = EXCLUDED.attributes,
			updated_at = EXCLUDED.updated_at`,
		tenantID.String(), entity.ID.String(), string(entity.Type), entity.Name,
		string(entity.Status), entity.CountryCode, entity.Category, entity.Subcategory,
		entity.Criticality, tags, attrs, entity.CreatedAt, entity.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert entity: %w", err)
	}
	return nil
}

const depColumns = "id, source_entity_id, target_entity_id, dependency_type, layer, strength, is_critical, description, created_at, updated_at"

func (s *Store) GetDependency(ctx context.Context, tenantID id.TenantID, depID id.DependencyID) (*models.Dependency, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+depColumns+" FROM graph_dependencies WHERE tenant_id = $1 AND id = $2",
		tenantID.String(), depID.String(),
	)
	d, err := scanDependency(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return d, err
}

func (s *Store) ListDependencies(ctx context.Context, tenantID id.TenantID, entityID id.EntityID, direction models.Direction) ([]*models.Dependency, error) {
	query := "SELECT " + depColumns + " FROM graph_dependencies WHERE tenant_id = $1 AND "
	switch direction {
	case models.DirectionOutbound:
		query += "source_entity_id = $2"
	case models.DirectionInbound:
		query += "target_entity_id = $2"
	default:
		query += "(source_entity_id = $2 OR target_entity_id = $2)"
	}

	rows, err := s.pool.Query(ctx, query, tenantID.String(), entityID.String())
	if err != nil {
		return nil, fmt.Errorf("list dependencies: %w", err)
	}
	defer rows.Close()
	return collectDependencies(rows)
}

func (s *Store) ListAllDependencies(ctx context.Context, tenantID id.TenantID) ([]*models.Dependency, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+depColumns+" FROM graph_dependencies WHERE tenant_id = $1",
		tenantID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list all dependencies: %w", err)
	}
	defer rows.Close()
	return collectDependencies(rows)
}

func (s *Store) UpsertDependency(ctx context.Context, tenantID id.TenantID, dep *models.Dependency) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO graph_dependencies (tenant_id, id, source_entity_id, target_entity_id, dependency_type, layer, strength, is_critical, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			source_entity_id = EXCLUDED.source_entity_id,
			target_entity_id = EXCLUDED.target_entity_id,
			dependency_type = EXCLUDED.dependency_type,
			layer = EXCLUDED.layer,
			strength = EXCLUDED.strength,
			is_critical = EXCLUDED.is_critical,
			description = EXCLUDED.description,
			updated_at = EXCLUDED.updated_at`,
		tenantID.String(), dep.ID.String(), dep.SourceEntityID.String(), dep.TargetEntityID.String(),
		string(dep.Type), string(dep.Layer), dep.Strength, dep.IsCritical, dep.Description,
		dep.CreatedAt, dep.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert dependency: %w", err)
	}
	return nil
}

func (s *Store) DeleteDependency(ctx context.Context, tenantID id.TenantID, depID id.DependencyID) error {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM graph_dependencies WHERE tenant_id = $1 AND id = $2",
		tenantID.String(), depID.String(),
	)
	if err != nil {
		return fmt.Errorf("delete dependency: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

const constraintColumns = "id, type, name, severity, entity_types, countries, categories, effective_date, expiry_date, risk_weight, is_mandatory, created_at, updated_at"

func (s *Store) GetConstraint(ctx context.Context, tenantID id.TenantID, constraintID id.ConstraintID) (*models.Constraint, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+constraintColumns+" FROM graph_constraints WHERE tenant_id = $1 AND id = $2",
		tenantID.String(), constraintID.String(),
	)
	c, err := scanConstraint(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return c, err
}

func (s *Store) ListConstraints(ctx context.Context, tenantID id.TenantID) ([]*models.Constraint, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+constraintColumns+" FROM graph_constraints WHERE tenant_id = $1",
		tenantID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list constraints: %w", err)
	}
	defer rows.Close()

	var out []*models.Constraint
	for rows.Next() {
		c, err := scanConstraint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) UpsertConstraint(ctx context.Context, tenantID id.TenantID, constraint *models.Constraint) error {
	entityTypes, err := json.Marshal(constraint.EntityTypes)
	if err != nil {
		return fmt.Errorf("marshal entity type filter: %w", err)
	}
	countries, err := json.Marshal(constraint.Countries)
	if err != nil {
		return fmt.Errorf("marshal country filter: %w", err)
	}
	categories, err := json.Marshal(constraint.Categories)
	if err != nil {
		return fmt.Errorf("marshal category filter: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO graph_constraints (tenant_id, id, type, name, severity, entity_types, countries, categories, effective_date, expiry_date, risk_weight, is_mandatory, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			type = EXCLUDED.type,
			name = EXCLUDED.name,
			severity = EXCLUDED.severity,
			entity_types = EXCLUDED.entity_types,
			countries = EXCLUDED.countries,
			categories = EXCLUDED.categories,
			effective_date = EXCLUDED.effective_date,
			expiry_date = EXCLUDED.expiry_date,
			risk_weight = EXCLUDED.risk_weight,
			is_mandatory = EXCLUDED.is_mandatory,
			updated_at = EXCLUDED.updated_at`,
		tenantID.String(), constraint.ID.String(), string(constraint.Type), constraint.Name,
		string(constraint.Severity), entityTypes, countries, categories,
		constraint.EffectiveDate, constraint.ExpiryDate, constraint.RiskWeight,
		constraint.IsMandatory, constraint.CreatedAt, constraint.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert constraint: %w", err)
	}
	return nil
}

// Snapshot reads all three tables inside one repeatable-read transaction so
// scoring and simulations never observe a half-applied mutation.
func (s *Store) Snapshot(ctx context.Context, tenantID id.TenantID) (*models.Snapshot, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	takenAt := time.Now().UTC()

	entityRows, err := tx.Query(ctx,
		"SELECT "+entityColumns+" FROM graph_entities WHERE tenant_id = $1",
		tenantID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("snapshot entities: %w", err)
	}
	var entities []*models.Entity
	for entityRows.Next() {
		e, err := scanEntity(entityRows)
		if err != nil {
			entityRows.Close()
			return nil, err
		}
		entities = append(entities, e)
	}
	entityRows.Close()
	if err := entityRows.Err(); err != nil {
		return nil, err
	}

	depRows, err := tx.Query(ctx,
		"SELECT "+depColumns+" FROM graph_dependencies WHERE tenant_id = $1",
		tenantID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("snapshot dependencies: %w", err)
	}
	deps, err := collectDependencies(depRows)
	depRows.Close()
	if err != nil {
		return nil, err
	}

	constraintRows, err := tx.Query(ctx,
		"SELECT "+constraintColumns+" FROM graph_constraints WHERE tenant_id = $1",
		tenantID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("snapshot constraints: %w", err)
	}
	var constraints []*models.Constraint
	for constraintRows.Next() {
		c, err := scanConstraint(constraintRows)
		if err != nil {
			constraintRows.Close()
			return nil, err
		}
		constraints = append(constraints, c)
	}
	constraintRows.Close()
	if err := constraintRows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit snapshot tx: %w", err)
	}
	return models.NewSnapshot(tenantID, takenAt, entities, deps, constraints), nil
}

func collectDependencies(rows pgx.Rows) ([]*models.Dependency, error) {
	var out []*models.Dependency
	for rows.Next() {
		d, err := scanDependency(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanEntity(row pgx.Row) (*models.Entity, error) {
	var (
		e                  models.Entity
		entityID           string
		entityType, status string
		tags, attrs        []byte
	)
	err := row.Scan(&entityID, &entityType, &e.Name, &status, &e.CountryCode,
		&e.Category, &e.Subcategory, &e.Criticality, &tags, &attrs, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	parsed, err := id.ParseEntityID(entityID)
	if err != nil {
		return nil, fmt.Errorf("corrupt entity id %q: %w", entityID, err)
	}
	e.ID = parsed
	e.Type = models.EntityType(entityType)
	e.Status = models.EntityStatus(status)
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &e.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &e.Attributes); err != nil {
			return nil, fmt.Errorf("unmarshal attributes: %w", err)
		}
	}
	return &e, nil
}

func scanDependency(row pgx.Row) (*models.Dependency, error) {
	var (
		d                   models.Dependency
		depID, srcID, dstID string
		depType, layer      string
	)
	err := row.Scan(&depID, &srcID, &dstID, &depType, &layer, &d.Strength,
		&d.IsCritical, &d.Description, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	parsedID, err := id.ParseDependencyID(depID)
	if err != nil {
		return nil, fmt.Errorf("corrupt dependency id %q: %w", depID, err)
	}
	src, err := id.ParseEntityID(srcID)
	if err != nil {
		return nil, fmt.Errorf("corrupt source entity id %q: %w", srcID, err)
	}
	dst, err := id.ParseEntityID(dstID)
	if err != nil {
		return nil, fmt.Errorf("corrupt target entity id %q: %w", dstID, err)
	}
	d.ID = parsedID
	d.SourceEntityID = src
	d.TargetEntityID = dst
	d.Type = models.DependencyType(depType)
	d.Layer = models.Layer(layer)
	return &d, nil
}

func scanConstraint(row pgx.Row) (*models.Constraint, error) {
	var (
		c                                  models.Constraint
		constraintID, cType, severity      string
		entityTypes, countries, categories []byte
	)
	err := row.Scan(&constraintID, &cType, &c.Name, &severity, &entityTypes,
		&countries, &categories, &c.EffectiveDate, &c.ExpiryDate, &c.RiskWeight,
		&c.IsMandatory, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	parsed, err := id.ParseConstraintID(constraintID)
	if err != nil {
		return nil, fmt.Errorf("corrupt constraint id %q: %w", constraintID, err)
	}
	c.ID = parsed
	c.Type = models.ConstraintType(cType)
	c.Severity = models.Severity(severity)
	if len(entityTypes) > 0 {
		if err := json.Unmarshal(entityTypes, &c.EntityTypes); err != nil {
			return nil, fmt.Errorf("unmarshal entity type filter: %w", err)
		}
	}
	if len(countries) > 0 {
		if err := json.Unmarshal(countries, &c.Countries); err != nil {
			return nil, fmt.Errorf("unmarshal country filter: %w", err)
		}
	}
	if len(categories) > 0 {
		if err := json.Unmarshal(categories, &c.Categories); err != nil {
			return nil, fmt.Errorf("unmarshal category filter: %w", err)
		}
	}
	return &c, nil
}
