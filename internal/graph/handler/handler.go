// Package handler exposes the graph module over HTTP: entity, dependency and
// constraint CRUD plus the read-side analysis endpoints.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"riskgraph/internal/graph/models"
	"riskgraph/internal/graph/ports"
	"riskgraph/internal/graph/registry"
	"riskgraph/internal/graph/service"
	id "riskgraph/pkg/domain"
	dErrors "riskgraph/pkg/domain-errors"
	"riskgraph/pkg/platform/httputil"
	platformstrings "riskgraph/pkg/platform/strings"
	"riskgraph/pkg/requestcontext"
)

// Service is the graph surface the handler needs.
type Service interface {
	GetEntity(ctx context.Context, tenantID id.TenantID, entityID id.EntityID) (*models.Entity, error)
	ListEntities(ctx context.Context, tenantID id.TenantID, filter ports.EntityFilter) ([]*models.Entity, error)
	UpsertEntity(ctx context.Context, tenantID id.TenantID, entity *models.Entity) (*models.Entity, error)
	ArchiveEntity(ctx context.Context, tenantID id.TenantID, entityID id.EntityID) (*models.Entity, error)

	UpsertDependency(ctx context.Context, tenantID id.TenantID, dep *models.Dependency) (*models.Dependency, error)
	DeleteDependency(ctx context.Context, tenantID id.TenantID, depID id.DependencyID) error
	ListDependencies(ctx context.Context, tenantID id.TenantID, entityID id.EntityID, direction models.Direction) ([]*models.Dependency, error)

	UpsertConstraint(ctx context.Context, tenantID id.TenantID, constraint *models.Constraint) (*models.Constraint, error)
	ListConstraints(ctx context.Context, tenantID id.TenantID) ([]*models.Constraint, error)
	ListApplicableConstraints(ctx context.Context, tenantID id.TenantID, entityID id.EntityID) ([]*models.Constraint, error)

	ExportGraph(ctx context.Context, tenantID id.TenantID) (*service.Export, error)
	SummarizeLayers(ctx context.Context, tenantID id.TenantID) ([]service.LayerSummary, error)
	CrossLayerImpactFor(ctx context.Context, tenantID id.TenantID, entityID id.EntityID) (*service.CrossLayerImpact, error)

	Registry() *registry.Registry
}

type Handler struct {
	graph  Service
	logger *slog.Logger
}

func New(graph Service, logger *slog.Logger) *Handler {
	return &Handler{graph: graph, logger: logger}
}

// Register mounts the graph routes. Tenant resolution is handled by router
// middleware before any of these run.
func (h *Handler) Register(r chi.Router) {
	r.Route("/entities", func(r chi.Router) {
		r.Get("/", h.handleListEntities)
		r.Post("/", h.handleUpsertEntity)
		r.Get("/{entityID}", h.handleGetEntity)
		r.Put("/{entityID}", h.handleUpsertEntity)
		r.Post("/{entityID}/archive", h.handleArchiveEntity)
	})

	r.Route("/dependencies", func(r chi.Router) {
		r.Post("/", h.handleUpsertDependency)
		r.Delete("/{dependencyID}", h.handleDeleteDependency)
		r.Get("/graph", h.handleExportGraph)
		r.Get("/layers/summary", h.handleLayerSummary)
		r.Get("/cross-layer-impact/{entityID}", h.handleCrossLayerImpact)
		r.Get("/entity/{entityID}", h.handleListDependencies)
	})

	r.Route("/constraints", func(r chi.Router) {
		r.Get("/", h.handleListConstraints)
		r.Post("/", h.handleUpsertConstraint)
		r.Get("/types", h.handleListConstraintTypes)
		r.Post("/types", h.handleRegisterConstraintType)
		r.Get("/applicable/{entityID}", h.handleApplicableConstraints)
	})
}

// UpsertEntityRequest carries entity mutations. ID is taken from the path on
// PUT; a POST with no body id creates a new entity.
type UpsertEntityRequest struct {
	ID          string            `json:"id,omitempty"`
	Type        string            `json:"type"`
	Name        string            `json:"name"`
	Status      string            `json:"status,omitempty"`
	CountryCode string            `json:"country_code,omitempty"`
	Category    string            `json:"category,omitempty"`
	Subcategory string            `json:"subcategory,omitempty"`
	Criticality int               `json:"criticality"`
	Tags        []string          `json:"tags,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

func (h *Handler) handleListEntities(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := requestcontext.TenantID(ctx)

	var filter ports.EntityFilter
	if raw := r.URL.Query().Get("type"); raw != "" {
		t, err := models.ParseEntityType(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		filter.Type = t
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, err := models.ParseEntityStatus(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		filter.Status = st
	}

	entities, err := h.graph.ListEntities(ctx, tenantID, filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entities": entities, "count": len(entities)})
}

func (h *Handler) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entityID, err := id.ParseEntityID(chi.URLParam(r, "entityID"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid entity id"))
		return
	}
	entity, err := h.graph.GetEntity(ctx, requestcontext.TenantID(ctx), entityID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entity)
}

func (h *Handler) handleUpsertEntity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.Decode[UpsertEntityRequest](r, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	entity := &models.Entity{
		Type:        models.EntityType(req.Type),
		Name:        req.Name,
		Status:      models.EntityStatus(req.Status),
		CountryCode: req.CountryCode,
		Category:    req.Category,
		Subcategory: req.Subcategory,
		Criticality: req.Criticality,
		Tags:        platformstrings.DedupeAndTrim(req.Tags),
		Attributes:  req.Attributes,
	}
	if entity.Status == "" {
		entity.Status = models.EntityStatusActive
	}

	created := true
	if raw := chi.URLParam(r, "entityID"); raw != "" {
		entityID, err := id.ParseEntityID(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid entity id"))
			return
		}
		entity.ID = entityID
		created = false
	} else if req.ID != "" {
		entityID, err := id.ParseEntityID(req.ID)
		if err != nil {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid entity id"))
			return
		}
		entity.ID = entityID
		created = false
	}

	entity, err = h.graph.UpsertEntity(ctx, requestcontext.TenantID(ctx), entity)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, entity)
}

func (h *Handler) handleArchiveEntity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entityID, err := id.ParseEntityID(chi.URLParam(r, "entityID"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid entity id"))
		return
	}
	entity, err := h.graph.ArchiveEntity(ctx, requestcontext.TenantID(ctx), entityID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entity)
}

// UpsertDependencyRequest carries edge mutations.
type UpsertDependencyRequest struct {
	ID             string  `json:"id,omitempty"`
	SourceEntityID string  `json:"source_entity_id"`
	TargetEntityID string  `json:"target_entity_id"`
	Type           string  `json:"dependency_type"`
	Layer          string  `json:"layer"`
	Strength       float64 `json:"strength"`
	IsCritical     bool    `json:"is_critical,omitempty"`
	Description    string  `json:"description,omitempty"`
}

func (h *Handler) handleUpsertDependency(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.Decode[UpsertDependencyRequest](r, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	source, err := id.ParseEntityID(req.SourceEntityID)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid source entity id"))
		return
	}
	target, err := id.ParseEntityID(req.TargetEntityID)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid target entity id"))
		return
	}

	dep := &models.Dependency{
		SourceEntityID: source,
		TargetEntityID: target,
		Type:           models.DependencyType(req.Type),
		Layer:          models.Layer(req.Layer),
		Strength:       req.Strength,
		IsCritical:     req.IsCritical,
		Description:    req.Description,
	}
	created := true
	if req.ID != "" {
		depID, err := id.ParseDependencyID(req.ID)
		if err != nil {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid dependency id"))
			return
		}
		dep.ID = depID
		created = false
	}

	dep, err = h.graph.UpsertDependency(ctx, requestcontext.TenantID(ctx), dep)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, dep)
}

func (h *Handler) handleDeleteDependency(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	depID, err := id.ParseDependencyID(chi.URLParam(r, "dependencyID"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid dependency id"))
		return
	}
	if err := h.graph.DeleteDependency(ctx, requestcontext.TenantID(ctx), depID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListDependencies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entityID, err := id.ParseEntityID(chi.URLParam(r, "entityID"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid entity id"))
		return
	}
	direction, err := models.ParseDirection(r.URL.Query().Get("direction"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	deps, err := h.graph.ListDependencies(ctx, requestcontext.TenantID(ctx), entityID, direction)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"dependencies": deps, "count": len(deps)})
}

func (h *Handler) handleExportGraph(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	export, err := h.graph.ExportGraph(ctx, requestcontext.TenantID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, export)
}

func (h *Handler) handleLayerSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	summaries, err := h.graph.SummarizeLayers(ctx, requestcontext.TenantID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"layers": summaries})
}

func (h *Handler) handleCrossLayerImpact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entityID, err := id.ParseEntityID(chi.URLParam(r, "entityID"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid entity id"))
		return
	}
	impact, err := h.graph.CrossLayerImpactFor(ctx, requestcontext.TenantID(ctx), entityID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, impact)
}

// UpsertConstraintRequest carries constraint mutations. Dates are RFC 3339.
type UpsertConstraintRequest struct {
	ID            string     `json:"id,omitempty"`
	Type          string     `json:"type"`
	Name          string     `json:"name"`
	Severity      string     `json:"severity"`
	EntityTypes   []string   `json:"entity_types,omitempty"`
	Countries     []string   `json:"countries,omitempty"`
	Categories    []string   `json:"categories,omitempty"`
	EffectiveDate time.Time  `json:"effective_date"`
	ExpiryDate    *time.Time `json:"expiry_date,omitempty"`
	RiskWeight    float64    `json:"risk_weight"`
	IsMandatory   bool       `json:"is_mandatory,omitempty"`
}

func (h *Handler) handleListConstraints(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	constraints, err := h.graph.ListConstraints(ctx, requestcontext.TenantID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"constraints": constraints, "count": len(constraints)})
}

func (h *Handler) handleUpsertConstraint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.Decode[UpsertConstraintRequest](r, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	constraint := &models.Constraint{
		Type:          models.ConstraintType(req.Type),
		Name:          req.Name,
		Severity:      models.Severity(req.Severity),
		Countries:     platformstrings.DedupeAndTrimUpper(req.Countries),
		Categories:    platformstrings.DedupeAndTrimLower(req.Categories),
		EffectiveDate: req.EffectiveDate,
		RiskWeight:    req.RiskWeight,
		IsMandatory:   req.IsMandatory,
	}
	for _, raw := range req.EntityTypes {
		constraint.EntityTypes = append(constraint.EntityTypes, models.EntityType(raw))
	}
	constraint.ExpiryDate = req.ExpiryDate
	created := true
	if req.ID != "" {
		constraintID, err := id.ParseConstraintID(req.ID)
		if err != nil {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid constraint id"))
			return
		}
		constraint.ID = constraintID
		created = false
	}

	constraint, err = h.graph.UpsertConstraint(ctx, requestcontext.TenantID(ctx), constraint)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, constraint)
}

func (h *Handler) handleApplicableConstraints(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entityID, err := id.ParseEntityID(chi.URLParam(r, "entityID"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid entity id"))
		return
	}
	constraints, err := h.graph.ListApplicableConstraints(ctx, requestcontext.TenantID(ctx), entityID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"constraints": constraints, "count": len(constraints)})
}

func (h *Handler) handleListConstraintTypes(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"types": h.graph.Registry().List()})
}

func (h *Handler) handleRegisterConstraintType(w http.ResponseWriter, r *http.Request) {
	spec, err := httputil.Decode[registry.TypeSpec](r, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.graph.Registry().Register(spec); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, spec)
}
