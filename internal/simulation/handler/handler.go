// Package handler exposes scenario and chain simulation over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	graphmodels "riskgraph/internal/graph/models"
	"riskgraph/internal/simulation/models"
	id "riskgraph/pkg/domain"
	dErrors "riskgraph/pkg/domain-errors"
	"riskgraph/pkg/platform/httputil"
	"riskgraph/pkg/requestcontext"
)

// Service is the simulation surface the handler needs.
type Service interface {
	GetScenario(ctx context.Context, tenantID id.TenantID, scenarioID id.ScenarioID) (*models.Scenario, error)
	ListScenarios(ctx context.Context, tenantID id.TenantID, status models.ScenarioStatus) ([]*models.Scenario, error)
	CreateScenario(ctx context.Context, tenantID id.TenantID, scenario *models.Scenario) (*models.Scenario, error)
	Run(ctx context.Context, tenantID id.TenantID, scenarioID id.ScenarioID) (*models.Scenario, error)
	Archive(ctx context.Context, tenantID id.TenantID, scenarioID id.ScenarioID, outcomeNotes, lessonsLearned string) (*models.Scenario, error)

	GetChain(ctx context.Context, tenantID id.TenantID, chainID id.ChainID) (*models.ScenarioChain, error)
	ListChains(ctx context.Context, tenantID id.TenantID) ([]*models.ScenarioChain, error)
	CreateChain(ctx context.Context, tenantID id.TenantID, chain *models.ScenarioChain) (*models.ScenarioChain, error)
	SimulateChain(ctx context.Context, tenantID id.TenantID, chainID id.ChainID, maxDepth int) (*models.ChainSimulationResult, error)
}

type Handler struct {
	sims   Service
	logger *slog.Logger
}

func New(sims Service, logger *slog.Logger) *Handler {
	return &Handler{sims: sims, logger: logger}
}

// Register mounts the scenario routes. Chain routes sit under
// /scenarios/chains, before the {scenarioID} wildcard so chi matches the
// literal segment first.
func (h *Handler) Register(r chi.Router) {
	r.Route("/scenarios", func(r chi.Router) {
		r.Get("/", h.handleListScenarios)
		r.Post("/", h.handleCreateScenario)

		r.Route("/chains", func(r chi.Router) {
			r.Get("/", h.handleListChains)
			r.Post("/", h.handleCreateChain)
			r.Get("/{chainID}", h.handleGetChain)
			r.Post("/{chainID}/simulate", h.handleSimulateChain)
		})

		r.Get("/{scenarioID}", h.handleGetScenario)
		r.Post("/{scenarioID}/run", h.handleRunScenario)
		r.Post("/{scenarioID}/archive", h.handleArchiveScenario)
	})
}

func (h *Handler) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var status models.ScenarioStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed, err := models.ParseScenarioStatus(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		status = parsed
	}
	scenarios, err := h.sims.ListScenarios(ctx, requestcontext.TenantID(ctx), status)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"scenarios": scenarios, "count": len(scenarios)})
}

// CreateScenarioRequest describes a new what-if scenario.
type CreateScenarioRequest struct {
	Type            string                      `json:"type"`
	Name            string                      `json:"name"`
	Hypothesis      string                      `json:"hypothesis,omitempty"`
	Parameters      map[string]models.Parameter `json:"parameters,omitempty"`
	TriggerEntityID string                      `json:"trigger_entity_id"`
	AffectedTypes   []string                    `json:"affected_entity_types,omitempty"`
	AffectedLayers  []string                    `json:"affected_layers,omitempty"`
}

func (h *Handler) handleCreateScenario(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.Decode[CreateScenarioRequest](r, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	trigger, err := id.ParseEntityID(req.TriggerEntityID)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid trigger entity id"))
		return
	}

	scenario := &models.Scenario{
		Type:            models.ScenarioType(req.Type),
		Name:            req.Name,
		Hypothesis:      req.Hypothesis,
		Parameters:      req.Parameters,
		TriggerEntityID: trigger,
	}
	for _, raw := range req.AffectedTypes {
		t, err := graphmodels.ParseEntityType(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		scenario.AffectedTypes = append(scenario.AffectedTypes, t)
	}
	for _, raw := range req.AffectedLayers {
		l, err := graphmodels.ParseLayer(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		scenario.AffectedLayers = append(scenario.AffectedLayers, l)
	}

	scenario, err = h.sims.CreateScenario(ctx, requestcontext.TenantID(ctx), scenario)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, scenario)
}

func (h *Handler) handleGetScenario(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scenarioID, err := id.ParseScenarioID(chi.URLParam(r, "scenarioID"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid scenario id"))
		return
	}
	scenario, err := h.sims.GetScenario(ctx, requestcontext.TenantID(ctx), scenarioID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, scenario)
}

func (h *Handler) handleRunScenario(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scenarioID, err := id.ParseScenarioID(chi.URLParam(r, "scenarioID"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid scenario id"))
		return
	}
	scenario, err := h.sims.Run(ctx, requestcontext.TenantID(ctx), scenarioID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, scenario)
}

// ArchiveScenarioRequest closes out a completed scenario with its findings.
type ArchiveScenarioRequest struct {
	OutcomeNotes   string `json:"outcome_notes,omitempty"`
	LessonsLearned string `json:"lessons_learned,omitempty"`
}

func (h *Handler) handleArchiveScenario(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scenarioID, err := id.ParseScenarioID(chi.URLParam(r, "scenarioID"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid scenario id"))
		return
	}
	req, err := httputil.Decode[ArchiveScenarioRequest](r, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	scenario, err := h.sims.Archive(ctx, requestcontext.TenantID(ctx), scenarioID, req.OutcomeNotes, req.LessonsLearned)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, scenario)
}

func (h *Handler) handleListChains(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chains, err := h.sims.ListChains(ctx, requestcontext.TenantID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"chains": chains, "count": len(chains)})
}

// CreateChainRequest describes a new cascading-event chain.
type CreateChainRequest struct {
	Name            string               `json:"name"`
	TriggerEvent    string               `json:"trigger_event"`
	TriggerEntityID string               `json:"trigger_entity_id"`
	Effects         []models.ChainEffect `json:"effects"`
}

func (h *Handler) handleCreateChain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.Decode[CreateChainRequest](r, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	trigger, err := id.ParseEntityID(req.TriggerEntityID)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid trigger entity id"))
		return
	}

	chain := &models.ScenarioChain{
		Name:            req.Name,
		TriggerEvent:    req.TriggerEvent,
		TriggerEntityID: trigger,
		Effects:         req.Effects,
	}
	chain, err = h.sims.CreateChain(ctx, requestcontext.TenantID(ctx), chain)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, chain)
}

func (h *Handler) handleGetChain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chainID, err := id.ParseChainID(chi.URLParam(r, "chainID"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid chain id"))
		return
	}
	chain, err := h.sims.GetChain(ctx, requestcontext.TenantID(ctx), chainID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, chain)
}

func (h *Handler) handleSimulateChain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chainID, err := id.ParseChainID(chi.URLParam(r, "chainID"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid chain id"))
		return
	}
	maxDepth := -1
	if raw := r.URL.Query().Get("max_depth"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > 20 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "max_depth must be within [0,20]"))
			return
		}
		maxDepth = n
	}
	result, err := h.sims.SimulateChain(ctx, requestcontext.TenantID(ctx), chainID, maxDepth)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}
