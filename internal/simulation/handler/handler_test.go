package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	graphmodels "riskgraph/internal/graph/models"
	graphports "riskgraph/internal/graph/ports"
	"riskgraph/internal/graph/registry"
	graphmemory "riskgraph/internal/graph/store/memory"
	"riskgraph/internal/platform/middleware"
	"riskgraph/internal/scoring"
	"riskgraph/internal/simulation"
	simmetrics "riskgraph/internal/simulation/metrics"
	simservice "riskgraph/internal/simulation/service"
	simmemory "riskgraph/internal/simulation/store/memory"
	id "riskgraph/pkg/domain"
	"riskgraph/pkg/platform/audit/publisher"
	auditmemory "riskgraph/pkg/platform/audit/store/memory"
)

// promauto registers globally, so metrics live once per test binary.
var testSimMetrics = simmetrics.New()

type fixture struct {
	router http.Handler
	graph  graphports.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	reg, err := registry.New()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	graphStore := graphmemory.New()
	engine := simulation.NewEngine(scoring.NewEngine(scoring.NewJurisdictionTable(nil), reg))
	svc := simservice.New(simmemory.New(), graphStore, engine, scoring.NewConfigStore(),
		publisher.NewDirect(auditmemory.New()), logger, testSimMetrics)

	r := chi.NewRouter()
	r.Use(middleware.RequestMetadata)
	r.Use(middleware.RequireTenant(logger))
	New(svc, logger).Register(r)

	return &fixture{router: r, graph: graphStore}
}

func (f *fixture) addEntity(t *testing.T, tenantID id.TenantID, name string) id.EntityID {
	t.Helper()
	entity := &graphmodels.Entity{
		ID:          id.NewEntityID(),
		Type:        graphmodels.EntityTypeOrganization,
		Name:        name,
		Status:      graphmodels.EntityStatusActive,
		Criticality: 3,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	require.NoError(t, f.graph.UpsertEntity(context.Background(), tenantID, entity))
	return entity.ID
}

func (f *fixture) addEdge(t *testing.T, tenantID id.TenantID, source, target id.EntityID) {
	t.Helper()
	dep := &graphmodels.Dependency{
		ID:             id.NewDependencyID(),
		SourceEntityID: source,
		TargetEntityID: target,
		Type:           graphmodels.DependencySupplies,
		Layer:          graphmodels.LayerSupplyChain,
		Strength:       0.9,
		IsCritical:     true,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	require.NoError(t, f.graph.UpsertDependency(context.Background(), tenantID, dep))
}

func (f *fixture) do(t *testing.T, tenantID id.TenantID, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID.String())
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestScenarioLifecycle(t *testing.T) {
	f := newFixture(t)
	tenantID := id.NewTenantID()
	supplier := f.addEntity(t, tenantID, "Supplier")
	buyer := f.addEntity(t, tenantID, "Buyer")
	f.addEdge(t, tenantID, supplier, buyer)

	var scenarioID id.ScenarioID

	t.Run("create", func(t *testing.T) {
		rec := f.do(t, tenantID, http.MethodPost, "/scenarios", map[string]any{
			"type":              "entity_status_change",
			"name":              "Supplier goes dark",
			"hypothesis":        "losing the supplier raises downstream risk",
			"trigger_entity_id": supplier.String(),
			"parameters": map[string]any{
				"new_status": map[string]any{"kind": "string", "string": "archived"},
			},
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		created := decodeBody[struct {
			ID     id.ScenarioID `json:"id"`
			Status string        `json:"status"`
		}](t, rec)
		assert.Equal(t, "draft", created.Status)
		scenarioID = created.ID
	})

	t.Run("unknown trigger rejected", func(t *testing.T) {
		rec := f.do(t, tenantID, http.MethodPost, "/scenarios", map[string]any{
			"type":              "entity_status_change",
			"name":              "Bad trigger",
			"trigger_entity_id": id.NewEntityID().String(),
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("archive before run rejected", func(t *testing.T) {
		rec := f.do(t, tenantID, http.MethodPost, "/scenarios/"+scenarioID.String()+"/archive", map[string]any{
			"outcome_notes": "never ran",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("run completes with results", func(t *testing.T) {
		rec := f.do(t, tenantID, http.MethodPost, "/scenarios/"+scenarioID.String()+"/run", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		ran := decodeBody[struct {
			Status  string `json:"status"`
			Results *struct {
				AffectedEntities []struct {
					EntityID   id.EntityID `json:"entity_id"`
					ImpactType string      `json:"impact_type"`
				} `json:"affected_entities"`
			} `json:"results"`
		}](t, rec)
		assert.Equal(t, "completed", ran.Status)
		require.NotNil(t, ran.Results)
		assert.NotEmpty(t, ran.Results.AffectedEntities)
	})

	t.Run("list filters by status", func(t *testing.T) {
		rec := f.do(t, tenantID, http.MethodGet, "/scenarios?status=completed", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		listed := decodeBody[struct {
			Count int `json:"count"`
		}](t, rec)
		assert.Equal(t, 1, listed.Count)
	})

	t.Run("archive after run", func(t *testing.T) {
		rec := f.do(t, tenantID, http.MethodPost, "/scenarios/"+scenarioID.String()+"/archive", map[string]any{
			"outcome_notes":   "validated the hypothesis",
			"lessons_learned": "diversify suppliers",
		})
		require.Equal(t, http.StatusOK, rec.Code)
		archived := decodeBody[struct {
			Status         string `json:"status"`
			LessonsLearned string `json:"lessons_learned"`
		}](t, rec)
		assert.Equal(t, "archived", archived.Status)
		assert.Equal(t, "diversify suppliers", archived.LessonsLearned)
	})

	t.Run("unknown scenario is 404", func(t *testing.T) {
		rec := f.do(t, tenantID, http.MethodPost, "/scenarios/"+id.NewScenarioID().String()+"/run", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestChainEndpoints(t *testing.T) {
	f := newFixture(t)
	tenantID := id.NewTenantID()
	port := f.addEntity(t, tenantID, "Port")
	carrier := f.addEntity(t, tenantID, "Carrier")
	f.addEdge(t, tenantID, port, carrier)

	var chainID id.ChainID

	t.Run("create", func(t *testing.T) {
		rec := f.do(t, tenantID, http.MethodPost, "/scenarios/chains", map[string]any{
			"name":              "Port closure cascade",
			"trigger_event":     "storm closes the port",
			"trigger_entity_id": port.String(),
			"effects": []map[string]any{
				{
					"sequence_order":   1,
					"effect_type":      "score_shock",
					"target_entity_id": port.String(),
					"delay_days":       0,
					"probability":      1.0,
					"impact_score":     40,
				},
				{
					"sequence_order":   2,
					"effect_type":      "dependency_failure",
					"target_entity_id": carrier.String(),
					"delay_days":       3,
					"probability":      0.5,
					"impact_score":     30,
				},
			},
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		chainID = decodeBody[struct {
			ID id.ChainID `json:"id"`
		}](t, rec).ID
	})

	t.Run("invalid probability rejected", func(t *testing.T) {
		rec := f.do(t, tenantID, http.MethodPost, "/scenarios/chains", map[string]any{
			"name":              "Broken",
			"trigger_event":     "x",
			"trigger_entity_id": port.String(),
			"effects": []map[string]any{
				{
					"sequence_order":   1,
					"effect_type":      "score_shock",
					"target_entity_id": port.String(),
					"probability":      1.5,
					"impact_score":     10,
				},
			},
		})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("simulate produces a timeline", func(t *testing.T) {
		rec := f.do(t, tenantID, http.MethodPost, "/scenarios/chains/"+chainID.String()+"/simulate?max_depth=5", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		result := decodeBody[struct {
			MaxDepth int `json:"max_depth"`
			Timeline []struct {
				Day int `json:"day"`
			} `json:"timeline"`
			RiskTrajectory   []json.RawMessage `json:"risk_trajectory"`
			AffectedEntities []json.RawMessage `json:"affected_entities"`
			TotalExpected    float64           `json:"total_expected_impact"`
		}](t, rec)
		assert.Equal(t, 5, result.MaxDepth)
		require.Len(t, result.Timeline, 2)
		assert.Equal(t, 0, result.Timeline[0].Day)
		assert.Equal(t, 3, result.Timeline[1].Day)
		assert.NotEmpty(t, result.AffectedEntities)
		assert.Greater(t, result.TotalExpected, 0.0)
	})

	t.Run("zero max depth applies effects only", func(t *testing.T) {
		rec := f.do(t, tenantID, http.MethodPost, "/scenarios/chains/"+chainID.String()+"/simulate?max_depth=0", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		result := decodeBody[struct {
			MaxDepth         int `json:"max_depth"`
			AffectedEntities []struct {
				Depth int `json:"depth"`
			} `json:"affected_entities"`
		}](t, rec)
		assert.Equal(t, 0, result.MaxDepth)
		require.Len(t, result.AffectedEntities, 2)
		for _, change := range result.AffectedEntities {
			assert.Equal(t, 0, change.Depth)
		}
	})

	t.Run("bad max depth rejected", func(t *testing.T) {
		rec := f.do(t, tenantID, http.MethodPost, "/scenarios/chains/"+chainID.String()+"/simulate?max_depth=99", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("get and list", func(t *testing.T) {
		rec := f.do(t, tenantID, http.MethodGet, "/scenarios/chains/"+chainID.String(), nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		list := f.do(t, tenantID, http.MethodGet, "/scenarios/chains", nil)
		require.Equal(t, http.StatusOK, list.Code)
		assert.Equal(t, 1, decodeBody[struct {
			Count int `json:"count"`
		}](t, list).Count)
	})

	t.Run("unknown chain is 404", func(t *testing.T) {
		rec := f.do(t, tenantID, http.MethodPost, "/scenarios/chains/"+id.NewChainID().String()+"/simulate", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
