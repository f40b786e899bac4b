// Package httptransport assembles the HTTP surface: middleware chain, feature
// routers, health and metrics endpoints.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	graphhandler "riskgraph/internal/graph/handler"
	"riskgraph/internal/platform/metrics"
	"riskgraph/internal/platform/middleware"
	scoringhandler "riskgraph/internal/scoring/handler"
	simhandler "riskgraph/internal/simulation/handler"
	"riskgraph/pkg/platform/httputil"
)

// Handlers groups the feature routers mounted under the tenant scope.
type Handlers struct {
	Graph      *graphhandler.Handler
	Risks      *scoringhandler.Handler
	Simulation *simhandler.Handler
}

// NewRouter wires the full HTTP surface. Everything under /api/v1 requires a
// tenant; health and metrics stay outside the tenant scope. rateLimit may be
// nil to disable per-tenant limiting.
func NewRouter(h Handlers, logger *slog.Logger, m *metrics.Metrics, rateLimit func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestMetadata)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Observe(m))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireTenant(logger))
		if rateLimit != nil {
			r.Use(rateLimit)
		}
		h.Graph.Register(r)
		h.Risks.Register(r)
		h.Simulation.Register(r)
	})

	return r
}
