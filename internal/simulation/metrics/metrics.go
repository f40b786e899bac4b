package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ScenarioRuns     prometheus.Counter
	ScenarioFailures prometheus.Counter
	ScenarioRejected prometheus.Counter
	ChainSimulations prometheus.Counter
	RunDurationMs    prometheus.Histogram
	AffectedPerRun   prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		ScenarioRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "riskgraph_simulation_scenario_runs_total",
			Help: "Total number of completed scenario runs",
		}),
		ScenarioFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "riskgraph_simulation_scenario_failures_total",
			Help: "Total number of failed scenario runs",
		}),
		ScenarioRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "riskgraph_simulation_scenario_rejected_total",
			Help: "Total number of run requests rejected because the scenario was already running",
		}),
		ChainSimulations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "riskgraph_simulation_chain_simulations_total",
			Help: "Total number of chain simulations",
		}),
		RunDurationMs: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "riskgraph_simulation_run_duration_ms",
			Help:    "Latency of scenario runs in milliseconds",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
		}),
		AffectedPerRun: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "riskgraph_simulation_affected_entities",
			Help:    "Affected-set size per scenario run",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}
}

func (m *Metrics) ObserveRun(affected int, took time.Duration) {
	m.ScenarioRuns.Inc()
	m.AffectedPerRun.Observe(float64(affected))
	m.RunDurationMs.Observe(float64(took.Microseconds()) / 1000.0)
}

func (m *Metrics) IncrementFailures()         { m.ScenarioFailures.Inc() }
func (m *Metrics) IncrementRejected()         { m.ScenarioRejected.Inc() }
func (m *Metrics) IncrementChainSimulations() { m.ChainSimulations.Inc() }
