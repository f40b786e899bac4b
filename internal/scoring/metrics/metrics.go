package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ScoresComputed    prometheus.Counter
	ScoreErrors       prometheus.Counter
	CacheHits         prometheus.Counter
	CacheMisses       prometheus.Counter
	OverridesApplied  prometheus.Counter
	ScoreDurationMs   prometheus.Histogram
	RiskLevelObserved *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		ScoresComputed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "riskgraph_scoring_scores_computed_total",
			Help: "Total number of risk scores computed",
		}),
		ScoreErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "riskgraph_scoring_score_errors_total",
			Help: "Total number of failed score computations",
		}),
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "riskgraph_scoring_cache_hits_total",
			Help: "Total number of score cache hits",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "riskgraph_scoring_cache_misses_total",
			Help: "Total number of score cache misses",
		}),
		OverridesApplied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "riskgraph_scoring_overrides_applied_total",
			Help: "Total number of manual score overrides",
		}),
		ScoreDurationMs: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "riskgraph_scoring_score_duration_ms",
			Help:    "Latency of single-entity score computations in milliseconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250},
		}),
		RiskLevelObserved: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "riskgraph_scoring_risk_level_total",
			Help: "Computed scores by resulting risk level",
		}, []string{"level"}),
	}
}

func (m *Metrics) ObserveScore(level string, took time.Duration) {
	m.ScoresComputed.Inc()
	m.RiskLevelObserved.WithLabelValues(level).Inc()
	m.ScoreDurationMs.Observe(float64(took.Microseconds()) / 1000.0)
}

func (m *Metrics) IncrementScoreErrors()      { m.ScoreErrors.Inc() }
func (m *Metrics) IncrementCacheHits()        { m.CacheHits.Inc() }
func (m *Metrics) IncrementCacheMisses()      { m.CacheMisses.Inc() }
func (m *Metrics) IncrementOverridesApplied() { m.OverridesApplied.Inc() }
