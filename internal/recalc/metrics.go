package recalc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Runs            prometheus.Counter
	Failed          prometheus.Counter
	Rejected        prometheus.Counter
	EntitiesScored  prometheus.Counter
	RunDurationSecs prometheus.Histogram
}

func NewMetrics() *Metrics {
	return &Metrics{
		Runs: promauto.NewCounter(prometheus.CounterOpts{
			Name: "riskgraph_recalc_runs_total",
			Help: "Total number of completed recalculations",
		}),
		Failed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "riskgraph_recalc_failed_total",
			Help: "Total number of failed recalculations",
		}),
		Rejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "riskgraph_recalc_rejected_total",
			Help: "Total number of recalculation requests rejected because one was already running",
		}),
		EntitiesScored: promauto.NewCounter(prometheus.CounterOpts{
			Name: "riskgraph_recalc_entities_scored_total",
			Help: "Total number of entities scored across recalculations",
		}),
		RunDurationSecs: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "riskgraph_recalc_run_duration_seconds",
			Help:    "Wall time of full recalculation runs",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
	}
}

func (m *Metrics) ObserveRun(entities int, took time.Duration) {
	m.Runs.Inc()
	m.EntitiesScored.Add(float64(entities))
	m.RunDurationSecs.Observe(took.Seconds())
}

func (m *Metrics) IncrementFailed()   { m.Failed.Inc() }
func (m *Metrics) IncrementRejected() { m.Rejected.Inc() }
