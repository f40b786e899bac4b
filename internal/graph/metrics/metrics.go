package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	EntityWrites     prometheus.Counter
	DependencyWrites prometheus.Counter
	ConstraintWrites prometheus.Counter
	SnapshotsTaken   prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		EntityWrites: promauto.NewCounter(prometheus.CounterOpts{
			Name: "riskgraph_graph_entity_writes_total",
			Help: "Total number of entity upserts (including archivals)",
		}),
		DependencyWrites: promauto.NewCounter(prometheus.CounterOpts{
			Name: "riskgraph_graph_dependency_writes_total",
			Help: "Total number of dependency upserts and deletes",
		}),
		ConstraintWrites: promauto.NewCounter(prometheus.CounterOpts{
			Name: "riskgraph_graph_constraint_writes_total",
			Help: "Total number of constraint upserts",
		}),
		SnapshotsTaken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "riskgraph_graph_snapshots_total",
			Help: "Total number of graph snapshots taken",
		}),
	}
}

func (m *Metrics) IncrementEntityWrites() {
	m.EntityWrites.Inc()
}

func (m *Metrics) IncrementDependencyWrites() {
	m.DependencyWrites.Inc()
}

func (m *Metrics) IncrementConstraintWrites() {
	m.ConstraintWrites.Inc()
}

func (m *Metrics) IncrementSnapshots() {
	m.SnapshotsTaken.Inc()
}
