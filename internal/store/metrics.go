package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "hyperdb"

const storeSubsystem = "store"

// Metrics instruments a Store. A nil *Metrics records nothing.
type Metrics struct {
	// AtomsAdded counts atoms written for the first time. Labels: kind.
	AtomsAdded *prometheus.CounterVec

	// AtomsDeduplicated counts inserts that resolved to an existing atom.
	// Labels: kind.
	AtomsDeduplicated *prometheus.CounterVec

	// Queries counts query calls. Labels: op.
	Queries *prometheus.CounterVec

	// PatternKeys counts pattern index entries written.
	PatternKeys prometheus.Counter

	// IndexKeys is the number of keys in each index. Labels: index.
	IndexKeys *prometheus.GaugeVec
}

// NewMetrics registers store metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AtomsAdded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: storeSubsystem,
			Name:      "atoms_added_total",
			Help:      "Atoms stored for the first time, by kind",
		}, []string{"kind"}),
		AtomsDeduplicated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: storeSubsystem,
			Name:      "atoms_deduplicated_total",
			Help:      "Inserts that resolved to an already stored atom, by kind",
		}, []string{"kind"}),
		Queries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: storeSubsystem,
			Name:      "queries_total",
			Help:      "Query calls, by operation",
		}, []string{"op"}),
		PatternKeys: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: storeSubsystem,
			Name:      "pattern_keys_total",
			Help:      "Pattern index entries written",
		}),
		IndexKeys: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: storeSubsystem,
			Name:      "index_keys",
			Help:      "Number of keys per index",
		}, []string{"index"}),
	}
}

func (m *Metrics) added(kind string) {
	if m == nil {
		return
	}
	m.AtomsAdded.WithLabelValues(kind).Inc()
}

func (m *Metrics) deduplicated(kind string, n int) {
	if m == nil {
		return
	}
	m.AtomsDeduplicated.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) query(op string) {
	if m == nil {
		return
	}
	m.Queries.WithLabelValues(op).Inc()
}

func (m *Metrics) patternKeys(n int) {
	if m == nil {
		return
	}
	m.PatternKeys.Add(float64(n))
}

func (m *Metrics) indexSizes(s Stats) {
	if m == nil {
		return
	}
	m.IndexKeys.WithLabelValues("outgoing").Set(float64(s.Outgoing))
	m.IndexKeys.WithLabelValues("incoming").Set(float64(s.Incoming))
	m.IndexKeys.WithLabelValues("templates").Set(float64(s.Templates))
	m.IndexKeys.WithLabelValues("patterns").Set(float64(s.Patterns))
	m.IndexKeys.WithLabelValues("types").Set(float64(s.Types))
}
