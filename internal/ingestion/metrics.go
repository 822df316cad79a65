package ingestion

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics owned by the pipeline. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	// sourcesTotal counts Ingest calls by collection and outcome ("ok", "error").
	sourcesTotal *prometheus.CounterVec

	// passagesTotal counts passages written by collection.
	passagesTotal *prometheus.CounterVec

	// staleTotal counts passages removed by stale-tail cleanup.
	staleTotal *prometheus.CounterVec

	// durationSeconds records the duration of each Ingest call.
	durationSeconds *prometheus.HistogramVec
}

// NewMetrics registers the pipeline metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		sourcesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finrag",
			Subsystem: "ingest",
			Name:      "sources_total",
			Help:      "Total number of sources ingested, partitioned by collection and outcome.",
		}, []string{"collection", "outcome"}),

		passagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finrag",
			Subsystem: "ingest",
			Name:      "passages_total",
			Help:      "Total number of passages upserted, partitioned by collection.",
		}, []string{"collection"}),

		staleTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finrag",
			Subsystem: "ingest",
			Name:      "stale_passages_total",
			Help:      "Passages deleted because a re-ingested source produced fewer chunks.",
		}, []string{"collection"}),

		durationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "finrag",
			Subsystem: "ingest",
			Name:      "duration_seconds",
			Help:      "Duration of a single source ingest.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}, []string{"outcome"}),
	}
}

func (m *Metrics) observe(collection string, passages int, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.sourcesTotal.WithLabelValues(collection, outcome).Inc()
	m.durationSeconds.WithLabelValues(outcome).Observe(d.Seconds())
	if err == nil {
		m.passagesTotal.WithLabelValues(collection).Add(float64(passages))
	}
}

func (m *Metrics) stale(collection string, n int) {
	if m == nil {
		return
	}
	m.staleTotal.WithLabelValues(collection).Add(float64(n))
}
