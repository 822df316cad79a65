package answer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Query outcomes recorded by Ask.
const (
	outcomeOK              = "ok"
	outcomeGenerationError = "generation_error"
	outcomeRetrievalError  = "retrieval_error"
)

// Metrics holds the query metrics. A nil *Metrics records nothing.
type Metrics struct {
	// queriesTotal counts Ask calls by outcome.
	queriesTotal *prometheus.CounterVec

	// durationSeconds records end-to-end Ask latency by outcome.
	durationSeconds *prometheus.HistogramVec
}

// NewMetrics registers the query metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		queriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finrag",
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Total number of questions answered, partitioned by outcome.",
		}, []string{"outcome"}),

		durationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "finrag",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "End-to-end latency of a question: retrieval, assembly and generation.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"outcome"}),
	}
}

func (m *Metrics) observe(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.queriesTotal.WithLabelValues(outcome).Inc()
	m.durationSeconds.WithLabelValues(outcome).Observe(d.Seconds())
}
