package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Failure stages.
const (
	stageEncode  = "encode"
	stagePersist = "persist"
	stageSend    = "send"
)

type Metrics struct {
	published *prometheus.CounterVec
	failures  *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		published: f.NewCounterVec(prometheus.CounterOpts{
			Name: "haven_ledger_facts_published_total",
			Help: "Ledger facts delivered to the sink",
		}, []string{"fact_type"}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "haven_ledger_publish_failures_total",
			Help: "Ledger publications that failed and were dropped",
		}, []string{"fact_type", "stage"}),
	}
}

func (m *Metrics) incPublished(factType string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(factType).Inc()
}

func (m *Metrics) incFailure(factType, stage string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(factType, stage).Inc()
}
