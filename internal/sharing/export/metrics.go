package export

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"haven/internal/sharing/models"
	dErrors "haven/pkg/domain-errors"
)

type Metrics struct {
	completed *prometheus.CounterVec
	failed    *prometheus.CounterVec
	records   prometheus.Counter
	duration  prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		completed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "haven_exports_completed_total",
			Help: "Completed CE exports by format",
		}, []string{"format"}),
		failed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "haven_exports_failed_total",
			Help: "Refused or failed CE exports by error code",
		}, []string{"code"}),
		records: f.NewCounter(prometheus.CounterOpts{
			Name: "haven_export_records_total",
			Help: "Records written to CE export artifacts",
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "haven_export_duration_seconds",
			Help:    "End-to-end CE export latency",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) observeExport(format models.Format, records int, d time.Duration) {
	if m == nil {
		return
	}
	m.completed.WithLabelValues(string(format)).Inc()
	m.records.Add(float64(records))
	m.duration.Observe(d.Seconds())
}

func (m *Metrics) incFailed(code dErrors.Code) {
	if m == nil {
		return
	}
	m.failed.WithLabelValues(string(code)).Inc()
}
