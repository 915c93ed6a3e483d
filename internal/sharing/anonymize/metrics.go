package anonymize

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"haven/internal/sharing/models"
	dErrors "haven/pkg/domain-errors"
)

type Metrics struct {
	created *prometheus.CounterVec
	refused *prometheus.CounterVec
	revoked prometheus.Counter
	expired prometheus.Counter
	purged  prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		created: f.NewCounterVec(prometheus.CounterOpts{
			Name: "haven_vsp_exports_created_total",
			Help: "Recipient exports created by anonymization level",
		}, []string{"level"}),
		refused: f.NewCounterVec(prometheus.CounterOpts{
			Name: "haven_vsp_exports_refused_total",
			Help: "Refused or failed recipient exports by error code",
		}, []string{"code"}),
		revoked: f.NewCounter(prometheus.CounterOpts{
			Name: "haven_vsp_exports_revoked_total",
			Help: "Recipient exports revoked",
		}),
		expired: f.NewCounter(prometheus.CounterOpts{
			Name: "haven_vsp_exports_expired_total",
			Help: "Recipient exports moved to EXPIRED by the sweep",
		}),
		purged: f.NewCounter(prometheus.CounterOpts{
			Name: "haven_vsp_exports_purged_total",
			Help: "Expired recipient exports purged after retention",
		}),
	}
}

func (m *Metrics) incCreated(level models.AnonymizationLevel) {
	if m == nil {
		return
	}
	m.created.WithLabelValues(string(level)).Inc()
}

func (m *Metrics) incRefused(code dErrors.Code) {
	if m == nil {
		return
	}
	m.refused.WithLabelValues(string(code)).Inc()
}

func (m *Metrics) incRevoked() {
	if m == nil {
		return
	}
	m.revoked.Inc()
}

func (m *Metrics) observeSweep(r SweepResult) {
	if m == nil {
		return
	}
	m.expired.Add(float64(r.Expired))
	m.purged.Add(float64(r.Purged))
}
