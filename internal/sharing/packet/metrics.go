package packet

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"haven/internal/sharing/models"
)

const (
	outcomeExisting = "existing"
	outcomeCreated  = "created"
	outcomeRaceLost = "race_lost"
	outcomeShared   = "shared"
)

type Metrics struct {
	resolved     *prometheus.CounterVec
	hashDuration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		resolved: f.NewCounterVec(prometheus.CounterOpts{
			Name: "haven_packets_resolved_total",
			Help: "Packet resolutions by outcome",
		}, []string{"outcome"}),
		hashDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "haven_packet_hash_duration_seconds",
			Help:    "Time spent deriving client hashes",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"algorithm"}),
	}
}

func (m *Metrics) incResolved(outcome string) {
	if m == nil {
		return
	}
	m.resolved.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeHash(alg models.HashAlgorithm, d time.Duration) {
	if m == nil {
		return
	}
	m.hashDuration.WithLabelValues(string(alg)).Observe(d.Seconds())
}
