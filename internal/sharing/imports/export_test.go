package imports

import "github.com/prometheus/client_golang/prometheus"

// RecordsVec exposes the per-record counter to external tests.
func RecordsVec(m *Metrics) *prometheus.CounterVec {
	return m.records
}
