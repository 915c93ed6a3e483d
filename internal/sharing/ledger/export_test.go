package ledger

import "github.com/prometheus/client_golang/prometheus"

// FailuresVec exposes the failure counter to external tests.
func FailuresVec(m *Metrics) *prometheus.CounterVec {
	return m.failures
}
