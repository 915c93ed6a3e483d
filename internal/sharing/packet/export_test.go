package packet

import "github.com/prometheus/client_golang/prometheus"

func ResolvedVec(m *Metrics) *prometheus.CounterVec {
	return m.resolved
}
