package server

import (
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
)

var (
	acceptedTotal = metrics.GetOrCreateCounter("fiesta_connections_accepted_total")
	closedTotal   = metrics.GetOrCreateCounter("fiesta_connections_closed_total")
	rejectedTotal = metrics.GetOrCreateCounter("fiesta_connections_rejected_total")
	packetsTotal  = metrics.GetOrCreateCounter("fiesta_packets_received_total")

	activeCount int64
	_           = metrics.GetOrCreateGauge("fiesta_connections_active", func() float64 {
		return float64(atomic.LoadInt64(&activeCount))
	})
)

func activeAdd(delta int64) {
	atomic.AddInt64(&activeCount, delta)
}
