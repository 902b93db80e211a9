package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registerReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ntv2node",
		Subsystem: "registers",
		Name:      "reads_total",
		Help:      "Registers requested by read batches",
	}, []string{"device"})

	registerWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ntv2node",
		Subsystem: "registers",
		Name:      "writes_total",
		Help:      "Registers requested by write batches",
	}, []string{"device"})

	registerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ntv2node",
		Subsystem: "registers",
		Name:      "failures_total",
		Help:      "Register accesses the device rejected",
	}, []string{"device", "op"})

	rpcRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ntv2node",
		Subsystem: "rpc",
		Name:      "requests_total",
		Help:      "Device requests served over NATS",
	}, []string{"op", "result"})

	rpcDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ntv2node",
		Subsystem: "rpc",
		Name:      "request_duration_seconds",
		Help:      "Time spent serving a device request",
		Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
	}, []string{"op"})
)

// AddRegisterReads counts a read batch.
func AddRegisterReads(deviceID string, requested, failed int) {
	registerReads.WithLabelValues(deviceID).Add(float64(requested))
	if failed > 0 {
		registerFailures.WithLabelValues(deviceID, "read").Add(float64(failed))
	}
}

// AddRegisterWrites counts a write batch.
func AddRegisterWrites(deviceID string, requested, failures int) {
	registerWrites.WithLabelValues(deviceID).Add(float64(requested))
	if failures > 0 {
		registerFailures.WithLabelValues(deviceID, "write").Add(float64(failures))
	}
}

// RecordRPCRequest counts one served request and its latency.
func RecordRPCRequest(op, result string, d time.Duration) {
	rpcRequests.WithLabelValues(op, result).Inc()
	rpcDuration.WithLabelValues(op).Observe(d.Seconds())
}
