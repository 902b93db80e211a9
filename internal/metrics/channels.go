// Package metrics provides Prometheus metrics for AutoCirculate channels,
// register access and the device RPC.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/smazurov/ntv2node/pkg/ntv2"
)

var (
	channelState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ntv2node",
		Subsystem: "channel",
		Name:      "state",
		Help:      "AutoCirculate state of a crosspoint (0 = Disabled, 5 = Running)",
	}, []string{"device", "crosspoint"})

	channelBufferLevel = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ntv2node",
		Subsystem: "channel",
		Name:      "buffer_level",
		Help:      "Frames queued in the crosspoint ring",
	}, []string{"device", "crosspoint"})

	channelFramesProcessed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ntv2node",
		Subsystem: "channel",
		Name:      "frames_processed_total",
		Help:      "Frames transferred since the crosspoint was initialized",
	}, []string{"device", "crosspoint"})

	channelFramesDropped = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ntv2node",
		Subsystem: "channel",
		Name:      "frames_dropped_total",
		Help:      "Frames dropped since the crosspoint was initialized",
	}, []string{"device", "crosspoint"})

	// Local cache for SSE exporter access.
	channelCache   = make(map[channelKey]*ChannelMetrics)
	channelCacheMu sync.RWMutex
)

type channelKey struct {
	device     string
	crosspoint string
}

// ChannelMetrics holds the last observed values for one crosspoint.
type ChannelMetrics struct {
	DeviceID        string
	Crosspoint      string
	State           string
	BufferLevel     uint32
	FramesProcessed uint32
	FramesDropped   uint32
}

// ObserveChannel records a status snapshot. Disabled crosspoints are
// removed so idle channels do not linger in the exporter.
func ObserveChannel(deviceID string, st *ntv2.Status) {
	xpt := st.Crosspoint.String()
	if st.IsStopped() {
		DeleteChannelMetrics(deviceID, xpt)
		return
	}
	channelState.WithLabelValues(deviceID, xpt).Set(float64(st.State))
	channelBufferLevel.WithLabelValues(deviceID, xpt).Set(float64(st.BufferLevel))
	channelFramesProcessed.WithLabelValues(deviceID, xpt).Set(float64(st.FramesProcessed))
	channelFramesDropped.WithLabelValues(deviceID, xpt).Set(float64(st.FramesDropped))

	channelCacheMu.Lock()
	channelCache[channelKey{deviceID, xpt}] = &ChannelMetrics{
		DeviceID:        deviceID,
		Crosspoint:      xpt,
		State:           st.State.String(),
		BufferLevel:     st.BufferLevel,
		FramesProcessed: st.FramesProcessed,
		FramesDropped:   st.FramesDropped,
	}
	channelCacheMu.Unlock()
}

// SetFramesDropped updates the drop counter between status snapshots.
func SetFramesDropped(deviceID, crosspoint string, total uint32) {
	channelFramesDropped.WithLabelValues(deviceID, crosspoint).Set(float64(total))
	channelCacheMu.Lock()
	if m, ok := channelCache[channelKey{deviceID, crosspoint}]; ok {
		m.FramesDropped = total
	}
	channelCacheMu.Unlock()
}

// DeleteChannelMetrics removes all metrics for a crosspoint.
func DeleteChannelMetrics(deviceID, crosspoint string) {
	channelState.DeleteLabelValues(deviceID, crosspoint)
	channelBufferLevel.DeleteLabelValues(deviceID, crosspoint)
	channelFramesProcessed.DeleteLabelValues(deviceID, crosspoint)
	channelFramesDropped.DeleteLabelValues(deviceID, crosspoint)

	channelCacheMu.Lock()
	delete(channelCache, channelKey{deviceID, crosspoint})
	channelCacheMu.Unlock()
}

// GetChannelMetrics returns the cached values for a crosspoint.
func GetChannelMetrics(deviceID, crosspoint string) *ChannelMetrics {
	channelCacheMu.RLock()
	defer channelCacheMu.RUnlock()
	if m, ok := channelCache[channelKey{deviceID, crosspoint}]; ok {
		dup := *m
		return &dup
	}
	return nil
}

// GetAllChannelMetrics returns metrics for every active crosspoint.
func GetAllChannelMetrics() []ChannelMetrics {
	channelCacheMu.RLock()
	defer channelCacheMu.RUnlock()
	result := make([]ChannelMetrics, 0, len(channelCache))
	for _, m := range channelCache {
		result = append(result, *m)
	}
	return result
}
