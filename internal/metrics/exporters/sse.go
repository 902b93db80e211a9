package exporters

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/smazurov/ntv2node/internal/events"
	"github.com/smazurov/ntv2node/internal/metrics"
)

// EventPublisher interface for publishing events.
type EventPublisher interface {
	Publish(ev events.Event)
}

// SSEExporter publishes channel metric snapshots for Server-Sent Events.
type SSEExporter struct {
	eventBus EventPublisher
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewSSEExporter creates a new SSE exporter.
func NewSSEExporter(eventBus EventPublisher) *SSEExporter {
	return &SSEExporter{
		eventBus: eventBus,
		interval: 1 * time.Second,
	}
}

// Start begins the SSE export loop.
func (s *SSEExporter) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run()
}

// Stop stops the SSE exporter and waits for the goroutine to finish.
func (s *SSEExporter) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *SSEExporter) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.publishMetrics()
		}
	}
}

func (s *SSEExporter) publishMetrics() {
	for _, m := range metrics.GetAllChannelMetrics() {
		s.eventBus.Publish(events.ChannelMetricsEvent{
			EventType:       "channel_metrics",
			DeviceID:        m.DeviceID,
			Crosspoint:      m.Crosspoint,
			State:           m.State,
			BufferLevel:     strconv.FormatUint(uint64(m.BufferLevel), 10),
			FramesProcessed: strconv.FormatUint(uint64(m.FramesProcessed), 10),
			FramesDropped:   strconv.FormatUint(uint64(m.FramesDropped), 10),
		})
	}
}

// GetEventTypes returns event types for SSE endpoint registration.
func GetEventTypes() map[string]any {
	return map[string]any{
		"channel-metrics": events.ChannelMetricsEvent{},
	}
}

// GetEventTypesForEndpoint returns event types for a specific SSE endpoint.
func GetEventTypesForEndpoint(endpoint string) map[string]any {
	if endpoint == "events" {
		return GetEventTypes()
	}
	return map[string]any{}
}

// GetEventRoutes returns the routing configuration for events.
func GetEventRoutes() map[string]string {
	return map[string]string{
		"channel-metrics": "events",
	}
}
