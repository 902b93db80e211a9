package exporters

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/ntv2node/internal/events"
	"github.com/smazurov/ntv2node/internal/metrics"
	"github.com/smazurov/ntv2node/pkg/ntv2"
)

type mockEventBus struct {
	mu        sync.Mutex
	events    []events.Event
	published chan struct{}
}

func newMockEventBus() *mockEventBus {
	return &mockEventBus{
		events:    make([]events.Event, 0),
		published: make(chan struct{}, 100),
	}
}

func (m *mockEventBus) Publish(ev events.Event) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	select {
	case m.published <- struct{}{}:
	default:
	}
}

func (m *mockEventBus) getEvents() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]events.Event, len(m.events))
	copy(result, m.events)
	return result
}

func observe(device string, xpt ntv2.Crosspoint, processed, dropped uint32) {
	st := ntv2.NewStatus(xpt)
	st.State = ntv2.StateRunning
	st.EndFrame = 6
	st.BufferLevel = 4
	st.FramesProcessed = processed
	st.FramesDropped = dropped
	metrics.ObserveChannel(device, st)
}

func TestSSEExporterPublishesMetrics(t *testing.T) {
	const device = "sse-test"
	observe(device, ntv2.CrosspointInput2, 300, 5)
	defer metrics.DeleteChannelMetrics(device, "in2")

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock)
	exporter.interval = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	exporter.Start(ctx)

	// Wait for at least one publish cycle
	select {
	case <-mock.published:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for metrics publish")
	}

	cancel()
	exporter.Stop()

	var found bool
	for _, ev := range mock.getEvents() {
		cme, ok := ev.(events.ChannelMetricsEvent)
		if !ok || cme.DeviceID != device {
			continue
		}
		found = true
		if cme.Crosspoint != "in2" {
			t.Errorf("Crosspoint = %q, want \"in2\"", cme.Crosspoint)
		}
		if cme.State != "Running" {
			t.Errorf("State = %q, want \"Running\"", cme.State)
		}
		if cme.BufferLevel != "4" {
			t.Errorf("BufferLevel = %q, want \"4\"", cme.BufferLevel)
		}
		if cme.FramesProcessed != "300" {
			t.Errorf("FramesProcessed = %q, want \"300\"", cme.FramesProcessed)
		}
		if cme.FramesDropped != "5" {
			t.Errorf("FramesDropped = %q, want \"5\"", cme.FramesDropped)
		}
		break
	}

	if !found {
		t.Error("expected ChannelMetricsEvent for test device")
	}
}

func TestSSEExporterNoMetrics(t *testing.T) {
	const device = "sse-no-metrics-test"
	metrics.DeleteChannelMetrics(device, "ch1")

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock)
	exporter.interval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	exporter.Start(ctx)

	time.Sleep(50 * time.Millisecond)

	cancel()
	exporter.Stop()

	for _, ev := range mock.getEvents() {
		if cme, ok := ev.(events.ChannelMetricsEvent); ok && cme.DeviceID == device {
			t.Error("expected no events for deleted crosspoint")
		}
	}
}

func TestSSEExporterStopIdempotent(t *testing.T) {
	const device = "sse-idempotent-test"
	observe(device, ntv2.CrosspointChannel1, 1, 0)
	defer metrics.DeleteChannelMetrics(device, "ch1")

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock)
	exporter.interval = 10 * time.Millisecond

	exporter.Start(context.Background())
	time.Sleep(30 * time.Millisecond)

	exporter.Stop()
	exporter.Stop()
	exporter.Stop()

	countAfterStop := len(mock.getEvents())
	time.Sleep(30 * time.Millisecond)
	if countAfterWait := len(mock.getEvents()); countAfterWait != countAfterStop {
		t.Errorf("events published after stop: got %d, want %d", countAfterWait, countAfterStop)
	}
}

func TestSSEExporterStopBeforeStart(t *testing.T) {
	const device = "sse-stop-before-start-test"
	observe(device, ntv2.CrosspointChannel2, 1, 0)
	defer metrics.DeleteChannelMetrics(device, "ch2")

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock)
	exporter.interval = 10 * time.Millisecond

	// Stop before start should not panic
	exporter.Stop()

	exporter.Start(t.Context())
	time.Sleep(30 * time.Millisecond)
	exporter.Stop()

	if len(mock.getEvents()) == 0 {
		t.Error("expected events after Start(), got none")
	}
}

func TestGetEventTypes(t *testing.T) {
	types := GetEventTypes()
	if _, ok := types["channel-metrics"]; !ok {
		t.Error("expected channel-metrics event type")
	}
}

func TestGetEventTypesForEndpoint(t *testing.T) {
	types := GetEventTypesForEndpoint("events")
	if _, ok := types["channel-metrics"]; !ok {
		t.Error("expected channel-metrics for events endpoint")
	}

	types = GetEventTypesForEndpoint("unknown")
	if len(types) != 0 {
		t.Error("expected empty map for unknown endpoint")
	}
}

func TestGetEventRoutes(t *testing.T) {
	routes := GetEventRoutes()
	if routes["channel-metrics"] != "events" {
		t.Errorf("channel-metrics route = %q, want \"events\"", routes["channel-metrics"])
	}
}
