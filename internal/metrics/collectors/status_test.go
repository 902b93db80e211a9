package collectors

import (
	"context"
	"testing"
	"time"

	"github.com/smazurov/ntv2node/internal/device"
	"github.com/smazurov/ntv2node/internal/events"
	"github.com/smazurov/ntv2node/internal/metrics"
	"github.com/smazurov/ntv2node/pkg/ntv2"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStatusCollectorObservesDevice(t *testing.T) {
	bus := events.New()
	d, err := device.New(device.Config{ID: "col0", NumFrameBuffers: 8, FrameBytes: 16, FrameRate: 30}, bus)
	if err != nil {
		t.Fatalf("device.New failed: %v", err)
	}
	defer d.Close()

	cmd := ntv2.InitCommand{Crosspoint: ntv2.CrosspointInput1, StartFrame: 0, EndFrame: 3, NumChannels: 1, AudioSystem: ntv2.AudioSystemInvalid}
	if err := d.AutoCirculate(context.Background(), cmd.Envelope()); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	defer metrics.DeleteChannelMetrics("col0", "in1")

	c := NewStatusCollector("col0", d, bus)
	c.interval = time.Hour
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer c.Stop()

	waitFor(t, func() bool { return metrics.GetChannelMetrics("col0", "in1") != nil })
	if got := metrics.GetChannelMetrics("col0", "in1").State; got != "Initializing" {
		t.Errorf("State = %q, want Initializing", got)
	}
	if metrics.GetChannelMetrics("col0", "ch1") != nil {
		t.Error("disabled crosspoint should not be exported")
	}

	bus.Publish(events.FramesDroppedEvent{DeviceID: "col0", Crosspoint: "in1", Reason: "overrun", Count: 1, Total: 4})
	bus.Publish(events.FramesDroppedEvent{DeviceID: "other", Crosspoint: "in1", Total: 40})
	waitFor(t, func() bool { return metrics.GetChannelMetrics("col0", "in1").FramesDropped == 4 })
}

type failingSource struct{ calls int }

func (f *failingSource) AutoCirculate(context.Context, *ntv2.Envelope) error {
	f.calls++
	return ntv2.ErrDeviceNotOpen
}

func TestStatusCollectorStopsPollOnError(t *testing.T) {
	src := &failingSource{}
	c := NewStatusCollector("col1", src, nil)
	c.ctx = context.Background()
	c.collect()
	if src.calls != 1 {
		t.Errorf("calls = %d, want 1 (poll abandons after first failure)", src.calls)
	}
}
