package nats

import (
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/ntv2node/internal/events"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startTestServer(t *testing.T, port int) *Server {
	t.Helper()
	server := NewServer(ServerOptions{
		Port:   port,
		Name:   "test-server",
		Logger: testLogger(),
	})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(server.Stop)
	return server
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(ServerOptions{
		Port:   14222, // Use non-default port for testing
		Name:   "test-server",
		Logger: testLogger(),
	})

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}

	if !server.IsRunning() {
		t.Error("Server should be running after Start()")
	}

	if url := server.ClientURL(); url == "" {
		t.Error("ClientURL should not be empty")
	}

	server.Stop()

	if server.IsRunning() {
		t.Error("Server should not be running after Stop()")
	}
}

func TestClientGracefulDegradation(t *testing.T) {
	client := NewClient("nats://localhost:59999", "test", testLogger())

	if err := client.Connect(); err == nil {
		t.Error("Connect should fail with non-existent server")
	}

	// These should be no-ops without panicking
	client.PublishState(StateMessage{Crosspoint: "ch1", To: "Running"})
	client.PublishTelemetry(TelemetryMessage{Crosspoint: "ch1", Kind: TelemetryTransfer})

	if client.IsConnected() {
		t.Error("Client should not be connected")
	}
	if client.Conn() != nil {
		t.Error("Conn should be nil while offline")
	}

	client.Close()
}

func TestClientNegotiatesLargePayload(t *testing.T) {
	server := startTestServer(t, 14223)

	client := NewClient(server.ClientURL(), "test", testLogger())
	if err := client.Connect(); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	if got := client.Conn().MaxPayload(); got != DefaultMaxPayload {
		t.Errorf("MaxPayload = %d, want %d", got, DefaultMaxPayload)
	}
}

func TestForwardEventsThroughBridge(t *testing.T) {
	server := startTestServer(t, 14224)

	remote := events.New()
	bridge := NewBridge(server.ClientURL(), remote, testLogger())
	if err := bridge.Start(); err != nil {
		t.Fatalf("Failed to start bridge: %v", err)
	}
	defer bridge.Stop()

	states := make(chan events.ChannelStateChangedEvent, 4)
	drops := make(chan events.FramesDroppedEvent, 4)
	transfers := make(chan events.TransferCompletedEvent, 4)
	defer remote.Subscribe(func(e events.ChannelStateChangedEvent) { states <- e })()
	defer remote.Subscribe(func(e events.FramesDroppedEvent) { drops <- e })()
	defer remote.Subscribe(func(e events.TransferCompletedEvent) { transfers <- e })()

	local := events.New()
	client := NewClient(server.ClientURL(), "test", testLogger())
	if err := client.Connect(); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()
	client.ForwardEvents(local)

	local.Publish(events.ChannelStateChangedEvent{DeviceID: "emu0", Crosspoint: "ch1", From: "Starting", To: "Running", EndFrame: 6})
	local.Publish(events.TransferCompletedEvent{DeviceID: "emu0", Crosspoint: "ch1", Frame: 2, FramesProcessed: 3})
	local.Publish(events.FramesDroppedEvent{DeviceID: "emu0", Crosspoint: "in2", Reason: "overrun", Count: 1, Total: 5})

	select {
	case e := <-states:
		if e.Crosspoint != "ch1" || e.To != "Running" || e.EndFrame != 6 {
			t.Errorf("state event = %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("state event not bridged")
	}
	select {
	case e := <-transfers:
		if e.Frame != 2 || e.FramesProcessed != 3 {
			t.Errorf("transfer event = %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("transfer event not bridged")
	}
	select {
	case e := <-drops:
		if e.Crosspoint != "in2" || e.Reason != "overrun" || e.Total != 5 {
			t.Errorf("drop event = %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("drop event not bridged")
	}
}

func TestCloseStopsForwarding(t *testing.T) {
	local := events.New()
	client := NewClient("nats://localhost:59999", "test", testLogger())
	client.ForwardEvents(local)
	client.Close()

	// Publishing after Close must not reach the closed client.
	local.Publish(events.ChannelStateChangedEvent{Crosspoint: "ch1"})
	if len(client.unsubs) != 0 {
		t.Errorf("unsubs = %d, want 0", len(client.unsubs))
	}
}

func TestMessageMarshalUnmarshal(t *testing.T) {
	t.Run("StateMessage", func(t *testing.T) {
		original := StateMessage{
			DeviceID:   "emu0",
			Crosspoint: "in1",
			Timestamp:  "2024-01-01T00:00:00Z",
			From:       "Initializing",
			To:         "Running",
			StartFrame: 7,
			EndFrame:   13,
		}

		data, err := original.Marshal()
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}

		parsed, err := UnmarshalState(data)
		if err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		if parsed != original {
			t.Errorf("got %+v, want %+v", parsed, original)
		}
	})

	t.Run("TelemetryDropOmitsTransferFields", func(t *testing.T) {
		data, err := TelemetryMessage{Crosspoint: "ch1", Kind: TelemetryDrop, Reason: "underrun"}.Marshal()
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		for _, field := range []string{`"frame"`, `"video_bytes"`, `"audio_bytes"`} {
			if strings.Contains(string(data), field) {
				t.Errorf("drop telemetry carries %s: %s", field, data)
			}
		}
	})
}

func TestSubjectFunctions(t *testing.T) {
	tests := []struct {
		fn       func(string) string
		arg      string
		expected string
	}{
		{SubjectDeviceMessage, "emu0", "ntv2node.device.emu0.message"},
		{SubjectDeviceAutoCirculate, "emu0", "ntv2node.device.emu0.autocirculate"},
		{SubjectDeviceInfo, "emu0", "ntv2node.device.emu0.info"},
		{SubjectChannelState, "ch1", "ntv2node.channels.ch1.state"},
		{SubjectChannelTelemetry, "in3", "ntv2node.channels.in3.telemetry"},
	}

	for _, tt := range tests {
		if result := tt.fn(tt.arg); result != tt.expected {
			t.Errorf("Got %s, want %s", result, tt.expected)
		}
	}
}
