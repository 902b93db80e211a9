package api

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/ntv2node/internal/api/models"
	"github.com/smazurov/ntv2node/internal/autocirculate"
	"github.com/smazurov/ntv2node/internal/device"
	"github.com/smazurov/ntv2node/internal/events"
	"github.com/smazurov/ntv2node/internal/led"
	"github.com/smazurov/ntv2node/internal/metrics/exporters"
)

const (
	testUser = "admin"
	testPass = "secret"
)

type fixture struct {
	server *httptest.Server
	device *device.Device
	bus    *events.Bus
	led    *led.Manager
}

type fakeLED struct{}

func (fakeLED) Set(string, bool, string) error { return nil }
func (fakeLED) Available() []string            { return []string{"system"} }
func (fakeLED) Patterns() []string             { return []string{led.PatternSolid, led.PatternBlink} }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	bus := events.New()
	d, err := device.New(device.Config{
		ID:              "api0",
		NumFrameBuffers: 16,
		FrameBytes:      64,
		NumRegisters:    1024,
		FrameRate:       30,
	}, bus)
	if err != nil {
		t.Fatalf("device.New failed: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	ledManager := led.NewManager(fakeLED{}, bus, "system", nil)
	ledManager.Start()
	t.Cleanup(ledManager.Stop)

	server := NewServer(&Options{
		AuthUsername:      testUser,
		AuthPassword:      testPass,
		Channels:          autocirculate.New(d),
		EventBus:          bus,
		PrometheusHandler: exporters.HTTPHandler(),
		LED:               ledManager,
	})
	ts := httptest.NewServer(server.mux)
	t.Cleanup(ts.Close)
	return &fixture{server: ts, device: d, bus: bus, led: ledManager}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.SetBasicAuth(testUser, testPass)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response, want int) T {
	t.Helper()
	var out T
	if resp.StatusCode != want {
		var problem map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&problem)
		t.Fatalf("status = %d, want %d (%v)", resp.StatusCode, want, problem)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestHealthNeedsNoAuth(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.server.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong password", "Basic " + base64.StdEncoding.EncodeToString([]byte("admin:nope")), "", http.StatusUnauthorized},
		{"bearer", "Bearer token", "", http.StatusUnauthorized},
		{"header", "Basic " + base64.StdEncoding.EncodeToString([]byte(testUser+":"+testPass)), "", http.StatusOK},
		{"query", "", "?auth=" + base64.StdEncoding.EncodeToString([]byte(testUser+":"+testPass)), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, f.server.URL+"/api/device"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestGetDevice(t *testing.T) {
	f := newFixture(t)

	info := decode[map[string]any](t, f.do(t, http.MethodGet, "/api/device", nil), http.StatusOK)
	if info["id"] != "api0" {
		t.Errorf("id = %v, want api0", info["id"])
	}
	if info["num_frame_buffers"] != float64(16) {
		t.Errorf("num_frame_buffers = %v, want 16", info["num_frame_buffers"])
	}
}

func TestListChannelsAllDisabled(t *testing.T) {
	f := newFixture(t)

	list := decode[models.ChannelListData](t, f.do(t, http.MethodGet, "/api/channels", nil), http.StatusOK)
	if list.Count != 8 || len(list.Channels) != 8 {
		t.Fatalf("count = %d, channels = %d, want 8", list.Count, len(list.Channels))
	}
	for i, ch := range list.Channels {
		if ch.Channel != i+1 {
			t.Errorf("channels[%d].channel = %d", i, ch.Channel)
		}
		if ch.State != "Disabled" {
			t.Errorf("channel %d state = %s, want Disabled", ch.Channel, ch.State)
		}
		if ch.AudioSystem != -1 {
			t.Errorf("channel %d audio_system = %d, want -1", ch.Channel, ch.AudioSystem)
		}
	}
}

func TestCaptureLifecycle(t *testing.T) {
	f := newFixture(t)

	st := decode[models.ChannelStatusData](t, f.do(t, http.MethodPost, "/api/channels/2/init", models.InitRequestData{
		Direction:   models.DirectionInput,
		FrameCount:  4,
		AudioSystem: 1,
		Options:     []string{"rp188"},
	}), http.StatusOK)
	if st.Crosspoint != "in2" || st.State != "Initializing" {
		t.Fatalf("after init = %+v", st)
	}
	if st.EndFrame-st.StartFrame+1 != 4 {
		t.Errorf("range %d-%d, want 4 frames", st.StartFrame, st.EndFrame)
	}
	if st.AudioSystem != 1 {
		t.Errorf("audio_system = %d, want 1", st.AudioSystem)
	}
	if len(st.Options) != 1 || st.Options[0] != "rp188" {
		t.Errorf("options = %v, want [rp188]", st.Options)
	}

	st = decode[models.ChannelStatusData](t, f.do(t, http.MethodPost, "/api/channels/2/commands",
		models.CommandRequestData{Command: models.CommandStart}), http.StatusOK)
	if st.State != "Running" {
		t.Fatalf("after start state = %s, want Running", st.State)
	}

	f.device.Tick()
	f.device.Tick()

	st = decode[models.ChannelStatusData](t, f.do(t, http.MethodGet, "/api/channels/2/status", nil), http.StatusOK)
	if st.BufferLevel == 0 {
		t.Errorf("buffer_level = 0 after two ticks")
	}

	path := "/api/channels/2/framestamp/" + strconv.Itoa(int(st.StartFrame))
	stamp := decode[models.FrameStampData](t, f.do(t, http.MethodGet, path, nil), http.StatusOK)
	if stamp.Frame != uint32(st.StartFrame) {
		t.Errorf("frame = %d, want %d", stamp.Frame, st.StartFrame)
	}
	if stamp.CurrentTime == 0 {
		t.Error("current_time not set")
	}

	st = decode[models.ChannelStatusData](t, f.do(t, http.MethodPost, "/api/channels/2/commands",
		models.CommandRequestData{Command: models.CommandStop}), http.StatusOK)
	if st.State != "Disabled" {
		t.Errorf("after stop state = %s, want Disabled", st.State)
	}
}

func TestPauseCommandFrame(t *testing.T) {
	f := newFixture(t)

	st := decode[models.ChannelStatusData](t, f.do(t, http.MethodPost, "/api/channels/2/init", models.InitRequestData{
		Direction:  models.DirectionInput,
		FrameCount: 4,
	}), http.StatusOK)
	decode[models.ChannelStatusData](t, f.do(t, http.MethodPost, "/api/channels/2/commands",
		models.CommandRequestData{Command: models.CommandStart}), http.StatusOK)

	// Pausing at the first frame of the ring is deferred until it comes round.
	first := st.StartFrame
	st = decode[models.ChannelStatusData](t, f.do(t, http.MethodPost, "/api/channels/2/commands",
		models.CommandRequestData{Command: models.CommandPause, Frame: &first}), http.StatusOK)
	if st.State != "Running" {
		t.Fatalf("pause at frame %d: state = %s, want Running", first, st.State)
	}

	st = decode[models.ChannelStatusData](t, f.do(t, http.MethodPost, "/api/channels/2/commands",
		models.CommandRequestData{Command: models.CommandPause}), http.StatusOK)
	if st.State != "Paused" {
		t.Errorf("pause without frame: state = %s, want Paused", st.State)
	}

	resp := f.do(t, http.MethodPost, "/api/channels/2/commands", models.CommandRequestData{Command: models.CommandActiveFrame})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("active-frame without frame: status = %d, want 400", resp.StatusCode)
	}
}

func TestChannelErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"start disabled", http.MethodPost, "/api/channels/3/commands", models.CommandRequestData{Command: models.CommandStart}, http.StatusConflict},
		{"range past memory", http.MethodPost, "/api/channels/1/init", models.InitRequestData{Direction: models.DirectionOutput, StartFrame: 10, EndFrame: 20}, http.StatusBadRequest},
		{"unknown option", http.MethodPost, "/api/channels/1/init", models.InitRequestData{Direction: models.DirectionOutput, Options: []string{"turbo"}}, http.StatusBadRequest},
		{"framestamp disabled", http.MethodGet, "/api/channels/1/framestamp/0", nil, http.StatusNotFound},
		{"channel out of range", http.MethodGet, "/api/channels/9/status", nil, http.StatusUnprocessableEntity},
		{"unknown command", http.MethodPost, "/api/channels/1/commands", map[string]any{"command": "rewind"}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, tt.method, tt.path, tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestOverlappingInitConflicts(t *testing.T) {
	f := newFixture(t)

	decode[models.ChannelStatusData](t, f.do(t, http.MethodPost, "/api/channels/1/init",
		models.InitRequestData{Direction: models.DirectionOutput, StartFrame: 0, EndFrame: 5}), http.StatusOK)

	resp := f.do(t, http.MethodPost, "/api/channels/2/init",
		models.InitRequestData{Direction: models.DirectionOutput, StartFrame: 3, EndFrame: 8})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestRegisters(t *testing.T) {
	f := newFixture(t)

	written := decode[models.RegisterWriteData](t, f.do(t, http.MethodPost, "/api/registers/write", map[string]any{
		"writes": []models.RegisterWrite{
			{Num: 100, Value: 0xAB},
			{Num: 101, Value: 0x3, Mask: 0xF0, Shift: 4},
			{Num: 5000, Value: 1},
		},
	}), http.StatusOK)
	if written.Written != 2 {
		t.Errorf("written = %d, want 2", written.Written)
	}
	if len(written.Rejected) != 1 || written.Rejected[0].Num != 5000 {
		t.Errorf("rejected = %+v, want register 5000", written.Rejected)
	}

	read := decode[models.RegisterReadData](t, f.do(t, http.MethodPost, "/api/registers/read", map[string]any{
		"registers": []uint32{100, 101, 5000},
	}), http.StatusOK)
	want := map[uint32]uint32{100: 0xAB, 101: 0x30}
	if len(read.Values) != len(want) {
		t.Fatalf("values = %+v", read.Values)
	}
	for _, v := range read.Values {
		if want[v.Num] != v.Value {
			t.Errorf("register %d = %#x, want %#x", v.Num, v.Value, want[v.Num])
		}
	}
	if len(read.Missing) != 1 || read.Missing[0] != 5000 {
		t.Errorf("missing = %v, want [5000]", read.Missing)
	}
}

func TestMetricsEndpointNeedsNoAuth(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestEventsStream(t *testing.T) {
	f := newFixture(t)

	auth := base64.StdEncoding.EncodeToString([]byte(testUser + ":" + testPass))
	resp, err := http.Get(f.server.URL + "/api/events?auth=" + auth)
	if err != nil {
		t.Fatalf("GET /api/events: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type = %q", ct)
	}

	lines := make(chan string, 64)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	// The snapshot covers all eight frame stores before live events.
	snapshot := 0
	for snapshot < 8 {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatal("stream closed during snapshot")
			}
			if strings.HasPrefix(line, "data:") {
				snapshot++
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("got %d snapshot events, want 8", snapshot)
		}
	}

	f.bus.Publish(events.FramesDroppedEvent{DeviceID: "api0", Crosspoint: "in1", Reason: "overrun", Count: 1, Total: 3})

	var sawType bool
	timeout := time.After(2 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatal("stream closed")
			}
			if line == "event: frames-dropped" {
				sawType = true
				continue
			}
			if sawType && strings.HasPrefix(line, "data:") {
				var e events.FramesDroppedEvent
				if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &e); err != nil {
					t.Fatalf("decode event: %v", err)
				}
				if e.Total != 3 || e.Crosspoint != "in1" {
					t.Errorf("event = %+v", e)
				}
				return
			}
		case <-timeout:
			t.Fatal("frames-dropped event not received")
		}
	}
}

func TestLEDFollowsChannels(t *testing.T) {
	f := newFixture(t)

	got := decode[LEDStatusData](t, f.do(t, http.MethodGet, "/api/leds", nil), http.StatusOK)
	if got.Type != "system" || got.Indicator != "idle" {
		t.Fatalf("LED = %+v, want system/idle", got)
	}

	f.bus.Publish(events.ChannelStateChangedEvent{DeviceID: "api0", Crosspoint: "ch1", From: "Starting", To: "Running"})
	deadline := time.Now().Add(2 * time.Second)
	for {
		got = decode[LEDStatusData](t, f.do(t, http.MethodGet, "/api/leds", nil), http.StatusOK)
		if got.Indicator == "running" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("indicator = %q, want running", got.Indicator)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(got.AvailableTypes) != 1 || got.AvailableTypes[0] != "system" {
		t.Errorf("available types = %v", got.AvailableTypes)
	}
}

func TestRequestLevel(t *testing.T) {
	tests := []struct {
		method string
		path   string
		status int
		want   slog.Level
	}{
		{http.MethodGet, "/api/channels/1/status", 200, slog.LevelDebug},
		{http.MethodGet, "/api/channels/2/framestamp/3", 200, slog.LevelDebug},
		{http.MethodGet, "/metrics", 200, slog.LevelDebug},
		{http.MethodOptions, "/api/channels", 204, slog.LevelDebug},
		{http.MethodGet, "/api/channels", 200, slog.LevelInfo},
		{http.MethodPost, "/api/channels/1/commands", 200, slog.LevelInfo},
		{http.MethodGet, "/api/channels/1/status", 404, slog.LevelWarn},
		{http.MethodPost, "/api/registers/read", 503, slog.LevelError},
	}
	for _, tt := range tests {
		if got := requestLevel(tt.method, tt.path, tt.status); got != tt.want {
			t.Errorf("requestLevel(%s %s %d) = %v, want %v", tt.method, tt.path, tt.status, got, tt.want)
		}
	}
}
