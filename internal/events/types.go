package events

// Event type constants for kelindar/event.
const (
	TypeChannelStateChanged uint32 = iota + 1
	TypeTransferCompleted
	TypeFramesDropped
	TypeRegistersWritten
	TypeChannelMetrics
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// ChannelStateChangedEvent is published on every AutoCirculate state transition.
type ChannelStateChangedEvent struct {
	DeviceID   string `json:"device_id" example:"emu0" doc:"Device identifier"`
	Crosspoint string `json:"crosspoint" example:"ch1" doc:"Crosspoint name"`
	From       string `json:"from" example:"Initializing" doc:"Previous state"`
	To         string `json:"to" example:"Running" doc:"New state"`
	StartFrame int32  `json:"start_frame" example:"0" doc:"First frame of the assigned range"`
	EndFrame   int32  `json:"end_frame" example:"7" doc:"Last frame of the assigned range"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ChannelStateChangedEvent.
func (e ChannelStateChangedEvent) Type() uint32 { return TypeChannelStateChanged }

// IsActive reports whether the new state holds a frame range.
func (e ChannelStateChangedEvent) IsActive() bool { return e.To != "Disabled" }

// TransferCompletedEvent is published after each successful frame transfer.
type TransferCompletedEvent struct {
	DeviceID        string `json:"device_id" example:"emu0" doc:"Device identifier"`
	Crosspoint      string `json:"crosspoint" example:"ch1" doc:"Crosspoint name"`
	Frame           uint32 `json:"frame" example:"3" doc:"Frame slot used"`
	BufferLevel     uint32 `json:"buffer_level" example:"2" doc:"Frames queued after the transfer"`
	FramesProcessed uint32 `json:"frames_processed" example:"120" doc:"Cumulative transferred frames"`
	FramesDropped   uint32 `json:"frames_dropped" example:"0" doc:"Cumulative dropped frames"`
	VideoBytes      int    `json:"video_bytes" example:"4147200" doc:"Video bytes moved"`
	AudioBytes      int    `json:"audio_bytes" example:"6400" doc:"Audio bytes moved"`
	Timestamp       string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for TransferCompletedEvent.
func (e TransferCompletedEvent) Type() uint32 { return TypeTransferCompleted }

// FramesDroppedEvent is published when a crosspoint drops frames.
type FramesDroppedEvent struct {
	DeviceID   string `json:"device_id" example:"emu0" doc:"Device identifier"`
	Crosspoint string `json:"crosspoint" example:"in1" doc:"Crosspoint name"`
	Reason     string `json:"reason" example:"overrun" doc:"overrun or underrun"`
	Count      uint32 `json:"count" example:"1" doc:"Frames dropped by this occurrence"`
	Total      uint32 `json:"total" example:"4" doc:"Cumulative dropped frames"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for FramesDroppedEvent.
func (e FramesDroppedEvent) Type() uint32 { return TypeFramesDropped }

// RegistersWrittenEvent is published after a register write batch.
type RegistersWrittenEvent struct {
	DeviceID  string   `json:"device_id" example:"emu0" doc:"Device identifier"`
	Registers []uint32 `json:"registers" doc:"Register numbers written successfully"`
	Failures  int      `json:"failures" example:"0" doc:"Writes rejected"`
	Timestamp string   `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for RegistersWrittenEvent.
func (e RegistersWrittenEvent) Type() uint32 { return TypeRegistersWritten }

// ChannelMetricsEvent is a periodic snapshot of one crosspoint's counters.
type ChannelMetricsEvent struct {
	EventType       string `json:"type" example:"channel_metrics" doc:"Event type"`
	DeviceID        string `json:"device_id" example:"emu0" doc:"Device identifier"`
	Crosspoint      string `json:"crosspoint" example:"in1" doc:"Crosspoint name"`
	State           string `json:"state" example:"Running" doc:"AutoCirculate state"`
	BufferLevel     string `json:"buffer_level" example:"3" doc:"Frames queued"`
	FramesProcessed string `json:"frames_processed" example:"1200" doc:"Cumulative transferred frames"`
	FramesDropped   string `json:"frames_dropped" example:"2" doc:"Cumulative dropped frames"`
}

// Type returns the event type identifier for ChannelMetricsEvent.
func (e ChannelMetricsEvent) Type() uint32 { return TypeChannelMetrics }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"api" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
