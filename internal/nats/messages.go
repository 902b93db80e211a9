package nats

import (
	"encoding/json"
	"fmt"
)

// Subject prefixes for NATS topics.
const (
	SubjectDevicePrefix   = "ntv2node.device"
	SubjectChannelsPrefix = "ntv2node.channels"
)

// SubjectDeviceMessage carries encoded NTV2 messages (registers, status,
// transfers) for one device.
func SubjectDeviceMessage(deviceID string) string {
	return fmt.Sprintf("%s.%s.message", SubjectDevicePrefix, deviceID)
}

// SubjectDeviceAutoCirculate carries encoded AutoCirculate envelopes.
func SubjectDeviceAutoCirculate(deviceID string) string {
	return fmt.Sprintf("%s.%s.autocirculate", SubjectDevicePrefix, deviceID)
}

// SubjectDeviceInfo answers with the JSON device description.
func SubjectDeviceInfo(deviceID string) string {
	return fmt.Sprintf("%s.%s.info", SubjectDevicePrefix, deviceID)
}

// SubjectChannelState returns the subject for crosspoint state changes.
func SubjectChannelState(crosspoint string) string {
	return fmt.Sprintf("%s.%s.state", SubjectChannelsPrefix, crosspoint)
}

// SubjectChannelTelemetry returns the subject for per-frame crosspoint
// telemetry.
func SubjectChannelTelemetry(crosspoint string) string {
	return fmt.Sprintf("%s.%s.telemetry", SubjectChannelsPrefix, crosspoint)
}

// StateMessage is an AutoCirculate state transition sent over NATS.
type StateMessage struct {
	DeviceID   string `json:"device_id"`
	Crosspoint string `json:"crosspoint"`
	Timestamp  string `json:"timestamp"`
	From       string `json:"from"`
	To         string `json:"to"`
	StartFrame int32  `json:"start_frame"`
	EndFrame   int32  `json:"end_frame"`
}

// Marshal serializes the message to JSON.
func (m StateMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// TelemetryMessage reports a transfer or a drop on one crosspoint.
type TelemetryMessage struct {
	DeviceID        string `json:"device_id"`
	Crosspoint      string `json:"crosspoint"`
	Timestamp       string `json:"timestamp"`
	Kind            string `json:"kind"` // transfer, drop
	Frame           uint32 `json:"frame,omitempty"`
	BufferLevel     uint32 `json:"buffer_level"`
	FramesProcessed uint32 `json:"frames_processed"`
	FramesDropped   uint32 `json:"frames_dropped"`
	VideoBytes      int    `json:"video_bytes,omitempty"`
	AudioBytes      int    `json:"audio_bytes,omitempty"`
	Reason          string `json:"reason,omitempty"` // overrun, underrun
}

// Telemetry kinds.
const (
	TelemetryTransfer = "transfer"
	TelemetryDrop     = "drop"
)

// Marshal serializes the message to JSON.
func (m TelemetryMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalState deserializes a StateMessage from JSON.
func UnmarshalState(data []byte) (StateMessage, error) {
	var m StateMessage
	err := json.Unmarshal(data, &m)
	return m, err
}

// UnmarshalTelemetry deserializes a TelemetryMessage from JSON.
func UnmarshalTelemetry(data []byte) (TelemetryMessage, error) {
	var m TelemetryMessage
	err := json.Unmarshal(data, &m)
	return m, err
}
