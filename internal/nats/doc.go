// Package nats provides embedded NATS messaging for ntv2node: the broker a
// daemon runs in-process, the connection it publishes channel activity on,
// and a bridge that replays a remote daemon's channel activity onto a local
// event bus.
//
// # Architecture
//
//   - Server: Embedded NATS server running in the daemon (ntv2node serve)
//   - Client: The daemon's connection; forwards event bus activity to NATS
//     and carries the device RPC (see internal/rpc)
//   - Bridge: Subscribes to channel subjects and publishes to an event bus
//
// # Subject Hierarchy
//
//	ntv2node.device.{device_id}.message        # Encoded NTV2 messages (request/reply)
//	ntv2node.device.{device_id}.autocirculate  # Encoded AutoCirculate envelopes (request/reply)
//	ntv2node.device.{device_id}.info           # Device description as JSON (request/reply)
//	ntv2node.channels.{crosspoint}.state       # State transitions (daemon → observers)
//	ntv2node.channels.{crosspoint}.telemetry   # Transfers and drops (daemon → observers)
//
// Channel subjects are fire-and-forget core NATS; there is no JetStream.
// Publishing degrades to a no-op when NATS is unavailable.
//
// # Debugging with nats CLI
//
// Watch every channel of a running daemon:
//
//	nats sub "ntv2node.channels.>" -s nats://localhost:4222
//
// Only drops on capture channel 1:
//
//	nats sub "ntv2node.channels.in1.telemetry" | jq 'select(.kind == "drop")'
//
// Ask for the device description:
//
//	nats req "ntv2node.device.emu0.info" ""
//
// # Message Formats
//
// StateMessage (ntv2node.channels.{crosspoint}.state):
//
//	{
//	  "device_id": "emu0",
//	  "crosspoint": "ch1",
//	  "timestamp": "2025-01-27T10:30:00Z",
//	  "from": "Starting",
//	  "to": "Running",
//	  "start_frame": 0,
//	  "end_frame": 6
//	}
//
// TelemetryMessage (ntv2node.channels.{crosspoint}.telemetry):
//
//	{
//	  "device_id": "emu0",
//	  "crosspoint": "in1",
//	  "timestamp": "2025-01-27T10:30:00Z",
//	  "kind": "drop",
//	  "buffer_level": 6,
//	  "frames_processed": 118,
//	  "frames_dropped": 3,
//	  "reason": "overrun"
//	}
package nats
