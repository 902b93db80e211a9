package nats

import (
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/smazurov/ntv2node/internal/events"
)

// Bridge subscribes to the channel subjects of a remote daemon and forwards
// them to a local event bus.
type Bridge struct {
	url      string
	eventBus *events.Bus
	conn     *nats.Conn
	subs     []*nats.Subscription
	logger   *slog.Logger
	mu       sync.Mutex
}

// NewBridge creates a new NATS-to-EventBus bridge.
func NewBridge(url string, eventBus *events.Bus, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}

	return &Bridge{
		url:      url,
		eventBus: eventBus,
		logger:   logger.With("component", "nats-bridge"),
	}
}

// Start connects to NATS and subscribes to all channel subjects.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	conn, err := nats.Connect(b.url,
		nats.Name("ntv2node-bridge"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				b.logger.Warn("NATS bridge disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			b.logger.Info("NATS bridge reconnected")
		}),
	)
	if err != nil {
		return err
	}

	b.conn = conn
	b.logger.Info("NATS bridge connected", "url", b.url)

	stateSub, err := conn.Subscribe(SubjectChannelsPrefix+".*.state", b.handleState)
	if err != nil {
		b.cleanup()
		return err
	}
	b.subs = append(b.subs, stateSub)

	telemetrySub, err := conn.Subscribe(SubjectChannelsPrefix+".*.telemetry", b.handleTelemetry)
	if err != nil {
		b.cleanup()
		return err
	}
	b.subs = append(b.subs, telemetrySub)

	// Flush so callers can rely on the subscriptions being live.
	if err := conn.Flush(); err != nil {
		b.cleanup()
		return err
	}

	b.logger.Info("NATS bridge subscribed to channel subjects")
	return nil
}

func (b *Bridge) handleState(msg *nats.Msg) {
	m, err := UnmarshalState(msg.Data)
	if err != nil {
		b.logger.Warn("Failed to unmarshal state", "error", err, "subject", msg.Subject)
		return
	}

	b.eventBus.Publish(events.ChannelStateChangedEvent{
		DeviceID:   m.DeviceID,
		Crosspoint: m.Crosspoint,
		From:       m.From,
		To:         m.To,
		StartFrame: m.StartFrame,
		EndFrame:   m.EndFrame,
		Timestamp:  m.Timestamp,
	})
	b.logger.Debug("Published state event", "crosspoint", m.Crosspoint, "to", m.To)
}

func (b *Bridge) handleTelemetry(msg *nats.Msg) {
	m, err := UnmarshalTelemetry(msg.Data)
	if err != nil {
		b.logger.Warn("Failed to unmarshal telemetry", "error", err, "subject", msg.Subject)
		return
	}

	switch m.Kind {
	case TelemetryTransfer:
		b.eventBus.Publish(events.TransferCompletedEvent{
			DeviceID:        m.DeviceID,
			Crosspoint:      m.Crosspoint,
			Frame:           m.Frame,
			BufferLevel:     m.BufferLevel,
			FramesProcessed: m.FramesProcessed,
			FramesDropped:   m.FramesDropped,
			VideoBytes:      m.VideoBytes,
			AudioBytes:      m.AudioBytes,
			Timestamp:       m.Timestamp,
		})
	case TelemetryDrop:
		b.eventBus.Publish(events.FramesDroppedEvent{
			DeviceID:   m.DeviceID,
			Crosspoint: m.Crosspoint,
			Reason:     m.Reason,
			Count:      1,
			Total:      m.FramesDropped,
			Timestamp:  m.Timestamp,
		})
	default:
		b.logger.Warn("Unknown telemetry kind", "kind", m.Kind, "subject", msg.Subject)
	}
}

// cleanup unsubscribes and closes connection.
func (b *Bridge) cleanup() {
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.subs = nil

	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
}

// Stop closes the bridge connection.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.cleanup()
	b.logger.Info("NATS bridge stopped")
}

// IsConnected returns true if the bridge is connected to NATS.
func (b *Bridge) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil && b.conn.IsConnected()
}
