package nats

import (
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/smazurov/ntv2node/internal/events"
)

// Client is the daemon's NATS connection. It publishes channel state and
// telemetry, and lends its connection to the RPC layer. Publishing degrades
// to a no-op while NATS is unavailable.
type Client struct {
	url       string
	name      string
	conn      *nats.Conn
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool
	unsubs    []func()
}

// NewClient creates a NATS client identified by name.
func NewClient(url, name string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		url:    url,
		name:   name,
		logger: logger.With("component", "nats-client", "name", name),
	}
}

// Connect establishes a connection to the NATS server.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	opts := []nats.Option{
		nats.Name("ntv2node-" + c.name),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1), // Infinite reconnects
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.mu.Lock()
			c.connected = false
			c.mu.Unlock()
			if err != nil {
				c.logger.Warn("NATS disconnected", "error", err)
			} else {
				c.logger.Debug("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			c.mu.Lock()
			c.connected = true
			c.mu.Unlock()
			c.logger.Info("NATS reconnected")
		}),
		nats.ConnectHandler(func(_ *nats.Conn) {
			c.logger.Debug("NATS connected")
		}),
	}

	conn, err := nats.Connect(c.url, opts...)
	if err != nil {
		c.logger.Warn("Failed to connect to NATS, running in offline mode", "error", err)
		return err
	}

	c.conn = conn
	c.connected = true
	c.logger.Info("Connected to NATS", "url", c.url, "max_payload", conn.MaxPayload())
	return nil
}

// Conn returns the underlying connection, nil before Connect succeeds.
func (c *Client) Conn() *nats.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

func (c *Client) publish(subject string, data []byte) {
	c.mu.RLock()
	conn := c.conn
	connected := c.connected
	c.mu.RUnlock()

	if conn == nil || !connected {
		return
	}
	if err := conn.Publish(subject, data); err != nil {
		c.logger.Warn("Failed to publish", "subject", subject, "error", err)
	}
}

// PublishState publishes a channel state change.
// No-op if not connected (graceful degradation).
func (c *Client) PublishState(m StateMessage) {
	data, err := m.Marshal()
	if err != nil {
		c.logger.Warn("Failed to marshal state", "error", err)
		return
	}
	c.publish(SubjectChannelState(m.Crosspoint), data)
}

// PublishTelemetry publishes a transfer or drop report.
// No-op if not connected (graceful degradation).
func (c *Client) PublishTelemetry(m TelemetryMessage) {
	data, err := m.Marshal()
	if err != nil {
		c.logger.Warn("Failed to marshal telemetry", "error", err)
		return
	}
	c.publish(SubjectChannelTelemetry(m.Crosspoint), data)
}

// ForwardEvents publishes the channel events of eventBus until Close.
func (c *Client) ForwardEvents(eventBus *events.Bus) {
	unsubs := []func(){
		eventBus.Subscribe(func(e events.ChannelStateChangedEvent) {
			c.PublishState(StateMessage{
				DeviceID:   e.DeviceID,
				Crosspoint: e.Crosspoint,
				Timestamp:  e.Timestamp,
				From:       e.From,
				To:         e.To,
				StartFrame: e.StartFrame,
				EndFrame:   e.EndFrame,
			})
		}),
		eventBus.Subscribe(func(e events.TransferCompletedEvent) {
			c.PublishTelemetry(TelemetryMessage{
				DeviceID:        e.DeviceID,
				Crosspoint:      e.Crosspoint,
				Timestamp:       e.Timestamp,
				Kind:            TelemetryTransfer,
				Frame:           e.Frame,
				BufferLevel:     e.BufferLevel,
				FramesProcessed: e.FramesProcessed,
				FramesDropped:   e.FramesDropped,
				VideoBytes:      e.VideoBytes,
				AudioBytes:      e.AudioBytes,
			})
		}),
		eventBus.Subscribe(func(e events.FramesDroppedEvent) {
			c.PublishTelemetry(TelemetryMessage{
				DeviceID:      e.DeviceID,
				Crosspoint:    e.Crosspoint,
				Timestamp:     e.Timestamp,
				Kind:          TelemetryDrop,
				FramesDropped: e.Total,
				Reason:        e.Reason,
			})
		}),
	}

	c.mu.Lock()
	c.unsubs = append(c.unsubs, unsubs...)
	c.mu.Unlock()
}

// IsConnected returns true if connected to NATS.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.conn != nil
}

// Close stops event forwarding and closes the NATS connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	c.connected = false
	c.logger.Debug("NATS client closed")
}
