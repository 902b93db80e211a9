// Package collectors feeds channel metrics from a device.
package collectors

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/ntv2node/internal/events"
	"github.com/smazurov/ntv2node/internal/logging"
	"github.com/smazurov/ntv2node/internal/metrics"
	"github.com/smazurov/ntv2node/pkg/ntv2"
)

// StatusSource answers AutoCirculate status queries.
type StatusSource interface {
	AutoCirculate(ctx context.Context, env *ntv2.Envelope) error
}

// StatusCollector polls every crosspoint of a device and keeps the channel
// metrics current. Drop events from the bus update the drop counter between
// polls.
type StatusCollector struct {
	logger   *slog.Logger
	deviceID string
	source   StatusSource
	eventBus *events.Bus
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	unsub    func()
	wg       sync.WaitGroup
}

// NewStatusCollector creates a collector for one device. eventBus may be nil.
func NewStatusCollector(deviceID string, source StatusSource, eventBus *events.Bus) *StatusCollector {
	return &StatusCollector{
		logger:   logging.GetLogger("metrics"),
		deviceID: deviceID,
		source:   source,
		eventBus: eventBus,
		interval: time.Second,
	}
}

// Start begins collecting channel metrics.
func (c *StatusCollector) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)
	if c.eventBus != nil {
		c.unsub = c.eventBus.Subscribe(func(e events.FramesDroppedEvent) {
			if e.DeviceID == c.deviceID {
				metrics.SetFramesDropped(e.DeviceID, e.Crosspoint, e.Total)
			}
		})
	}
	c.wg.Add(1)
	go c.run()
	return nil
}

// Stop stops the collector and waits for the poll loop to exit.
func (c *StatusCollector) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	if c.unsub != nil {
		c.unsub()
		c.unsub = nil
	}
	c.wg.Wait()
	return nil
}

func (c *StatusCollector) run() {
	defer c.wg.Done()
	c.logger.Info("Starting channel metrics collection", "device", c.deviceID, "interval", c.interval)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

func (c *StatusCollector) collect() {
	for ch := range ntv2.Channel(ntv2.MaxChannels) {
		for _, xpt := range []ntv2.Crosspoint{ntv2.OutputCrosspoint(ch), ntv2.InputCrosspoint(ch)} {
			env := ntv2.GetStatusCommand{Crosspoint: xpt}.Envelope()
			if err := c.source.AutoCirculate(c.ctx, env); err != nil {
				if c.ctx.Err() == nil {
					c.logger.Warn("Failed to poll channel status", "crosspoint", xpt, "error", err)
				}
				return
			}
			if env.Status != nil {
				metrics.ObserveChannel(c.deviceID, env.Status)
			}
		}
	}
}
