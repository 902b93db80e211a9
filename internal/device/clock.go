package device

import (
	"context"
	"time"

	"github.com/smazurov/ntv2node/pkg/ntv2"
)

// Tick advances the frame clock by one vertical interval. Running playout
// crosspoints show the next queued frame, running capture crosspoints fill
// the next slot, and scheduled or prerolling starts are re-evaluated.
func (d *Device) Tick() {
	d.mu.Lock()
	defer d.unlockAndPublish()
	if d.closed {
		return
	}
	d.vbi++
	d.regs.set(ntv2.RegStatus, uint32(d.vbi))
	for _, c := range d.channels {
		if c != nil {
			d.tickChannel(c)
		}
	}
}

// RunClock calls Tick at rate Hz until ctx is done. A rate of zero or less
// uses the configured frame rate.
func (d *Device) RunClock(ctx context.Context, rate float64) {
	if rate <= 0 {
		rate = d.cfg.FrameRate
	}
	interval := time.Duration(float64(time.Second) / rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.logger.Info("Frame clock started", "rate", rate, "interval", interval)
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Frame clock stopped")
			return
		case <-ticker.C:
			d.Tick()
		}
	}
}

func (d *Device) tickChannel(c *channel) {
	switch c.status.State {
	case ntv2.StateStartingAtTime:
		if d.hostTime() >= c.startAt {
			d.startNow(c)
		}
		return
	case ntv2.StateStarting:
		if c.prerollMet() {
			d.run(c)
		}
		return
	case ntv2.StateRunning:
	default:
		return
	}

	if c.xpt().IsInput() {
		d.capture(c)
	} else {
		d.playout(c)
	}
	if c.pauseAt != ntv2.NoPauseFrame && c.status.ActiveFrame == c.pauseAt {
		c.pauseAt = ntv2.NoPauseFrame
		d.setState(c, ntv2.StatePaused)
	}
}

func (d *Device) playout(c *channel) {
	if len(c.queue) == 0 {
		d.drop(c, "underrun")
		return
	}
	head := &c.queue[0]
	head.shown++
	c.reps = head.shown
	c.status.ActiveFrame = head.slot
	if head.shown >= head.repeats {
		c.queue = c.queue[1:]
	}
	c.status.BufferLevel = c.level()
	d.setFrameRegister(c)
}

func (d *Device) capture(c *channel) {
	if c.level() >= c.capacity() {
		d.drop(c, "overrun")
		return
	}
	slot := c.next
	c.next = c.advance(slot)
	d.frame(slot).Fill(byte(d.vbi))

	stamp := ntv2.NewFrameStamp()
	stamp.FrameTime = d.hostTime()
	stamp.RequestedFrame = uint32(slot)
	stamp.Frame = uint32(slot)
	stamp.AudioClockTimeStamp = d.audioClock()
	stamp.TotalBytesTransferred = uint32(d.cfg.FrameBytes)

	tc := timecodeAt(c.captured, d.cfg.FrameRate)
	stamp.CurrentRP188 = tc
	stamp.SetInputTimecode(ntv2.TCIndexDefault, tc)
	if idx := ntv2.TCIndexesForSDIInput(c.xpt().Channel()); len(idx) == 3 {
		if c.status.WithRP188() {
			stamp.SetInputTimecode(idx[0], tc)
			if c.status.IsFieldMode() {
				stamp.SetInputTimecode(idx[1], tc)
			}
		}
		if c.status.WithLTC() {
			stamp.SetInputTimecode(idx[2], tc)
		}
	}
	c.stamps[slot] = stamp

	c.queue = append(c.queue, queuedFrame{slot: slot, repeats: 1})
	c.captured++
	c.status.ActiveFrame = slot
	c.status.BufferLevel = c.level()
	d.setFrameRegister(c)
}
