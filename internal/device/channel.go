package device

import (
	"math"

	"github.com/smazurov/ntv2node/internal/events"
	"github.com/smazurov/ntv2node/pkg/ntv2"
)

type queuedFrame struct {
	slot    int32
	repeats uint32
	shown   uint32
}

// channel is the AutoCirculate state of one crosspoint. The ring holds at
// most FrameCount-1 queued frames; a full ring drops instead of queueing.
type channel struct {
	status   ntv2.Status
	queue    []queuedFrame
	next     int32
	preroll  int32
	startAt  int64
	pauseAt  int32
	reps     uint32
	captured uint64
	stamps   map[int32]*ntv2.FrameStamp
}

func newChannel(xpt ntv2.Crosspoint) *channel {
	return &channel{
		status:  *ntv2.NewStatus(xpt),
		stamps:  make(map[int32]*ntv2.FrameStamp),
		pauseAt: ntv2.NoPauseFrame,
	}
}

func (c *channel) xpt() ntv2.Crosspoint { return c.status.Crosspoint }

func (c *channel) level() uint32 { return uint32(len(c.queue)) }

func (c *channel) capacity() uint32 {
	n := c.status.FrameCount()
	if n == 0 {
		return 0
	}
	return n - 1
}

func (c *channel) advance(slot int32) int32 {
	if slot >= c.status.EndFrame {
		return c.status.StartFrame
	}
	return slot + 1
}

func (c *channel) prerollMet() bool {
	if c.xpt().IsInput() {
		return true
	}
	need := min(uint32(max(c.preroll, 0)), c.capacity())
	return c.level() >= need
}

// transferable reports whether Transfer is legal in the current state.
func (c *channel) transferable() bool {
	switch c.status.State {
	case ntv2.StateInitializing, ntv2.StateStarting, ntv2.StateStartingAtTime,
		ntv2.StateRunning, ntv2.StatePaused:
		return true
	}
	return false
}

func (d *Device) setState(c *channel, to ntv2.State) {
	from := c.status.State
	if from == to {
		return
	}
	c.status.State = to
	d.logger.Info("AutoCirculate state changed",
		"crosspoint", c.xpt(),
		"from", from,
		"to", to)
	d.emit(events.ChannelStateChangedEvent{
		DeviceID:   d.cfg.ID,
		Crosspoint: c.xpt().String(),
		From:       from.String(),
		To:         to.String(),
		StartFrame: c.status.StartFrame,
		EndFrame:   c.status.EndFrame,
		Timestamp:  d.timestamp(),
	})
}

func (d *Device) drop(c *channel, reason string) {
	c.status.FramesDropped++
	d.logger.Warn("Frame dropped",
		"crosspoint", c.xpt(),
		"reason", reason,
		"dropped", c.status.FramesDropped)
	d.emit(events.FramesDroppedEvent{
		DeviceID:   d.cfg.ID,
		Crosspoint: c.xpt().String(),
		Reason:     reason,
		Count:      1,
		Total:      c.status.FramesDropped,
		Timestamp:  d.timestamp(),
	})
}

func (d *Device) setFrameRegister(c *channel) {
	regs, ok := ntv2.ChannelRegisters(c.xpt().Channel())
	if !ok || c.status.ActiveFrame < 0 {
		return
	}
	d.regs.set(regs.FrameRegister(c.xpt()), uint32(c.status.ActiveFrame))
}

func (d *Device) initChannel(c *channel, cmd ntv2.InitCommand) error {
	xpt := c.xpt()
	if c.status.State != ntv2.StateDisabled {
		return ntv2.Errorf(ntv2.ResultInvalidState, "%s is %s", xpt, c.status.State)
	}
	ch := xpt.Channel()
	sibling := ntv2.InputCrosspoint(ch)
	if xpt.IsInput() {
		sibling = ntv2.OutputCrosspoint(ch)
	}
	if s := d.channels[sibling]; s != nil && s.status.State != ntv2.StateDisabled {
		return ntv2.Errorf(ntv2.ResultInvalidState, "channel %s is in use by %s", ch, sibling)
	}
	start, end := cmd.StartFrame, cmd.EndFrame
	if start < 0 || end <= start || int(end) >= d.cfg.NumFrameBuffers {
		return ntv2.Errorf(ntv2.ResultFrameOutOfRange,
			"frame range %d-%d invalid for %d frame buffers", start, end, d.cfg.NumFrameBuffers)
	}
	for _, other := range d.channels {
		if other != nil && other != c && other.status.Overlaps(start, end) {
			return ntv2.Errorf(ntv2.ResultFrameRangeOverlap,
				"frame range %d-%d overlaps %s (%d-%d)",
				start, end, other.xpt(), other.status.StartFrame, other.status.EndFrame)
		}
	}

	fresh := newChannel(xpt)
	*c = *fresh
	c.status.StartFrame = start
	c.status.EndFrame = end
	c.status.ActiveFrame = start
	c.status.OptionFlags = cmd.Options
	if cmd.AudioSystem.IsValid() {
		c.status.AudioSystem = cmd.AudioSystem
	}
	c.next = start

	if regs, ok := ntv2.ChannelRegisters(ch); ok {
		d.regs.setBits(regs.Control, ntv2.ControlCaptureBit, xpt.IsInput())
	}
	d.setState(c, ntv2.StateInitializing)
	d.setFrameRegister(c)
	return nil
}

func (d *Device) start(c *channel, startTime int64) error {
	switch c.status.State {
	case ntv2.StateInitializing, ntv2.StatePaused:
	default:
		return ntv2.Errorf(ntv2.ResultInvalidState, "cannot start %s while %s", c.xpt(), c.status.State)
	}
	c.pauseAt = ntv2.NoPauseFrame
	if startTime != 0 {
		c.startAt = startTime
		d.setState(c, ntv2.StateStartingAtTime)
		return nil
	}
	d.startNow(c)
	return nil
}

func (d *Device) startNow(c *channel) {
	d.setState(c, ntv2.StateStarting)
	if c.prerollMet() {
		d.run(c)
	}
}

func (d *Device) run(c *channel) {
	if c.status.RDTSCStartTime == 0 {
		c.status.RDTSCStartTime = uint64(d.hostTime())
		c.status.AudioClockStartTime = d.audioClock()
	}
	d.setState(c, ntv2.StateRunning)
}

func (d *Device) release(c *channel) {
	c.queue = nil
	c.preroll = 0
	c.startAt = 0
	c.pauseAt = ntv2.NoPauseFrame
	c.reps = 0
	c.status.BufferLevel = 0
	c.status.ActiveFrame = -1
}

func (d *Device) stop(c *channel) {
	if c.status.State == ntv2.StateDisabled {
		return
	}
	d.setState(c, ntv2.StateStopping)
	d.release(c)
	d.setState(c, ntv2.StateDisabled)
}

func (d *Device) abort(c *channel) {
	if c.status.State == ntv2.StateDisabled {
		return
	}
	d.release(c)
	d.setState(c, ntv2.StateDisabled)
}

func (d *Device) pause(c *channel, cmd ntv2.PauseCommand) error {
	if cmd.Resume {
		if c.status.State != ntv2.StatePaused {
			return ntv2.Errorf(ntv2.ResultInvalidState, "cannot resume %s while %s", c.xpt(), c.status.State)
		}
		if cmd.ClearDropCount {
			c.status.FramesDropped = 0
		}
		d.setState(c, ntv2.StateRunning)
		return nil
	}
	if c.status.State != ntv2.StateRunning {
		return ntv2.Errorf(ntv2.ResultInvalidState, "cannot pause %s while %s", c.xpt(), c.status.State)
	}
	if cmd.AtFrame != ntv2.NoPauseFrame && !c.status.ContainsFrame(cmd.AtFrame) {
		return ntv2.Errorf(ntv2.ResultFrameOutOfRange, "pause frame %d outside %d-%d",
			cmd.AtFrame, c.status.StartFrame, c.status.EndFrame)
	}
	if cmd.ClearDropCount {
		c.status.FramesDropped = 0
	}
	if cmd.AtFrame != ntv2.NoPauseFrame {
		c.pauseAt = cmd.AtFrame
		return nil
	}
	d.setState(c, ntv2.StatePaused)
	return nil
}

func (d *Device) flush(c *channel, clearDrops bool) error {
	if c.status.State == ntv2.StateDisabled {
		return ntv2.Errorf(ntv2.ResultNotInitialized, "%s is not initialized", c.xpt())
	}
	c.queue = nil
	c.status.BufferLevel = 0
	if clearDrops {
		c.status.FramesDropped = 0
	}
	d.logger.Debug("AutoCirculate flushed", "crosspoint", c.xpt(), "clear_drops", clearDrops)
	return nil
}

func (d *Device) preroll(c *channel, frames int32) error {
	if c.status.State == ntv2.StateDisabled {
		return ntv2.Errorf(ntv2.ResultNotInitialized, "%s is not initialized", c.xpt())
	}
	if c.xpt().IsInput() {
		return ntv2.Errorf(ntv2.ResultBadParameter, "preroll applies to playout, not %s", c.xpt())
	}
	c.preroll = max(0, c.preroll+frames)
	if c.status.State == ntv2.StateStarting && c.prerollMet() {
		d.run(c)
	}
	return nil
}

func (d *Device) setActiveFrame(c *channel, frame int32) error {
	if c.status.State == ntv2.StateDisabled {
		return ntv2.Errorf(ntv2.ResultNotInitialized, "%s is not initialized", c.xpt())
	}
	if !c.status.ContainsFrame(frame) {
		return ntv2.Errorf(ntv2.ResultFrameOutOfRange, "frame %d outside %d-%d",
			frame, c.status.StartFrame, c.status.EndFrame)
	}
	c.status.ActiveFrame = frame
	d.setFrameRegister(c)
	return nil
}

func (d *Device) fillStatus(c *channel, out *ntv2.Status) {
	*out = c.status
	out.BufferLevel = c.level()
	out.RDTSCCurrentTime = uint64(d.hostTime())
	out.AudioClockCurrentTime = d.audioClock()
}

func (d *Device) frameStamp(c *channel, frame int32, out *ntv2.FrameStamp) error {
	if c.status.State == ntv2.StateDisabled {
		return ntv2.Errorf(ntv2.ResultNotInitialized, "%s is not initialized", c.xpt())
	}
	if !c.status.ContainsFrame(frame) {
		return ntv2.Errorf(ntv2.ResultFrameOutOfRange, "frame %d outside %d-%d",
			frame, c.status.StartFrame, c.status.EndFrame)
	}
	if stored, ok := c.stamps[frame]; ok {
		*out = cloneStamp(stored)
	} else {
		*out = *ntv2.NewFrameStamp()
		out.RequestedFrame = uint32(frame)
	}
	out.Frame = uint32(frame)
	out.CurrentTime = d.hostTime()
	out.AudioClockCurrentTime = d.audioClock()
	out.CurrentReps = c.reps
	if active := c.status.ActiveFrame; active >= 0 {
		out.CurrentFrame = uint32(active)
		if stamp, ok := c.stamps[active]; ok {
			out.CurrentFrameTime = stamp.FrameTime
			out.CurrentUserCookie = stamp.CurrentUserCookie
			out.CurrentRP188 = stamp.CurrentRP188
		}
	}
	if c.status.IsFieldMode() {
		out.CurrentFieldCount = uint32(d.vbi % 2)
	}
	return nil
}

func cloneStamp(fs *ntv2.FrameStamp) ntv2.FrameStamp {
	out := *fs
	out.TimeCodes = *fs.TimeCodes.Clone()
	return out
}

// timecodeAt converts a frame count into a 24-hour wrapping timecode at the
// nearest integer rate.
func timecodeAt(frames uint64, rate float64) ntv2.RP188 {
	fps := uint64(math.Round(rate))
	if fps == 0 {
		fps = 30
	}
	secs := frames / fps
	return ntv2.NewRP188(
		uint32(secs/3600%24),
		uint32(secs/60%60),
		uint32(secs%60),
		uint32(frames%fps),
	)
}
