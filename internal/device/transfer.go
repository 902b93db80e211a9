package device

import (
	"slices"

	"github.com/smazurov/ntv2node/internal/events"
	"github.com/smazurov/ntv2node/pkg/ntv2"
	"github.com/smazurov/ntv2node/pkg/ntv2/buffer"
)

// audioBytesPerFrame is one frame of 16 channel, 32-bit, 48kHz audio.
func (d *Device) audioBytesPerFrame() int {
	return int(48000/d.cfg.FrameRate) * 16 * 4
}

func (d *Device) transfer(c *channel, xfer *ntv2.Transfer) error {
	if !c.transferable() {
		return ntv2.Errorf(ntv2.ResultNotInitialized, "cannot transfer on %s while %s", c.xpt(), c.status.State)
	}
	// AutoFrame and any other negative value auto-advance.
	pinned := xfer.DesiredFrame >= 0
	if pinned && !c.status.ContainsFrame(xfer.DesiredFrame) {
		return ntv2.Errorf(ntv2.ResultFrameOutOfRange, "desired frame %d outside %d-%d",
			xfer.DesiredFrame, c.status.StartFrame, c.status.EndFrame)
	}
	if c.xpt().IsInput() {
		return d.transferIn(c, xfer, pinned)
	}
	return d.transferOut(c, xfer, pinned)
}

func (d *Device) transferOut(c *channel, xfer *ntv2.Transfer, pinned bool) error {
	slot := c.next
	if pinned {
		slot = xfer.DesiredFrame
	}
	if c.level() >= c.capacity() {
		d.drop(c, "overrun")
		d.fillTransferStatus(c, xfer, slot)
		return nil
	}
	n, err := d.writeFrame(slot, xfer)
	if err != nil {
		return err
	}

	stamp := ntv2.NewFrameStamp()
	stamp.FrameTime = d.hostTime()
	stamp.RequestedFrame = uint32(slot)
	stamp.Frame = uint32(slot)
	stamp.AudioClockTimeStamp = d.audioClock()
	stamp.TotalBytesTransferred = uint32(n)
	stamp.CurrentUserCookie = xfer.UserCookie
	stamp.CurrentRP188 = xfer.RP188
	if !xfer.OutputTimeCodes.IsNULL() {
		stamp.TimeCodes.Assign(&xfer.OutputTimeCodes)
	}
	c.stamps[slot] = stamp

	c.queue = append(c.queue, queuedFrame{slot: slot, repeats: max(1, xfer.FrameRepeatCount)})
	if !pinned {
		c.next = c.advance(slot)
	}
	c.status.FramesProcessed++
	c.status.BufferLevel = c.level()
	if c.status.State == ntv2.StateStarting && c.prerollMet() {
		d.run(c)
	}

	d.fillTransferStatus(c, xfer, slot)
	if c.status.WithAudio() {
		xfer.Status.AudioTransferSize = uint32(xfer.Audio.ByteCount())
	}
	if c.status.WithCustomAnc() {
		xfer.Status.AncTransferSize = uint32(xfer.Anc.ByteCount())
		xfer.Status.AncField2TransferSize = uint32(xfer.AncField2.ByteCount())
	}
	d.completed(c, xfer, n)
	return nil
}

func (d *Device) transferIn(c *channel, xfer *ntv2.Transfer, pinned bool) error {
	if len(c.queue) == 0 {
		return ntv2.Errorf(ntv2.ResultNoFrameAvailable, "%s has no captured frame", c.xpt())
	}
	idx := 0
	if pinned {
		idx = slices.IndexFunc(c.queue, func(q queuedFrame) bool { return q.slot == xfer.DesiredFrame })
		if idx < 0 {
			return ntv2.Errorf(ntv2.ResultNoFrameAvailable, "frame %d of %s holds no captured frame",
				xfer.DesiredFrame, c.xpt())
		}
	}
	slot := c.queue[idx].slot
	n, err := d.readFrame(slot, xfer)
	if err != nil {
		return err
	}
	c.queue = slices.Delete(c.queue, idx, idx+1)
	c.status.FramesProcessed++
	c.status.BufferLevel = c.level()

	audio := 0
	if c.status.WithAudio() && !xfer.Audio.IsNULL() {
		audio = min(d.audioBytesPerFrame(), xfer.Audio.ByteCount())
		if seg, ok := xfer.Audio.Segment(0, audio); ok {
			seg.Fill(0)
		}
	}
	d.fillTransferStatus(c, xfer, slot)
	xfer.Status.AudioTransferSize = uint32(audio)
	d.completed(c, xfer, n)
	return nil
}

// writeFrame moves the host video buffer into frame memory.
func (d *Device) writeFrame(slot int32, xfer *ntv2.Transfer) (int, error) {
	if xfer.Video.IsNULL() {
		return 0, nil
	}
	dst := d.frame(slot)
	if xfer.SegmentedDMAsEnabled() {
		segs := xfer.HostSegments()
		if !dst.CopyFromSegments(&xfer.Video, segs) {
			return 0, ntv2.Errorf(ntv2.ResultBadParameter,
				"segmented transfer of %d rows does not fit frame %d", segs.SegmentCount, slot)
		}
		return segs.TotalBytes(), nil
	}
	off := int(xfer.VideoDMAOffset)
	n := xfer.Video.ByteCount()
	if !dst.CopyFromBuffer(&xfer.Video, 0, off, n) {
		return 0, ntv2.Errorf(ntv2.ResultBadParameter,
			"video transfer of %d bytes at offset %d exceeds frame size %d", n, off, d.cfg.FrameBytes)
	}
	return n, nil
}

// readFrame moves frame memory into the host video buffer.
func (d *Device) readFrame(slot int32, xfer *ntv2.Transfer) (int, error) {
	if xfer.Video.IsNULL() {
		return 0, nil
	}
	src := d.frame(slot)
	if xfer.SegmentedDMAsEnabled() {
		host := xfer.HostSegments()
		segs := buffer.SegmentedXferInfo{
			ElementLength: 1,
			SegmentCount:  host.SegmentCount,
			SegmentLength: host.SegmentLength,
			SourceOffset:  host.DestOffset,
			SourcePitch:   host.DestPitch,
			DestPitch:     host.SourcePitch,
		}
		if !xfer.Video.CopyFromSegments(src, segs) {
			return 0, ntv2.Errorf(ntv2.ResultBadParameter,
				"segmented transfer of %d rows does not fit frame %d", segs.SegmentCount, slot)
		}
		return segs.TotalBytes(), nil
	}
	off := int(xfer.VideoDMAOffset)
	n := min(xfer.Video.ByteCount(), src.ByteCount()-off)
	if n <= 0 || !xfer.Video.CopyFromBuffer(src, off, 0, n) {
		return 0, ntv2.Errorf(ntv2.ResultBadParameter,
			"video offset %d exceeds frame size %d", off, d.cfg.FrameBytes)
	}
	return n, nil
}

func (d *Device) fillTransferStatus(c *channel, xfer *ntv2.Transfer, slot int32) {
	ts := &xfer.Status
	ts.State = c.status.State
	ts.TransferFrame = uint32(slot)
	ts.BufferLevel = c.level()
	ts.FramesProcessed = c.status.FramesProcessed
	ts.FramesDropped = c.status.FramesDropped
	ts.AudioTransferSize = 0
	ts.AudioStartSample = 0
	ts.AncTransferSize = 0
	ts.AncField2TransferSize = 0
	if stamp, ok := c.stamps[slot]; ok {
		ts.FrameStamp = cloneStamp(stamp)
	}
	ts.FrameStamp.CurrentTime = d.hostTime()
	ts.FrameStamp.AudioClockCurrentTime = d.audioClock()
	if c.status.ActiveFrame >= 0 {
		ts.FrameStamp.CurrentFrame = uint32(c.status.ActiveFrame)
	}
}

func (d *Device) completed(c *channel, xfer *ntv2.Transfer, videoBytes int) {
	d.logger.Debug("Frame transferred",
		"crosspoint", c.xpt(),
		"frame", xfer.Status.TransferFrame,
		"level", xfer.Status.BufferLevel,
		"bytes", videoBytes)
	d.emit(events.TransferCompletedEvent{
		DeviceID:        d.cfg.ID,
		Crosspoint:      c.xpt().String(),
		Frame:           xfer.Status.TransferFrame,
		BufferLevel:     xfer.Status.BufferLevel,
		FramesProcessed: xfer.Status.FramesProcessed,
		FramesDropped:   xfer.Status.FramesDropped,
		VideoBytes:      videoBytes,
		AudioBytes:      int(xfer.Status.AudioTransferSize),
		Timestamp:       d.timestamp(),
	})
}
