// Package autocirculate is the host side of the AutoCirculate protocol. A
// Client resolves which crosspoint a channel is circulating on, validates
// frame ranges before they reach the device and prepares transfers, then
// hands commands to a Driver: the emulated device in-process or an RPC
// connection to a remote one.
package autocirculate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/smazurov/ntv2node/internal/logging"
	"github.com/smazurov/ntv2node/pkg/ntv2"
)

// Driver executes NTV2 messages against a device.
type Driver interface {
	Info(ctx context.Context) (ntv2.DeviceInfo, error)
	ReadRegisters(ctx context.Context, req *ntv2.GetRegisters) error
	WriteRegisters(ctx context.Context, req *ntv2.SetRegisters) error
	AutoCirculate(ctx context.Context, env *ntv2.Envelope) error
}

// DefaultFrameCount is the ring size used when InitOptions leave the range to
// the client.
const DefaultFrameCount = 7

// InitOptions configure InitForInput and InitForOutput. When StartFrame
// equals EndFrame the client allocates FrameCount free frames itself.
type InitOptions struct {
	FrameCount  int
	StartFrame  int32
	EndFrame    int32
	AudioSystem ntv2.AudioSystem
	Options     ntv2.OptionFlags
	NumChannels int
}

// DefaultInitOptions returns options for a 7 frame ring on one channel
// without audio.
func DefaultInitOptions() InitOptions {
	return InitOptions{
		FrameCount:  DefaultFrameCount,
		AudioSystem: ntv2.AudioSystemInvalid,
		NumChannels: 1,
	}
}

// Client issues AutoCirculate commands by channel.
type Client struct {
	driver Driver
	logger *slog.Logger

	mu        sync.Mutex
	info      *ntv2.DeviceInfo
	fieldMode map[ntv2.Channel]bool
}

// New returns a client for driver.
func New(driver Driver) *Client {
	return &Client{
		driver:    driver,
		logger:    logging.GetLogger("autocirculate"),
		fieldMode: make(map[ntv2.Channel]bool),
	}
}

// DeviceInfo returns the device description, fetching it once.
func (c *Client) DeviceInfo(ctx context.Context) (ntv2.DeviceInfo, error) {
	c.mu.Lock()
	cached := c.info
	c.mu.Unlock()
	if cached != nil {
		return *cached, nil
	}
	info, err := c.driver.Info(ctx)
	if err != nil {
		return ntv2.DeviceInfo{}, fmt.Errorf("device info: %w", err)
	}
	c.mu.Lock()
	c.info = &info
	c.mu.Unlock()
	return info, nil
}

// InitForInput prepares channel ch for capture.
func (c *Client) InitForInput(ctx context.Context, ch ntv2.Channel, opts InitOptions) error {
	return c.initFor(ctx, ntv2.InputCrosspoint(ch), opts)
}

// InitForOutput prepares channel ch for playout.
func (c *Client) InitForOutput(ctx context.Context, ch ntv2.Channel, opts InitOptions) error {
	return c.initFor(ctx, ntv2.OutputCrosspoint(ch), opts)
}

func (c *Client) initFor(ctx context.Context, xpt ntv2.Crosspoint, opts InitOptions) error {
	ch := xpt.Channel()
	if !ch.IsValid() {
		return ntv2.Errorf(ntv2.ResultBadParameter, "invalid channel %d", uint16(ch))
	}
	if opts.NumChannels < 1 || opts.NumChannels > int(ntv2.MaxChannels) {
		return ntv2.Errorf(ntv2.ResultBadParameter, "channel count %d outside 1-%d", opts.NumChannels, ntv2.MaxChannels)
	}
	info, err := c.DeviceInfo(ctx)
	if err != nil {
		return err
	}

	start, end := opts.StartFrame, opts.EndFrame
	if start != end {
		if err := validateRange(start, end, info.NumFrameBuffers); err != nil {
			return err
		}
	} else {
		start, end, err = c.FindUnallocatedFrames(ctx, opts.FrameCount)
		if err != nil {
			return err
		}
	}

	cmd := ntv2.InitCommand{
		Crosspoint:  xpt,
		StartFrame:  start,
		EndFrame:    end,
		NumChannels: int32(opts.NumChannels),
		AudioSystem: opts.AudioSystem,
		Options:     opts.Options,
	}
	if err := c.driver.AutoCirculate(ctx, cmd.Envelope()); err != nil {
		return fmt.Errorf("init %s: %w", xpt, err)
	}

	c.mu.Lock()
	c.fieldMode[ch] = opts.Options.Has(ntv2.OptionFields)
	c.mu.Unlock()
	c.logger.Info("AutoCirculate initialized",
		"crosspoint", xpt,
		"start_frame", start,
		"end_frame", end,
		"options", opts.Options)
	return nil
}

func validateRange(start, end int32, numFrames uint32) error {
	switch {
	case start < 0 || end < 0:
		return ntv2.Errorf(ntv2.ResultFrameOutOfRange, "negative frame range %d-%d", start, end)
	case end < start:
		return ntv2.Errorf(ntv2.ResultFrameOutOfRange, "end frame %d precedes start frame %d", end, start)
	case end-start+1 < 2:
		return ntv2.Errorf(ntv2.ResultFrameOutOfRange, "frame range %d-%d holds fewer than 2 frames", start, end)
	case uint32(start) >= numFrames || uint32(end) >= numFrames:
		return ntv2.Errorf(ntv2.ResultFrameOutOfRange, "frame range %d-%d exceeds %d frame buffers", start, end, numFrames)
	}
	return nil
}

type frameBand struct{ start, end int32 }

// FindUnallocatedFrames returns the lowest block of frameCount contiguous
// frames not claimed by any active crosspoint.
func (c *Client) FindUnallocatedFrames(ctx context.Context, frameCount int) (int32, int32, error) {
	if frameCount < 2 {
		return 0, 0, ntv2.Errorf(ntv2.ResultBadParameter, "frame count %d is below 2", frameCount)
	}
	info, err := c.DeviceInfo(ctx)
	if err != nil {
		return 0, 0, err
	}

	var bands []frameBand
	for ch := range ntv2.Channel(ntv2.MaxChannels) {
		for _, xpt := range []ntv2.Crosspoint{ntv2.OutputCrosspoint(ch), ntv2.InputCrosspoint(ch)} {
			st, err := c.statusOf(ctx, xpt)
			if err != nil {
				return 0, 0, err
			}
			if !st.IsStopped() {
				bands = append(bands, frameBand{st.StartFrame, st.EndFrame})
			}
		}
	}
	slices.SortFunc(bands, func(a, b frameBand) int { return int(a.start - b.start) })

	n := int32(frameCount)
	start := int32(0)
	for _, b := range bands {
		if start+n-1 < b.start {
			break
		}
		start = max(start, b.end+1)
	}
	end := start + n - 1
	if end >= int32(info.NumFrameBuffers) {
		return 0, 0, ntv2.Errorf(ntv2.ResultFrameOutOfRange,
			"no %d contiguous free frames among %d frame buffers", frameCount, info.NumFrameBuffers)
	}
	return start, end, nil
}

// Crosspoint reports the crosspoint channel ch circulates on, read from the
// capture bit of the channel control register.
func (c *Client) Crosspoint(ctx context.Context, ch ntv2.Channel) (ntv2.Crosspoint, error) {
	regs, ok := ntv2.ChannelRegisters(ch)
	if !ok {
		return ntv2.CrosspointInvalid, ntv2.Errorf(ntv2.ResultBadParameter, "invalid channel %d", uint16(ch))
	}
	req := ntv2.NewGetRegisters([]uint32{regs.Control})
	if err := c.driver.ReadRegisters(ctx, req); err != nil {
		return ntv2.CrosspointInvalid, fmt.Errorf("read %s control register: %w", ch, err)
	}
	values, ok := req.RegisterValueMap()
	if !ok {
		return ntv2.CrosspointInvalid, ntv2.Errorf(ntv2.ResultDecodeFailed, "malformed register reply for %s", ch)
	}
	v, ok := values[regs.Control]
	if !ok {
		return ntv2.CrosspointInvalid, ntv2.Errorf(ntv2.ResultBadParameter, "%s control register %d unreadable", ch, regs.Control)
	}
	if v&ntv2.ControlCaptureBit != 0 {
		return ntv2.InputCrosspoint(ch), nil
	}
	return ntv2.OutputCrosspoint(ch), nil
}

func (c *Client) send(ctx context.Context, ch ntv2.Channel, build func(ntv2.Crosspoint) ntv2.Command) error {
	xpt, err := c.Crosspoint(ctx, ch)
	if err != nil {
		return err
	}
	cmd := build(xpt)
	if err := c.driver.AutoCirculate(ctx, cmd.Envelope()); err != nil {
		return fmt.Errorf("%s %s: %w", cmd.Code(), xpt, err)
	}
	c.logger.Debug("AutoCirculate command sent", "command", cmd.Code(), "crosspoint", xpt)
	return nil
}

// Start starts channel ch immediately.
func (c *Client) Start(ctx context.Context, ch ntv2.Channel) error {
	return c.send(ctx, ch, func(xpt ntv2.Crosspoint) ntv2.Command {
		return ntv2.StartCommand{Crosspoint: xpt}
	})
}

// StartAt starts channel ch once the host clock, in 100ns units, reaches
// startTime.
func (c *Client) StartAt(ctx context.Context, ch ntv2.Channel, startTime int64) error {
	if startTime <= 0 {
		return ntv2.Errorf(ntv2.ResultBadParameter, "invalid start time %d", startTime)
	}
	return c.send(ctx, ch, func(xpt ntv2.Crosspoint) ntv2.Command {
		return ntv2.StartCommand{Crosspoint: xpt, StartTime: startTime}
	})
}

// Stop stops both crosspoints of channel ch. If the channel does not reach
// Disabled it is aborted.
func (c *Client) Stop(ctx context.Context, ch ntv2.Channel) error {
	if err := c.both(ctx, ch, func(xpt ntv2.Crosspoint) ntv2.Command {
		return ntv2.StopCommand{Crosspoint: xpt}
	}); err != nil {
		return err
	}
	st, err := c.GetStatus(ctx, ch)
	if err != nil {
		return err
	}
	if !st.IsStopped() {
		c.logger.Warn("Channel did not stop, aborting", "channel", ch, "state", st.State)
		return c.Abort(ctx, ch)
	}
	c.logger.Info("AutoCirculate stopped", "channel", ch)
	return nil
}

// Abort disables both crosspoints of channel ch without draining.
func (c *Client) Abort(ctx context.Context, ch ntv2.Channel) error {
	if err := c.both(ctx, ch, func(xpt ntv2.Crosspoint) ntv2.Command {
		return ntv2.AbortCommand{Crosspoint: xpt}
	}); err != nil {
		return err
	}
	c.logger.Info("AutoCirculate aborted", "channel", ch)
	return nil
}

// both sends a command to the input and output crosspoint of ch. It fails
// only when both sends fail.
func (c *Client) both(ctx context.Context, ch ntv2.Channel, build func(ntv2.Crosspoint) ntv2.Command) error {
	if !ch.IsValid() {
		return ntv2.Errorf(ntv2.ResultBadParameter, "invalid channel %d", uint16(ch))
	}
	var errs []error
	for _, xpt := range []ntv2.Crosspoint{ntv2.InputCrosspoint(ch), ntv2.OutputCrosspoint(ch)} {
		cmd := build(xpt)
		if err := c.driver.AutoCirculate(ctx, cmd.Envelope()); err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", cmd.Code(), xpt, err))
		}
	}
	c.mu.Lock()
	delete(c.fieldMode, ch)
	c.mu.Unlock()
	if len(errs) == 2 {
		return errors.Join(errs...)
	}
	return nil
}

// Pause pauses channel ch. An atFrame other than ntv2.NoPauseFrame defers
// the pause until the device reaches that frame.
func (c *Client) Pause(ctx context.Context, ch ntv2.Channel, atFrame int32) error {
	return c.send(ctx, ch, func(xpt ntv2.Crosspoint) ntv2.Command {
		return ntv2.NewPauseAtCommand(xpt, atFrame)
	})
}

// Resume resumes a paused channel, optionally zeroing its drop counter.
func (c *Client) Resume(ctx context.Context, ch ntv2.Channel, clearDropCount bool) error {
	return c.send(ctx, ch, func(xpt ntv2.Crosspoint) ntv2.Command {
		return ntv2.NewResumeCommand(xpt, clearDropCount)
	})
}

// Flush discards the frames queued on channel ch.
func (c *Client) Flush(ctx context.Context, ch ntv2.Channel, clearDropCount bool) error {
	return c.send(ctx, ch, func(xpt ntv2.Crosspoint) ntv2.Command {
		return ntv2.FlushCommand{Crosspoint: xpt, ClearDropCount: clearDropCount}
	})
}

// Preroll adds frames to the playout preroll of channel ch. Negative values
// reduce it.
func (c *Client) Preroll(ctx context.Context, ch ntv2.Channel, frames int32) error {
	return c.send(ctx, ch, func(xpt ntv2.Crosspoint) ntv2.Command {
		return ntv2.PrerollCommand{Crosspoint: xpt, Frames: frames}
	})
}

// SetActiveFrame overrides the frame channel ch is showing or filling.
func (c *Client) SetActiveFrame(ctx context.Context, ch ntv2.Channel, frame int32) error {
	return c.send(ctx, ch, func(xpt ntv2.Crosspoint) ntv2.Command {
		return ntv2.SetActiveFrameCommand{Crosspoint: xpt, Frame: frame}
	})
}

// GetStatus returns the status of the crosspoint channel ch circulates on.
func (c *Client) GetStatus(ctx context.Context, ch ntv2.Channel) (*ntv2.Status, error) {
	xpt, err := c.Crosspoint(ctx, ch)
	if err != nil {
		return nil, err
	}
	return c.statusOf(ctx, xpt)
}

func (c *Client) statusOf(ctx context.Context, xpt ntv2.Crosspoint) (*ntv2.Status, error) {
	env := ntv2.GetStatusCommand{Crosspoint: xpt}.Envelope()
	if err := c.driver.AutoCirculate(ctx, env); err != nil {
		return nil, fmt.Errorf("status %s: %w", xpt, err)
	}
	if !env.HasPayload() {
		return nil, ntv2.Errorf(ntv2.ResultDecodeFailed, "status reply for %s carries no status", xpt)
	}
	return env.Status, nil
}

// GetFrameStamp returns the frame stamp of one frame of channel ch.
func (c *Client) GetFrameStamp(ctx context.Context, ch ntv2.Channel, frame int32) (*ntv2.FrameStamp, error) {
	xpt, err := c.Crosspoint(ctx, ch)
	if err != nil {
		return nil, err
	}
	env := ntv2.GetFrameStampCommand{Crosspoint: xpt, Frame: frame}.Envelope()
	if err := c.driver.AutoCirculate(ctx, env); err != nil {
		return nil, fmt.Errorf("framestamp %s frame %d: %w", xpt, frame, err)
	}
	if !env.HasPayload() {
		return nil, ntv2.Errorf(ntv2.ResultDecodeFailed, "framestamp reply for %s carries no stamp", xpt)
	}
	return env.FrameStamp, nil
}

// Transfer moves one frame between xfer and channel ch. Capture transfers
// start with every input timecode invalid. Playout transfers copy RP188, and
// then the default output timecode, to every output timecode index.
func (c *Client) Transfer(ctx context.Context, ch ntv2.Channel, xfer *ntv2.Transfer) error {
	if xfer == nil {
		return ntv2.Errorf(ntv2.ResultBadParameter, "nil transfer")
	}
	xpt, err := c.Crosspoint(ctx, ch)
	if err != nil {
		return err
	}
	if xpt.IsInput() {
		xfer.Status.FrameStamp.Clear()
	} else {
		fields, err := c.isFieldMode(ctx, ch, xpt)
		if err != nil {
			return err
		}
		if xfer.RP188.IsValid() {
			xfer.SetAllOutputTimeCodes(xfer.RP188, fields)
		}
		if tc, ok := xfer.GetOutputTimeCode(ntv2.TCIndexDefault); ok && tc.IsValid() {
			xfer.SetAllOutputTimeCodes(tc, fields)
		}
	}
	xfer.Crosspoint = xpt

	if err := c.driver.AutoCirculate(ctx, ntv2.TransferCommand{Transfer: xfer}.Envelope()); err != nil {
		return fmt.Errorf("transfer %s: %w", xpt, err)
	}
	c.logger.Debug("Frame transferred",
		"crosspoint", xpt,
		"frame", xfer.Status.TransferFrame,
		"level", xfer.Status.BufferLevel)
	return nil
}

// isFieldMode reports whether ch circulates interlaced, asking the device
// when the channel was not initialized through this client.
func (c *Client) isFieldMode(ctx context.Context, ch ntv2.Channel, xpt ntv2.Crosspoint) (bool, error) {
	c.mu.Lock()
	fields, ok := c.fieldMode[ch]
	c.mu.Unlock()
	if ok {
		return fields, nil
	}
	st, err := c.statusOf(ctx, xpt)
	if err != nil {
		return false, err
	}
	fields = st.IsFieldMode()
	if !st.IsStopped() {
		c.mu.Lock()
		c.fieldMode[ch] = fields
		c.mu.Unlock()
	}
	return fields, nil
}

// WaitForState polls channel ch every interval until it reaches want or ctx
// is done.
func (c *Client) WaitForState(ctx context.Context, ch ntv2.Channel, want ntv2.State, interval time.Duration) (*ntv2.Status, error) {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		st, err := c.GetStatus(ctx, ch)
		if err != nil {
			return nil, err
		}
		if st.State == want {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return st, fmt.Errorf("waiting for %s to reach %s (last %s): %w", ch, want, st.State, ctx.Err())
		case <-ticker.C:
		}
	}
}

// WriteRegisters applies a batch of register writes and returns the writes
// the device rejected.
func (c *Client) WriteRegisters(ctx context.Context, infos []ntv2.RegInfo) ([]ntv2.RegInfo, error) {
	req := ntv2.NewSetRegisters(infos)
	if err := c.driver.WriteRegisters(ctx, req); err != nil {
		return nil, fmt.Errorf("write registers: %w", err)
	}
	bad, ok := req.BadRegInfos()
	if !ok {
		return nil, ntv2.Errorf(ntv2.ResultDecodeFailed, "malformed register write reply")
	}
	return bad, nil
}

// ReadRegisters reads a batch of registers. Registers the device could not
// read are absent from the result.
func (c *Client) ReadRegisters(ctx context.Context, regs []uint32) (map[uint32]uint32, error) {
	req := ntv2.NewGetRegisters(regs)
	if err := c.driver.ReadRegisters(ctx, req); err != nil {
		return nil, fmt.Errorf("read registers: %w", err)
	}
	values, ok := req.RegisterValueMap()
	if !ok {
		return nil, ntv2.Errorf(ntv2.ResultDecodeFailed, "malformed register read reply")
	}
	return values, nil
}
