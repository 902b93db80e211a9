// Package device emulates an NTV2 card: a register file, frame buffer memory
// and the device side of the AutoCirculate protocol, driven by a frame clock.
package device

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/ntv2node/internal/events"
	"github.com/smazurov/ntv2node/internal/logging"
	"github.com/smazurov/ntv2node/pkg/ntv2"
	"github.com/smazurov/ntv2node/pkg/ntv2/buffer"
)

// Config describes the emulated hardware.
type Config struct {
	ID              string
	Model           string
	BoardID         uint32
	NumFrameBuffers int
	FrameBytes      int
	NumRegisters    int
	FrameRate       float64
}

// DefaultConfig returns a 16 frame, 1080p 8-bit YCbCr card running at 29.97Hz.
func DefaultConfig() Config {
	return Config{
		ID:              "emu0",
		Model:           "ntv2-emulator",
		BoardID:         0x10518400,
		NumFrameBuffers: 16,
		FrameBytes:      1920 * 1080 * 2,
		NumRegisters:    1024,
		FrameRate:       30000.0 / 1001.0,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ID == "" {
		c.ID = def.ID
	}
	if c.Model == "" {
		c.Model = def.Model
	}
	if c.BoardID == 0 {
		c.BoardID = def.BoardID
	}
	if c.NumFrameBuffers == 0 {
		c.NumFrameBuffers = def.NumFrameBuffers
	}
	if c.FrameBytes == 0 {
		c.FrameBytes = def.FrameBytes
	}
	if c.NumRegisters == 0 {
		c.NumRegisters = def.NumRegisters
	}
	if c.FrameRate == 0 {
		c.FrameRate = def.FrameRate
	}
	return c
}

// Device is an emulated card. All methods are safe for concurrent use;
// events are published after the device lock is released.
type Device struct {
	cfg      Config
	logger   *slog.Logger
	eventBus *events.Bus
	now      func() time.Time
	opened   time.Time

	mu       sync.Mutex
	regs     *registerFile
	frames   []*buffer.Buffer
	channels [ntv2.CrosspointInvalid]*channel
	vbi      uint64
	closed   bool
	pending  []events.Event
}

// New opens an emulated device. eventBus may be nil.
func New(cfg Config, eventBus *events.Bus) (*Device, error) {
	cfg = cfg.withDefaults()
	switch {
	case cfg.NumFrameBuffers < 2:
		return nil, ntv2.Errorf(ntv2.ResultBadParameter, "device needs at least 2 frame buffers, got %d", cfg.NumFrameBuffers)
	case cfg.FrameBytes < 0:
		return nil, ntv2.Errorf(ntv2.ResultBadParameter, "invalid frame size %d", cfg.FrameBytes)
	case cfg.NumRegisters <= int(ntv2.RegBoardID):
		return nil, ntv2.Errorf(ntv2.ResultBadParameter, "register file of %d is too small", cfg.NumRegisters)
	case cfg.FrameRate < 0:
		return nil, ntv2.Errorf(ntv2.ResultBadParameter, "invalid frame rate %g", cfg.FrameRate)
	}

	d := &Device{
		cfg:      cfg,
		logger:   logging.GetLogger("device"),
		eventBus: eventBus,
		now:      time.Now,
		regs:     newRegisterFile(cfg.NumRegisters, cfg.BoardID),
		frames:   make([]*buffer.Buffer, cfg.NumFrameBuffers),
	}
	d.opened = d.now()
	for xpt := range ntv2.CrosspointInvalid {
		if xpt.IsInput() || xpt.IsOutput() {
			d.channels[xpt] = newChannel(xpt)
		}
	}
	d.logger.Info("Device opened",
		"id", cfg.ID,
		"model", cfg.Model,
		"frames", cfg.NumFrameBuffers,
		"frame_bytes", cfg.FrameBytes,
		"frame_rate", cfg.FrameRate)
	return d, nil
}

// ID returns the device identifier.
func (d *Device) ID() string { return d.cfg.ID }

// Info describes the device.
func (d *Device) Info(ctx context.Context) (ntv2.DeviceInfo, error) {
	if err := ctx.Err(); err != nil {
		return ntv2.DeviceInfo{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ntv2.DeviceInfo{}, ntv2.ErrDeviceNotOpen
	}
	boardID, _ := d.regs.read(ntv2.RegBoardID)
	return ntv2.DeviceInfo{
		ID:              d.cfg.ID,
		Model:           d.cfg.Model,
		BoardID:         boardID,
		NumFrameBuffers: uint32(d.cfg.NumFrameBuffers),
		FrameBytes:      uint32(d.cfg.FrameBytes),
		NumRegisters:    uint32(d.cfg.NumRegisters),
		FrameRate:       d.cfg.FrameRate,
		NumChannels:     int(ntv2.MaxChannels),
	}, nil
}

// Close aborts every active crosspoint. Later calls fail with
// ErrDeviceNotOpen.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.unlockAndPublish()
	if d.closed {
		return nil
	}
	for _, c := range d.channels {
		if c != nil && c.status.State != ntv2.StateDisabled {
			d.abort(c)
		}
	}
	d.closed = true
	d.logger.Info("Device closed", "id", d.cfg.ID)
	return nil
}

// ReadRegisters answers a batch read. Registers past the end of the register
// file are left out of the response; partial success is not an error.
func (d *Device) ReadRegisters(ctx context.Context, req *ntv2.GetRegisters) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	regs, ok := req.RequestedRegisters()
	if !ok {
		return ntv2.Errorf(ntv2.ResultBadParameter, "malformed register read of %d registers", req.InNumRegisters)
	}
	n := len(regs) * 4
	if req.OutGoodRegs.ByteCount() < n && !req.OutGoodRegs.Allocate(n, false) {
		return ntv2.Errorf(ntv2.ResultBufferTooSmall, "cannot allocate %d result registers", len(regs))
	}
	if req.OutValues.ByteCount() < n && !req.OutValues.Allocate(n, false) {
		return ntv2.Errorf(ntv2.ResultBufferTooSmall, "cannot allocate %d result values", len(regs))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ntv2.ErrDeviceNotOpen
	}
	req.OutNumRegisters = 0
	for _, r := range regs {
		if v, ok := d.regs.read(r); ok {
			req.AddResult(r, v)
		}
	}
	d.logger.Debug("Registers read", "requested", len(regs), "good", req.OutNumRegisters)
	return nil
}

// WriteRegisters applies a batch write, recording the request index of every
// write that was rejected.
func (d *Device) WriteRegisters(ctx context.Context, req *ntv2.SetRegisters) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	infos, ok := req.RegInfos()
	if !ok {
		return ntv2.Errorf(ntv2.ResultBadParameter, "malformed register write of %d registers", req.InNumRegisters)
	}
	n := len(infos) * 2
	if req.OutBadRegIndexes.ByteCount() < n && !req.OutBadRegIndexes.Allocate(n, false) {
		return ntv2.Errorf(ntv2.ResultBufferTooSmall, "cannot allocate %d failure indexes", len(infos))
	}

	d.mu.Lock()
	defer d.unlockAndPublish()
	if d.closed {
		return ntv2.ErrDeviceNotOpen
	}
	req.OutNumFailures = 0
	written := make([]uint32, 0, len(infos))
	for i, ri := range infos {
		if d.regs.write(ri) {
			written = append(written, ri.Num)
			continue
		}
		req.AddFailure(uint16(i))
	}
	if req.OutNumFailures > 0 {
		d.logger.Warn("Register writes rejected", "requested", len(infos), "failures", req.OutNumFailures)
	}
	d.emit(events.RegistersWrittenEvent{
		DeviceID:  d.cfg.ID,
		Registers: written,
		Failures:  int(req.OutNumFailures),
		Timestamp: d.timestamp(),
	})
	return nil
}

// AutoCirculate executes one AutoCirculate command. Query commands and
// transfers fill the payload carried by env in place.
func (d *Device) AutoCirculate(ctx context.Context, env *ntv2.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if env.Command == ntv2.CmdTransferEx2 && env.Transfer != nil && !env.Transfer.Crosspoint.IsValid() {
		env.Transfer.Crosspoint = env.Crosspoint
	}
	cmd, err := ntv2.CommandFromEnvelope(env)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.unlockAndPublish()
	if d.closed {
		return ntv2.ErrDeviceNotOpen
	}
	c, err := d.channelFor(cmd.Target())
	if err != nil {
		return err
	}
	d.logger.Debug("AutoCirculate command", "command", cmd.Code(), "crosspoint", c.xpt(), "state", c.status.State)

	switch cmd := cmd.(type) {
	case ntv2.InitCommand:
		return d.initChannel(c, cmd)
	case ntv2.StartCommand:
		return d.start(c, cmd.StartTime)
	case ntv2.StopCommand:
		d.stop(c)
		return nil
	case ntv2.AbortCommand:
		d.abort(c)
		return nil
	case ntv2.PauseCommand:
		return d.pause(c, cmd)
	case ntv2.FlushCommand:
		return d.flush(c, cmd.ClearDropCount)
	case ntv2.PrerollCommand:
		return d.preroll(c, cmd.Frames)
	case ntv2.SetActiveFrameCommand:
		return d.setActiveFrame(c, cmd.Frame)
	case ntv2.GetStatusCommand:
		if env.Status == nil {
			env.Status = ntv2.NewStatus(c.xpt())
		}
		env.PVal[0] = 1
		d.fillStatus(c, env.Status)
		return nil
	case ntv2.GetFrameStampCommand:
		if env.FrameStamp == nil {
			env.FrameStamp = ntv2.NewFrameStamp()
		}
		env.PVal[0] = 1
		return d.frameStamp(c, cmd.Frame, env.FrameStamp)
	case ntv2.TransferCommand:
		return d.transfer(c, cmd.Transfer)
	}
	return ntv2.Errorf(ntv2.ResultUnsupportedMessage, "unsupported autocirculate command %s", cmd.Code())
}

func (d *Device) channelFor(xpt ntv2.Crosspoint) (*channel, error) {
	if !xpt.IsValid() || d.channels[xpt] == nil {
		return nil, ntv2.Errorf(ntv2.ResultBadCrosspoint, "crosspoint %s has no frame store", xpt)
	}
	return d.channels[xpt], nil
}

// frame returns the memory of a frame buffer slot, allocating it on first use.
func (d *Device) frame(slot int32) *buffer.Buffer {
	f := d.frames[slot]
	if f == nil {
		f = buffer.New(d.cfg.FrameBytes)
		d.frames[slot] = f
	}
	return f
}

// hostTime is the host clock in 100ns units.
func (d *Device) hostTime() int64 {
	return d.now().UnixNano() / 100
}

// audioClock counts 48kHz samples since the device was opened.
func (d *Device) audioClock() uint64 {
	elapsed := d.now().Sub(d.opened)
	if elapsed < 0 {
		return 0
	}
	return uint64(elapsed) * 48000 / uint64(time.Second)
}

func (d *Device) timestamp() string {
	return d.now().UTC().Format(time.RFC3339)
}

func (d *Device) emit(ev events.Event) {
	if d.eventBus != nil {
		d.pending = append(d.pending, ev)
	}
}

func (d *Device) unlockAndPublish() {
	pending := d.pending
	d.pending = nil
	d.mu.Unlock()
	for _, ev := range pending {
		d.eventBus.Publish(ev)
	}
}
