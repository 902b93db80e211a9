package autocirculate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/ntv2node/internal/device"
	"github.com/smazurov/ntv2node/pkg/ntv2"
)

func newTestDevice(t *testing.T) *device.Device {
	t.Helper()
	d, err := device.New(device.Config{
		ID:              "ac0",
		NumFrameBuffers: 16,
		FrameBytes:      64,
		NumRegisters:    1024,
		FrameRate:       30,
	}, nil)
	if err != nil {
		t.Fatalf("device.New failed: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// hookDriver forwards to a device and lets a test intercept AutoCirculate.
type hookDriver struct {
	*device.Device
	mu       sync.Mutex
	commands []ntv2.CommandCode
	hook     func(env *ntv2.Envelope) (handled bool, err error)
}

func (h *hookDriver) AutoCirculate(ctx context.Context, env *ntv2.Envelope) error {
	h.mu.Lock()
	h.commands = append(h.commands, env.Command)
	hook := h.hook
	h.mu.Unlock()
	if hook != nil {
		if handled, err := hook(env); handled {
			return err
		}
	}
	return h.Device.AutoCirculate(ctx, env)
}

func (h *hookDriver) count(code ntv2.CommandCode) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.commands {
		if c == code {
			n++
		}
	}
	return n
}

func outputOpts(frames int) InitOptions {
	opts := DefaultInitOptions()
	opts.FrameCount = frames
	return opts
}

func TestInitAllocatesFreeFrames(t *testing.T) {
	ctx := context.Background()
	c := New(newTestDevice(t))

	want := []struct{ start, end int32 }{{0, 6}, {7, 13}}
	for i, w := range want {
		ch := ntv2.Channel(i)
		if err := c.InitForOutput(ctx, ch, outputOpts(7)); err != nil {
			t.Fatalf("InitForOutput(%s) failed: %v", ch, err)
		}
		st, err := c.GetStatus(ctx, ch)
		if err != nil {
			t.Fatalf("GetStatus(%s) failed: %v", ch, err)
		}
		if st.StartFrame != w.start || st.EndFrame != w.end {
			t.Errorf("%s range = %d-%d, want %d-%d", ch, st.StartFrame, st.EndFrame, w.start, w.end)
		}
	}

	err := c.InitForOutput(ctx, ntv2.Channel3, outputOpts(7))
	if !errors.Is(err, ntv2.ErrFrameOutOfRange) {
		t.Errorf("third ring err = %v, want frame out of range", err)
	}
	if err := c.InitForOutput(ctx, ntv2.Channel3, outputOpts(2)); err != nil {
		t.Errorf("two frame ring failed: %v", err)
	}
}

func TestFindUnallocatedFramesFillsGaps(t *testing.T) {
	ctx := context.Background()
	c := New(newTestDevice(t))

	explicit := DefaultInitOptions()
	explicit.StartFrame, explicit.EndFrame = 4, 7
	if err := c.InitForOutput(ctx, ntv2.Channel1, explicit); err != nil {
		t.Fatalf("InitForOutput failed: %v", err)
	}

	tests := []struct {
		name       string
		frames     int
		start, end int32
		wantErr    bool
	}{
		{"fits before band", 4, 0, 3, false},
		{"skips band", 5, 8, 12, false},
		{"too large", 12, 0, 0, true},
		{"single frame", 1, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := c.FindUnallocatedFrames(ctx, tt.frames)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %d-%d", start, end)
				}
				return
			}
			if err != nil {
				t.Fatalf("FindUnallocatedFrames failed: %v", err)
			}
			if start != tt.start || end != tt.end {
				t.Errorf("got %d-%d, want %d-%d", start, end, tt.start, tt.end)
			}
		})
	}
}

func TestInitValidation(t *testing.T) {
	tests := []struct {
		name   string
		ch     ntv2.Channel
		modify func(*InitOptions)
		want   error
	}{
		{"invalid channel", ntv2.ChannelInvalid, nil, ntv2.ErrBadParameter},
		{"zero channels", ntv2.Channel1, func(o *InitOptions) { o.NumChannels = 0 }, ntv2.ErrBadParameter},
		{"nine channels", ntv2.Channel1, func(o *InitOptions) { o.NumChannels = 9 }, ntv2.ErrBadParameter},
		{"reversed range", ntv2.Channel1, func(o *InitOptions) { o.StartFrame, o.EndFrame = 5, 3 }, ntv2.ErrFrameOutOfRange},
		{"negative start", ntv2.Channel1, func(o *InitOptions) { o.StartFrame, o.EndFrame = -1, 3 }, ntv2.ErrFrameOutOfRange},
		{"past frame count", ntv2.Channel1, func(o *InitOptions) { o.StartFrame, o.EndFrame = 10, 16 }, ntv2.ErrFrameOutOfRange},
		{"auto single frame", ntv2.Channel1, func(o *InitOptions) { o.FrameCount = 1 }, ntv2.ErrBadParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drv := &hookDriver{Device: newTestDevice(t)}
			c := New(drv)
			opts := DefaultInitOptions()
			if tt.modify != nil {
				tt.modify(&opts)
			}
			err := c.InitForOutput(context.Background(), tt.ch, opts)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if n := drv.count(ntv2.CmdInit); n != 0 {
				t.Errorf("invalid init reached the device %d times", n)
			}
		})
	}
}

func TestCrosspointFollowsChannelMode(t *testing.T) {
	ctx := context.Background()
	c := New(newTestDevice(t))

	xpt, err := c.Crosspoint(ctx, ntv2.Channel2)
	if err != nil {
		t.Fatalf("Crosspoint failed: %v", err)
	}
	if xpt != ntv2.OutputCrosspoint(ntv2.Channel2) {
		t.Errorf("idle channel resolves to %s", xpt)
	}

	if err := c.InitForInput(ctx, ntv2.Channel2, DefaultInitOptions()); err != nil {
		t.Fatalf("InitForInput failed: %v", err)
	}
	xpt, err = c.Crosspoint(ctx, ntv2.Channel2)
	if err != nil {
		t.Fatalf("Crosspoint failed: %v", err)
	}
	if xpt != ntv2.InputCrosspoint(ntv2.Channel2) {
		t.Errorf("capture channel resolves to %s", xpt)
	}

	if _, err := c.Crosspoint(ctx, ntv2.ChannelInvalid); !errors.Is(err, ntv2.ErrBadParameter) {
		t.Errorf("invalid channel err = %v", err)
	}
}

func TestPlayoutLifecycle(t *testing.T) {
	ctx := context.Background()
	d := newTestDevice(t)
	c := New(d)
	ch := ntv2.Channel1

	if err := c.InitForOutput(ctx, ch, outputOpts(4)); err != nil {
		t.Fatalf("InitForOutput failed: %v", err)
	}
	if err := c.Preroll(ctx, ch, 2); err != nil {
		t.Fatalf("Preroll failed: %v", err)
	}
	if err := c.Start(ctx, ch); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	st, _ := c.GetStatus(ctx, ch)
	if st.State != ntv2.StateStarting {
		t.Fatalf("state before preroll = %s, want Starting", st.State)
	}

	for range 2 {
		xfer := ntv2.NewTransferWithBuffers(make([]byte, 64), nil, nil, nil)
		if err := c.Transfer(ctx, ch, xfer); err != nil {
			t.Fatalf("Transfer failed: %v", err)
		}
	}
	st, err := c.WaitForState(ctx, ch, ntv2.StateRunning, time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForState failed: %v", err)
	}
	if st.FramesProcessed != 2 {
		t.Errorf("FramesProcessed = %d, want 2", st.FramesProcessed)
	}

	if err := c.Pause(ctx, ch, ntv2.NoPauseFrame); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if err := c.Resume(ctx, ch, true); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if err := c.Flush(ctx, ch, false); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if err := c.SetActiveFrame(ctx, ch, 2); err != nil {
		t.Fatalf("SetActiveFrame failed: %v", err)
	}
	st, _ = c.GetStatus(ctx, ch)
	if st.ActiveFrame != 2 || st.BufferLevel != 0 {
		t.Errorf("after flush active=%d level=%d", st.ActiveFrame, st.BufferLevel)
	}

	if err := c.Stop(ctx, ch); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	st, _ = c.GetStatus(ctx, ch)
	if !st.IsStopped() {
		t.Errorf("state after stop = %s", st.State)
	}
	if err := c.Stop(ctx, ch); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
}

func TestTransferPreparesTimecodes(t *testing.T) {
	tests := []struct {
		name   string
		fields bool
	}{
		{"progressive", false},
		{"interlaced", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			d := newTestDevice(t)
			c := New(d)
			opts := outputOpts(4)
			if tt.fields {
				opts.Options = ntv2.OptionFields
			}
			if err := c.InitForOutput(ctx, ntv2.Channel1, opts); err != nil {
				t.Fatalf("InitForOutput failed: %v", err)
			}

			tc := ntv2.NewRP188(1, 2, 3, 4)
			xfer := ntv2.NewTransferWithBuffers(make([]byte, 64), nil, nil, nil)
			xfer.RP188 = tc
			if err := c.Transfer(ctx, ntv2.Channel1, xfer); err != nil {
				t.Fatalf("Transfer failed: %v", err)
			}

			for idx := ntv2.TCIndexDefault; idx < ntv2.MaxNumTimecodeIndexes; idx++ {
				got, _ := xfer.GetOutputTimeCode(idx)
				want := tc
				if idx.IsVITC2() && !tt.fields {
					want = ntv2.InvalidRP188
				}
				if got != want {
					t.Errorf("index %s = %v, want %v", idx, got, want)
				}
			}

			stamp, err := c.GetFrameStamp(ctx, ntv2.Channel1, int32(xfer.Status.TransferFrame))
			if err != nil {
				t.Fatalf("GetFrameStamp failed: %v", err)
			}
			if got, _ := stamp.GetInputTimeCode(ntv2.TCIndexSDI1); got != tc {
				t.Errorf("stamped SDI1 timecode = %v, want %v", got, tc)
			}
		})
	}
}

func TestTransferDefaultTimecodeFansOut(t *testing.T) {
	ctx := context.Background()
	c := New(newTestDevice(t))
	if err := c.InitForOutput(ctx, ntv2.Channel1, outputOpts(4)); err != nil {
		t.Fatalf("InitForOutput failed: %v", err)
	}

	tc := ntv2.NewRP188(10, 0, 0, 0)
	xfer := ntv2.NewTransfer()
	xfer.SetOutputTimeCode(tc, ntv2.TCIndexDefault)
	if err := c.Transfer(ctx, ntv2.Channel1, xfer); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if got, _ := xfer.GetOutputTimeCode(ntv2.TCIndexLTC1); got != tc {
		t.Errorf("LTC1 = %v, want %v", got, tc)
	}
	if xfer.Crosspoint != ntv2.OutputCrosspoint(ntv2.Channel1) {
		t.Errorf("transfer crosspoint = %s", xfer.Crosspoint)
	}
}

func TestCaptureTransferInvalidatesTimecodes(t *testing.T) {
	ctx := context.Background()
	d := newTestDevice(t)
	drv := &hookDriver{Device: d}
	c := New(drv)
	ch := ntv2.Channel1

	if err := c.InitForInput(ctx, ch, outputOpts(4)); err != nil {
		t.Fatalf("InitForInput failed: %v", err)
	}
	if err := c.Start(ctx, ch); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	d.Tick()

	stale := ntv2.NewRP188(9, 9, 9, 9)
	xfer := ntv2.NewTransferWithBuffers(make([]byte, 64), nil, nil, nil)
	xfer.Status.FrameStamp.SetInputTimecode(ntv2.TCIndexLTC2, stale)

	var seen ntv2.RP188
	drv.hook = func(env *ntv2.Envelope) (bool, error) {
		if env.Command == ntv2.CmdTransferEx2 {
			seen, _ = env.Transfer.Status.FrameStamp.GetInputTimeCode(ntv2.TCIndexLTC2)
		}
		return false, nil
	}
	if err := c.Transfer(ctx, ch, xfer); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if seen.IsValid() {
		t.Errorf("stale input timecode %v reached the device", seen)
	}
	if got := xfer.Video.Bytes()[0]; got != 1 {
		t.Errorf("captured byte = %d, want 1", got)
	}

	// Nothing else has been captured.
	err := c.Transfer(ctx, ch, ntv2.NewTransferWithBuffers(make([]byte, 64), nil, nil, nil))
	if !errors.Is(err, ntv2.ErrNoFrameAvailable) {
		t.Errorf("empty capture err = %v", err)
	}
}

func TestStopFallsBackToAbort(t *testing.T) {
	ctx := context.Background()
	drv := &hookDriver{Device: newTestDevice(t)}
	c := New(drv)
	ch := ntv2.Channel1

	if err := c.InitForOutput(ctx, ch, outputOpts(4)); err != nil {
		t.Fatalf("InitForOutput failed: %v", err)
	}
	if err := c.Start(ctx, ch); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	drv.hook = func(env *ntv2.Envelope) (bool, error) {
		return env.Command == ntv2.CmdStop, nil
	}
	if err := c.Stop(ctx, ch); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if n := drv.count(ntv2.CmdAbort); n != 2 {
		t.Errorf("abort sent %d times, want 2", n)
	}
	st, _ := c.GetStatus(ctx, ch)
	if !st.IsStopped() {
		t.Errorf("state = %s, want Disabled", st.State)
	}
}

func TestAbortFailsOnlyWhenBothCrosspointsFail(t *testing.T) {
	ctx := context.Background()
	boom := ntv2.Errorf(ntv2.ResultInvalidState, "boom")

	tests := []struct {
		name    string
		failing map[ntv2.Crosspoint]bool
		wantErr bool
	}{
		{"none", nil, false},
		{"input only", map[ntv2.Crosspoint]bool{ntv2.InputCrosspoint(ntv2.Channel1): true}, false},
		{"both", map[ntv2.Crosspoint]bool{
			ntv2.InputCrosspoint(ntv2.Channel1):  true,
			ntv2.OutputCrosspoint(ntv2.Channel1): true,
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drv := &hookDriver{Device: newTestDevice(t)}
			drv.hook = func(env *ntv2.Envelope) (bool, error) {
				if env.Command == ntv2.CmdAbort && tt.failing[env.Crosspoint] {
					return true, boom
				}
				return false, nil
			}
			err := New(drv).Abort(ctx, ntv2.Channel1)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ntv2.ErrInvalidState) {
				t.Errorf("err = %v, want wrapped invalid state", err)
			}
		})
	}
}

func TestStartAtRejectsZeroTime(t *testing.T) {
	c := New(newTestDevice(t))
	if err := c.StartAt(context.Background(), ntv2.Channel1, 0); !errors.Is(err, ntv2.ErrBadParameter) {
		t.Errorf("err = %v, want bad parameter", err)
	}
}

func TestWaitForStateHonorsContext(t *testing.T) {
	c := New(newTestDevice(t))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	st, err := c.WaitForState(ctx, ntv2.Channel1, ntv2.StateRunning, time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if st == nil || st.State != ntv2.StateDisabled {
		t.Errorf("last status = %+v", st)
	}
}

func TestRegisterBatches(t *testing.T) {
	ctx := context.Background()
	c := New(newTestDevice(t))

	bad, err := c.WriteRegisters(ctx, []ntv2.RegInfo{
		{Num: 100, Value: 0xAB, Mask: 0xFFFFFFFF},
		{Num: ntv2.RegBoardID, Value: 1, Mask: 0xFFFFFFFF},
		{Num: 5000, Value: 1, Mask: 0xFFFFFFFF},
	})
	if err != nil {
		t.Fatalf("WriteRegisters failed: %v", err)
	}
	if len(bad) != 2 || bad[0].Num != ntv2.RegBoardID || bad[1].Num != 5000 {
		t.Errorf("rejected writes = %+v", bad)
	}

	values, err := c.ReadRegisters(ctx, []uint32{100, 5000})
	if err != nil {
		t.Fatalf("ReadRegisters failed: %v", err)
	}
	if len(values) != 1 || values[100] != 0xAB {
		t.Errorf("values = %v", values)
	}
}
