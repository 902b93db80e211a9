package ntv2

import "testing"

func TestNewTransferDefaults(t *testing.T) {
	xfer := NewTransfer()
	if xfer.DesiredFrame != AutoFrame || xfer.FrameRepeatCount != 1 {
		t.Errorf("desired=%d repeat=%d", xfer.DesiredFrame, xfer.FrameRepeatCount)
	}
	if xfer.Crosspoint != CrosspointInvalid || xfer.FrameBufferFormat != FBF10BitYCbCr {
		t.Errorf("crosspoint=%d format=%d", xfer.Crosspoint, xfer.FrameBufferFormat)
	}
	if xfer.OutputTimeCodes.ByteCount() != TimecodeArraySize {
		t.Fatalf("output timecodes = %d bytes", xfer.OutputTimeCodes.ByteCount())
	}
	for i := range MaxNumTimecodeIndexes {
		tc, ok := xfer.GetOutputTimeCode(i)
		if !ok || tc.IsValid() {
			t.Fatalf("index %s = %v, %v; want invalid sentinel", i, tc, ok)
		}
	}
}

func TestGetInputTimeCodeClamp(t *testing.T) {
	fs := NewFrameStamp()
	fs.SetInputTimecode(TCIndexLTC1, NewRP188(0, 0, 1, 0))

	tests := []struct {
		name   string
		index  TCIndex
		wantOK bool
	}{
		{"in range", TCIndexLTC1, true},
		{"last index", TCIndexSDI8Field2, true},
		{"at max", MaxNumTimecodeIndexes, false},
		{"far past max", 500, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc, ok := fs.GetInputTimeCode(tt.index)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok && tc != InvalidRP188 {
				t.Errorf("failed lookup returned %v, want invalid sentinel", tc)
			}
		})
	}

	// A short array bounds lookups below the enum maximum.
	fs.TimeCodes.Truncate(int(TCIndexSDI1LTC) * rp188Size)
	if _, ok := fs.GetInputTimeCode(TCIndexSDI4); !ok {
		t.Error("index within short array should succeed")
	}
	if tc, ok := fs.GetInputTimeCode(TCIndexLTC1); ok || tc != InvalidRP188 {
		t.Errorf("index past short array = %v, %v", tc, ok)
	}
	if fs.SetInputTimecode(TCIndexLTC1, RP188{}) {
		t.Error("write past short array should fail")
	}
}

func TestGetInputTimeCodesForSDI(t *testing.T) {
	fs := NewFrameStamp()
	vitc := NewRP188(1, 0, 0, 0)
	fs.SetInputTimecode(TCIndexSDI2, vitc)

	all, ok := fs.GetInputTimeCodesForSDI(Channel2, false)
	if !ok || len(all) != 3 {
		t.Fatalf("all = %v, %v", all, ok)
	}
	valid, ok := fs.GetInputTimeCodesForSDI(Channel2, true)
	if !ok || len(valid) != 1 || valid[TCIndexSDI2] != vitc {
		t.Errorf("valid only = %v, %v", valid, ok)
	}
	if _, ok := fs.GetInputTimeCodesForSDI(ChannelInvalid, false); ok {
		t.Error("invalid input should fail")
	}
}

func TestSetAllOutputTimeCodes(t *testing.T) {
	tc := NewRP188(12, 0, 0, 0)
	for _, includeF2 := range []bool{false, true} {
		xfer := NewTransfer()
		if !xfer.SetAllOutputTimeCodes(tc, includeF2) {
			t.Fatal("SetAllOutputTimeCodes failed")
		}
		for i := range MaxNumTimecodeIndexes {
			got, _ := xfer.GetOutputTimeCode(i)
			want := tc
			if i.IsVITC2() && !includeF2 {
				want = InvalidRP188
			}
			if got != want {
				t.Errorf("includeF2=%v index %s = %v, want %v", includeF2, i, got, want)
			}
		}
	}
}

func TestSetOutputTimeCodesRejectsBadIndex(t *testing.T) {
	xfer := NewTransfer()
	ok := xfer.SetOutputTimeCodes(map[TCIndex]RP188{
		TCIndexLTC1:           NewRP188(0, 0, 0, 1),
		MaxNumTimecodeIndexes: NewRP188(0, 0, 0, 2),
	})
	if ok {
		t.Error("map with an out-of-range index should report failure")
	}
	if got, _ := xfer.GetOutputTimeCode(TCIndexLTC1); got != NewRP188(0, 0, 0, 1) {
		t.Errorf("valid entry not written: %v", got)
	}
}

func TestSegmentedDMAs(t *testing.T) {
	xfer := NewTransferWithBuffers(make([]byte, 256), nil, nil, nil)
	if !xfer.EnableSegmentedDMAs(4, 16, 64, 32) || !xfer.SegmentedDMAsEnabled() {
		t.Fatal("EnableSegmentedDMAs on caller buffer failed")
	}
	xfer.DisableSegmentedDMAs()
	if xfer.SegmentedDMAsEnabled() {
		t.Error("still enabled after disable")
	}

	owned := NewTransfer()
	owned.Video.Allocate(256, false)
	if owned.EnableSegmentedDMAs(4, 16, 64, 32) {
		t.Error("segmented DMA over an SDK-owned video buffer should fail")
	}
}

func TestTransferClearKeepsDefaults(t *testing.T) {
	xfer := NewTransferWithBuffers([]byte{1}, []byte{2}, nil, nil)
	xfer.DesiredFrame = 5
	xfer.Status.FramesDropped = 9
	xfer.Clear()
	if !xfer.Video.IsNULL() || !xfer.Audio.IsNULL() {
		t.Error("Clear should release payload buffers")
	}
	if xfer.DesiredFrame != AutoFrame || xfer.Status.FramesDropped != 0 {
		t.Errorf("desired=%d dropped=%d", xfer.DesiredFrame, xfer.Status.FramesDropped)
	}
	if _, ok := xfer.GetInputTimeCode(TCIndexDefault); !ok {
		t.Error("frame stamp timecodes should survive Clear")
	}
}

func TestRegisterBatchHelpers(t *testing.T) {
	g := NewGetRegisters([]uint32{10, 20, 30})
	g.AddResult(10, 1)
	g.AddResult(30, 3)
	if !g.PatchRegister(30, 33) || g.PatchRegister(20, 2) {
		t.Error("PatchRegister should only touch registers in the response")
	}
	m, _ := g.RegisterValueMap()
	if m[30] != 33 || len(m) != 2 {
		t.Errorf("values = %v", m)
	}
	if g.AddResult(40, 4); g.AddResult(50, 5) {
		t.Error("adding past the requested count should fail")
	}

	// OutNumRegisters larger than the arrays is clamped.
	g.OutNumRegisters = 100
	regs, ok := g.GoodRegisters()
	if !ok || len(regs) != 3 {
		t.Errorf("clamped good registers = %v, %v", regs, ok)
	}

	ri := RegInfo{Num: 1, Value: 0x3, Mask: 0xF0, Shift: 4}
	if got := ri.Apply(0xFFFF_FF0F); got != 0xFFFF_FF3F {
		t.Errorf("Apply = %#x", got)
	}
}
